package history

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestPostgresQueries(t *testing.T) {
	query, args, err := windowQuery(base).ToSql()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"FROM send_history", "WHERE sent_at > $1", "ORDER BY sent_at"} {
		if !strings.Contains(query, want) {
			t.Errorf("window query %q missing %q", query, want)
		}
	}
	if diff := cmp.Diff([]interface{}{base}, args); diff != "" {
		t.Errorf("window args (-want +got):\n%s", diff)
	}

	rec := SendRecord{Key: "k", Title: "t", Link: "l", Source: "s", SentAt: base}
	query, args, err = appendQuery(rec).ToSql()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(query, "INSERT INTO send_history") || !strings.Contains(query, "$5") || !strings.Contains(query, "ON CONFLICT (key)") {
		t.Errorf("append query = %q", query)
	}
	if diff := cmp.Diff([]interface{}{"k", "t", "l", "s", base}, args); diff != "" {
		t.Errorf("append args (-want +got):\n%s", diff)
	}

	query, _, err = pruneQuery(base).ToSql()
	if err != nil {
		t.Fatal(err)
	}
	if query != "DELETE FROM send_history WHERE sent_at < $1" {
		t.Errorf("prune query = %q", query)
	}
}
