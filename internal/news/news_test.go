package news

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestNormalize(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	old := now.Add(-30 * time.Hour)
	recent := now.Add(-2 * time.Hour)

	n := Normalizer{Window: 24 * time.Hour, Now: func() time.Time { return now }}
	items, skipped := n.Normalize([]RawRecord{
		{Title: "  <b>Solar</b> breakthrough ", Body: "<p>First.</p><p>Second   line.</p>", Link: "https://a.example/1", Published: &recent, Source: "rss"},
		{Title: "", Link: ""},
		{Title: "Stale", Link: "https://a.example/2", Published: &old},
		{Link: "https://a.example/3", Description: "desc only"},
	})

	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}

	want := []*Item{
		{Title: "Solar breakthrough", Body: "First.\n\nSecond line.", Link: "https://a.example/1", Published: recent, Source: "rss", Status: StatusPending},
		{Link: "https://a.example/3", Description: "desc only", Published: now, Status: StatusPending},
	}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluationContent(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want string
	}{
		{name: "body wins", item: Item{Body: "b", Description: "d", Summary: "s"}, want: "b"},
		{name: "description next", item: Item{Body: "  ", Description: "d", Summary: "s"}, want: "d"},
		{name: "summary last", item: Item{Summary: "s"}, want: "s"},
		{name: "all empty", item: Item{Title: "t"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.EvaluationContent(); got != tt.want {
				t.Errorf("EvaluationContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeliverable(t *testing.T) {
	it := Item{Title: "orig", Description: "from description"}
	if got := it.DeliverableBody(); got != "from description" {
		t.Errorf("DeliverableBody() = %q", got)
	}
	if got := it.DeliverableTitle(); got != "orig" {
		t.Errorf("DeliverableTitle() = %q", got)
	}
	it.OptimizedTitle, it.OptimizedBody = "better", "rewritten"
	if it.DeliverableBody() != "rewritten" || it.DeliverableTitle() != "better" {
		t.Errorf("optimized fields not preferred: %+v", it)
	}
}

func TestKeyFor(t *testing.T) {
	tests := []struct {
		name  string
		link  string
		title string
		want  string
	}{
		{name: "link canonicalized", link: "HTTPS://WWW.Example.com/a/#top", want: "https://example.com/a"},
		{name: "mixed case www host", link: "https://Www.Example.com/a", want: "https://example.com/a"},
		{name: "link trimmed", link: "  https://example.com/b  ", title: "x", want: "https://example.com/b"},
		{name: "nothing", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeyFor(tt.link, tt.title); got != tt.want {
				t.Errorf("KeyFor() = %q, want %q", got, tt.want)
			}
		})
	}

	a := KeyFor("", "Solar breakthrough")
	b := KeyFor("", "  SOLAR   breakthrough!")
	if a != b || !strings.HasPrefix(a, "title:") {
		t.Errorf("title fingerprints differ: %q vs %q", a, b)
	}
}

func TestNormalizeTitle(t *testing.T) {
	got := []string{
		NormalizeTitle("Solar Breakthrough!"),
		NormalizeTitle("  solar\tbreakthrough "),
		NormalizeTitle("Ｓｏｌａｒ breakthrough"),
	}
	want := []string{"solar breakthrough", "solar breakthrough", "solar breakthrough"}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("NormalizeTitle mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "plain   text", want: "plain text"},
		{in: "AT&amp;T <i>rocks</i>", want: "AT&T rocks"},
		{in: "<script>x()</script><p>kept</p>", want: "kept"},
		{in: "line<br>break", want: "line break"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := CleanText(tt.in); got != tt.want {
			t.Errorf("CleanText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
