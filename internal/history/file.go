package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultRetention is how long the file store keeps records.
const DefaultRetention = 7 * 24 * time.Hour

// FileStore keeps the send-history in a JSON file. The whole file is
// rewritten on every append; records older than the retention are dropped
// at that point.
type FileStore struct {
	filePath  string
	retention time.Duration
	mu        sync.Mutex
	items     map[string]SendRecord
	now       func() time.Time
}

// NewFileStore opens (or creates on first append) the JSON file at path.
func NewFileStore(path string, retention time.Duration) (*FileStore, error) {
	if path == "" {
		path = filepath.Join("logs", "sent_messages.json")
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	fs := &FileStore{
		filePath:  path,
		retention: retention,
		items:     make(map[string]SendRecord),
		now:       time.Now,
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read history file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var records []SendRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("decode history file %s: %w", fs.filePath, err)
	}
	for _, r := range records {
		fs.put(r)
	}
	return nil
}

// put keeps the newest record per key.
func (fs *FileStore) put(r SendRecord) {
	if prev, ok := fs.items[r.Key]; ok && prev.SentAt.After(r.SentAt) {
		return
	}
	fs.items[r.Key] = r
}

func (fs *FileStore) Window(_ context.Context, since time.Time) ([]SendRecord, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var out []SendRecord
	for _, r := range fs.items {
		if r.SentAt.After(since) {
			out = append(out, r)
		}
	}
	sortBySentAt(out)
	return out, nil
}

func (fs *FileStore) Append(_ context.Context, rec SendRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("append: empty key")
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.put(rec)
	return fs.save()
}

// save writes all records inside the retention to a temp file and renames
// it over the target. Callers hold fs.mu.
func (fs *FileStore) save() error {
	cutoff := fs.now().Add(-fs.retention)
	records := make([]SendRecord, 0, len(fs.items))
	for k, r := range fs.items {
		if r.SentAt.Before(cutoff) {
			delete(fs.items, k)
			continue
		}
		records = append(records, r)
	}
	sortBySentAt(records)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if dir := filepath.Dir(fs.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}
	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history file: %w", err)
	}
	if err := os.Rename(tmp, fs.filePath); err != nil {
		return fmt.Errorf("replace history file: %w", err)
	}
	return nil
}

func (fs *FileStore) Close() error { return nil }
