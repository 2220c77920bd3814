package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/natefinch/atomic"

	"github.com/swamp-dev/commanddeck/internal/store"
)

const (
	exportObjectLimit = 500
	exportBucketLimit = 20
	exportHistLimit   = 3
	slugSummaryRunes  = 120
)

// summaryFields are checked in order when an object value is a JSON object.
var summaryFields = []string{"summary", "title", "text", "note", "value"}

// SnapshotView is the bucketed view of a board's memory at export time.
type SnapshotView struct {
	St  string   `json:"st"`
	Ms  string   `json:"ms"`
	Ct  []string `json:"ct"`
	Dec []string `json:"dec"`
	Trb []string `json:"trb"`
	Lrn []string `json:"lrn"`
	Nx  []string `json:"nx"`
	Ref []string `json:"ref"`
}

// Snapshot is the export document. Hist holds earlier views, most recent
// first.
type Snapshot struct {
	V    int               `json:"v"`
	Upd  string            `json:"upd"`
	Cur  SnapshotView      `json:"cur"`
	Hist []json.RawMessage `json:"hist"`
}

// ExportResult reports where a snapshot was written and how many objects
// it was built from.
type ExportResult struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Export writes a board's snapshot to target, a path inside the export
// directory. A blank target writes <boardId>.json. An existing snapshot at
// the target has its current view pushed onto the history.
func (s *Service) Export(ctx context.Context, boardID, target string) (*ExportResult, error) {
	var (
		rows []store.MemoryObject
		id   string
	)
	err := s.store.View(ctx, func(tx *store.Tx) error {
		b, err := tx.ResolveBoard(boardID)
		if err != nil {
			return err
		}
		id = b.ID
		rows, err = tx.ListMemoryObjects(b.ID, false, exportObjectLimit)
		return err
	})
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(target) == "" {
		target = id + ".json"
	}
	path, err := s.exportPath(target)
	if err != nil {
		return nil, err
	}

	doc := BuildSnapshot(rows, id, s.now())
	doc.Hist = mergeHistory(path)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return nil, fmt.Errorf("writing snapshot: %w", err)
	}

	s.logger.Info("memory exported", "board", id, "path", path, "objects", len(rows))
	return &ExportResult{Path: path, Count: len(rows)}, nil
}

// exportPath resolves target against the export directory and rejects
// anything that lands outside it.
func (s *Service) exportPath(target string) (string, error) {
	s.mu.RLock()
	dir := s.exportDir
	s.mu.RUnlock()
	if dir == "" {
		return "", &store.ValidationError{Field: "exportDir", Message: "is not configured"}
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving export directory: %w", err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	path := filepath.Clean(target)

	realRoot, err := resolveExisting(root)
	if err != nil {
		return "", fmt.Errorf("resolving export directory: %w", err)
	}
	realPath, err := resolveExisting(path)
	if err != nil {
		return "", &store.PathEscapeError{Path: path, Root: root}
	}
	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &store.PathEscapeError{Path: path, Root: root}
	}
	return path, nil
}

// resolveExisting follows symlinks through the longest existing prefix of
// the absolute path p and appends the parts that do not exist yet. A
// dangling symlink is an error.
func resolveExisting(p string) (string, error) {
	rest := ""
	for {
		_, err := os.Lstat(p)
		if err == nil {
			resolved, err := filepath.EvalSymlinks(p)
			if err != nil {
				return "", err
			}
			return filepath.Join(resolved, rest), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return filepath.Join(p, rest), nil
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}

// BuildSnapshot buckets objects into slugs. Objects outside the six export
// buckets are left out; duplicate slugs collapse and each bucket keeps its
// first 20 entries in input order.
func BuildSnapshot(objects []store.MemoryObject, boardID string, now time.Time) *Snapshot {
	buckets := map[string][]string{}
	for _, o := range objects {
		if !isExportBucket(o.Bucket) {
			continue
		}
		slug := strings.Trim(o.MemoryKey+":"+slugSummary(Payload(o.Value).Decode()), ":")
		list := buckets[o.Bucket]
		if slug == "" || len(list) >= exportBucketLimit || slices.Contains(list, slug) {
			continue
		}
		buckets[o.Bucket] = append(list, slug)
	}

	view := func(b string) []string {
		if l := buckets[b]; l != nil {
			return l
		}
		return []string{}
	}
	return &Snapshot{
		V:   1,
		Upd: now.UTC().Format(time.RFC3339),
		Cur: SnapshotView{
			St:  "memory-db",
			Ms:  "board:" + boardID,
			Ct:  view("ct"),
			Dec: view("dec"),
			Trb: view("trb"),
			Lrn: view("lrn"),
			Nx:  view("nx"),
			Ref: view("ref"),
		},
		Hist: []json.RawMessage{},
	}
}

// mergeHistory reads the snapshot already at path and returns its current
// view followed by its history, capped. Unreadable files yield no history.
func mergeHistory(path string) []json.RawMessage {
	hist := []json.RawMessage{}
	data, err := os.ReadFile(path)
	if err != nil {
		return hist
	}
	var prev map[string]json.RawMessage
	if err := json.Unmarshal(data, &prev); err != nil {
		return hist
	}

	if cur := prev["cur"]; isJSONObject(cur) {
		hist = append(hist, cur)
	}
	var older []json.RawMessage
	if err := json.Unmarshal(prev["hist"], &older); err == nil {
		for _, h := range older {
			if isJSONObject(h) {
				hist = append(hist, h)
			}
		}
	}
	if len(hist) > exportHistLimit {
		hist = hist[:exportHistLimit]
	}
	return hist
}

func isJSONObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func isExportBucket(b string) bool {
	switch b {
	case "ct", "dec", "trb", "lrn", "nx", "ref":
		return true
	}
	return false
}

func slugSummary(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case map[string]any:
		for _, f := range summaryFields {
			if field, ok := v[f]; ok {
				return truncateRunes(scalarText(field), slugSummaryRunes)
			}
		}
		return truncateRunes(compactJSON(v), slugSummaryRunes)
	case []any:
		return truncateRunes(compactJSON(v), slugSummaryRunes)
	}
	return truncateRunes(scalarText(v), slugSummaryRunes)
}

func scalarText(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return "null"
	}
	return compactJSON(v)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
