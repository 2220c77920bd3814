package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// MemoryEvent is one append-only entry in the memory ledger. Value holds the
// raw stored JSON text and is nil when the event carried none.
type MemoryEvent struct {
	ID           string   `json:"id"`
	BoardID      string   `json:"boardId"`
	MemoryKey    string   `json:"memoryKey"`
	EventType    string   `json:"eventType"`
	SourceType   string   `json:"sourceType"`
	Bucket       string   `json:"bucket"`
	Value        []byte   `json:"-"`
	Tags         []string `json:"tags"`
	TTLSeconds   int      `json:"ttlSeconds"`
	SourceRef    string   `json:"sourceRef"`
	StampWall    int64    `json:"stampWall"`
	StampLogical int64    `json:"stampLogical"`
	CreatedAt    int64    `json:"createdAt"`
}

// MemoryObject is the projected current state of one (board, key).
type MemoryObject struct {
	ID            string   `json:"id"`
	BoardID       string   `json:"boardId"`
	MemoryKey     string   `json:"memoryKey"`
	Bucket        string   `json:"bucket"`
	Value         []byte   `json:"-"`
	Tags          []string `json:"tags"`
	SourceType    string   `json:"sourceType"`
	IsDeleted     bool     `json:"isDeleted"`
	Version       int64    `json:"version"`
	LastEventID   string   `json:"lastEventId"`
	StampWall     int64    `json:"stampWall"`
	StampLogical  int64    `json:"stampLogical"`
	CreatedAt     int64    `json:"createdAt"`
	UpdatedAt     int64    `json:"updatedAt"`
	LastTouchedAt int64    `json:"lastTouchedAt"`
	ExpiresAt     *int64   `json:"expiresAt"`
}

// MemoryStats summarizes a board's memory footprint. Object figures cover
// live objects only.
type MemoryStats struct {
	EventCount  int   `json:"eventCount"`
	EventBytes  int64 `json:"eventBytes"`
	ObjectCount int   `json:"objectCount"`
	ObjectBytes int64 `json:"objectBytes"`
}

// MemoryRank is a row reference with its payload size, used by compaction.
type MemoryRank struct {
	ID    string
	Bytes int64
}

// MemorySearch filters SearchMemoryObjects.
type MemorySearch struct {
	Text       string
	SourceType string
	Bucket     string
	Limit      int
}

// Payload sizes are byte lengths of the stored text columns.
const (
	objectBytesExpr = `LENGTH(CAST(memory_key AS BLOB)) + COALESCE(LENGTH(CAST(value AS BLOB)), 0) + LENGTH(CAST(tags AS BLOB))`
	eventBytesExpr  = objectBytesExpr + ` + LENGTH(CAST(source_ref AS BLOB))`
)

const memoryObjectColumns = `id, board_id, memory_key, bucket, value, tags, source_type, is_deleted, version,
	last_event_id, stamp_wall, stamp_logical, created_at, updated_at, last_touched_at, expires_at`

func scanMemoryObject(row rowScanner) (*MemoryObject, error) {
	o := &MemoryObject{}
	var value sql.NullString
	var tags string
	var deleted int
	var expires sql.NullInt64
	if err := row.Scan(&o.ID, &o.BoardID, &o.MemoryKey, &o.Bucket, &value, &tags, &o.SourceType, &deleted,
		&o.Version, &o.LastEventID, &o.StampWall, &o.StampLogical, &o.CreatedAt, &o.UpdatedAt,
		&o.LastTouchedAt, &expires); err != nil {
		return nil, err
	}
	if value.Valid {
		o.Value = []byte(value.String)
	}
	o.Tags = decodeTags(tags)
	o.IsDeleted = deleted == 1
	o.ExpiresAt = int64Ptr(expires)
	return o, nil
}

func nullBytes(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

// --- Event log ---

// InsertMemoryEvent appends an event to the ledger.
func (t *Tx) InsertMemoryEvent(e *MemoryEvent) error {
	_, err := t.exec(
		`INSERT INTO memory_events (id, board_id, memory_key, event_type, source_type, bucket, value, tags,
		 ttl_seconds, source_ref, stamp_wall, stamp_logical, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.BoardID, e.MemoryKey, e.EventType, e.SourceType, e.Bucket, nullBytes(e.Value), encodeTags(e.Tags),
		e.TTLSeconds, e.SourceRef, e.StampWall, e.StampLogical, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting memory event: %w", err)
	}
	return nil
}

// ListMemoryEvents returns a key's events, oldest first.
func (t *Tx) ListMemoryEvents(boardID, key string) ([]MemoryEvent, error) {
	rows, err := t.query(
		`SELECT id, board_id, memory_key, event_type, source_type, bucket, value, tags, ttl_seconds,
		 source_ref, stamp_wall, stamp_logical, created_at
		 FROM memory_events WHERE board_id = ? AND memory_key = ?
		 ORDER BY stamp_wall, stamp_logical, id`,
		boardID, key,
	)
	if err != nil {
		return nil, fmt.Errorf("listing memory events: %w", err)
	}
	defer rows.Close()

	var out []MemoryEvent
	for rows.Next() {
		var e MemoryEvent
		var value sql.NullString
		var tags string
		if err := rows.Scan(&e.ID, &e.BoardID, &e.MemoryKey, &e.EventType, &e.SourceType, &e.Bucket, &value,
			&tags, &e.TTLSeconds, &e.SourceRef, &e.StampWall, &e.StampLogical, &e.CreatedAt); err != nil {
			return nil, err
		}
		if value.Valid {
			e.Value = []byte(value.String)
		}
		e.Tags = decodeTags(tags)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MaxMemoryStamp returns the highest event stamp stored across all boards.
func (t *Tx) MaxMemoryStamp() (wall, logical int64, err error) {
	err = t.queryRow(
		"SELECT stamp_wall, stamp_logical FROM memory_events ORDER BY stamp_wall DESC, stamp_logical DESC LIMIT 1",
	).Scan(&wall, &logical)
	if isNoRows(err) {
		return 0, 0, nil
	}
	return wall, logical, err
}

// --- Projection ---

// GetMemoryObject returns the projection row for a key, deleted or not.
func (t *Tx) GetMemoryObject(boardID, key string) (*MemoryObject, error) {
	o, err := scanMemoryObject(t.queryRow(
		"SELECT "+memoryObjectColumns+" FROM memory_objects WHERE board_id = ? AND memory_key = ?", boardID, key,
	))
	if isNoRows(err) {
		return nil, notFound("memory key", key)
	}
	if err != nil {
		return nil, fmt.Errorf("getting memory object: %w", err)
	}
	return o, nil
}

// InsertMemoryObject creates a projection row.
func (t *Tx) InsertMemoryObject(o *MemoryObject) error {
	if o.ID == "" {
		o.ID = newID()
	}
	_, err := t.exec(
		"INSERT INTO memory_objects ("+memoryObjectColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.BoardID, o.MemoryKey, o.Bucket, nullBytes(o.Value), encodeTags(o.Tags), o.SourceType,
		boolInt(o.IsDeleted), o.Version, o.LastEventID, o.StampWall, o.StampLogical, o.CreatedAt, o.UpdatedAt,
		o.LastTouchedAt, nullInt64(o.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("inserting memory object: %w", err)
	}
	return nil
}

// UpdateMemoryObject rewrites every mutable projection column.
func (t *Tx) UpdateMemoryObject(o *MemoryObject) error {
	_, err := t.exec(
		`UPDATE memory_objects SET bucket = ?, value = ?, tags = ?, source_type = ?, is_deleted = ?, version = ?,
		 last_event_id = ?, stamp_wall = ?, stamp_logical = ?, updated_at = ?, last_touched_at = ?, expires_at = ?
		 WHERE id = ?`,
		o.Bucket, nullBytes(o.Value), encodeTags(o.Tags), o.SourceType, boolInt(o.IsDeleted), o.Version,
		o.LastEventID, o.StampWall, o.StampLogical, o.UpdatedAt, o.LastTouchedAt, nullInt64(o.ExpiresAt), o.ID,
	)
	if err != nil {
		return fmt.Errorf("updating memory object: %w", err)
	}
	return nil
}

// ListMemoryObjects returns up to limit objects, newest first.
func (t *Tx) ListMemoryObjects(boardID string, includeDeleted bool, limit int) ([]MemoryObject, error) {
	q := "SELECT " + memoryObjectColumns + " FROM memory_objects WHERE board_id = ?"
	if !includeDeleted {
		q += " AND is_deleted = 0"
	}
	q += " ORDER BY updated_at DESC, memory_key ASC LIMIT ?"
	return t.memoryObjects(q, boardID, limit)
}

// SearchMemoryObjects returns live objects whose key, value or tags contain
// Text, filtered exactly by SourceType and Bucket when set.
func (t *Tx) SearchMemoryObjects(boardID string, f MemorySearch) ([]MemoryObject, error) {
	var where []string
	args := []any{boardID}
	where = append(where, "board_id = ?", "is_deleted = 0")
	if f.Text != "" {
		like := "%" + escapeLike(f.Text) + "%"
		where = append(where, `(memory_key LIKE ? ESCAPE '\' OR COALESCE(value, '') LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	if f.SourceType != "" {
		where = append(where, "source_type = ?")
		args = append(args, f.SourceType)
	}
	if f.Bucket != "" {
		where = append(where, "bucket = ?")
		args = append(args, f.Bucket)
	}
	args = append(args, f.Limit)

	q := "SELECT " + memoryObjectColumns + " FROM memory_objects WHERE " + strings.Join(where, " AND ") +
		" ORDER BY updated_at DESC, memory_key ASC LIMIT ?"
	return t.memoryObjects(q, args...)
}

func (t *Tx) memoryObjects(q string, args ...any) ([]MemoryObject, error) {
	rows, err := t.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing memory objects: %w", err)
	}
	defer rows.Close()

	out := []MemoryObject{}
	for rows.Next() {
		o, err := scanMemoryObject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// --- Compaction support ---

// MemoryStats returns counts and payload byte totals for a board.
func (t *Tx) MemoryStats(boardID string) (MemoryStats, error) {
	var st MemoryStats
	if err := t.queryRow(
		"SELECT COUNT(*), COALESCE(SUM("+eventBytesExpr+"), 0) FROM memory_events WHERE board_id = ?", boardID,
	).Scan(&st.EventCount, &st.EventBytes); err != nil {
		return st, fmt.Errorf("counting memory events: %w", err)
	}
	if err := t.queryRow(
		"SELECT COUNT(*), COALESCE(SUM("+objectBytesExpr+"), 0) FROM memory_objects WHERE board_id = ? AND is_deleted = 0",
		boardID,
	).Scan(&st.ObjectCount, &st.ObjectBytes); err != nil {
		return st, fmt.Errorf("counting memory objects: %w", err)
	}
	return st, nil
}

// DeleteExpiredMemoryObjects removes objects, live or tombstoned, whose
// expiry is at or before now.
func (t *Tx) DeleteExpiredMemoryObjects(boardID string, now int64) (int, error) {
	res, err := t.exec(
		"DELETE FROM memory_objects WHERE board_id = ? AND expires_at IS NOT NULL AND expires_at <= ?",
		boardID, now,
	)
	if err != nil {
		return 0, fmt.Errorf("expiring memory objects: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// RankMemoryObjects returns live objects newest first: updatedAt desc, key
// asc, id desc.
func (t *Tx) RankMemoryObjects(boardID string) ([]MemoryRank, error) {
	return t.ranks(
		"SELECT id, "+objectBytesExpr+` FROM memory_objects WHERE board_id = ? AND is_deleted = 0
		 ORDER BY updated_at DESC, memory_key ASC, id DESC`, boardID,
	)
}

// OldestMemoryObjects returns live objects oldest first: updatedAt asc, key
// asc, id asc.
func (t *Tx) OldestMemoryObjects(boardID string) ([]MemoryRank, error) {
	return t.ranks(
		"SELECT id, "+objectBytesExpr+` FROM memory_objects WHERE board_id = ? AND is_deleted = 0
		 ORDER BY updated_at ASC, memory_key ASC, id ASC`, boardID,
	)
}

// RankMemoryEvents returns events newest first: createdAt desc, id desc.
func (t *Tx) RankMemoryEvents(boardID string) ([]MemoryRank, error) {
	return t.ranks(
		"SELECT id, "+eventBytesExpr+" FROM memory_events WHERE board_id = ? ORDER BY created_at DESC, id DESC", boardID,
	)
}

// OldestMemoryEvents returns events oldest first: createdAt asc, id asc.
func (t *Tx) OldestMemoryEvents(boardID string) ([]MemoryRank, error) {
	return t.ranks(
		"SELECT id, "+eventBytesExpr+" FROM memory_events WHERE board_id = ? ORDER BY created_at ASC, id ASC", boardID,
	)
}

func (t *Tx) ranks(q string, args ...any) ([]MemoryRank, error) {
	rows, err := t.query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("ranking memory rows: %w", err)
	}
	defer rows.Close()

	var out []MemoryRank
	for rows.Next() {
		var r MemoryRank
		if err := rows.Scan(&r.ID, &r.Bytes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteMemoryObjects removes projection rows by ID.
func (t *Tx) DeleteMemoryObjects(ids []string) error {
	return t.deleteByID("memory_objects", ids)
}

// DeleteMemoryEvents removes ledger rows by ID.
func (t *Tx) DeleteMemoryEvents(ids []string) error {
	return t.deleteByID("memory_events", ids)
}

func (t *Tx) deleteByID(table string, ids []string) error {
	for _, id := range ids {
		if _, err := t.exec("DELETE FROM "+table+" WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting from %s: %w", table, err)
		}
	}
	return nil
}
