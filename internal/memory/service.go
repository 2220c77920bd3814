package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swamp-dev/commanddeck/internal/store"
)

// Event types.
const (
	EventUpsert = "upsert"
	EventDelete = "delete"
	EventTouch  = "touch"
)

// Source types allowed to write memory.
const (
	SourceUser           = "user"
	SourceOperator       = "operator"
	SourceVerifiedSystem = "verified-system"
)

// Buckets group objects for export. BucketMisc catches everything else.
var Buckets = []string{"ct", "dec", "trb", "lrn", "nx", "ref", "misc"}

const BucketMisc = "misc"

const (
	MaxTags       = 32
	MaxTTLSeconds = 365 * 24 * 60 * 60

	DefaultStateLimit = 200
	MaxStateLimit     = 1000
	DefaultQueryLimit = 50
	MaxQueryLimit     = 500
	queryPrefetch     = 200
)

// Options configures a Service.
type Options struct {
	Budgets       Budgets
	MaxValueBytes int
	ExportDir     string
	Logger        *slog.Logger
	Now           func() time.Time
}

// Service appends memory events and serves the projection built from them.
// All mutations run under the store's single-writer boundary.
type Service struct {
	store  *store.Store
	clock  *Clock
	now    func() time.Time
	logger *slog.Logger

	mu            sync.RWMutex
	budgets       Budgets
	maxValueBytes int
	exportDir     string
	observers     []func(AppendResult)
}

// NewService creates a memory service. The clock is seeded from the highest
// stamp already stored so new events order after every persisted one.
func NewService(ctx context.Context, s *store.Store, opts Options) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxValueBytes <= 0 {
		opts.MaxValueBytes = DefaultMaxValueBytes
	}
	svc := &Service{
		store:         s,
		clock:         NewClock(opts.Now),
		now:           opts.Now,
		logger:        opts.Logger,
		budgets:       opts.Budgets.Clamp(),
		maxValueBytes: opts.MaxValueBytes,
		exportDir:     opts.ExportDir,
	}

	err := s.View(ctx, func(tx *store.Tx) error {
		wall, logical, err := tx.MaxMemoryStamp()
		if err != nil {
			return err
		}
		svc.clock.Observe(Stamp{WallMs: wall, Logical: logical})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seeding memory clock: %w", err)
	}
	return svc, nil
}

// Budgets returns the configured default budgets.
func (s *Service) Budgets() Budgets {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.budgets
}

// SetBudgets replaces the default budgets, clamped.
func (s *Service) SetBudgets(b Budgets) {
	s.mu.Lock()
	s.budgets = b.Clamp()
	s.mu.Unlock()
	s.logger.Info("memory budgets updated",
		"maxObjects", b.MaxObjects, "maxEvents", b.MaxEvents,
		"maxObjectBytes", b.MaxObjectBytes, "maxEventBytes", b.MaxEventBytes)
}

// OnAppend registers fn to run after each committed append.
func (s *Service) OnAppend(fn func(AppendResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// AppendInput is a memory event as submitted by a writer. Value is nil when
// the writer sent no value at all.
type AppendInput struct {
	BoardID    string   `json:"boardId"`
	MemoryKey  string   `json:"memoryKey"`
	EventType  string   `json:"eventType"`
	SourceType string   `json:"sourceType"`
	Bucket     string   `json:"bucket"`
	Value      Payload  `json:"value"`
	Tags       []string `json:"tags"`
	TTLSeconds int      `json:"ttlSeconds"`
	SourceRef  string   `json:"sourceRef"`
}

// AppendResult reports a stored event and whether it changed the projection.
type AppendResult struct {
	BoardID   string `json:"boardId"`
	EventID   string `json:"eventId"`
	MemoryKey string `json:"memoryKey"`
	Applied   bool   `json:"applied"`
	EventType string `json:"eventType"`
}

// Object is a projected memory value with its payload decoded for output.
type Object struct {
	store.MemoryObject
	Value Payload `json:"value"`
}

// Event is a ledger entry with its payload decoded for output.
type Event struct {
	store.MemoryEvent
	Value Payload `json:"value"`
}

func newObject(o store.MemoryObject) Object {
	return Object{MemoryObject: o, Value: Payload(o.Value)}
}

// Append validates an event, records it in the ledger and applies it to the
// projection. A losing event is still recorded; Applied reports the outcome.
func (s *Service) Append(ctx context.Context, in AppendInput) (*AppendResult, error) {
	var res *AppendResult
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		b, err := tx.ResolveBoard(in.BoardID)
		if err != nil {
			return err
		}
		ev, err := s.buildEvent(b.ID, in)
		if err != nil {
			return err
		}

		if ev.EventType == EventTouch {
			o, err := tx.GetMemoryObject(b.ID, ev.MemoryKey)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if o == nil || o.IsDeleted {
				return &store.NotFoundError{Kind: "memory key", ID: ev.MemoryKey, Message: "Cannot touch missing memoryKey"}
			}
		}

		stamp := s.clock.Now()
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generating event id: %w", err)
		}
		ev.ID = id.String()
		ev.StampWall, ev.StampLogical = stamp.WallMs, stamp.Logical
		ev.CreatedAt = store.NowMillis(s.now())

		if err := tx.InsertMemoryEvent(ev); err != nil {
			return err
		}
		applied, err := ApplyEvent(tx, ev)
		if err != nil {
			return err
		}

		res = &AppendResult{
			BoardID:   b.ID,
			EventID:   ev.ID,
			MemoryKey: ev.MemoryKey,
			Applied:   applied,
			EventType: ev.EventType,
		}
		out := *res
		tx.AfterCommit(func() { s.notify(out) })
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("memory event appended",
		"board", res.BoardID, "key", res.MemoryKey, "type", res.EventType, "applied", res.Applied)
	return res, nil
}

func (s *Service) notify(res AppendResult) {
	s.mu.RLock()
	obs := append([]func(AppendResult){}, s.observers...)
	s.mu.RUnlock()
	for _, fn := range obs {
		fn(res)
	}
}

// buildEvent checks and normalizes an append request in the order writers
// see errors: key, source, event type, value, then the lenient fields.
func (s *Service) buildEvent(boardID string, in AppendInput) (*store.MemoryEvent, error) {
	key := strings.TrimSpace(in.MemoryKey)
	if key == "" {
		return nil, &store.ValidationError{Field: "memoryKey", Message: "is required"}
	}

	source := strings.ToLower(strings.TrimSpace(in.SourceType))
	switch source {
	case SourceUser, SourceOperator, SourceVerifiedSystem:
	default:
		return nil, &store.ForbiddenError{Message: "sourceType must be one of: user, operator, verified-system"}
	}

	eventType := strings.ToLower(strings.TrimSpace(in.EventType))
	if eventType == "" {
		eventType = EventUpsert
	}
	switch eventType {
	case EventUpsert, EventDelete, EventTouch:
	default:
		return nil, &store.ValidationError{Message: "eventType must be one of: upsert, delete, touch"}
	}

	var value Payload
	if eventType == EventUpsert {
		if in.Value == nil {
			return nil, &store.ValidationError{Message: "value is required for upsert events"}
		}
		var err error
		value, err = ParsePayload(in.Value, s.maxValueBytes)
		if err != nil {
			return nil, err
		}
	}

	return &store.MemoryEvent{
		BoardID:    boardID,
		MemoryKey:  key,
		EventType:  eventType,
		SourceType: source,
		Bucket:     NormalizeBucket(in.Bucket),
		Value:      value,
		Tags:       NormalizeTags(in.Tags),
		TTLSeconds: clamp(in.TTLSeconds, 0, MaxTTLSeconds),
		SourceRef:  strings.TrimSpace(in.SourceRef),
	}, nil
}

// NormalizeBucket maps unknown or blank buckets to misc.
func NormalizeBucket(b string) string {
	b = strings.ToLower(strings.TrimSpace(b))
	if slices.Contains(Buckets, b) {
		return b
	}
	return BucketMisc
}

// NormalizeTags trims tags, drops blanks and keeps at most MaxTags.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

func expiresAt(ev *store.MemoryEvent) *int64 {
	if ev.TTLSeconds <= 0 {
		return nil
	}
	at := ev.CreatedAt + int64(ev.TTLSeconds)*1000
	return &at
}

// ApplyEvent merges a stored event into the projection with last-write-wins
// semantics and reports whether the projection changed.
func ApplyEvent(tx *store.Tx, ev *store.MemoryEvent) (bool, error) {
	o, err := tx.GetMemoryObject(ev.BoardID, ev.MemoryKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	if o == nil {
		if ev.EventType == EventTouch {
			return false, nil
		}
		o = &store.MemoryObject{
			BoardID:   ev.BoardID,
			MemoryKey: ev.MemoryKey,
			Version:   1,
			CreatedAt: ev.CreatedAt,
		}
		replaceState(o, ev)
		return true, tx.InsertMemoryObject(o)
	}

	if ev.EventType == EventTouch && o.IsDeleted {
		return false, nil
	}
	if !wins(ev, o) {
		return false, nil
	}

	o.Version++
	if ev.EventType == EventTouch {
		o.SourceType = ev.SourceType
		o.LastEventID = ev.ID
		o.StampWall, o.StampLogical = ev.StampWall, ev.StampLogical
		o.UpdatedAt = ev.CreatedAt
		o.LastTouchedAt = ev.CreatedAt
	} else {
		replaceState(o, ev)
	}
	return true, tx.UpdateMemoryObject(o)
}

// replaceState overwrites everything an upsert or delete controls.
func replaceState(o *store.MemoryObject, ev *store.MemoryEvent) {
	o.Bucket = ev.Bucket
	o.SourceType = ev.SourceType
	o.IsDeleted = ev.EventType == EventDelete
	if o.IsDeleted {
		o.Value = nil
		o.Tags = []string{}
	} else {
		o.Value = ev.Value
		o.Tags = ev.Tags
	}
	o.LastEventID = ev.ID
	o.StampWall, o.StampLogical = ev.StampWall, ev.StampLogical
	o.UpdatedAt = ev.CreatedAt
	o.LastTouchedAt = ev.CreatedAt
	o.ExpiresAt = expiresAt(ev)
}

// StateResult is a page of a board's projection with its footprint.
type StateResult struct {
	BoardID        string            `json:"boardId"`
	Objects        []Object          `json:"objects"`
	Stats          store.MemoryStats `json:"stats"`
	Limit          int               `json:"limit"`
	IncludeDeleted bool              `json:"includeDeleted"`
}

// State returns a board's objects, newest first. Limit is clamped into
// [1, MaxStateLimit]; zero means DefaultStateLimit.
func (s *Service) State(ctx context.Context, boardID string, includeDeleted bool, limit int) (*StateResult, error) {
	res := &StateResult{Limit: clampLimit(limit, DefaultStateLimit, MaxStateLimit), IncludeDeleted: includeDeleted}
	err := s.store.View(ctx, func(tx *store.Tx) error {
		b, err := tx.ResolveBoard(boardID)
		if err != nil {
			return err
		}
		res.BoardID = b.ID
		rows, err := tx.ListMemoryObjects(b.ID, includeDeleted, res.Limit)
		if err != nil {
			return err
		}
		res.Objects = make([]Object, 0, len(rows))
		for _, r := range rows {
			res.Objects = append(res.Objects, newObject(r))
		}
		res.Stats, err = tx.MemoryStats(b.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// QueryInput filters Query. Text matches key, value or tags as a substring;
// SourceType, Bucket and Tag must match exactly.
type QueryInput struct {
	BoardID    string `json:"-"`
	Text       string `json:"q"`
	SourceType string `json:"sourceType"`
	Bucket     string `json:"bucket"`
	Tag        string `json:"tag"`
	Limit      int    `json:"limit"`
}

// QueryResult holds the matches of a query and the normalized filters that
// produced them.
type QueryResult struct {
	BoardID string     `json:"boardId"`
	Query   QueryInput `json:"query"`
	Matches []Object   `json:"matches"`
	Count   int        `json:"count"`
}

// Query searches live objects.
func (s *Service) Query(ctx context.Context, in QueryInput) (*QueryResult, error) {
	in.Limit = clampLimit(in.Limit, DefaultQueryLimit, MaxQueryLimit)
	in.Text = strings.TrimSpace(in.Text)
	in.SourceType = strings.ToLower(strings.TrimSpace(in.SourceType))
	in.Bucket = strings.ToLower(strings.TrimSpace(in.Bucket))
	in.Tag = strings.TrimSpace(in.Tag)

	res := &QueryResult{Query: in, Matches: []Object{}}
	err := s.store.View(ctx, func(tx *store.Tx) error {
		b, err := tx.ResolveBoard(in.BoardID)
		if err != nil {
			return err
		}
		res.BoardID = b.ID
		rows, err := tx.SearchMemoryObjects(b.ID, store.MemorySearch{
			Text:       in.Text,
			SourceType: in.SourceType,
			Bucket:     in.Bucket,
			Limit:      max(in.Limit, queryPrefetch),
		})
		if err != nil {
			return err
		}
		for _, r := range rows {
			if in.Tag != "" && !slices.Contains(r.Tags, in.Tag) {
				continue
			}
			res.Matches = append(res.Matches, newObject(r))
			if len(res.Matches) == in.Limit {
				break
			}
		}
		res.Count = len(res.Matches)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// History returns every ledger entry still stored for a key, oldest first.
func (s *Service) History(ctx context.Context, boardID, key string) ([]Event, error) {
	var out []Event
	err := s.store.View(ctx, func(tx *store.Tx) error {
		b, err := tx.ResolveBoard(boardID)
		if err != nil {
			return err
		}
		rows, err := tx.ListMemoryEvents(b.ID, strings.TrimSpace(key))
		if err != nil {
			return err
		}
		out = make([]Event, 0, len(rows))
		for _, r := range rows {
			out = append(out, Event{MemoryEvent: r, Value: Payload(r.Value)})
		}
		return nil
	})
	return out, err
}

// Status measures a board's memory against the configured budgets.
func (s *Service) Status(ctx context.Context, boardID string) (*BudgetStatus, error) {
	var st store.MemoryStats
	err := s.store.View(ctx, func(tx *store.Tx) error {
		b, err := tx.ResolveBoard(boardID)
		if err != nil {
			return err
		}
		st, err = tx.MemoryStats(b.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Budgets().Check(st), nil
}

func clampLimit(limit, def, hi int) int {
	if limit == 0 {
		return def
	}
	return clamp(limit, 1, hi)
}
