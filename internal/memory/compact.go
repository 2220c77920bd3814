package memory

import (
	"context"

	"github.com/swamp-dev/commanddeck/internal/store"
)

// Removed counts the rows each compaction rule deleted.
type Removed struct {
	ExpiredObjects    int `json:"expiredObjects"`
	OverflowObjects   int `json:"overflowObjects"`
	ObjectBytesPruned int `json:"objectBytesPruned"`
	OverflowEvents    int `json:"overflowEvents"`
	EventBytesPruned  int `json:"eventBytesPruned"`
}

// Total is the number of rows removed by all rules.
func (r Removed) Total() int {
	return r.ExpiredObjects + r.OverflowObjects + r.ObjectBytesPruned + r.OverflowEvents + r.EventBytesPruned
}

// CompactReport describes one compaction run.
type CompactReport struct {
	BoardID string            `json:"boardId"`
	Budgets Budgets           `json:"budgets"`
	Removed Removed           `json:"removed"`
	Before  store.MemoryStats `json:"before"`
	After   store.MemoryStats `json:"after"`
}

// Compact brings a board's memory within budget. Overrides replace the
// configured budgets field by field; the result is clamped. The rules run in
// a fixed order: expiry, object count, object bytes, event count, event
// bytes. Each rule evicts the oldest rows first.
func (s *Service) Compact(ctx context.Context, boardID string, overrides *Budgets) (*CompactReport, error) {
	budgets := s.Budgets()
	if overrides != nil {
		budgets = budgets.Merge(*overrides)
	}
	budgets = budgets.Clamp()

	report := &CompactReport{Budgets: budgets}
	err := s.store.Update(ctx, func(tx *store.Tx) error {
		b, err := tx.ResolveBoard(boardID)
		if err != nil {
			return err
		}
		report.BoardID = b.ID

		if report.Before, err = tx.MemoryStats(b.ID); err != nil {
			return err
		}

		if report.Removed.ExpiredObjects, err = tx.DeleteExpiredMemoryObjects(b.ID, store.NowMillis(s.now())); err != nil {
			return err
		}

		objects, err := tx.RankMemoryObjects(b.ID)
		if err != nil {
			return err
		}
		if report.Removed.OverflowObjects, err = dropOverflow(objects, budgets.MaxObjects, tx.DeleteMemoryObjects); err != nil {
			return err
		}

		oldestObjects, err := tx.OldestMemoryObjects(b.ID)
		if err != nil {
			return err
		}
		if report.Removed.ObjectBytesPruned, err = pruneBytes(oldestObjects, budgets.MaxObjectBytes, tx.DeleteMemoryObjects); err != nil {
			return err
		}

		events, err := tx.RankMemoryEvents(b.ID)
		if err != nil {
			return err
		}
		if report.Removed.OverflowEvents, err = dropOverflow(events, budgets.MaxEvents, tx.DeleteMemoryEvents); err != nil {
			return err
		}

		oldestEvents, err := tx.OldestMemoryEvents(b.ID)
		if err != nil {
			return err
		}
		if report.Removed.EventBytesPruned, err = pruneBytes(oldestEvents, budgets.MaxEventBytes, tx.DeleteMemoryEvents); err != nil {
			return err
		}

		report.After, err = tx.MemoryStats(b.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("memory compacted",
		"board", report.BoardID,
		"removed", report.Removed.Total(),
		"objects", report.After.ObjectCount,
		"events", report.After.EventCount,
	)
	return report, nil
}

// dropOverflow deletes every row ranked past keep. Rows arrive newest first.
func dropOverflow(ranked []store.MemoryRank, keep int, del func([]string) error) (int, error) {
	if len(ranked) <= keep {
		return 0, nil
	}
	ids := make([]string, 0, len(ranked)-keep)
	for _, r := range ranked[keep:] {
		ids = append(ids, r.ID)
	}
	return len(ids), del(ids)
}

// pruneBytes deletes rows one at a time, oldest first, until their total
// size fits within limit.
func pruneBytes(oldest []store.MemoryRank, limit int64, del func([]string) error) (int, error) {
	var total int64
	for _, r := range oldest {
		total += r.Bytes
	}
	var ids []string
	for _, r := range oldest {
		if total <= limit {
			break
		}
		ids = append(ids, r.ID)
		total -= r.Bytes
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return len(ids), del(ids)
}
