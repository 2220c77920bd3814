package store

import (
	"context"
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func update(t *testing.T, s *Store, fn func(*Tx) error) {
	t.Helper()
	if err := s.Update(context.Background(), fn); err != nil {
		t.Fatalf("update: %v", err)
	}
}

func seedBoard(t *testing.T, s *Store) *Board {
	t.Helper()
	b := &Board{Title: "Launch", CreatedAt: 1000}
	update(t, s, func(tx *Tx) error { return tx.CreateBoard(b) })
	return b
}

func TestOpen(t *testing.T) {
	s := openTestStore(t)
	if s == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestSchemaVersion(t *testing.T) {
	s := openTestStore(t)
	var version int
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	if err != nil {
		t.Fatalf("querying schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	boom := errors.New("boom")

	err := s.Update(context.Background(), func(tx *Tx) error {
		if err := tx.CreateBoard(&Board{ID: "b1", Title: "x", CreatedAt: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = s.View(context.Background(), func(tx *Tx) error {
		_, err := tx.GetBoard("b1")
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected board to be rolled back, got %v", err)
	}
}

func TestAfterCommit(t *testing.T) {
	s := openTestStore(t)

	ran := 0
	update(t, s, func(tx *Tx) error {
		tx.AfterCommit(func() { ran++ })
		return nil
	})
	if ran != 1 {
		t.Errorf("expected after-commit hook to run once, ran %d", ran)
	}

	_ = s.Update(context.Background(), func(tx *Tx) error {
		tx.AfterCommit(func() { ran++ })
		return errors.New("fail")
	})
	if ran != 1 {
		t.Errorf("expected hook to be dropped on rollback, ran %d", ran)
	}
}

func TestBoardDefaults(t *testing.T) {
	s := openTestStore(t)
	b := seedBoard(t, s)

	update(t, s, func(tx *Tx) error {
		lists, err := tx.ListLists(b.ID)
		if err != nil {
			return err
		}
		if len(lists) != len(DefaultLists) {
			t.Fatalf("expected %d lists, got %d", len(DefaultLists), len(lists))
		}
		for i, l := range lists {
			if l.Key != DefaultLists[i].Key {
				t.Errorf("list %d: expected key %q, got %q", i, DefaultLists[i].Key, l.Key)
			}
		}

		active, err := tx.ResolveBoard("")
		if err != nil {
			return err
		}
		if active.ID != b.ID {
			t.Errorf("expected active board %s, got %s", b.ID, active.ID)
		}
		return nil
	})
}

func TestResolveBoardMissing(t *testing.T) {
	s := openTestStore(t)
	err := s.View(context.Background(), func(tx *Tx) error {
		_, err := tx.ResolveBoard("")
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestMilestoneWriteCloseIsSetOnce(t *testing.T) {
	s := openTestStore(t)
	b := seedBoard(t, s)
	m := &Milestone{BoardID: b.ID, Title: "Preflight", Kind: KindPreflight, AcceptsNewCards: true, CreatedAt: 1000}

	update(t, s, func(tx *Tx) error {
		if err := tx.CreateMilestone(m); err != nil {
			return err
		}
		if err := tx.CloseMilestoneWrites(m.ID, 2000); err != nil {
			return err
		}
		return tx.CloseMilestoneWrites(m.ID, 3000)
	})

	update(t, s, func(tx *Tx) error {
		got, err := tx.GetMilestone(m.ID)
		if err != nil {
			return err
		}
		if got.AcceptsNewCards {
			t.Error("expected milestone to stop accepting cards")
		}
		if got.WriteClosedAt == nil || *got.WriteClosedAt != 2000 {
			t.Errorf("expected writeClosedAt 2000, got %v", got.WriteClosedAt)
		}
		return nil
	})
}

func TestArtifactRevisionsAndImmutability(t *testing.T) {
	s := openTestStore(t)
	b := seedBoard(t, s)
	scope := ArtifactScope{BoardID: b.ID}

	for i := 1; i <= 3; i++ {
		update(t, s, func(tx *Tx) error {
			rev, err := tx.NextArtifactRevision(scope, "charter")
			if err != nil {
				return err
			}
			if rev != i {
				t.Errorf("expected revision %d, got %d", i, rev)
			}
			return tx.InsertArtifact(&Artifact{
				BoardID: b.ID, ArtifactType: "charter", Revision: rev,
				Title: "Charter", Body: "body", CreatedBy: "user", CreatedAt: int64(i),
			})
		})
	}

	update(t, s, func(tx *Tx) error {
		list, err := tx.ListArtifacts(scope, "")
		if err != nil {
			return err
		}
		if len(list) != 3 || list[0].Revision != 3 {
			t.Fatalf("expected 3 artifacts newest first, got %+v", list)
		}
		if list[0].Body != "" || list[0].BodyLength != 4 {
			t.Errorf("expected listing to omit body and report length 4, got %q/%d", list[0].Body, list[0].BodyLength)
		}
		return nil
	})

	err := s.Update(context.Background(), func(tx *Tx) error {
		_, err := tx.exec("UPDATE board_artifacts SET title = 'changed'")
		return err
	})
	if err == nil {
		t.Error("expected artifact update to be rejected by the database")
	}
}

func TestDeleteBoardCascades(t *testing.T) {
	s := openTestStore(t)
	b := seedBoard(t, s)

	update(t, s, func(tx *Tx) error {
		if err := tx.InsertMemoryEvent(&MemoryEvent{
			ID: "e1", BoardID: b.ID, MemoryKey: "k", EventType: "upsert", SourceType: "user",
			Bucket: "misc", Value: []byte(`"v"`), StampWall: 1, CreatedAt: 1,
		}); err != nil {
			return err
		}
		return tx.DeleteBoard(b.ID)
	})

	update(t, s, func(tx *Tx) error {
		st, err := tx.MemoryStats(b.ID)
		if err != nil {
			return err
		}
		if st.EventCount != 0 {
			t.Errorf("expected memory events to cascade, got %d", st.EventCount)
		}
		active, err := tx.ActiveBoardID()
		if err != nil {
			return err
		}
		if active != "" {
			t.Errorf("expected active board cleared, got %q", active)
		}
		return nil
	})
}

func TestMemoryStatsBytes(t *testing.T) {
	s := openTestStore(t)
	b := seedBoard(t, s)

	update(t, s, func(tx *Tx) error {
		return tx.InsertMemoryObject(&MemoryObject{
			BoardID: b.ID, MemoryKey: "abc", Bucket: "ct", Value: []byte(`"xy"`), Tags: []string{"t"},
			SourceType: "user", Version: 1, LastEventID: "e1", CreatedAt: 1, UpdatedAt: 1, LastTouchedAt: 1,
		})
	})

	update(t, s, func(tx *Tx) error {
		st, err := tx.MemoryStats(b.ID)
		if err != nil {
			return err
		}
		// "abc" + `"xy"` + `["t"]`
		if st.ObjectCount != 1 || st.ObjectBytes != 3+4+5 {
			t.Errorf("unexpected stats %+v", st)
		}
		return nil
	})
}
