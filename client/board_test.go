package client

import (
	"errors"
	"testing"

	"collab-api/domain"
)

func seedBoard() domain.Board {
	b := domain.NewBoard()
	b.Todo = []domain.Task{{ID: "a", Content: "one"}, {ID: "b", Content: "two"}}
	return b
}

func todoIDs(b domain.Board) []string {
	out := make([]string, len(b.Todo))
	for i, t := range b.Todo {
		out[i] = t.ID
	}
	return out
}

func TestStageMoveConfirm(t *testing.T) {
	v := New(seedBoard(), 3)

	g, err := v.StageMove("a", domain.ColumnTodo, domain.ColumnInProgress, 0)
	if err != nil {
		t.Fatalf("stage move: %v", err)
	}
	if g.State() != GestureOptimistic {
		t.Fatalf("expected optimistic state, got %v", g.State())
	}
	// Applied locally before any server round trip.
	if b := v.Board(); len(b.Todo) != 1 || len(b.InProgress) != 1 || b.InProgress[0].ID != "a" {
		t.Fatalf("optimistic move not applied: %#v", b)
	}
	// Revision only advances on confirmation.
	if v.Revision() != 3 {
		t.Fatalf("revision advanced before confirm: %d", v.Revision())
	}

	if err := g.Confirm(4); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if g.State() != GestureConfirmed {
		t.Fatalf("expected confirmed, got %v", g.State())
	}
	if v.Revision() != 4 {
		t.Fatalf("expected revision 4, got %d", v.Revision())
	}
	if err := g.Confirm(5); !errors.Is(err, ErrGestureResolved) {
		t.Fatalf("expected ErrGestureResolved, got %v", err)
	}
}

func TestStageMoveRollback(t *testing.T) {
	v := New(seedBoard(), 3)

	g, err := v.StageMove("a", domain.ColumnTodo, domain.ColumnCompleted, 0)
	if err != nil {
		t.Fatalf("stage move: %v", err)
	}
	if err := g.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if g.State() != GestureRolledBack {
		t.Fatalf("expected rolled back, got %v", g.State())
	}
	b := v.Board()
	if len(b.Completed) != 0 {
		t.Fatalf("rollback left task in destination: %#v", b.Completed)
	}
	got := todoIDs(b)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("rollback did not restore order: %v", got)
	}
	if v.Revision() != 3 {
		t.Fatalf("rollback must not touch revision, got %d", v.Revision())
	}
}

func TestStageDeleteRollback(t *testing.T) {
	v := New(seedBoard(), 1)
	g, err := v.StageDelete(domain.ColumnTodo, "b")
	if err != nil {
		t.Fatalf("stage delete: %v", err)
	}
	if b := v.Board(); len(b.Todo) != 1 {
		t.Fatalf("optimistic delete not applied: %#v", b.Todo)
	}
	if err := g.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if b := v.Board(); len(b.Todo) != 2 {
		t.Fatalf("rollback did not restore task: %#v", b.Todo)
	}
}

func TestOneGestureAtATime(t *testing.T) {
	v := New(seedBoard(), 1)
	if _, err := v.StageMove("a", domain.ColumnTodo, domain.ColumnTodo, 1); err != nil {
		t.Fatalf("stage move: %v", err)
	}
	if _, err := v.StageDelete(domain.ColumnTodo, "b"); !errors.Is(err, ErrGesturePending) {
		t.Fatalf("expected ErrGesturePending, got %v", err)
	}
}

func TestStageInvalidMoveNotStaged(t *testing.T) {
	v := New(seedBoard(), 1)
	if _, err := v.StageMove("missing", domain.ColumnTodo, domain.ColumnCompleted, 0); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	// The failed stage left no pending gesture and no local change.
	if _, err := v.StageDelete(domain.ColumnTodo, "a"); err != nil {
		t.Fatalf("expected board still usable, got %v", err)
	}
}

func TestAppendTaskOnConfirmedAdd(t *testing.T) {
	v := New(seedBoard(), 2)
	if err := v.AppendTask(domain.ColumnTodo, domain.Task{ID: "c", Content: "three"}, 3); err != nil {
		t.Fatalf("append task: %v", err)
	}
	b := v.Board()
	got := todoIDs(b)
	if len(got) != 3 || got[2] != "c" {
		t.Fatalf("expected confirmed task appended last, got %v", got)
	}
	if v.Revision() != 3 {
		t.Fatalf("expected revision 3, got %d", v.Revision())
	}
}

func TestRefreshRollsBackPendingGesture(t *testing.T) {
	v := New(seedBoard(), 1)
	g, err := v.StageMove("a", domain.ColumnTodo, domain.ColumnInProgress, 0)
	if err != nil {
		t.Fatalf("stage move: %v", err)
	}

	fresh := domain.NewBoard()
	fresh.Completed = []domain.Task{{ID: "z"}}
	v.Refresh(fresh, 9)

	if g.State() != GestureRolledBack {
		t.Fatalf("expected pending gesture rolled back, got %v", g.State())
	}
	b := v.Board()
	if len(b.Completed) != 1 || b.Completed[0].ID != "z" || len(b.Todo) != 0 {
		t.Fatalf("refresh did not replace state: %#v", b)
	}
	if v.Revision() != 9 {
		t.Fatalf("expected revision 9, got %d", v.Revision())
	}
}
