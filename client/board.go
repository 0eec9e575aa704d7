// Package client holds the board state a UI keeps between server round
// trips. Moves and deletes are applied optimistically so interaction never
// blocks on network latency; the server's mutation response is the
// acknowledgement that either confirms the local guess or rolls it back.
package client

import (
	"errors"

	"collab-api/domain"
)

// GestureState tracks one optimistic mutation through its lifecycle.
type GestureState int

const (
	GestureOptimistic GestureState = iota
	GestureConfirmed
	GestureRolledBack
)

var (
	// ErrGesturePending is returned when a second gesture is staged before
	// the first resolves. A drag UI produces one gesture at a time.
	ErrGesturePending = errors.New("a gesture is already in flight")

	// ErrGestureResolved is returned when Confirm or Rollback is called on
	// a gesture that already resolved.
	ErrGestureResolved = errors.New("gesture already resolved")
)

// BoardView is the client-side copy of one project board plus the revision
// it was fetched at. It is not safe for concurrent use; UI frameworks drive
// it from a single event loop.
type BoardView struct {
	board    domain.Board
	revision int64
	pending  *Gesture
}

// Gesture is one staged move or delete awaiting the server verdict.
type Gesture struct {
	view     *BoardView
	snapshot domain.Board
	state    GestureState
}

// New creates a view from an authoritative fetch.
func New(board domain.Board, revision int64) *BoardView {
	return &BoardView{board: cloneBoard(board), revision: revision}
}

// Board returns a copy of the current local board, including any
// unconfirmed optimistic state.
func (v *BoardView) Board() domain.Board {
	return cloneBoard(v.board)
}

// Revision returns the last confirmed server revision. Staged gestures do
// not advance it; only Confirm and Refresh do.
func (v *BoardView) Revision() int64 {
	return v.revision
}

// StageMove applies the move locally and returns the pending gesture. The
// caller then issues the server mutation and calls Confirm or Rollback on
// the verdict. A move the local board rejects is not staged.
func (v *BoardView) StageMove(taskID, sourceColumnID, destColumnID string, destIndex int) (*Gesture, error) {
	if v.pending != nil {
		return nil, ErrGesturePending
	}
	snapshot := cloneBoard(v.board)
	if err := v.board.MoveTask(taskID, sourceColumnID, destColumnID, destIndex); err != nil {
		return nil, err
	}
	g := &Gesture{view: v, snapshot: snapshot, state: GestureOptimistic}
	v.pending = g
	return g, nil
}

// StageDelete removes the task locally and returns the pending gesture.
func (v *BoardView) StageDelete(columnID, taskID string) (*Gesture, error) {
	if v.pending != nil {
		return nil, ErrGesturePending
	}
	snapshot := cloneBoard(v.board)
	if err := v.board.RemoveTask(columnID, taskID); err != nil {
		return nil, err
	}
	g := &Gesture{view: v, snapshot: snapshot, state: GestureOptimistic}
	v.pending = g
	return g, nil
}

// State reports where the gesture is in its lifecycle.
func (g *Gesture) State() GestureState {
	return g.state
}

// Confirm accepts the server verdict: the optimistic state becomes the
// confirmed state at the returned revision.
func (g *Gesture) Confirm(revision int64) error {
	if g.state != GestureOptimistic {
		return ErrGestureResolved
	}
	g.state = GestureConfirmed
	g.view.revision = revision
	g.view.pending = nil
	return nil
}

// Rollback discards the optimistic change and restores the last known-good
// board. Called on any network or validation failure.
func (g *Gesture) Rollback() error {
	if g.state != GestureOptimistic {
		return ErrGestureResolved
	}
	g.state = GestureRolledBack
	g.view.board = g.snapshot
	g.view.pending = nil
	return nil
}

// AppendTask records a server-confirmed add. Adds are request-then-append:
// nothing is shown until the server returns the created task, so there is
// no gesture to roll back.
func (v *BoardView) AppendTask(columnID string, task domain.Task, revision int64) error {
	if err := v.board.AddTask(columnID, task); err != nil {
		return err
	}
	v.revision = revision
	return nil
}

// Refresh replaces local state from an authoritative re-fetch. A gesture
// still in flight was based on state that is now stale; it is rolled back
// first so its eventual verdict cannot corrupt the fresh copy.
func (v *BoardView) Refresh(board domain.Board, revision int64) {
	if v.pending != nil {
		_ = v.pending.Rollback()
	}
	v.board = cloneBoard(board)
	v.revision = revision
}

func cloneBoard(b domain.Board) domain.Board {
	return domain.Board{
		Todo:       append([]domain.Task{}, b.Todo...),
		InProgress: append([]domain.Task{}, b.InProgress...),
		Completed:  append([]domain.Task{}, b.Completed...),
	}
}
