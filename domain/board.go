package domain

import "errors"

// Column identifiers. Column order within the slices is display order.
const (
	ColumnTodo       = "todo"
	ColumnInProgress = "inProgress"
	ColumnCompleted  = "completed"
)

var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrTaskNotFound  = errors.New("task not found in column")
)

// Board holds the three ordered task columns of a project. A task lives in
// exactly one column at a time.
type Board struct {
	Todo       []Task `json:"todo"`
	InProgress []Task `json:"inProgress"`
	Completed  []Task `json:"completed"`
}

// NewBoard returns a board with empty (non-nil) columns so JSON renders
// arrays rather than nulls.
func NewBoard() Board {
	return Board{Todo: []Task{}, InProgress: []Task{}, Completed: []Task{}}
}

func (b *Board) column(id string) (*[]Task, bool) {
	switch id {
	case ColumnTodo:
		return &b.Todo, true
	case ColumnInProgress:
		return &b.InProgress, true
	case ColumnCompleted:
		return &b.Completed, true
	}
	return nil, false
}

// AddTask appends the task to the end of the named column.
func (b *Board) AddTask(columnID string, task Task) error {
	col, ok := b.column(columnID)
	if !ok {
		return ErrUnknownColumn
	}
	*col = append(*col, task)
	return nil
}

// MoveTask relocates a task. The task is removed from the source column
// first and only then inserted at destIndex, clamped to the destination
// length. Removing before inserting keeps indices correct when source and
// destination are the same column and avoids duplicating the task.
func (b *Board) MoveTask(taskID, sourceColumnID, destColumnID string, destIndex int) error {
	src, ok := b.column(sourceColumnID)
	if !ok {
		return ErrUnknownColumn
	}
	dst, ok := b.column(destColumnID)
	if !ok {
		return ErrUnknownColumn
	}
	task, err := removeTask(src, taskID)
	if err != nil {
		return err
	}
	if destIndex < 0 {
		destIndex = 0
	}
	if destIndex > len(*dst) {
		destIndex = len(*dst)
	}
	*dst = append(*dst, Task{})
	copy((*dst)[destIndex+1:], (*dst)[destIndex:])
	(*dst)[destIndex] = task
	return nil
}

// RemoveTask deletes the task from the named column. A second call for the
// same id reports ErrTaskNotFound so callers can detect duplicate requests.
func (b *Board) RemoveTask(columnID, taskID string) error {
	col, ok := b.column(columnID)
	if !ok {
		return ErrUnknownColumn
	}
	_, err := removeTask(col, taskID)
	return err
}

func removeTask(col *[]Task, taskID string) (Task, error) {
	for i, t := range *col {
		if t.ID == taskID {
			*col = append((*col)[:i], (*col)[i+1:]...)
			return t, nil
		}
	}
	return Task{}, ErrTaskNotFound
}
