package api

import (
	"collab-api/domain"
)

const requestBodyMaxSize = 64 * 1024 // 64 KiB

type errorResponse struct {
	Error string `json:"error"`
}

type createProjectRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	RequiredSkills []string `json:"requiredSkills"`
}

type applyRequest struct {
	Message string   `json:"message"`
	Skills  []string `json:"skills"`
}

type resolveApplicationRequest struct {
	ApplicationID string `json:"applicationId"`
}

type addTaskRequest struct {
	ColumnID string `json:"columnId"`
	Content  string `json:"content"`
}

type addTaskResponse struct {
	Task     domain.Task `json:"task"`
	Revision int64       `json:"revision"`
}

// moveTaskRequest optionally carries the board revision the client last saw.
// When set, a move against a board that has advanced past it is rejected as
// a conflict instead of silently reordering a changed board.
type moveTaskRequest struct {
	TaskID         string `json:"taskId"`
	SourceColumnID string `json:"sourceColumnId"`
	DestColumnID   string `json:"destColumnId"`
	DestIndex      int    `json:"destIndex"`
	IfRevision     int64  `json:"ifRevision,omitempty"`
}

type deleteTaskRequest struct {
	ColumnID   string `json:"columnId"`
	TaskID     string `json:"taskId"`
	IfRevision int64  `json:"ifRevision,omitempty"`
}

type revisionResponse struct {
	Revision int64 `json:"revision"`
}

type applicationsResponse struct {
	Applications []domain.Application `json:"applications"`
}
