package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"collab-api/domain"
)

// casRetries bounds the optimistic-transaction retry loop. Contention on a
// single project board is short-lived; exhausting the budget surfaces as a
// conflict rather than blocking the caller.
const casRetries = 16

// mutateProject performs a read-modify-write of the whole project document
// under WATCH. Concurrent writers cause a transactional retry instead of a
// lost update. Every successful mutation bumps Revision by one; when
// ifRevision is non-zero the stored revision must match or the mutation
// fails with ErrStaleRevision.
func (s *Storage) mutateProject(ctx context.Context, id string, ifRevision int64, fn func(*domain.Project) error) (domain.Project, error) {
	key := projectKey(id)
	var out domain.Project
	for i := 0; i < casRetries; i++ {
		err := s.rc.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return fmt.Errorf("project %s: %w", id, ErrNotFound)
			}
			if err != nil {
				return err
			}
			var p domain.Project
			if err := json.Unmarshal(data, &p); err != nil {
				return err
			}
			if ifRevision != 0 && p.Revision != ifRevision {
				return fmt.Errorf("project %s at revision %d, expected %d: %w", id, p.Revision, ifRevision, ErrStaleRevision)
			}
			if err := fn(&p); err != nil {
				return err
			}
			p.Revision++
			buf, err := json.Marshal(&p)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, buf, 0)
				return nil
			})
			if err != nil {
				return err
			}
			out = p
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, err
	}
	return domain.Project{}, fmt.Errorf("project %s: write contention: %w", id, ErrConflict)
}

// AddTask appends a task to the end of the named column and returns it with
// the author name resolved, plus the new board revision.
func (s *Storage) AddTask(ctx context.Context, projectID, columnID, content, authorID string) (domain.Task, int64, error) {
	task := domain.Task{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedBy: authorID,
		CreatedAt: nextTimestamp(),
	}
	p, err := s.mutateProject(ctx, projectID, 0, func(p *domain.Project) error {
		return boardErr(p.Kanban.AddTask(columnID, task))
	})
	if err != nil {
		return domain.Task{}, 0, err
	}
	if author, err := s.FetchUser(ctx, authorID); err == nil {
		task.AuthorName = author.Name
	}
	return task, p.Revision, nil
}

// MoveTask relocates a task between or within columns. destIndex is clamped
// to the destination length. Not idempotent: replays against a changed board
// are the caller's concern, guarded by ifRevision when provided.
func (s *Storage) MoveTask(ctx context.Context, projectID, taskID, sourceColumnID, destColumnID string, destIndex int, ifRevision int64) (int64, error) {
	p, err := s.mutateProject(ctx, projectID, ifRevision, func(p *domain.Project) error {
		return boardErr(p.Kanban.MoveTask(taskID, sourceColumnID, destColumnID, destIndex))
	})
	if err != nil {
		return 0, err
	}
	return p.Revision, nil
}

// DeleteTask removes a task from the named column. Deleting an already
// deleted task reports ErrNotFound so duplicate requests are detectable.
func (s *Storage) DeleteTask(ctx context.Context, projectID, columnID, taskID string, ifRevision int64) (int64, error) {
	p, err := s.mutateProject(ctx, projectID, ifRevision, func(p *domain.Project) error {
		return boardErr(p.Kanban.RemoveTask(columnID, taskID))
	})
	if err != nil {
		return 0, err
	}
	return p.Revision, nil
}

// boardErr maps the pure board errors onto the storage taxonomy.
func boardErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrUnknownColumn), errors.Is(err, domain.ErrTaskNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	default:
		return err
	}
}

// Apply appends a membership application. Owners cannot apply to their own
// project, members cannot re-apply, and a second pending application from
// the same user is rejected; all three are conflicts.
func (s *Storage) Apply(ctx context.Context, projectID, userID, userName, message string, skills []string) (domain.Project, error) {
	if skills == nil {
		skills = []string{}
	}
	app := domain.Application{
		ID:        uuid.NewString(),
		User:      userID,
		Name:      userName,
		Skills:    skills,
		Message:   message,
		CreatedAt: nextTimestamp(),
	}
	return s.mutateProject(ctx, projectID, 0, func(p *domain.Project) error {
		if p.Owner == userID {
			return fmt.Errorf("cannot apply to own project: %w", ErrConflict)
		}
		if p.IsMember(userID) {
			return fmt.Errorf("already a member: %w", ErrConflict)
		}
		if p.HasApplied(userID) {
			return fmt.Errorf("already applied: %w", ErrConflict)
		}
		p.Applications = append(p.Applications, app)
		return nil
	})
}

// ResolveApplication accepts or declines a pending application. Only the
// project owner may resolve. Accepting moves the applicant into the team
// exactly once; a retried accept finds the application gone and reports
// ErrNotFound without duplicating the member.
func (s *Storage) ResolveApplication(ctx context.Context, projectID, applicationID, requesterID string, accept bool) (domain.Project, error) {
	p, err := s.mutateProject(ctx, projectID, 0, func(p *domain.Project) error {
		if p.Owner != requesterID {
			return fmt.Errorf("not the project owner: %w", ErrForbidden)
		}
		idx := -1
		for i, a := range p.Applications {
			if a.ID == applicationID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("application %s: %w", applicationID, ErrNotFound)
		}
		app := p.Applications[idx]
		p.Applications = append(p.Applications[:idx], p.Applications[idx+1:]...)
		if accept && !p.IsMember(app.User) {
			p.TeamMembers = append(p.TeamMembers, domain.Member{ID: app.User})
		}
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	if err := s.resolveNames(ctx, &p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}
