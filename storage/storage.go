package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"collab-api/domain"
)

// Storage provides access to the persisted collections: projects (each a
// single JSON document embedding its board and applications), messages,
// notifications and users. The project document is the unit of consistency;
// every board or membership mutation rewrites it whole under an optimistic
// transaction.
type Storage struct {
	rc *redis.Client
}

// New creates a Storage backed by the given Redis client.
func New(rc *redis.Client) *Storage {
	return &Storage{rc: rc}
}

const projectIndexKey = "projects"

func projectKey(id string) string       { return "project:" + id }
func userKey(id string) string          { return "user:" + id }
func messagesKey(project string) string { return "messages:" + project }
func notificationKey(id string) string  { return "notification:" + id }
func unreadKey(user string) string      { return "notifications:unread:" + user }

// PutUser writes a user document. The auth/profile service owns this
// collection; this method exists for provisioning and tests.
func (s *Storage) PutUser(ctx context.Context, u domain.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.rc.Set(ctx, userKey(u.ID), data, 0).Err()
}

// FetchUser retrieves a user document.
func (s *Storage) FetchUser(ctx context.Context, id string) (domain.User, error) {
	data, err := s.rc.Get(ctx, userKey(id)).Bytes()
	if err == redis.Nil {
		return domain.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.User{}, err
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// userNames resolves display names for a set of user ids in one round trip.
// Unknown ids resolve to the empty string.
func (s *Storage) userNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	keys := make([]string, 0, len(ids))
	uniq := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, seen := names[id]; seen {
			continue
		}
		names[id] = ""
		uniq = append(uniq, id)
		keys = append(keys, userKey(id))
	}
	vals, err := s.rc.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			continue
		}
		names[uniq[i]] = u.Name
	}
	return names, nil
}

// CreateProject persists a new project with an empty board and indexes it
// for newest-first listing.
func (s *Storage) CreateProject(ctx context.Context, ownerID, title, description string, requiredSkills []string) (domain.Project, error) {
	if requiredSkills == nil {
		requiredSkills = []string{}
	}
	p := domain.Project{
		ID:             uuid.NewString(),
		Owner:          ownerID,
		Title:          title,
		Description:    description,
		RequiredSkills: requiredSkills,
		TeamMembers:    []domain.Member{},
		Applications:   []domain.Application{},
		Kanban:         domain.NewBoard(),
		Revision:       1,
		CreatedAt:      nextTimestamp(),
	}
	data, err := json.Marshal(&p)
	if err != nil {
		return domain.Project{}, err
	}
	_, err = s.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, projectKey(p.ID), data, 0)
		pipe.ZAdd(ctx, projectIndexKey, redis.Z{Score: float64(p.CreatedAt.UnixNano()), Member: p.ID})
		return nil
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ListProjects returns all projects, newest first, with owner names
// resolved for list rendering.
func (s *Storage) ListProjects(ctx context.Context) ([]domain.Project, error) {
	ids, err := s.rc.ZRevRange(ctx, projectIndexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	projects := make([]domain.Project, 0, len(ids))
	if len(ids) == 0 {
		return projects, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = projectKey(id)
	}
	vals, err := s.rc.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	owners := make([]string, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var p domain.Project
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		owners = append(owners, p.Owner)
		projects = append(projects, p)
	}
	names, err := s.userNames(ctx, owners)
	if err != nil {
		return nil, err
	}
	for i := range projects {
		projects[i].OwnerName = names[projects[i].Owner]
	}
	return projects, nil
}

// FetchProject returns the full project document with owner, member and
// task-author names resolved.
func (s *Storage) FetchProject(ctx context.Context, id string) (domain.Project, error) {
	data, err := s.rc.Get(ctx, projectKey(id)).Bytes()
	if err == redis.Nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return domain.Project{}, err
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Project{}, err
	}
	if err := s.resolveNames(ctx, &p); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (s *Storage) resolveNames(ctx context.Context, p *domain.Project) error {
	ids := []string{p.Owner}
	for _, m := range p.TeamMembers {
		ids = append(ids, m.ID)
	}
	for _, col := range [][]domain.Task{p.Kanban.Todo, p.Kanban.InProgress, p.Kanban.Completed} {
		for _, t := range col {
			ids = append(ids, t.CreatedBy)
		}
	}
	names, err := s.userNames(ctx, ids)
	if err != nil {
		return err
	}
	p.OwnerName = names[p.Owner]
	for i := range p.TeamMembers {
		p.TeamMembers[i].Name = names[p.TeamMembers[i].ID]
	}
	fill := func(col []domain.Task) {
		for i := range col {
			col[i].AuthorName = names[col[i].CreatedBy]
		}
	}
	fill(p.Kanban.Todo)
	fill(p.Kanban.InProgress)
	fill(p.Kanban.Completed)
	return nil
}
