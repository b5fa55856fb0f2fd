// Package cache keeps each owner's task list in Redis in front of a slower
// task backend.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/config"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
	"github.com/taskmaster/planner/internal/ports"
)

// Repository is a read-through cache for List. Writes go straight to the
// backend and drop the owner's cached list. Cache failures are logged and
// never fail a request.
type Repository struct {
	next   ports.TaskRepository
	client *redis.Client
	ttl    time.Duration
	prefix string
	now    func() time.Time
	loc    *time.Location
	logger *logger.Logger
}

var (
	_ ports.TaskRepository = (*Repository)(nil)
	_ ports.HealthChecker  = (*Repository)(nil)
)

// NewClient connects to the Redis server at cfg.URL.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// New wraps next with a cache stored in client.
func New(next ports.TaskRepository, client *redis.Client, cfg config.RedisConfig, loc *time.Location, log *logger.Logger) *Repository {
	if loc == nil {
		loc = time.Local
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "planner"
	}
	return &Repository{
		next:   next,
		client: client,
		ttl:    cfg.TTL,
		prefix: prefix,
		now:    time.Now,
		loc:    loc,
		logger: log.WithComponent("task_cache"),
	}
}

func (r *Repository) key(owner entities.User) string {
	return r.prefix + ":tasks:" + owner.Email
}

func (r *Repository) List(ctx context.Context, owner entities.User) ([]*entities.Task, error) {
	key := r.key(owner)

	cached, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var tasks []*entities.Task
		if err := json.Unmarshal(cached, &tasks); err == nil {
			now := r.now()
			for _, t := range tasks {
				t.RefreshDaysUntilDue(now, r.loc)
			}
			r.logger.Debugw("Task list served from cache", "owner", owner.Email, "count", len(tasks))
			return tasks, nil
		}
		r.logger.Warnw("Discarding unreadable cache entry", "key", key)
	case !errors.Is(err, redis.Nil):
		r.logger.Warnw("Cache read failed", "key", key, "error", err)
	}

	tasks, err := r.next.List(ctx, owner)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tasks); err == nil {
		if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
			r.logger.Warnw("Cache write failed", "key", key, "error", err)
		}
	}
	return tasks, nil
}

func (r *Repository) Get(ctx context.Context, owner entities.User, id string) (*entities.Task, error) {
	return r.next.Get(ctx, owner, id)
}

func (r *Repository) Create(ctx context.Context, owner entities.User, task entities.NewTask) (*entities.Task, error) {
	created, err := r.next.Create(ctx, owner, task)
	if err == nil {
		r.invalidate(ctx, owner)
	}
	return created, err
}

func (r *Repository) Update(ctx context.Context, owner entities.User, id string, patch entities.TaskPatch) (*entities.Task, error) {
	updated, err := r.next.Update(ctx, owner, id, patch)
	if err == nil {
		r.invalidate(ctx, owner)
	}
	return updated, err
}

func (r *Repository) Archive(ctx context.Context, owner entities.User, id string) error {
	err := r.next.Archive(ctx, owner, id)
	if err == nil {
		r.invalidate(ctx, owner)
	}
	return err
}

func (r *Repository) invalidate(ctx context.Context, owner entities.User) {
	if err := r.client.Del(ctx, r.key(owner)).Err(); err != nil {
		r.logger.Warnw("Cache invalidation failed", "owner", owner.Email, "error", err)
	}
}

// Ping reports the backend's readiness. The cache is optional and does not
// affect it.
func (r *Repository) Ping(ctx context.Context) error {
	if hc, ok := r.next.(ports.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}
