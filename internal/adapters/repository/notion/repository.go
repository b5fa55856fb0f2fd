package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/taskmaster/planner/internal/domain/entities"
	"github.com/taskmaster/planner/internal/infrastructure/config"
	"github.com/taskmaster/planner/internal/infrastructure/logger"
)

const pageSize = 100

// ErrInvalidToken is returned for an integration token that cannot be sent
// as a header value.
var ErrInvalidToken = errors.New("NOTION_API_KEY appears invalid (contains whitespace)")

// Repository implements ports.TaskRepository on a Notion database.
type Repository struct {
	client     *Client
	databaseID string
	now        func() time.Time
	loc        *time.Location
	logger     *logger.Logger
}

// NewRepository creates a Notion task repository. An unconfigured repository
// is valid: it lists nothing and rejects writes with entities.ErrNotConfigured.
func NewRepository(cfg config.NotionConfig, httpClient *http.Client, loc *time.Location, log *logger.Logger) (*Repository, error) {
	log = log.WithComponent("notion_repository")
	if loc == nil {
		loc = time.Local
	}

	repo := &Repository{
		databaseID: strings.TrimSpace(cfg.DatabaseID),
		now:        time.Now,
		loc:        loc,
		logger:     log,
	}

	token := strings.TrimSpace(cfg.APIKey)
	if !cfg.Configured() {
		log.Warn("Notion is not configured; task listing will be empty")
		return repo, nil
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return nil, ErrInvalidToken
	}
	if !strings.HasPrefix(token, "ntn_") && !strings.HasPrefix(token, "secret_") {
		log.Warn("NOTION_API_KEY does not start with \"ntn_\" or \"secret_\"; verify the integration token")
	}

	repo.client = NewClient(token, cfg.BaseURL, cfg.Version, cfg.RateLimit, httpClient)
	return repo, nil
}

func (r *Repository) configured() bool {
	return r.client != nil
}

// List returns the owner's pages, most recently edited first. When the
// database query fails the search API is tried before giving up.
func (r *Repository) List(ctx context.Context, owner entities.User) ([]*entities.Task, error) {
	if !r.configured() {
		r.logger.Warn("Notion not configured - returning empty task list")
		return []*entities.Task{}, nil
	}

	pages, err := r.queryDatabase(ctx, owner)
	if err != nil {
		r.logger.Warnw("Database query failed, falling back to search", "error", err)
		pages, err = r.searchDatabase(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("failed to list notion pages: %w", err)
		}
	}

	now := r.now()
	tasks := make([]*entities.Task, 0, len(pages))
	for _, page := range pages {
		tasks = append(tasks, pageToTask(page, now, r.loc))
	}
	return tasks, nil
}

func (r *Repository) queryDatabase(ctx context.Context, owner entities.User) ([]gjson.Result, error) {
	var (
		pages  []gjson.Result
		cursor string
	)
	for {
		body := map[string]any{
			"page_size": pageSize,
			"filter": map[string]any{
				"property": propUserEmail,
				"email":    map[string]any{"equals": owner.Email},
			},
			"sorts": []map[string]any{
				{"timestamp": "last_edited_time", "direction": "descending"},
			},
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		resp, err := r.client.post(ctx, "/databases/"+url.PathEscape(r.databaseID)+"/query", body)
		if err != nil {
			return nil, err
		}
		pages = append(pages, resp.Get("results").Array()...)

		if !resp.Get("has_more").Bool() || resp.Get("next_cursor").String() == "" {
			return pages, nil
		}
		cursor = resp.Get("next_cursor").String()
	}
}

func (r *Repository) searchDatabase(ctx context.Context, owner entities.User) ([]gjson.Result, error) {
	var (
		pages  []gjson.Result
		cursor string
	)
	for {
		body := map[string]any{
			"page_size": pageSize,
			"filter":    map[string]any{"property": "object", "value": "page"},
			"sort":      map[string]any{"direction": "descending", "timestamp": "last_edited_time"},
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		resp, err := r.client.post(ctx, "/search", body)
		if err != nil {
			return nil, err
		}
		for _, page := range resp.Get("results").Array() {
			if r.inDatabase(page) && !page.Get("archived").Bool() && pageOwner(page) == owner.Email {
				pages = append(pages, page)
			}
		}

		if !resp.Get("has_more").Bool() || resp.Get("next_cursor").String() == "" {
			return pages, nil
		}
		cursor = resp.Get("next_cursor").String()
	}
}

func (r *Repository) inDatabase(page gjson.Result) bool {
	parent := page.Get("parent")
	return parent.Get("type").String() == "database_id" &&
		normalizeID(parent.Get("database_id").String()) == normalizeID(r.databaseID)
}

func normalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, "-", ""))
}

// Get returns a single page owned by the caller.
func (r *Repository) Get(ctx context.Context, owner entities.User, id string) (*entities.Task, error) {
	page, err := r.ownedPage(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return pageToTask(page, r.now(), r.loc), nil
}

// Create adds a page with the owner's email and uid attached.
func (r *Repository) Create(ctx context.Context, owner entities.User, task entities.NewTask) (*entities.Task, error) {
	if !r.configured() {
		return nil, entities.ErrNotConfigured
	}

	page, err := r.client.post(ctx, "/pages", map[string]any{
		"parent":     map[string]any{"database_id": r.databaseID},
		"properties": newTaskProperties(task, owner),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notion page: %w", err)
	}

	r.logger.Debugw("Created notion page", "page_id", page.Get("id").String())
	return pageToTask(page, r.now(), r.loc), nil
}

// Update writes the present patch fields to the page.
func (r *Repository) Update(ctx context.Context, owner entities.User, id string, patch entities.TaskPatch) (*entities.Task, error) {
	if _, err := r.ownedPage(ctx, owner, id); err != nil {
		return nil, err
	}

	page, err := r.client.patch(ctx, "/pages/"+url.PathEscape(id), map[string]any{
		"properties": patchProperties(patch),
	})
	if err != nil {
		return nil, translate(err, "failed to update notion page")
	}
	return pageToTask(page, r.now(), r.loc), nil
}

// Archive moves the page to Notion's trash.
func (r *Repository) Archive(ctx context.Context, owner entities.User, id string) error {
	if _, err := r.ownedPage(ctx, owner, id); err != nil {
		return err
	}

	if _, err := r.client.patch(ctx, "/pages/"+url.PathEscape(id), map[string]any{"archived": true}); err != nil {
		return translate(err, "failed to archive notion page")
	}
	return nil
}

// Ping checks that the database is reachable with the configured token.
func (r *Repository) Ping(ctx context.Context) error {
	if !r.configured() {
		return entities.ErrNotConfigured
	}
	_, err := r.client.get(ctx, "/databases/"+url.PathEscape(r.databaseID))
	return err
}

// ownedPage fetches a live page and checks that it belongs to owner. Pages
// without an owner email are accessible to every caller.
func (r *Repository) ownedPage(ctx context.Context, owner entities.User, id string) (gjson.Result, error) {
	if !r.configured() {
		return gjson.Result{}, entities.ErrNotConfigured
	}
	if strings.TrimSpace(id) == "" {
		return gjson.Result{}, entities.ErrTaskNotFound
	}

	page, err := r.client.get(ctx, "/pages/"+url.PathEscape(id))
	if err != nil {
		return gjson.Result{}, translate(err, "failed to fetch notion page")
	}
	if page.Get("archived").Bool() || page.Get("in_trash").Bool() {
		return gjson.Result{}, entities.ErrTaskNotFound
	}
	if email := pageOwner(page); email != "" && email != owner.Email {
		r.logger.LogSecurityEvent("foreign_task_access", owner.UID, "", map[string]interface{}{
			"page_id": id,
		})
		return gjson.Result{}, entities.ErrTaskNotFound
	}
	return page, nil
}

func translate(err error, msg string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.NotFound() {
		return fmt.Errorf("%s: %w", msg, entities.ErrTaskNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
