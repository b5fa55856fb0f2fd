// Package intake feeds AI-extracted task candidates into the task store one
// at a time, waiting for the user to accept or reject each before moving on.
package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taskmaster/planner/internal/domain/entities"
)

// Queue is an ordered, consumable sequence of candidates.
type Queue struct {
	mu    sync.Mutex
	items []entities.ParsedTask
}

func NewQueue(items []entities.ParsedTask) *Queue {
	return &Queue{items: append([]entities.ParsedTask(nil), items...)}
}

// Len returns the number of candidates left, including the current one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Current returns the candidate at the head of the queue.
func (q *Queue) Current() (entities.ParsedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return entities.ParsedTask{}, false
	}
	return q.items[0], true
}

// Next drops the current candidate and returns the one after it.
func (q *Queue) Next() (entities.ParsedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		q.items = q.items[1:]
	}
	if len(q.items) == 0 {
		return entities.ParsedTask{}, false
	}
	return q.items[0], true
}

// Skip discards every remaining candidate.
func (q *Queue) Skip() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Decision is the user's answer for one draft.
type Decision int

const (
	Accept Decision = iota
	Reject
	Cancel
)

// Store is the subset of the task store used by the importer.
type Store interface {
	AddTask(task *entities.Task) entities.TaskID
	SelectedTask() *entities.Task
	SubmitTask(ctx context.Context, id entities.TaskID) error
	DeleteTask(ctx context.Context, id entities.TaskID) error
	SetSelectedTask(task *entities.Task)
	SetIsModalOpen(open bool)
}

// ConfirmFunc presents the draft with the given id and returns the user's
// decision. It may edit the draft through the store before accepting.
type ConfirmFunc func(ctx context.Context, id entities.TaskID, remaining int) (Decision, error)

// Result summarizes an import run.
type Result struct {
	Created  []entities.TaskID
	Rejected int
	Failed   int
}

// Importer walks a queue, opening each candidate as a draft.
type Importer struct {
	store Store
	now   func() time.Time
	loc   *time.Location
}

func NewImporter(store Store, now func() time.Time, loc *time.Location) *Importer {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &Importer{store: store, now: now, loc: loc}
}

// Run processes q until it is empty or the user cancels. A candidate whose
// submit fails stays in the store as a draft and the run continues. A draft
// that cannot be discarded is counted as failed.
func (im *Importer) Run(ctx context.Context, q *Queue, confirm ConfirmFunc) (Result, error) {
	var res Result
	for c, ok := q.Current(); ok; c, ok = q.Next() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		stop, err := im.handle(ctx, q, c, confirm, &res)
		if err != nil || stop {
			return res, err
		}
	}
	return res, nil
}

// handle opens one candidate as a draft and applies the user's decision. The
// modal is closed on every path out.
func (im *Importer) handle(ctx context.Context, q *Queue, c entities.ParsedTask, confirm ConfirmFunc, res *Result) (bool, error) {
	d := c.Draft(im.now(), im.loc)
	id := im.store.AddTask(d)
	im.store.SetSelectedTask(d)
	im.store.SetIsModalOpen(true)
	defer im.store.SetIsModalOpen(false)

	decision, err := confirm(ctx, id, q.Len())
	if err != nil {
		err = fmt.Errorf("confirm candidate: %w", err)
		if derr := im.store.DeleteTask(ctx, id); derr != nil {
			err = errors.Join(err, fmt.Errorf("discard draft: %w", derr))
		}
		return true, err
	}

	switch decision {
	case Accept:
		if err := im.store.SubmitTask(ctx, id); err != nil {
			res.Failed++
			return false, nil
		}
		// The store retargets the selection to the promoted task.
		if sel := im.store.SelectedTask(); sel != nil && !sel.IsDraft() {
			res.Created = append(res.Created, sel.ID)
		}
	case Reject:
		if err := im.store.DeleteTask(ctx, id); err != nil {
			res.Failed++
			return false, nil
		}
		res.Rejected++
	case Cancel:
		if err := im.store.DeleteTask(ctx, id); err != nil {
			res.Failed++
		}
		q.Skip()
		return true, nil
	}
	return false, nil
}
