// Package reconcile classifies catalog items against the shortcut list and
// applies the user's pending changes.
//
// Every item carries exactly one models.State. Group views are derived from
// that state on demand and are never stored separately.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/cloudshelf/internal/apperr"
	"github.com/starford/cloudshelf/internal/models"
	"github.com/starford/cloudshelf/internal/shortcut"
)

// DefaultConcurrency bounds the create/update worker pool.
const DefaultConcurrency = 4

// Builder creates and refreshes shortcuts.
//
// A non-nil record returned together with a non-nil error is usable; the
// error describes a non-fatal problem such as missing artwork.
type Builder interface {
	Create(ctx context.Context, item models.CatalogItem) (*shortcut.Record, error)
	Refresh(ctx context.Context, r *shortcut.Record, item models.CatalogItem) (*shortcut.Record, error)
}

// Saver persists the complete shortcut list.
type Saver interface {
	Save(records []*shortcut.Record) error
}

// Options configures an Engine.
type Options struct {
	ProvenanceTag string
	Concurrency   int
}

// Engine owns the shortcut list and the per-item states.
type Engine struct {
	mu       sync.RWMutex
	records  []*shortcut.Record
	index    map[string]*shortcut.Record // store key -> first managed record
	items    []models.CatalogItem
	pos      map[string]int // store key -> index in items
	states   map[string]models.State
	applying bool

	tag     string
	workers int
	builder Builder
	saver   Saver
	log     *slog.Logger
}

// New creates an engine over records.
func New(records []*shortcut.Record, builder Builder, saver Saver, opts Options, log *slog.Logger) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		pos:     make(map[string]int),
		states:  make(map[string]models.State),
		tag:     opts.ProvenanceTag,
		workers: opts.Concurrency,
		builder: builder,
		saver:   saver,
		log:     log,
	}
	e.setRecords(records)
	return e
}

// StoreKey returns the catalog key of a managed record. ok is false for
// records this engine does not manage.
func (e *Engine) StoreKey(r *shortcut.Record) (key string, ok bool) {
	if r.Tag(0) != e.tag || len(r.Tags) < 2 {
		return "", false
	}
	return r.Tags[1], true
}

// setRecords replaces the record list and rebuilds the provenance index.
// The caller holds e.mu or has exclusive access.
func (e *Engine) setRecords(records []*shortcut.Record) {
	e.records = records
	e.index = make(map[string]*shortcut.Record, len(records))
	for _, r := range records {
		if key, ok := e.StoreKey(r); ok {
			if _, dup := e.index[key]; !dup {
				e.index[key] = r
			}
		}
	}
}

// Classify replaces the catalog and assigns each item Linked or Unlinked.
// Items repeating an earlier store key are dropped.
//
// Toggles in restore are re-applied when they still fit the new link state:
// PendingAdd on an Unlinked item, PendingRemove on a Linked one. The keys of
// the remaining restore entries are returned as stale. Classify fails with
// apperr.ErrConflict while Apply runs and then changes nothing.
func (e *Engine) Classify(items []models.CatalogItem, restore map[string]models.State) (stale []string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.applying {
		return nil, fmt.Errorf("reconcile: classify: apply in progress: %w", apperr.ErrConflict)
	}

	e.items = make([]models.CatalogItem, 0, len(items))
	e.pos = make(map[string]int, len(items))
	e.states = make(map[string]models.State, len(items))
	for _, it := range items {
		if _, dup := e.pos[it.StoreKey]; dup {
			e.log.Warn("reconcile: duplicate store key dropped",
				slog.String("store_key", it.StoreKey),
				slog.String("title", it.Title))
			continue
		}
		e.pos[it.StoreKey] = len(e.items)
		e.items = append(e.items, it)
		e.states[it.StoreKey] = e.linkState(it.StoreKey)
	}

	for key, want := range restore {
		cur, ok := e.states[key]
		switch {
		case ok && cur == want:
		case ok && want == models.PendingAdd && cur == models.Unlinked,
			ok && want == models.PendingRemove && cur == models.Linked:
			e.states[key] = want
		default:
			stale = append(stale, key)
		}
	}
	slices.Sort(stale)
	return stale, nil
}

// Applying reports whether an Apply is running.
func (e *Engine) Applying() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.applying
}

func (e *Engine) linkState(key string) models.State {
	if _, ok := e.index[key]; ok {
		return models.Linked
	}
	return models.Unlinked
}

// Reload replaces the record list, typically after the file changed on disk.
// Pending toggles that still make sense are kept: a PendingAdd whose item is
// now linked becomes Linked, a PendingRemove whose record vanished becomes
// Unlinked.
func (e *Engine) Reload(records []*shortcut.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.applying {
		return fmt.Errorf("reconcile: reload: apply in progress: %w", apperr.ErrConflict)
	}

	e.setRecords(records)
	for _, it := range e.items {
		linked := e.linkState(it.StoreKey)
		switch cur := e.states[it.StoreKey]; {
		case cur == models.PendingAdd && linked == models.Unlinked:
		case cur == models.PendingRemove && linked == models.Linked:
		default:
			e.states[it.StoreKey] = linked
		}
	}
	return nil
}

// Toggle flips the pending state of key: Unlinked and PendingAdd swap, as do
// Linked and PendingRemove.
func (e *Engine) Toggle(key string) (models.State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.applying {
		return 0, fmt.Errorf("reconcile: toggle %s: apply in progress: %w", key, apperr.ErrConflict)
	}

	if _, ok := e.pos[key]; !ok {
		return 0, fmt.Errorf("reconcile: toggle %s: %w", key, apperr.ErrNotFound)
	}
	cur := e.states[key]
	var next models.State
	switch cur {
	case models.Unlinked:
		next = models.PendingAdd
	case models.PendingAdd:
		next = models.Unlinked
	case models.Linked:
		next = models.PendingRemove
	case models.PendingRemove:
		next = models.Linked
	}
	e.states[key] = next
	return next, nil
}

// State returns the state of key.
func (e *Engine) State(key string) (models.State, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.states[key]
	return s, ok
}

// Item returns the catalog entry for key.
func (e *Engine) Item(key string) (models.Item, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i, ok := e.pos[key]
	if !ok {
		return models.Item{}, false
	}
	return models.Item{CatalogItem: e.items[i], State: e.states[key]}, true
}

// Items returns every catalog item with its state, in catalog order.
func (e *Engine) Items() []models.Item {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.Item, len(e.items))
	for i, it := range e.items {
		out[i] = models.Item{CatalogItem: it, State: e.states[it.StoreKey]}
	}
	return out
}

// Groups partitions the catalog by state. Every state has an entry.
func (e *Engine) Groups() map[models.State][]models.CatalogItem {
	e.mu.RLock()
	defer e.mu.RUnlock()
	groups := make(map[models.State][]models.CatalogItem, len(models.States))
	for _, s := range models.States {
		groups[s] = []models.CatalogItem{}
	}
	for _, it := range e.items {
		s := e.states[it.StoreKey]
		groups[s] = append(groups[s], it)
	}
	return groups
}

// Pending returns the keys awaiting Apply and their states.
func (e *Engine) Pending() map[string]models.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]models.State)
	for k, s := range e.states {
		if s.Pending() {
			out[k] = s
		}
	}
	return out
}

// Records returns copies of the current shortcut list.
func (e *Engine) Records() []*shortcut.Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*shortcut.Record, len(e.records))
	for i, r := range e.records {
		out[i] = r.Clone()
	}
	return out
}

// Record returns a copy of the managed record linked to key.
func (e *Engine) Record(key string) (*shortcut.Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.index[key]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// EventKind classifies Apply notifications.
type EventKind uint8

const (
	// EventProgress reports one finished operation.
	EventProgress EventKind = iota
	// EventFailed reports one failed operation.
	EventFailed
	// EventDone reports the end of the batch.
	EventDone
	// EventWarning reports an operation that succeeded with a non-fatal
	// problem, such as missing artwork.
	EventWarning
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "apply.progress"
	case EventFailed:
		return "apply.failed"
	case EventDone:
		return "apply.done"
	case EventWarning:
		return "apply.warning"
	default:
		return "unknown"
	}
}

// Op names the operation an event refers to.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpRemove Op = "remove"
)

// Event is an Apply notification. Notifications for create and update are
// delivered from worker goroutines, so the callback must be safe for
// concurrent use.
type Event struct {
	Kind    EventKind
	BatchID string
	Op      Op
	Key     string
	Done    int
	Total   int
	Err     error
}

// Summary describes a finished Apply.
type Summary struct {
	BatchID string `json:"batch_id"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Removed int    `json:"removed"`
	Failed  int    `json:"failed"`
	Warned  int    `json:"warned"`
	Total   int    `json:"total"`
}

type job struct {
	op   Op
	item models.CatalogItem
	old  *shortcut.Record
}

type result struct {
	job
	rec *shortcut.Record
	err error
}

// Apply creates shortcuts for PendingAdd items, refreshes Linked ones and
// drops PendingRemove ones, then saves the list once every worker has
// settled. Failures of individual items are reported through notify and do
// not stop the batch. A failed save leaves the engine unchanged and is
// returned.
func (e *Engine) Apply(ctx context.Context, notify func(Event)) (Summary, error) {
	if notify == nil {
		notify = func(Event) {}
	}

	e.mu.Lock()
	if e.applying {
		e.mu.Unlock()
		return Summary{}, fmt.Errorf("reconcile: apply: %w", apperr.ErrConflict)
	}
	e.applying = true
	var jobs []job
	var removes []string
	for _, it := range e.items {
		switch e.states[it.StoreKey] {
		case models.PendingAdd:
			jobs = append(jobs, job{op: OpCreate, item: it})
		case models.Linked:
			jobs = append(jobs, job{op: OpUpdate, item: it, old: e.index[it.StoreKey].Clone()})
		case models.PendingRemove:
			removes = append(removes, it.StoreKey)
		}
	}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.applying = false
		e.mu.Unlock()
	}()

	sum := Summary{BatchID: uuid.NewString(), Total: len(jobs) + len(removes)}
	var done atomic.Int32
	emit := func(op Op, key string, err error, usable bool) {
		ev := Event{
			Kind:    EventProgress,
			BatchID: sum.BatchID,
			Op:      op,
			Key:     key,
			Done:    int(done.Add(1)),
			Total:   sum.Total,
			Err:     err,
		}
		switch {
		case err != nil && usable:
			ev.Kind = EventWarning
		case err != nil:
			ev.Kind = EventFailed
		}
		notify(ev)
	}

	e.log.Info("reconcile: apply started",
		slog.String("batch", sum.BatchID),
		slog.Int("jobs", len(jobs)),
		slog.Int("removals", len(removes)))

	for _, key := range removes {
		emit(OpRemove, key, nil, true)
	}

	results := make([]result, len(jobs))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, j := range jobs {
		g.Go(func() error {
			var rec *shortcut.Record
			var err error
			switch j.op {
			case OpCreate:
				rec, err = e.builder.Create(ctx, j.item)
			case OpUpdate:
				rec, err = e.builder.Refresh(ctx, j.old, j.item)
			}
			if err != nil {
				err = &apperr.OperationError{Op: string(j.op), Key: j.item.StoreKey, Err: err}
			}
			results[i] = result{job: j, rec: rec, err: err}
			emit(j.op, j.item.StoreKey, err, rec != nil)
			return nil
		})
	}
	_ = g.Wait()

	if err := e.commit(results, removes, &sum); err != nil {
		e.log.Error("reconcile: save failed",
			slog.String("batch", sum.BatchID),
			slog.String("error", err.Error()))
		return sum, err
	}

	notify(Event{Kind: EventDone, BatchID: sum.BatchID, Done: sum.Total, Total: sum.Total})
	e.log.Info("reconcile: apply finished",
		slog.String("batch", sum.BatchID),
		slog.Int("created", sum.Created),
		slog.Int("updated", sum.Updated),
		slog.Int("removed", sum.Removed),
		slog.Int("failed", sum.Failed),
		slog.Int("warned", sum.Warned))
	return sum, nil
}

// commit merges worker results and removals into a new record list, saves
// it, and only then publishes it together with the new states.
func (e *Engine) commit(results []result, removes []string, sum *Summary) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	drop := make(map[string]struct{}, len(removes))
	for _, k := range removes {
		drop[k] = struct{}{}
	}
	replace := make(map[*shortcut.Record]*shortcut.Record)
	var added []*shortcut.Record
	states := make(map[string]models.State, len(e.states))
	for k, s := range e.states {
		states[k] = s
	}

	for _, r := range results {
		key := r.item.StoreKey
		switch {
		case r.err != nil && r.rec != nil:
			sum.Warned++
		case r.err != nil:
			sum.Failed++
		}
		switch {
		case r.op == OpCreate && r.rec != nil:
			added = append(added, r.rec)
			states[key] = models.Linked
			sum.Created++
		case r.op == OpCreate:
			states[key] = models.Unlinked
		case r.op == OpUpdate && r.rec != nil:
			replace[e.index[key]] = r.rec
			sum.Updated++
		}
	}

	next := make([]*shortcut.Record, 0, len(e.records)+len(added))
	for _, r := range e.records {
		if key, ok := e.StoreKey(r); ok {
			if _, gone := drop[key]; gone {
				continue
			}
		}
		if nr, ok := replace[r]; ok {
			r = nr
		}
		next = append(next, r)
	}
	next = append(next, added...)
	for _, k := range removes {
		states[k] = models.Unlinked
		sum.Removed++
	}

	if e.saver != nil {
		if err := e.saver.Save(next); err != nil {
			return fmt.Errorf("reconcile: save: %w", err)
		}
	}
	e.setRecords(next)
	e.states = states
	return nil
}
