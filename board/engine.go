package board

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// Engine keeps one board's task list consistent across three racing
// sources: the user's drag gestures, background persist requests and the
// push/refetch pipeline. The visible list is a single collection replaced
// atomically; only the drag commit and the merge paths write it.
type Engine struct {
	cfg      Config
	fetcher  TaskFetcher
	statuses StatusFetcher
	mover    TaskMover
	gate     TransitionGate
	notifier Notifier
	logger   *log.Logger

	mu             sync.Mutex
	phase          Phase
	tasks          []domain.Task
	columns        []domain.Status
	ledger         *Ledger
	drag           *dragSession
	deferred       []func()
	pendingRefetch bool
	timers         map[string]*time.Timer
}

// New creates an engine for one board.
func New(cfg Config, fetcher TaskFetcher, statuses StatusFetcher, mover TaskMover, gate TransitionGate, notifier Notifier, logger *log.Logger) *Engine {
	if fetcher == nil {
		panic("board.New: task fetcher is required")
	}
	if statuses == nil {
		panic("board.New: status fetcher is required")
	}
	if mover == nil {
		panic("board.New: task mover is required")
	}
	if gate == nil {
		panic("board.New: transition gate is required")
	}
	if logger == nil {
		panic("board.New: logger is required")
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Engine{
		cfg:      cfg.withDefaults(),
		fetcher:  fetcher,
		statuses: statuses,
		mover:    mover,
		gate:     gate,
		notifier: notifier,
		logger:   logger,
		ledger:   NewLedger(),
		timers:   make(map[string]*time.Timer),
	}
}

// Load fetches the board configuration and the initial task snapshot.
func (e *Engine) Load(ctx context.Context) error {
	cols, err := e.statuses.FetchStatuses(ctx, e.cfg.BoardID)
	if err != nil {
		return fmt.Errorf("fetch statuses: %w", err)
	}
	tasks, err := e.fetcher.FetchTasks(ctx, e.cfg.BoardID)
	if err != nil {
		return fmt.Errorf("fetch tasks: %w", err)
	}

	e.mu.Lock()
	e.columns = sortStatuses(cols)
	e.tasks = sortTasks(MergeTasks(tasks, e.ledger), e.columns)
	e.mu.Unlock()
	return nil
}

// Tasks returns a copy of the visible task list in board order.
func (e *Engine) Tasks() []domain.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Task(nil), e.tasks...)
}

// Statuses returns a copy of the board's columns.
func (e *Engine) Statuses() []domain.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Status(nil), e.columns...)
}

// Phase returns the current interaction phase.
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// PendingCount reports how many optimistic mutations await confirmation.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.PendingCount()
}

// DragStart begins a gesture for the given task. An unknown task id is a
// non-fatal integrity error: it is logged and the engine stays idle.
func (e *Engine) DragStart(taskID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseIdle {
		e.logger.Warnf("drag start ignored in phase %s", e.phase)
		return false
	}
	task, ok := taskByID(e.tasks, taskID)
	if !ok {
		e.logger.Warnf("drag start for unknown task %s", taskID)
		return false
	}
	e.drag = &dragSession{
		taskID:         taskID,
		originStatusID: task.StatusID,
		originIndex:    columnIndexOf(e.tasks, task),
	}
	e.phase = PhaseDragging
	return true
}

// DragOver updates the candidate drop target from the pointer position.
// Safe to call at pointer-move frequency; it never performs I/O.
func (e *Engine) DragOver(h Hover) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != PhaseDragging || e.drag == nil {
		return
	}
	if tgt, ok := resolveHover(e.tasks, e.columns, e.drag, h); ok {
		e.drag.target = &tgt
	} else {
		e.drag.target = nil
	}
}

// DragEnd resolves the gesture. A nil hover means the card was dropped
// outside any valid target or the platform cancelled the gesture; it still
// routes through the same unconditional cleanup. The drag session is
// cleared even when the gate or the persist launch panics, and any work
// deferred during the gesture is replayed once the engine is idle again.
func (e *Engine) DragEnd(ctx context.Context, hover *Hover) {
	e.mu.Lock()
	if e.phase != PhaseDragging || e.drag == nil {
		e.mu.Unlock()
		return
	}
	sess := e.drag
	if hover == nil {
		sess.target = nil
	} else if tgt, ok := resolveHover(e.tasks, e.columns, sess, *hover); ok {
		sess.target = &tgt
	} else {
		sess.target = nil
	}
	e.phase = PhasePersisting
	e.mu.Unlock()

	defer e.finishDrag()
	e.commit(ctx, sess)
}

// finishDrag is the unconditional cleanup at the end of every gesture.
func (e *Engine) finishDrag() {
	r := recover()

	e.mu.Lock()
	e.drag = nil
	e.phase = PhaseIdle
	deferred := e.deferred
	e.deferred = nil
	refetch := e.pendingRefetch
	e.pendingRefetch = false
	e.mu.Unlock()

	if r != nil {
		e.logger.Errorf("drag commit panicked: %v", r)
	}
	for _, fn := range deferred {
		fn()
	}
	if refetch {
		go e.forceRefetch("")
	}
}

func (e *Engine) commit(ctx context.Context, sess *dragSession) {
	metrics, ctx := newCommitMetrics(ctx, e.logger)

	tgt := sess.target
	if tgt == nil {
		metrics.SetOutcome("cancelled")
		metrics.Log(nil)
		return
	}

	e.mu.Lock()
	task, ok := taskByID(e.tasks, sess.taskID)
	if !ok {
		e.mu.Unlock()
		e.logger.Warnf("dragged task %s vanished before commit", sess.taskID)
		metrics.SetOutcome("missing_task")
		metrics.Log(nil)
		return
	}
	if tgt.statusID == sess.originStatusID && tgt.index == sess.originIndex {
		e.mu.Unlock()
		metrics.SetOutcome("noop")
		metrics.Log(nil)
		return
	}
	columns := e.columns
	visible := e.tasks
	e.mu.Unlock()

	current, ok := statusByID(columns, task.StatusID)
	if !ok {
		current = domain.Status{ID: task.StatusID, Name: task.StatusID}
	}
	dest, ok := statusByID(columns, tgt.statusID)
	if !ok {
		e.logger.Warnf("drop target column %s is not on this board", tgt.statusID)
		metrics.SetOutcome("missing_column")
		metrics.Log(nil)
		return
	}
	metrics.SetMove(task.ID, current.ID, dest.ID)

	if dest.ID != current.ID {
		gateStart := time.Now()
		gateErr := e.gate.Allowed(ctx, task, current, dest)
		metrics.ObserveGate(time.Since(gateStart))
		if gateErr != nil {
			e.notifier.Notify(SeverityError, gateErr.Error())
			metrics.SetOutcome("rejected")
			metrics.Log(gateErr)
			return
		}
		if dest.WIPLimit > 0 && len(columnTasks(visible, dest.ID, task.ID)) >= dest.WIPLimit {
			// Soft limit: warn, never block.
			e.notifier.Notify(SeverityWarning, fmt.Sprintf("%q now exceeds its WIP limit of %d", dest.Name, dest.WIPLimit))
		}
	}

	applyStart := time.Now()
	e.mu.Lock()
	snapshot := e.tasks
	next, moved, ok := applyMove(e.tasks, e.columns, task.ID, dest.ID, tgt.index)
	if !ok {
		e.mu.Unlock()
		metrics.SetOutcome("missing_task")
		metrics.Log(nil)
		return
	}
	e.ledger.Begin(task.ID, moved, snapshot)
	e.tasks = next
	e.mu.Unlock()
	metrics.ObserveApply(time.Since(applyStart))

	req := MoveRequest{
		StatusID:       dest.ID,
		Order:          moved.Order,
		IdempotencyKey: uuid.NewString(),
	}
	go e.persist(task.ID, req)

	metrics.SetOutcome("committed")
	metrics.Log(nil)
}

// persist runs the background mutation for a committed drag. A panic here
// must not take the process down with it; it is treated as a failed
// request.
func (e *Engine) persist(taskID string, req MoveRequest) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("persist panicked: %v", r)
		}
		if err != nil {
			e.logger.Errorf("persist move failed, task: %s, err: %v", taskID, err)
			e.runOrDefer(func() { e.revertMutation(taskID) })
			e.notifier.Notify(SeverityError, "the move could not be saved and was undone")
			return
		}
		e.armConfirmTimer(taskID)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.MutateTimeout)
	defer cancel()
	err = e.mover.MoveTask(ctx, taskID, req)
}

// revertMutation restores the pre-drag snapshot for a failed persist while
// keeping every other pending entry's optimistic value intact.
func (e *Engine) revertMutation(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopTimer(taskID)
	snapshot, ok := e.ledger.Revert(taskID)
	if !ok {
		return
	}
	e.tasks = sortTasks(MergeTasks(snapshot, e.ledger), e.columns)
}

// HandleEvent processes one push notification. Events arriving during a
// gesture are queued and replayed once the engine is idle.
func (e *Engine) HandleEvent(ev domain.Event) {
	e.mu.Lock()
	if e.phase != PhaseIdle {
		e.deferred = append(e.deferred, func() { e.HandleEvent(ev) })
		e.mu.Unlock()
		return
	}

	switch ev.Type {
	case domain.TaskCreated, domain.TaskUpdated:
	default:
		e.mu.Unlock()
		e.logger.Debugf("ignoring push event of type %q", ev.Type)
		return
	}
	if ev.TaskID == "" {
		e.mu.Unlock()
		e.logger.Warn("push event without task id")
		return
	}

	pending := e.ledger.IsPending(ev.TaskID)
	task, ok := ev.TaskPayload()
	if !ok {
		e.mu.Unlock()
		if pending {
			// The confirmation we were waiting for arrived without a usable
			// payload; a forced refetch resolves it instead of trusting an
			// unconfirmed state indefinitely.
			e.logger.Warnf("confirmation for task %s has no usable payload, forcing refetch", ev.TaskID)
			e.forceRefetch(ev.TaskID)
			return
		}
		e.logger.Debugf("push event for task %s without payload, ignored", ev.TaskID)
		return
	}

	if pending {
		e.ledger.Confirm(ev.TaskID)
		e.stopTimer(ev.TaskID)
	}
	e.tasks = sortTasks(replaceTask(e.tasks, task), e.columns)
	e.mu.Unlock()
}

// Refetch pulls a fresh snapshot and merges it against the ledger. While a
// gesture is active the refetch is deferred and runs after the engine
// returns to idle; intermediate drag-over states are visual only and must
// not be merged over.
func (e *Engine) Refetch(ctx context.Context) error {
	e.mu.Lock()
	if e.phase != PhaseIdle {
		e.pendingRefetch = true
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	fetched, err := e.fetcher.FetchTasks(ctx, e.cfg.BoardID)
	if err != nil {
		return fmt.Errorf("refetch tasks: %w", err)
	}
	e.applyFetched(fetched, "")
	return nil
}

// forceRefetch is the internal refetch-merge-confirm cycle used when a
// confirmation is missing or overdue. confirmID, when set, names the
// ledger entry to clear after the merge.
func (e *Engine) forceRefetch(confirmID string) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.FetchTimeout)
	fetched, err := e.fetcher.FetchTasks(ctx, e.cfg.BoardID)
	cancel()
	if err != nil {
		e.logger.Errorf("forced refetch failed: %v", err)
		if confirmID != "" {
			// The entry must not leak forever; the optimistic value stays
			// visible until the next successful fetch.
			e.mu.Lock()
			e.stopTimer(confirmID)
			e.ledger.Confirm(confirmID)
			e.mu.Unlock()
		}
		return
	}
	e.applyFetched(fetched, confirmID)
}

func (e *Engine) applyFetched(fetched []domain.Task, confirmID string) {
	e.mu.Lock()
	if e.phase != PhaseIdle {
		e.deferred = append(e.deferred, func() { e.applyFetched(fetched, confirmID) })
		e.mu.Unlock()
		return
	}
	merged := MergeTasks(fetched, e.ledger)
	if confirmID != "" {
		e.stopTimer(confirmID)
		e.ledger.Confirm(confirmID)
	}
	e.tasks = sortTasks(merged, e.columns)
	e.mu.Unlock()
}

func (e *Engine) armConfirmTimer(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.ledger.IsPending(taskID) {
		// Confirmation already arrived; nothing to guard.
		return
	}
	e.stopTimer(taskID)
	e.timers[taskID] = time.AfterFunc(e.cfg.ConfirmTimeout, func() { e.confirmTimeout(taskID) })
}

func (e *Engine) confirmTimeout(taskID string) {
	e.mu.Lock()
	delete(e.timers, taskID)
	if !e.ledger.IsPending(taskID) {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.logger.Debugf("no confirmation for task %s within %v, forcing refetch", taskID, e.cfg.ConfirmTimeout)
	e.forceRefetch(taskID)
}

// stopTimer must be called with the mutex held.
func (e *Engine) stopTimer(taskID string) {
	if t, ok := e.timers[taskID]; ok {
		t.Stop()
		delete(e.timers, taskID)
	}
}

// runOrDefer executes fn now when the engine is idle, otherwise queues it
// for replay after the active gesture finishes.
func (e *Engine) runOrDefer(fn func()) {
	e.mu.Lock()
	if e.phase != PhaseIdle {
		e.deferred = append(e.deferred, fn)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	fn()
}

func replaceTask(list []domain.Task, task domain.Task) []domain.Task {
	out := append([]domain.Task(nil), list...)
	for i := range out {
		if out[i].ID == task.ID {
			out[i] = task
			return out
		}
	}
	return append(out, task)
}

func sortStatuses(statuses []domain.Status) []domain.Status {
	out := append([]domain.Status(nil), statuses...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}
