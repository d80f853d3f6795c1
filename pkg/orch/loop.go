// Package orch runs the event loop that owns the wcmp manager. Table
// batches and port notifications are applied one at a time, each to
// completion, from a single goroutine.
package orch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/newtron-network/wcmpd/pkg/audit"
	"github.com/newtron-network/wcmpd/pkg/port"
	"github.com/newtron-network/wcmpd/pkg/util"
	"github.com/newtron-network/wcmpd/pkg/wcmp"
)

// ErrStopped is returned by Submit calls after the loop has exited.
var ErrStopped = errors.New("orchestrator stopped")

// ResponseSink receives the outcome of every table entry.
type ResponseSink interface {
	Publish(ctx context.Context, r wcmp.Response) error
}

// Notification is one device notification.
type Notification struct {
	Op   string
	Data string
}

// Option configures a Loop.
type Option func(*Loop)

// WithResponseSink publishes every response to sink.
func WithResponseSink(sink ResponseSink) Option {
	return func(l *Loop) { l.sink = sink }
}

// WithAuditLogger records an audit event per request and port transition.
func WithAuditLogger(logger audit.Logger) Option {
	return func(l *Loop) { l.audit = logger }
}

// Loop serializes all work on a Manager.
type Loop struct {
	mgr   *wcmp.Manager
	ports *port.Table
	sink  ResponseSink
	audit audit.Logger

	batches       chan []wcmp.Entry
	notifications chan Notification
	done          chan struct{}

	// mu is held shared by submitters and exclusively by Run when it marks
	// the loop stopped, so nothing is buffered after the final drain.
	mu      sync.RWMutex
	stopped bool
}

// New creates a loop for mgr. ports must be the table mgr was built with.
func New(mgr *wcmp.Manager, ports *port.Table, opts ...Option) *Loop {
	l := &Loop{
		mgr:           mgr,
		ports:         ports,
		batches:       make(chan []wcmp.Entry, 16),
		notifications: make(chan Notification, 64),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// SubmitBatch hands a batch of table entries to the loop. Once the loop
// has stopped it returns ErrStopped and the batch is not applied.
func (l *Loop) SubmitBatch(ctx context.Context, entries []wcmp.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.isStopping() {
		return ErrStopped
	}
	select {
	case l.batches <- entries:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitNotification hands a device notification to the loop.
func (l *Loop) SubmitNotification(ctx context.Context, n Notification) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.isStopping() {
		return ErrStopped
	}
	select {
	case l.notifications <- n:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) isStopping() bool {
	if l.stopped {
		return true
	}
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Run processes submitted work until ctx is canceled. Cancellation is only
// observed between units of work. Work accepted before the loop stopped is
// still applied before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	util.Info("orchestrator started")
	for {
		select {
		case <-ctx.Done():
			l.stop(context.WithoutCancel(ctx))
			util.Info("orchestrator stopped")
			return nil
		case batch := <-l.batches:
			l.handleBatch(ctx, batch)
		case n := <-l.notifications:
			l.handleNotification(ctx, n)
		}
	}
}

// stop refuses further submissions, waits for submitters already inside
// SubmitBatch or SubmitNotification, then applies whatever they buffered.
func (l *Loop) stop(ctx context.Context) {
	close(l.done)
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	for {
		select {
		case batch := <-l.batches:
			l.handleBatch(ctx, batch)
		case n := <-l.notifications:
			l.handleNotification(ctx, n)
		default:
			return
		}
	}
}

// handleBatch applies entries in order. A batch is one unit of work: it was
// already popped from the table, so it is applied in full even when ctx is
// canceled partway through.
func (l *Loop) handleBatch(ctx context.Context, entries []wcmp.Entry) {
	ctx = context.WithoutCancel(ctx)
	for _, e := range entries {
		op, groupID := l.classify(e)
		before := l.mgr.CriticalEvents()
		start := time.Now()

		resp := l.mgr.Process(ctx, e)

		if l.sink != nil {
			if err := l.sink.Publish(ctx, resp); err != nil {
				util.WithOperation(e.Op).WithField("key", e.Key).Errorf("publishing response: %v", err)
			}
		}
		if l.audit != nil {
			var err error
			if !resp.OK() {
				err = errors.New(resp.Message)
			}
			ev := audit.NewEvent(op).
				WithGroup(groupID, e.Key, l.memberCount(groupID)).
				WithResult(string(resp.Code), err, l.mgr.CriticalEvents() > before).
				WithDuration(time.Since(start))
			l.logAudit(ev)
		}
	}
}

// classify names the audit operation of e before it is applied.
func (l *Loop) classify(e wcmp.Entry) (audit.EventType, string) {
	groupID, _ := wcmp.GroupIDOf(e.Key)
	if e.Op == wcmp.OpDel {
		return audit.EventTypeDelete, groupID
	}
	if _, ok := l.mgr.Group(groupID); ok && groupID != "" {
		return audit.EventTypeUpdate, groupID
	}
	return audit.EventTypeAdd, groupID
}

func (l *Loop) memberCount(groupID string) int {
	g, ok := l.mgr.Group(groupID)
	if !ok {
		return 0
	}
	return len(g.Members)
}

func (l *Loop) handleNotification(ctx context.Context, n Notification) {
	ctx = context.WithoutCancel(ctx)
	if n.Op != port.NotificationPortStateChange {
		util.Debugf("ignoring %s notification", n.Op)
		return
	}
	changes, err := port.ParseStatusChange(n.Data)
	if err != nil {
		util.Errorf("dropping %s notification: %v", n.Op, err)
		return
	}
	for _, c := range changes {
		l.handlePortChange(ctx, c)
	}
}

func (l *Loop) handlePortChange(ctx context.Context, c port.StatusChange) {
	name, known := l.ports.NameByOID(c.PortID)
	var prev port.OperStatus
	if known {
		prev, _ = l.ports.OperStatus(name)
	}
	before := l.mgr.CriticalEvents()
	start := time.Now()

	err := l.mgr.HandlePortStatusChange(ctx, []port.StatusChange{c})
	if err != nil {
		util.WithPort(name).Errorf("handling %s: %v", c, err)
	}
	if l.audit == nil || !known || prev == c.State {
		return
	}

	var op audit.EventType
	switch c.State {
	case port.OperDown:
		op = audit.EventTypePrune
	case port.OperUp:
		op = audit.EventTypeRestore
	default:
		return
	}
	ev := audit.NewEvent(op).
		WithPort(name).
		WithResult(string(util.CodeOf(err)), err, l.mgr.CriticalEvents() > before).
		WithDuration(time.Since(start))
	l.logAudit(ev)
}

func (l *Loop) logAudit(ev *audit.Event) {
	if err := l.audit.Log(ev); err != nil {
		util.Warnf("audit: %v", err)
	}
}
