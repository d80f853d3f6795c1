package orch

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/wcmpd/pkg/sonic"
	"github.com/newtron-network/wcmpd/pkg/util"
	"github.com/newtron-network/wcmpd/pkg/wcmp"
)

// pollInterval bounds how long a missed wakeup can delay a table entry.
const pollInterval = time.Second

// ErrStreamClosed is returned by PumpNotifications when the notification
// subscription ends while the daemon is still running.
var ErrStreamClosed = errors.New("notification stream closed")

// TableSource is the consumer side of the request table.
type TableSource interface {
	Pops(ctx context.Context) ([]sonic.KeyOpFields, error)
}

// toEntries keeps the entries of the WCMP group table. Other tables share
// the APPL_DB table and belong to other orchestrators.
func toEntries(popped []sonic.KeyOpFields) []wcmp.Entry {
	var out []wcmp.Entry
	for _, p := range popped {
		if _, err := wcmp.GroupIDOf(p.Key); err != nil {
			util.Debugf("skipping foreign key %s", p.Key)
			continue
		}
		e := wcmp.Entry{Key: p.Key, Op: p.Op}
		for _, fv := range p.Fields {
			e.Fields = append(e.Fields, wcmp.FieldValue{Field: fv.Field, Value: fv.Value})
		}
		out = append(out, e)
	}
	return out
}

// PumpTable pops the request table whenever wakeups fires, and at least
// every second, and submits the entries to l. It returns when ctx is done.
func PumpTable(ctx context.Context, src TableSource, wakeups <-chan *redis.Message, l *Loop) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		popped, err := src.Pops(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			util.Errorf("reading request table: %v", err)
		}
		// Popped entries are gone from the table; hand them over even when
		// ctx is canceled. SubmitBatch still returns once the loop stops.
		entries := toEntries(popped)
		if err := l.SubmitBatch(context.WithoutCancel(ctx), entries); err != nil {
			util.Errorf("dropping %d popped entries: %v", len(entries), err)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-wakeups:
		case <-ticker.C:
		}
	}
}

// PumpNotifications forwards device notifications to l until ctx is done.
func PumpNotifications(ctx context.Context, stream <-chan sonic.Notification, l *Loop) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-stream:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrStreamClosed
			}
			if err := l.SubmitNotification(ctx, Notification{Op: n.Op, Data: n.Data}); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// Publisher adapts a sonic.ResponsePublisher to ResponseSink.
type Publisher struct {
	*sonic.ResponsePublisher
}

// Publish implements ResponseSink.
func (p Publisher) Publish(ctx context.Context, r wcmp.Response) error {
	out := sonic.Response{Key: r.Key, Op: r.Op, Code: string(r.Code), Message: r.Message}
	for _, fv := range r.Fields {
		out.Fields = append(out.Fields, sonic.FieldValue{Field: fv.Field, Value: fv.Value})
	}
	return p.ResponsePublisher.Publish(ctx, out)
}
