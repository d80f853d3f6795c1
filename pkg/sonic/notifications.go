package sonic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/wcmpd/pkg/util"
)

// NotificationChannel is the ASIC_DB channel syncd publishes SAI
// notifications on.
const NotificationChannel = "NOTIFICATIONS"

// Notification is one decoded SAI notification.
type Notification struct {
	Op   string
	Data string
}

// decodeNotification parses the sairedis wire format
// ["<op>","<data>", field, value, ...].
func decodeNotification(payload string) (Notification, error) {
	var parts []string
	if err := json.Unmarshal([]byte(payload), &parts); err != nil {
		return Notification{}, fmt.Errorf("decoding notification: %w", err)
	}
	if len(parts) < 2 {
		return Notification{}, fmt.Errorf("notification has %d elements, want at least 2", len(parts))
	}
	return Notification{Op: parts[0], Data: parts[1]}, nil
}

// Notifications is a subscription to the ASIC_DB notification channel.
type Notifications struct {
	pubsub *redis.PubSub
}

// SubscribeNotifications subscribes to NotificationChannel on client, which
// must be connected to ASIC_DB.
func SubscribeNotifications(ctx context.Context, client *redis.Client) (*Notifications, error) {
	ps := client.Subscribe(ctx, NotificationChannel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", NotificationChannel, err)
	}
	return &Notifications{pubsub: ps}, nil
}

// Stream decodes notifications until ctx is done or the subscription is
// closed. Malformed messages are logged and dropped.
func (n *Notifications) Stream(ctx context.Context) <-chan Notification {
	out := make(chan Notification)
	msgs := n.pubsub.Channel()
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				note, err := decodeNotification(m.Payload)
				if err != nil {
					util.Warnf("dropping notification on %s: %v", m.Channel, err)
					continue
				}
				select {
				case out <- note:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Close ends the subscription.
func (n *Notifications) Close() error {
	return n.pubsub.Close()
}

// PublishNotification sends a notification the way syncd does. Used to
// simulate port events.
func PublishNotification(ctx context.Context, client *redis.Client, note Notification) error {
	b, err := json.Marshal([]string{note.Op, note.Data})
	if err != nil {
		return err
	}
	return client.Publish(ctx, NotificationChannel, string(b)).Err()
}
