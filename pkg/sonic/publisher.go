package sonic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Response is the outcome of one consumed entry.
type Response struct {
	Key     string
	Op      string
	Code    string
	Message string
	Fields  []FieldValue
}

// successCode is the code of an applied entry.
const successCode = "SWSS_RC_SUCCESS"

// ResponsePublisher reports the outcome of every consumed entry. The
// applied state of each key is mirrored into APPL_STATE_DB and a
// notification is published on APPL_DB_<TABLE>_RESPONSE_CHANNEL.
type ResponsePublisher struct {
	appl  *redis.Client
	state *redis.Client
	keys  tableKeys
}

// NewResponsePublisher creates a publisher for table. appl is the APPL_DB
// client carrying the notification channel, state the APPL_STATE_DB client.
func NewResponsePublisher(appl, state *redis.Client, table string) *ResponsePublisher {
	return &ResponsePublisher{appl: appl, state: state, keys: tableKeys{name: table}}
}

// Channel returns the notification channel name.
func (p *ResponsePublisher) Channel() string {
	return "APPL_DB_" + p.keys.name + "_RESPONSE_CHANNEL"
}

// encodeResponse renders a response notification:
// [code, key, "err_str", message, field, value, ...].
func encodeResponse(r Response) (string, error) {
	msg := make([]string, 0, 4+2*len(r.Fields))
	msg = append(msg, r.Code, r.Key, "err_str", r.Message)
	for _, fv := range r.Fields {
		msg = append(msg, fv.Field, fv.Value)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Publish records r. Only successful entries change APPL_STATE_DB.
func (p *ResponsePublisher) Publish(ctx context.Context, r Response) error {
	if r.Code == successCode {
		key := p.keys.tablePrefix() + r.Key
		pipe := p.state.TxPipeline()
		pipe.Del(ctx, key)
		if r.Op == OpSet {
			args := make([]interface{}, 0, 2*len(r.Fields))
			for _, fv := range r.Fields {
				args = append(args, fv.Field, fv.Value)
			}
			if len(args) > 0 {
				pipe.HSet(ctx, key, args...)
			}
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("writing applied state of %s: %w", key, err)
		}
	}

	payload, err := encodeResponse(r)
	if err != nil {
		return fmt.Errorf("encoding response for %s: %w", r.Key, err)
	}
	if err := p.appl.Publish(ctx, p.Channel(), payload).Err(); err != nil {
		return fmt.Errorf("publishing response for %s: %w", r.Key, err)
	}
	return nil
}
