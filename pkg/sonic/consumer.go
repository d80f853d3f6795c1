package sonic

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// Table operations as they appear in popped entries.
const (
	OpSet = "SET"
	OpDel = "DEL"
)

// nullField marks an entry without fields (SONiC convention).
const nullField = "NULL"

// FieldValue is one field of a table entry.
type FieldValue struct {
	Field string
	Value string
}

// KeyOpFields is one popped table event.
type KeyOpFields struct {
	Key    string
	Op     string
	Fields []FieldValue
}

// popScript moves up to ARGV[1] pending keys from the staging area into the
// table and returns them as {key, op, {field, value, ...}}. A key that was
// deleted and set again since the last pop yields a DEL followed by a SET.
var popScript = redis.NewScript(`
local ret = {}
local keys = redis.call('SPOP', KEYS[1], ARGV[1])
for i = 1, #keys do
	local key = keys[i]
	if redis.call('SREM', KEYS[4], key) == 1 then
		redis.call('DEL', KEYS[3] .. key)
		table.insert(ret, {key, 'DEL', {}})
	end
	local fvs = redis.call('HGETALL', KEYS[2] .. key)
	if #fvs > 0 then
		redis.call('DEL', KEYS[2] .. key)
		redis.call('HSET', KEYS[3] .. key, unpack(fvs))
		table.insert(ret, {key, 'SET', fvs})
	end
end
return ret
`)

// tableKeys names the Redis structures behind one APPL_DB state table.
type tableKeys struct {
	name string
}

func (t tableKeys) keySet() string        { return t.name + "_KEY_SET" }
func (t tableKeys) delSet() string        { return t.name + "_DEL_SET" }
func (t tableKeys) stagingPrefix() string { return "_" + t.name + colon }
func (t tableKeys) tablePrefix() string   { return t.name + colon }
func (t tableKeys) channel(db int) string { return fmt.Sprintf("%s_CHANNEL@%d", t.name, db) }

// ConsumerTable reads a SONiC producer/consumer state table in APPL_DB.
// Writers stage fields under _<TABLE>:<key>, add the key to
// <TABLE>_KEY_SET and publish on <TABLE>_CHANNEL@0.
type ConsumerTable struct {
	client *redis.Client
	keys   tableKeys

	// PopBatchSize bounds how many keys one Pops call takes.
	PopBatchSize int
}

// NewConsumerTable creates a consumer of table (for example "P4RT_TABLE").
func NewConsumerTable(client *redis.Client, table string) *ConsumerTable {
	return &ConsumerTable{client: client, keys: tableKeys{name: table}, PopBatchSize: 128}
}

// Subscribe opens the wakeup channel of the table. Writers publish on it
// after staging entries.
func (c *ConsumerTable) Subscribe(ctx context.Context) (*redis.PubSub, error) {
	ps := c.client.Subscribe(ctx, c.keys.channel(ApplDBID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", c.keys.channel(ApplDBID), err)
	}
	return ps, nil
}

// Pops takes the pending entries of the table.
func (c *ConsumerTable) Pops(ctx context.Context) ([]KeyOpFields, error) {
	keys := []string{c.keys.keySet(), c.keys.stagingPrefix(), c.keys.tablePrefix(), c.keys.delSet()}
	v, err := popScript.Run(ctx, c.client, keys, c.PopBatchSize).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("popping %s: %w", c.keys.name, err)
	}
	return parsePops(v)
}

// parsePops decodes the reply of popScript.
func parsePops(v interface{}) ([]KeyOpFields, error) {
	rows, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected pop reply %T", v)
	}
	out := make([]KeyOpFields, 0, len(rows))
	for i, r := range rows {
		row, ok := r.([]interface{})
		if !ok || len(row) != 3 {
			return nil, fmt.Errorf("pop reply row %d: unexpected shape", i)
		}
		key, ok1 := row[0].(string)
		op, ok2 := row[1].(string)
		fvs, ok3 := row[2].([]interface{})
		if !ok1 || !ok2 || !ok3 || len(fvs)%2 != 0 {
			return nil, fmt.Errorf("pop reply row %d: unexpected shape", i)
		}
		e := KeyOpFields{Key: key, Op: op}
		for j := 0; j < len(fvs); j += 2 {
			f, _ := fvs[j].(string)
			val, _ := fvs[j+1].(string)
			if f == nullField {
				continue
			}
			e.Fields = append(e.Fields, FieldValue{Field: f, Value: val})
		}
		out = append(out, e)
	}
	return out, nil
}

// ProducerTable writes entries for a ConsumerTable the way SONiC producers
// do. wcmpd uses it to inject requests and in tests.
type ProducerTable struct {
	client *redis.Client
	keys   tableKeys
}

// NewProducerTable creates a producer for table.
func NewProducerTable(client *redis.Client, table string) *ProducerTable {
	return &ProducerTable{client: client, keys: tableKeys{name: table}}
}

// Set stages fields for key and wakes the consumer.
func (p *ProducerTable) Set(ctx context.Context, key string, fields []FieldValue) error {
	args := make([]interface{}, 0, len(fields)*2)
	for _, fv := range fields {
		args = append(args, fv.Field, fv.Value)
	}
	pipe := p.client.TxPipeline()
	if len(args) == 0 {
		pipe.HSet(ctx, p.keys.stagingPrefix()+key, nullField, nullField)
	} else {
		pipe.HSet(ctx, p.keys.stagingPrefix()+key, args...)
	}
	pipe.SAdd(ctx, p.keys.keySet(), key)
	pipe.Publish(ctx, p.keys.channel(ApplDBID), "G")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("staging %s%s: %w", p.keys.tablePrefix(), key, err)
	}
	return nil
}

// Del stages the deletion of key and wakes the consumer.
func (p *ProducerTable) Del(ctx context.Context, key string) error {
	pipe := p.client.TxPipeline()
	pipe.Del(ctx, p.keys.stagingPrefix()+key)
	pipe.SAdd(ctx, p.keys.keySet(), key)
	pipe.SAdd(ctx, p.keys.delSet(), key)
	pipe.Publish(ctx, p.keys.channel(ApplDBID), "G")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("staging delete of %s%s: %w", p.keys.tablePrefix(), key, err)
	}
	return nil
}
