package subagent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"massgen.dev/coordination/agent"
)

// RedisResultQueue is a ResultQueue backed by a Redis list per parent agent,
// letting background subagent results survive process restarts and be
// drained by a different process than the one that spawned them (e.g. a
// Temporal worker recovering after a crash).
type RedisResultQueue struct {
	client *redis.Client
	prefix string
}

// NewRedisResultQueue constructs a RedisResultQueue. keyPrefix namespaces
// the backing Redis keys (e.g. "massgen:subagents:<run_id>"); each parent
// agent gets its own list at "<keyPrefix>:<parent_agent_id>".
func NewRedisResultQueue(client *redis.Client, keyPrefix string) *RedisResultQueue {
	return &RedisResultQueue{client: client, prefix: keyPrefix}
}

func (q *RedisResultQueue) key(parentAgentID agent.Ident) string {
	return fmt.Sprintf("%s:%s", q.prefix, parentAgentID)
}

// Push appends res to parentAgentID's Redis list. Marshal and Redis errors
// are swallowed and the result is dropped, so a malformed result never
// blocks the background goroutine that produced it; ResultQueue has no
// error return.
func (q *RedisResultQueue) Push(parentAgentID agent.Ident, res Result) {
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	ctx := context.Background()
	_ = q.client.RPush(ctx, q.key(parentAgentID), data).Err()
}

// Drain atomically empties and returns parentAgentID's pending results via
// a Lua script, so a concurrent SubagentCompleteHook invocation never
// observes a partial drain.
func (q *RedisResultQueue) Drain(parentAgentID agent.Ident) []Result {
	ctx := context.Background()
	key := q.key(parentAgentID)
	items, err := q.client.Eval(ctx, drainScript, []string{key}).StringSlice()
	if err != nil {
		return nil
	}
	out := make([]Result, 0, len(items))
	for _, raw := range items {
		var r Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out
}

// drainScript reads and deletes a list's contents as one atomic operation.
const drainScript = `
local vals = redis.call("LRANGE", KEYS[1], 0, -1)
redis.call("DEL", KEYS[1])
return vals
`
