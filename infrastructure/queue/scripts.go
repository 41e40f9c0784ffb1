package queue

import "github.com/redis/go-redis/v9"

// priorityWeight keeps priority dominant over enqueue time in the wait set score
const priorityWeight = 10000000000000

// KEYS: job hash, wait, delayed
// ARGV: id, name, data, priority, max attempts, backoff ms, now ms, delay ms, wait score
var enqueueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'name', ARGV[2], 'data', ARGV[3], 'priority', ARGV[4],
  'max_attempts', ARGV[5], 'backoff_ms', ARGV[6], 'attempts_made', '0', 'created_at', ARGV[7],
  'progress', '0', 'state', 'waiting')
local delay = tonumber(ARGV[8])
if delay > 0 then
  redis.call('ZADD', KEYS[3], tonumber(ARGV[7]) + delay, ARGV[1])
  redis.call('HSET', KEYS[1], 'state', 'delayed')
else
  redis.call('ZADD', KEYS[2], ARGV[9], ARGV[1])
end
return 1
`)

// KEYS: wait, delayed, active
// ARGV: now ms, lease ms, job key prefix
var dequeueScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[2], id)
  local prio = tonumber(redis.call('HGET', ARGV[3] .. id, 'priority') or '0')
  redis.call('ZADD', KEYS[1], prio * 10000000000000 + now, id)
  redis.call('HSET', ARGV[3] .. id, 'state', 'waiting')
end
local head = redis.call('ZRANGE', KEYS[1], 0, 0)
if #head == 0 then
  return false
end
local id = head[1]
redis.call('ZREM', KEYS[1], id)
redis.call('ZADD', KEYS[3], now + tonumber(ARGV[2]), id)
local jobKey = ARGV[3] .. id
redis.call('HINCRBY', jobKey, 'attempts_made', 1)
redis.call('HSET', jobKey, 'state', 'active', 'processed_at', ARGV[1], 'lease_ms', ARGV[2])
return redis.call('HGETALL', jobKey)
`)

// KEYS: active, completed, job hash
// ARGV: id, now ms, result, keep count, job key prefix
var completeScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[3], 'state', 'completed', 'finished_at', ARGV[2], 'result', ARGV[3], 'progress', '100')
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
local keep = tonumber(ARGV[4])
if keep >= 0 then
  local excess = redis.call('ZCARD', KEYS[2]) - keep
  if excess > 0 then
    local old = redis.call('ZRANGE', KEYS[2], 0, excess - 1)
    for _, oid in ipairs(old) do
      redis.call('DEL', ARGV[5] .. oid)
    end
    redis.call('ZREMRANGEBYRANK', KEYS[2], 0, excess - 1)
  end
end
return 1
`)

// KEYS: active, delayed, failed, job hash
// ARGV: id, now ms, error, retryable flag, keep count, job key prefix
// Returns 1 when rescheduled, 0 when moved to failed, -1 when the job was not active.
var failScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return -1
end
local attempts = tonumber(redis.call('HGET', KEYS[4], 'attempts_made') or '0')
local maxAttempts = tonumber(redis.call('HGET', KEYS[4], 'max_attempts') or '1')
local backoff = tonumber(redis.call('HGET', KEYS[4], 'backoff_ms') or '0')
redis.call('HSET', KEYS[4], 'error', ARGV[3])
if ARGV[4] == '1' and attempts < maxAttempts then
  local delay = backoff * (2 ^ (attempts - 1))
  redis.call('ZADD', KEYS[2], tonumber(ARGV[2]) + delay, ARGV[1])
  redis.call('HSET', KEYS[4], 'state', 'delayed')
  return 1
end
redis.call('HSET', KEYS[4], 'state', 'failed', 'finished_at', ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
local keep = tonumber(ARGV[5])
if keep >= 0 then
  local excess = redis.call('ZCARD', KEYS[3]) - keep
  if excess > 0 then
    local old = redis.call('ZRANGE', KEYS[3], 0, excess - 1)
    for _, oid in ipairs(old) do
      redis.call('DEL', ARGV[6] .. oid)
    end
    redis.call('ZREMRANGEBYRANK', KEYS[3], 0, excess - 1)
  end
end
return 0
`)

// KEYS: active, wait
// ARGV: now ms, job key prefix
var recoverStalledScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  local prio = tonumber(redis.call('HGET', ARGV[2] .. id, 'priority') or '0')
  redis.call('ZADD', KEYS[2], prio * 10000000000000 + now, id)
  redis.call('HSET', ARGV[2] .. id, 'state', 'waiting')
end
return #ids
`)

// KEYS: finished set
// ARGV: cutoff ms, job key prefix
var pruneScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  redis.call('DEL', ARGV[2] .. id)
end
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
return #ids
`)

// KEYS: wait, delayed, job hash
// ARGV: id
var removeScript = redis.NewScript(`
local removed = redis.call('ZREM', KEYS[1], ARGV[1]) + redis.call('ZREM', KEYS[2], ARGV[1])
if removed > 0 then
  redis.call('DEL', KEYS[3])
end
return removed
`)

// KEYS: job hash, active
// ARGV: progress, now ms, id
// A progress report from the lease holder also renews the lease.
var progressScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'progress', ARGV[1])
if redis.call('ZSCORE', KEYS[2], ARGV[3]) then
  local lease = tonumber(redis.call('HGET', KEYS[1], 'lease_ms') or '0')
  redis.call('ZADD', KEYS[2], tonumber(ARGV[2]) + lease, ARGV[3])
end
return 1
`)

// KEYS: active, job hash
// ARGV: id, now ms
// Returns 0 when the job is no longer active.
var extendLeaseScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
local lease = tonumber(redis.call('HGET', KEYS[2], 'lease_ms') or '0')
redis.call('ZADD', KEYS[1], tonumber(ARGV[2]) + lease, ARGV[1])
return 1
`)
