package redisqueue

import "github.com/redis/go-redis/v9"

// reclaimScript returns an expired claim to pending and clears its claim stamp, so
// a later sweep cannot mistake the old deadline for the next worker's.
// KEYS: processing, pending, task hash. ARGV: task id.
var reclaimScript = redis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 1 then
  redis.call('HDEL', KEYS[3], 'claimed_at', 'visible_at')
  redis.call('RPUSH', KEYS[2], ARGV[1])
  return 1
end
return 0
`)

// requeueDeadScript resets a dead task and returns it to pending.
// KEYS: dead, pending, task hash. ARGV: task id.
var requeueDeadScript = redis.NewScript(`
if redis.call('LREM', KEYS[1], 1, ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[3], 'deliveries', 0)
redis.call('HDEL', KEYS[3], 'last_error', 'failed_at', 'claimed_at', 'visible_at')
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)
