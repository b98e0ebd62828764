package redisqueue

// Key layout, all under the configured prefix:
//
//	{prefix}:queue:pending     list of task ids waiting for a worker
//	{prefix}:queue:processing  list of task ids claimed by a worker
//	{prefix}:queue:dead        list of task ids that exhausted their deliveries
//	{prefix}:task:{id}         hash with job_id, deliveries, claimed_at, visible_at, last_error, failed_at
type keys struct {
	prefix string
}

func (k keys) pending() string    { return k.prefix + ":queue:pending" }
func (k keys) processing() string { return k.prefix + ":queue:processing" }
func (k keys) dead() string       { return k.prefix + ":queue:dead" }
func (k keys) task(id string) string {
	return k.prefix + ":task:" + id
}

// Task hash fields.
const (
	fieldJobID      = "job_id"
	fieldDeliveries = "deliveries"
	fieldClaimedAt  = "claimed_at"
	fieldVisibleAt  = "visible_at"
	fieldLastError  = "last_error"
	fieldFailedAt   = "failed_at"
	fieldEnqueuedAt = "enqueued_at"
)
