package redis

// Key prefixes for primary entity storage.
const (
	prefixWebhook  = "herald:wh:"
	prefixDelivery = "herald:del:"
)

// Key prefixes for sorted set indexes.
const (
	zWebhookOrg  = "herald:z:wh:org:"  // + organization ID
	zDeliveryOrg = "herald:z:del:org:" // + organization ID
	zDeliveryWh  = "herald:z:del:wh:"  // + webhook ID
	zDeliveryAll = "herald:z:del:all"
	zDeliveryDue = "herald:z:del:retry" // scored by next_attempt_at
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
