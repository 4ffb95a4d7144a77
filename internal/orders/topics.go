package orders

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusUpdated = "order.status.updated"
	TopicOrderAssigned      = "order.assigned"
	TopicOrderDeleted       = "order.deleted"
)

// Partition key = order id, so every event of one order stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
