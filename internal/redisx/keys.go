package redisx

import "time"

const (
	// ChannelAdmin carries push events for every staff session subscribed to
	// the admin stream.
	ChannelAdmin = "notify:admin"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var TTLDedup = 48 * time.Hour
