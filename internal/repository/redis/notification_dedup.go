package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "webhook:seen:"

// NotificationDeduper records delivered webhook messages with SET NX.
type NotificationDeduper struct {
	client *goredis.Client
}

func NewNotificationDeduper(client *goredis.Client) *NotificationDeduper {
	return &NotificationDeduper{client: client}
}

// FirstSeen reports whether key was not recorded before, recording it for ttl.
func (d *NotificationDeduper) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return d.client.SetNX(ctx, dedupKeyPrefix+key, 1, ttl).Result()
}
