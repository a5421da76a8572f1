package monitoring

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Database pings the events database.
func Database(db *gorm.DB) Check {
	return Check{
		Name: "database",
		Run: func(ctx context.Context) (string, error) {
			if db == nil {
				return "", errors.New("database not configured")
			}
			sqlDB, err := db.DB()
			if err != nil {
				return "", err
			}
			return "", sqlDB.PingContext(ctx)
		},
	}
}

// SubscriberCounter exposes live stream subscriptions.
type SubscriberCounter interface {
	Subscribers(stream string) int
}

// Realtime reports how many clients follow stream.
func Realtime(hub SubscriberCounter, stream string) Check {
	return Check{
		Name: "realtime",
		Run: func(context.Context) (string, error) {
			return fmt.Sprintf("%d subscribers on %s", hub.Subscribers(stream), stream), nil
		},
	}
}
