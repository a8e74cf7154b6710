package connection

import (
	"context"
	"fmt"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	"github.com/redis/go-redis/v9"
)

// KVManager is the connection manager for the Redis client backing the
// task KV tier.
type KVManager = Manager[*redis.Client]

// NewKVManager builds a KVManager dialing url on each (re)connect.
func NewKVManager(url string) *KVManager {
	factory := func(ctx context.Context) (*redis.Client, error) {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return client, nil
	}
	ping := func(ctx context.Context, conn *redis.Client) error {
		return conn.Ping(ctx).Err()
	}
	closeFn := func(conn *redis.Client) error {
		return conn.Close()
	}
	return New(factory, ping, closeFn)
}

// DocManager is the connection manager for the kivik client backing the
// document tier.
type DocManager = Manager[*kivik.Client]

// NewDocManager builds a DocManager dialing url on each (re)connect.
func NewDocManager(url string) *DocManager {
	factory := func(ctx context.Context) (*kivik.Client, error) {
		client, err := kivik.New("couch", url)
		if err != nil {
			return nil, fmt.Errorf("create couchdb client: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := client.Version(pingCtx); err != nil {
			return nil, fmt.Errorf("connect to couchdb: %w", err)
		}
		return client, nil
	}
	ping := func(ctx context.Context, conn *kivik.Client) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		_, err := conn.Version(pingCtx)
		return err
	}
	closeFn := func(conn *kivik.Client) error {
		return conn.Close()
	}
	return New(factory, ping, closeFn)
}
