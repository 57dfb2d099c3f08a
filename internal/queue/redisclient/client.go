package redisclient

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	redisdb *redis.Client
}

// NewFromURL builds a Client from a redis:// connection string, used when
// the coordination-store address is configured as a single URL rather
// than discrete host/password/db fields.
func NewFromURL(rawURL string) (*Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	return &Client{redisdb: redis.NewClient(opts)}, nil
}

// this ping function checks redis connectivity

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

// this closes the client

func (c *Client) Close() error {
	return c.redisdb.Close()
}

//  this exposes the redis client for later days (producer/ worker flow)

func (c *Client) Raw() *redis.Client {
	return c.redisdb
}
