package client

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures one connection-sized handle to the datastore.
type Options struct {
	Host            string
	Port            int
	TLS             bool
	Cluster         bool
	ReadFromReplica bool
	ConnectTimeout  time.Duration // bounds establishment; zero uses the driver default
	RequestTimeout  time.Duration // bounds one in-flight call; zero uses the driver default
}

// Client is a single live handle lent to one worker call at a time.
type Client interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) error
	// Raw exposes the underlying driver client for custom commands.
	Raw() redis.UniversalClient
	Close() error
}

type redisClient struct {
	rdb redis.UniversalClient
}

// Connect builds a handle and verifies it with a PING bounded by the
// connection timeout.
func Connect(ctx context.Context, o Options) (Client, error) {
	addr := net.JoinHostPort(o.Host, strconv.Itoa(o.Port))

	var tlsConfig *tls.Config
	if o.TLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	var rdb redis.UniversalClient
	if o.Cluster {
		rdb = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:         []string{addr},
			ReadOnly:      o.ReadFromReplica,
			RouteRandomly: o.ReadFromReplica,
			DialTimeout:   o.ConnectTimeout,
			ReadTimeout:   o.RequestTimeout,
			WriteTimeout:  o.RequestTimeout,
			PoolSize:      1,
			TLSConfig:     tlsConfig,
		})
	} else {
		rdb = redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  o.ConnectTimeout,
			ReadTimeout:  o.RequestTimeout,
			WriteTimeout: o.RequestTimeout,
			PoolSize:     1,
			TLSConfig:    tlsConfig,
		})
	}

	pingCtx := ctx
	if o.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, o.ConnectTimeout)
		defer cancel()
	}
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &redisClient{rdb: rdb}, nil
}

func (c *redisClient) Set(ctx context.Context, key, value string) error {
	return c.rdb.Set(ctx, key, value, 0).Err()
}

func (c *redisClient) Get(ctx context.Context, key string) error {
	err := c.rdb.Get(ctx, key).Err()
	if errors.Is(err, redis.Nil) {
		// A miss is a completed request, not a failure.
		return nil
	}
	return err
}

func (c *redisClient) Raw() redis.UniversalClient { return c.rdb }

func (c *redisClient) Close() error { return c.rdb.Close() }
