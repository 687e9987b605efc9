package custom

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// hmgetBatch issues a batch of pipelined HMGETs per execute. Args:
// "batch=<n>" overrides the batch size (default 500).
type hmgetBatch struct {
	keys   []string
	fields []string
}

func (c *hmgetBatch) Init(args string) error {
	batch := 500
	for _, part := range strings.Fields(args) {
		k, v, ok := strings.Cut(part, "=")
		if !ok || k != "batch" {
			return fmt.Errorf("unrecognized argument %q", part)
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("batch must be a positive integer, got %q", v)
		}
		batch = n
	}

	c.keys = make([]string, batch)
	c.fields = make([]string, batch)
	for i := 0; i < batch; i++ {
		c.keys[i] = truncate("h:"+strconv.Itoa(i), 10)
		c.fields[i] = truncate("f:"+strconv.Itoa(i), 8)
	}
	return nil
}

func (c *hmgetBatch) Execute(ctx context.Context, rdb redis.UniversalClient) error {
	pipe := rdb.Pipeline()
	for i := range c.keys {
		pipe.HMGet(ctx, c.keys[i], c.fields[i])
	}
	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// setDefault writes a fixed key, the original default when no plug-in is
// configured.
type setDefault struct{}

func (c *setDefault) Init(string) error { return nil }

func (c *setDefault) Execute(ctx context.Context, rdb redis.UniversalClient) error {
	return rdb.Set(ctx, "default:key", "default:value", 0).Err()
}
