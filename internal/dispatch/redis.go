package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/logcompliance/internal/platform/logger"
	"github.com/yungbote/logcompliance/internal/workflow"
)

const defaultQueueKey = "logc:continuations"

// RedisDispatcher pushes continuations onto a redis list.
type RedisDispatcher struct {
	rdb   goredis.UniversalClient
	queue string
}

func NewRedisDispatcher(rdb goredis.UniversalClient, queue string) *RedisDispatcher {
	if strings.TrimSpace(queue) == "" {
		queue = defaultQueueKey
	}
	return &RedisDispatcher{rdb: rdb, queue: queue}
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, c workflow.Continuation) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, d.queue, raw).Err()
}

// RedisConsumer pops continuations and hands them to the controller. An item stays on
// the processing list until its invocation returns, so a crashed consumer's items are
// moved back by Recover and delivered again.
type RedisConsumer struct {
	log        *logger.Logger
	rdb        goredis.UniversalClient
	handler    Handler
	queue      string
	processing string
	workers    int
	block      time.Duration
}

type RedisConsumerOptions struct {
	Queue   string
	Workers int
	// Block is how long one pop waits for an item before checking for shutdown.
	Block time.Duration
}

func NewRedisConsumer(log *logger.Logger, rdb goredis.UniversalClient, handler Handler, opts RedisConsumerOptions) (*RedisConsumer, error) {
	if rdb == nil || handler == nil {
		return nil, fmt.Errorf("redis consumer missing deps")
	}
	if log == nil {
		log = logger.NewNop()
	}
	queue := strings.TrimSpace(opts.Queue)
	if queue == "" {
		queue = defaultQueueKey
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	block := opts.Block
	if block <= 0 {
		block = 5 * time.Second
	}
	return &RedisConsumer{
		log:        log.With("service", "RedisConsumer"),
		rdb:        rdb,
		handler:    handler,
		queue:      queue,
		processing: queue + ":processing",
		workers:    workers,
		block:      block,
	}, nil
}

// Recover moves items left on the processing list back onto the queue.
func (c *RedisConsumer) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := c.rdb.LMove(ctx, c.processing, c.queue, "RIGHT", "RIGHT").Err()
		if errors.Is(err, goredis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// Run consumes until ctx is cancelled.
func (c *RedisConsumer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.workers; i++ {
		g.Go(func() error { return c.loop(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *RedisConsumer) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := c.rdb.BLMove(ctx, c.queue, c.processing, "RIGHT", "LEFT", c.block).Result()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("Redis pop failed", "queue", c.queue, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		c.deliver(ctx, raw)
	}
}

func (c *RedisConsumer) deliver(ctx context.Context, raw string) {
	// Ack with a fresh context so shutdown does not strand a finished item.
	defer func() {
		ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := c.rdb.LRem(ackCtx, c.processing, 1, raw).Err(); err != nil {
			c.log.Warn("Redis ack failed", "queue", c.processing, "error", err)
		}
	}()

	var cont workflow.Continuation
	if err := json.Unmarshal([]byte(raw), &cont); err != nil {
		c.log.Error("Dropping undecodable continuation", "queue", c.queue, "error", err)
		return
	}
	// Shutdown must not fail a phase in flight; it would be acked and never recovered.
	res := c.handler.Handle(context.WithoutCancel(ctx), cont.Trigger())
	c.log.Info("Continuation delivered", "job_id", cont.JobID, "phase", int(cont.Phase), "status", res.Status, "state", res.State)
}
