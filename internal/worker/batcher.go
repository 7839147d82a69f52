package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// Queue is the list a Batcher consumes from and requeues to.
type Queue interface {
	// Pop blocks up to timeout. It returns redis.Nil when the queue stayed empty.
	Pop(ctx context.Context, timeout time.Duration) (string, error)
	Push(ctx context.Context, items ...string) error
}

// RedisQueue is a Queue on a Redis list.
type RedisQueue struct {
	rdb  redis.Cmdable
	name string
}

// NewRedisQueue creates a RedisQueue on the given list key.
func NewRedisQueue(rdb redis.Cmdable, name string) *RedisQueue {
	return &RedisQueue{rdb: rdb, name: name}
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.name).Result()
	if err != nil {
		return "", err
	}
	if len(res) < 2 {
		return "", redis.Nil
	}
	return res[1], nil
}

// Push uses a pipeline so a requeued batch goes back in one round trip.
func (q *RedisQueue) Push(ctx context.Context, items ...string) error {
	pipe := q.rdb.Pipeline()
	for _, it := range items {
		pipe.RPush(ctx, q.name, it)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Sink persists decoded queue items.
type Sink[T any] interface {
	// Bulk persists the whole batch in one round trip.
	Bulk(ctx context.Context, batch []T) error
	// Single persists one item. Used to isolate failures when Bulk fails.
	Single(ctx context.Context, item T) error
	// Valid reports whether an item can ever be persisted. Invalid items are
	// dropped instead of requeued.
	Valid(item T) bool
}

// Batcher drains a queue into a Sink in batches of BatchSize or every BatchTimeout,
// whichever comes first. Failed items go back to the queue.
type Batcher[T any] struct {
	name  string
	queue Queue
	sink  Sink[T]
	log   zerolog.Logger

	size    int
	timeout time.Duration
	poll    time.Duration
	backoff time.Duration
}

// NewBatcher creates a Batcher. name identifies it in logs.
func NewBatcher[T any](name string, queue Queue, sink Sink[T], log zerolog.Logger) *Batcher[T] {
	return &Batcher[T]{
		name:    name,
		queue:   queue,
		sink:    sink,
		log:     log.With().Str("component", name).Logger(),
		size:    BatchSize,
		timeout: BatchTimeout,
		poll:    PollTimeout,
		backoff: 2 * time.Second,
	}
}

// Start runs the consume loop until ctx is cancelled, then flushes what it holds.
// Call in a goroutine.
func (b *Batcher[T]) Start(ctx context.Context) {
	b.log.Info().Msg("Worker started")

	buffer := make([]T, 0, b.size)
	lastFlush := time.Now()

	for {
		// 1. Flush on size or age.
		if len(buffer) > 0 && (len(buffer) >= b.size || time.Since(lastFlush) >= b.timeout) {
			b.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		// 2. Graceful shutdown.
		select {
		case <-ctx.Done():
			b.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch. Returns immediately if data exists.
		raw, err := b.queue.Pop(ctx, b.poll)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			b.log.Error().Err(err).Msg("Queue error, backing off")
			b.sleep(ctx, b.backoff)
			continue
		}

		// 4. Decode. Malformed JSON can never succeed, so it is discarded.
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			b.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed payload")
			continue
		}
		buffer = append(buffer, item)
	}
}

// flushSafe attempts the bulk path, then isolates failures row by row and
// requeues what still fails.
func (b *Batcher[T]) flushSafe(ctx context.Context, batch []T) {
	valid := make([]T, 0, len(batch))
	for _, it := range batch {
		if b.sink.Valid(it) {
			valid = append(valid, it)
		}
	}
	if dropped := len(batch) - len(valid); dropped > 0 {
		b.log.Warn().Int("count", dropped).Msg("Dropping items with invalid identifiers")
	}
	if len(valid) == 0 {
		return
	}

	err := b.sink.Bulk(ctx, valid)
	if err == nil {
		b.log.Debug().Int("count", len(valid)).Msg("Batch flushed")
		return
	}
	b.log.Warn().Err(err).Int("count", len(valid)).Msg("Bulk write failed, attempting row-by-row recovery")

	var failed []T
	for _, it := range valid {
		if err := b.sink.Single(ctx, it); err != nil {
			b.log.Error().Err(err).Msg("Single write failed, requeueing")
			failed = append(failed, it)
		}
	}
	if len(failed) > 0 {
		b.requeue(ctx, failed)
	}
}

func (b *Batcher[T]) requeue(ctx context.Context, items []T) {
	raw := make([]string, 0, len(items))
	for _, it := range items {
		data, err := json.Marshal(it)
		if err != nil {
			continue
		}
		raw = append(raw, string(data))
	}

	// A cancelled worker context must not lose the items.
	if err := b.queue.Push(context.WithoutCancel(ctx), raw...); err != nil {
		b.log.Error().Err(err).Int("count", len(raw)).Msg("CRITICAL: Failed to requeue items. Data loss occurred.")
		return
	}
	b.log.Info().Int("count", len(raw)).Msg("Requeued failed items")
	// Avoid thrashing while the database is down.
	b.sleep(ctx, b.backoff)
}

func (b *Batcher[T]) shutdown(buffer []T) {
	b.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	// Give it 5 seconds to flush to DB
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		b.flushSafe(shutdownCtx, buffer)
	}
	b.log.Info().Msg("Worker stopped")
}

func (b *Batcher[T]) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
