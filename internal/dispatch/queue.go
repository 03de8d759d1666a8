package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pokerjest/acms/internal/config"
	goredis "github.com/redis/go-redis/v9"
)

// Envelope is what travels over the queue.
type Envelope struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Queue 分布式队列抽象。Available 必须在有限时间内返回
type Queue interface {
	Available(ctx context.Context) bool
	Enqueue(ctx context.Context, env Envelope) error
}

// RedisQueue is a list-based queue (LPUSH / BRPOP). Workers announce
// themselves in a sorted set scored by their last heartbeat.
type RedisQueue struct {
	rdb          *goredis.Client
	key          string
	probeTimeout time.Duration
	workerTTL    time.Duration
}

func NewRedisQueue(rdb *goredis.Client, cfg config.RedisConfig) *RedisQueue {
	q := &RedisQueue{
		rdb:          rdb,
		key:          cfg.Queue,
		probeTimeout: cfg.ProbeTimeout,
		workerTTL:    cfg.WorkerTTL,
	}
	if q.key == "" {
		q.key = "acms:tasks"
	}
	if q.probeTimeout <= 0 {
		q.probeTimeout = 800 * time.Millisecond
	}
	if q.workerTTL <= 0 {
		q.workerTTL = 30 * time.Second
	}
	return q
}

func (q *RedisQueue) workersKey() string { return q.key + ":workers" }

// Available pings the broker and checks that at least one worker sent a
// heartbeat within the TTL.
func (q *RedisQueue) Available(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, q.probeTimeout)
	defer cancel()

	if err := q.rdb.Ping(pctx).Err(); err != nil {
		return false
	}
	n, err := q.LiveWorkers(pctx)
	return err == nil && n > 0
}

func (q *RedisQueue) LiveWorkers(ctx context.Context) (int64, error) {
	since := strconv.FormatInt(time.Now().Add(-q.workerTTL).Unix(), 10)
	return q.rdb.ZCount(ctx, q.workersKey(), since, "+inf").Result()
}

func (q *RedisQueue) Enqueue(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.key, raw).Err()
}

// Dequeue blocks up to timeout. It returns nil, nil when nothing arrived.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Envelope, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply: %v", res)
	}
	var env Envelope
	if err := json.Unmarshal([]byte(res[1]), &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &env, nil
}

// Heartbeat marks workerID alive and drops workers that went silent.
func (q *RedisQueue) Heartbeat(ctx context.Context, workerID string) error {
	now := time.Now()
	pipe := q.rdb.TxPipeline()
	pipe.ZAdd(ctx, q.workersKey(), goredis.Z{Score: float64(now.Unix()), Member: workerID})
	pipe.ZRemRangeByScore(ctx, q.workersKey(), "-inf", strconv.FormatInt(now.Add(-2*q.workerTTL).Unix(), 10))
	_, err := pipe.Exec(ctx)
	return err
}

func (q *RedisQueue) Leave(ctx context.Context, workerID string) error {
	return q.rdb.ZRem(ctx, q.workersKey(), workerID).Err()
}
