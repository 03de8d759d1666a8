package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pokerjest/acms/internal/logger"
	goredis "github.com/redis/go-redis/v9"
)

// RedisBridge 把本进程发布的事件转发到 Redis 频道，并把其他进程 (worker)
// 的事件回灌进本地总线，这样 API 进程的 SSE 客户端也能看到 worker 的日志。
type RedisBridge struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
	origin  string
	bus     *InMemoryBus
}

func NewRedisBridge(log *logger.Logger, rdb *goredis.Client, channel string, bus *InMemoryBus) *RedisBridge {
	return &RedisBridge{
		log:     log.With("component", "RedisBridge"),
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		bus:     bus,
	}
}

// Start subscribes to the channel and installs the outbound sink. Events
// carrying this process's origin are not delivered twice.
func (r *RedisBridge) Start(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	r.bus.AddSink(func(evt Event) {
		if evt.Origin != "" {
			return
		}
		evt.Origin = r.origin
		raw, err := json.Marshal(evt)
		if err != nil {
			r.log.Warn("marshal event", "error", err)
			return
		}
		if err := r.rdb.Publish(context.Background(), r.channel, raw).Err(); err != nil {
			r.log.Warn("redis publish failed", "error", err)
		}
	})

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
					r.log.Warn("bad redis event payload", "error", err)
					continue
				}
				if evt.Origin == r.origin {
					continue
				}
				r.bus.deliver(evt)
			}
		}
	}()
	return nil
}
