package event

import (
	"sync"

	"github.com/google/uuid"
)

// EventType 定义事件类型
type EventType string

const (
	EventTaskLog        EventType = "task_log"
	EventEpisodeUpdated EventType = "episode_updated"
	EventCourseUpdated  EventType = "course_updated"
	EventRunProgress    EventType = "run_progress"
)

// AllTypes 实时推送订阅的全部事件
var AllTypes = []EventType{EventTaskLog, EventEpisodeUpdated, EventCourseUpdated, EventRunProgress}

// Event 代表一个系统事件。CourseID 为 0 表示全局事件
type Event struct {
	Type     EventType   `json:"type"`
	CourseID uint        `json:"course_id"`
	Payload  interface{} `json:"payload"`
	Origin   string      `json:"origin,omitempty"`
}

// Handler 处理事件的函数签名。Handler 不能阻塞，发布是同步的
type Handler func(event Event)

// Bus 事件总线接口
type Bus interface {
	Subscribe(topic EventType, handler Handler) string // 返回 Subscription ID
	Unsubscribe(topic EventType, subID string)
	Publish(evt Event)
}

// HandlerWrapper 包装 Handler 以便识别
type HandlerWrapper struct {
	ID      string
	Handler Handler
}

// InMemoryBus 简单的内存事件总线实现
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]HandlerWrapper
	// 发布后的额外出口 (Redis 转发)
	sinks []func(Event)
}

func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[EventType][]HandlerWrapper),
	}
}

func (b *InMemoryBus) Subscribe(topic EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.New().String()
	wrapper := HandlerWrapper{ID: id, Handler: handler}
	b.handlers[topic] = append(b.handlers[topic], wrapper)
	return id
}

func (b *InMemoryBus) Unsubscribe(topic EventType, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wrappers := b.handlers[topic]
	for i, w := range wrappers {
		if w.ID == subID {
			// copy so a concurrent Publish holding the old slice is unaffected
			next := make([]HandlerWrapper, 0, len(wrappers)-1)
			next = append(next, wrappers[:i]...)
			next = append(next, wrappers[i+1:]...)
			b.handlers[topic] = next
			break
		}
	}
}

func (b *InMemoryBus) Publish(evt Event) {
	b.deliver(evt)

	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, s := range sinks {
		s(evt)
	}
}

// deliver hands the event to local subscribers only.
func (b *InMemoryBus) deliver(evt Event) {
	b.mu.RLock()
	wrappers := b.handlers[evt.Type]
	b.mu.RUnlock()

	for _, w := range wrappers {
		w.Handler(evt)
	}
}

// AddSink registers a hook that sees every locally published event.
func (b *InMemoryBus) AddSink(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, fn)
}
