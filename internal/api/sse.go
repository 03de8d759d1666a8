package api

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/acms/internal/event"
)

// subscribeCourse forwards bus events of one course into a buffered channel.
// Slow clients lose events instead of blocking the bus. The returned func
// unsubscribes.
func (s *Server) subscribeCourse(courseID uint, topics []event.EventType, size int) (<-chan event.Event, func()) {
	ch := make(chan event.Event, size)
	forward := func(e event.Event) {
		if e.CourseID != courseID {
			return
		}
		select {
		case ch <- e:
		default:
		}
	}
	ids := make(map[event.EventType]string, len(topics))
	for _, t := range topics {
		ids[t] = s.Bus.Subscribe(t, forward)
	}
	return ch, func() {
		for t, id := range ids {
			s.Bus.Unsubscribe(t, id)
		}
	}
}

// SSEHandler 推送单个课程的实时事件
func (s *Server) SSEHandler(c *gin.Context) {
	courseID, ok := paramID(c, "id")
	if !ok {
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	events, unsubscribe := s.subscribeCourse(courseID, event.AllTypes, 32)
	defer unsubscribe()

	c.SSEvent("message", "connected")
	c.Writer.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case evt := <-events:
			data, err := json.Marshal(evt.Payload)
			if err != nil {
				s.log.Warn("sse marshal failed", "error", err)
				continue
			}
			// 事件名即为 Topic
			c.SSEvent(string(evt.Type), string(data))
			c.Writer.Flush()
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
