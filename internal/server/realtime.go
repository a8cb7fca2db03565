package server

import (
	"context"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	RealtimeEventPageChanged = "page-change"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSourceBackend    = "notebook-backend"
	realtimeHeartbeatPeriod  = 25 * time.Second
	realtimeBufferSize       = 16
)

type RealtimeMessage struct {
	UserID    int64
	EventType string
	PageIDs   []int64
	Timestamp time.Time
}

// RealtimeDispatcher fans page changes out to the event streams of the owning user.
// Slow subscribers drop messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]map[int64]*realtimeSubscriber),
		bufferSize:  realtimeBufferSize,
		clock:       time.Now,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID int64) (<-chan RealtimeMessage, func()) {
	if userID <= 0 {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(userID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID <= 0 || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.UserID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// PageChanged publishes a page-change event with the distinct page ids in ascending order.
func (d *RealtimeDispatcher) PageChanged(userID int64, pageIDs ...int64) {
	ids := collectPageIDs(pageIDs)
	if len(ids) == 0 {
		return
	}
	d.Publish(RealtimeMessage{
		UserID:    userID,
		EventType: RealtimeEventPageChanged,
		PageIDs:   ids,
		Timestamp: d.clock().UTC(),
	})
}

func collectPageIDs(pageIDs []int64) []int64 {
	ids := make([]int64, 0, len(pageIDs))
	for _, id := range pageIDs {
		if id > 0 {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(userID int64, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(userID int64, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}

type realtimeEventPayload struct {
	PageIDs   []int64 `json:"pageIds,omitempty"`
	Timestamp string  `json:"timestamp"`
	Source    string  `json:"source"`
}

func (h *httpHandler) handleRealtimeStream(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), userID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(realtimeHeartbeatPeriod)
	defer heartbeat.Stop()

	h.logger.Debug("realtime stream opened", zap.Int64("user_id", userID))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				PageIDs:   message.PageIDs,
				Timestamp: message.Timestamp.Format(time.RFC3339Nano),
				Source:    realtimeSourceBackend,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{
				Timestamp: tick.UTC().Format(time.RFC3339Nano),
				Source:    realtimeSourceBackend,
			})
			return true
		}
	})
	h.logger.Debug("realtime stream closed", zap.Int64("user_id", userID))
}
