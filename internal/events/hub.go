// Package events fans progress events out to connected UI clients.
package events

import (
	"sync"

	"clipy/host/internal/model"

	"github.com/google/uuid"
)

const (
	TopicDownloads = "downloads"
	TopicExports   = "exports"
)

type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[string]chan model.DownloadEvent
}

func NewHub() *Hub {
	return &Hub{
		subs: map[string]map[string]chan model.DownloadEvent{},
	}
}

func (h *Hub) Subscribe(topic string, buf int) (string, <-chan model.DownloadEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subID := uuid.NewString()
	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = map[string]chan model.DownloadEvent{}
	}
	ch := make(chan model.DownloadEvent, buf)
	h.subs[topic][subID] = ch

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		topicSubs, ok := h.subs[topic]
		if !ok {
			return
		}
		c, ok := topicSubs[subID]
		if !ok {
			return
		}
		delete(topicSubs, subID)
		close(c)
		if len(topicSubs) == 0 {
			delete(h.subs, topic)
		}
	}
	return subID, ch, unsubscribe
}

func (h *Hub) Publish(topic string, evt model.DownloadEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	topicSubs, ok := h.subs[topic]
	if !ok {
		return
	}
	for _, ch := range topicSubs {
		select {
		case ch <- evt:
		default:
			// Drop stale subscribers to keep producer non-blocking.
		}
	}
}
