package events

import (
	"testing"
	"time"

	"clipy/host/internal/model"
)

func TestSubscribePublishUnsubscribe(t *testing.T) {
	h := NewHub()
	_, ch, unsubscribe := h.Subscribe(TopicDownloads, 4)

	h.Publish(TopicDownloads, model.DownloadEvent{Type: model.EventDownloadProgress, Seq: 1})

	select {
	case evt := <-ch:
		if evt.Seq != 1 {
			t.Fatalf("seq = %d, want 1", evt.Seq)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}

	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	h := NewHub()
	_, ch, unsubscribe := h.Subscribe(TopicDownloads, 1)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			h.Publish(TopicDownloads, model.DownloadEvent{Seq: int64(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a full subscriber")
	}
	// The subscriber still sees the earliest buffered event.
	if evt := <-ch; evt.Seq != 0 {
		t.Fatalf("seq = %d, want 0", evt.Seq)
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	h := NewHub()
	_, dl, unsub1 := h.Subscribe(TopicDownloads, 4)
	defer unsub1()
	_, ex, unsub2 := h.Subscribe(TopicExports, 4)
	defer unsub2()

	h.Publish(TopicExports, model.DownloadEvent{Type: model.EventExportProgress})

	select {
	case <-ex:
	case <-time.After(time.Second):
		t.Fatalf("export subscriber missed event")
	}
	select {
	case evt := <-dl:
		t.Fatalf("download subscriber got foreign event: %+v", evt)
	default:
	}
}
