package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"

	"ai-voice-transcription-service/internal/models"
)

// fakeReader replays messages, then blocks until ctx ends.
type fakeReader struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func message(t *testing.T, e models.TranscriptionEvent) kafka.Message {
	t.Helper()
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{Key: []byte(e.RequestID), Value: b}
}

func TestConsume_DecodesAndForwards(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		message(t, models.TranscriptionEvent{EventType: models.EventTranscriptionCompleted, RequestID: "r1", UserID: "u1", Text: "你好世界"}),
		{Value: []byte("not json")},
		message(t, models.TranscriptionEvent{EventType: models.EventTranscriptionTimedOut, RequestID: "r2", UserID: "u1", DurationMs: 45000}),
	}}
	sink := make(chan models.TranscriptionEvent, 4)
	var out bytes.Buffer

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		consume(ctx, reader, "topic", &out, sink)
		close(done)
	}()

	first, second := <-sink, <-sink
	cancel()
	<-done

	if first.RequestID != "r1" || second.RequestID != "r2" {
		t.Errorf("unexpected events %s, %s", first.RequestID, second.RequestID)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "你好世界") || !strings.Contains(lines[1], "timed out") {
		t.Errorf("unexpected output %q", out.String())
	}
	if !reader.closed {
		t.Error("reader not closed")
	}
}

func TestTruncate_CountsRunes(t *testing.T) {
	if got := truncate("你好世界", 2); got != "你好..." {
		t.Errorf("got %q", got)
	}
	if got := truncate("hi", 5); got != "hi" {
		t.Errorf("got %q", got)
	}
}

func TestHub_RelaysToSubscribers(t *testing.T) {
	hub := newHub()
	done := make(chan struct{})
	defer close(done)
	go hub.run(done)

	srv := httptest.NewServer(wsHandler(hub))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.broadcast <- models.TranscriptionEvent{EventType: models.EventTranscriptionCompleted, RequestID: "r9"}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.TranscriptionEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.RequestID != "r9" {
		t.Errorf("unexpected event %+v", got)
	}

	conn.Close()
	for hub.Subscribers() != 0 {
		if time.Now().After(deadline.Add(2 * time.Second)) {
			t.Fatal("subscriber never unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
