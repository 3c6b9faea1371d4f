package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"

	"ai-voice-transcription-service/internal/models"
	"ai-voice-transcription-service/internal/observability/metrics"
)

// fakeWriter records messages instead of talking to a broker.
type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func newEnabledPublisher(completed, timedOut *fakeWriter) (*Publisher, *metrics.Metrics) {
	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	return &Publisher{
		writerCompleted: completed,
		writerTimedOut:  timedOut,
		principal:       "svc-test",
		topicCompleted:  "test.completed",
		topicTimedOut:   "test.timedout",
		enabled:         true,
		metrics:         m,
	}, m
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.Enabled() {
				t.Error("expected publisher to be disabled")
			}
			if p.writerCompleted != nil || p.writerTimedOut != nil {
				t.Error("expected nil writers when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	p := New(&Config{
		Enabled:        false,
		Brokers:        []string{"localhost:9092"},
		TopicCompleted: "test.completed",
		TopicTimedOut:  "test.timedout",
		Principal:      "test-principal",
	})

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicCompleted != "test.completed" {
		t.Errorf("expected completed topic 'test.completed', got %s", p.topicCompleted)
	}
	if p.topicTimedOut != "test.timedout" {
		t.Errorf("expected timed-out topic 'test.timedout', got %s", p.topicTimedOut)
	}
}

func TestNew_EnabledBuildsWriters(t *testing.T) {
	p := New(&Config{Enabled: true, Brokers: []string{"localhost:9092"}, TopicCompleted: "a", TopicTimedOut: "b"})
	defer p.Close()

	if !p.Enabled() {
		t.Fatal("expected enabled publisher")
	}
	w, ok := p.writerCompleted.(*kafka.Writer)
	if !ok || w.Topic != "a" {
		t.Errorf("unexpected completed writer %#v", p.writerCompleted)
	}
}

func TestPublisher_Disabled_NoError(t *testing.T) {
	p := New(&Config{Enabled: false})

	if err := p.PublishCompleted(context.Background(), "k", map[string]string{"text": "x"}); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
	if err := p.PublishTimedOut(context.Background(), "k", map[string]string{}); err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_RoutesByOutcome(t *testing.T) {
	completed, timedOut := &fakeWriter{}, &fakeWriter{}
	p, m := newEnabledPublisher(completed, timedOut)

	ev := models.TranscriptionEvent{EventType: models.EventTranscriptionCompleted, RequestID: "r1", Text: "hi"}
	if err := p.PublishCompleted(context.Background(), "r1", ev); err != nil {
		t.Fatalf("PublishCompleted: %v", err)
	}
	if err := p.PublishTimedOut(context.Background(), "r2", models.TranscriptionEvent{RequestID: "r2"}); err != nil {
		t.Fatalf("PublishTimedOut: %v", err)
	}

	if len(completed.msgs) != 1 || len(timedOut.msgs) != 1 {
		t.Fatalf("expected one message per topic, got %d/%d", len(completed.msgs), len(timedOut.msgs))
	}

	msg := completed.msgs[0]
	if string(msg.Key) != "r1" {
		t.Errorf("unexpected key %s", msg.Key)
	}
	var got models.TranscriptionEvent
	if err := json.Unmarshal(msg.Value, &got); err != nil || got.Text != "hi" {
		t.Errorf("unexpected payload %s (%v)", msg.Value, err)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["eventType"] != "completed" || headers["principal"] != "svc-test" {
		t.Errorf("unexpected headers %v", headers)
	}

	if got := testutil.ToFloat64(m.KafkaPublishTotal.WithLabelValues("test.completed", "completed")); got != 1 {
		t.Errorf("expected 1 completed publish recorded, got %v", got)
	}
}

func TestPublisher_WriteError(t *testing.T) {
	completed := &fakeWriter{err: errors.New("broker unavailable")}
	p, m := newEnabledPublisher(completed, &fakeWriter{})

	if err := p.PublishCompleted(context.Background(), "r1", map[string]string{}); err == nil {
		t.Fatal("expected write error")
	}
	if got := testutil.ToFloat64(m.KafkaPublishErrors.WithLabelValues("test.completed", "completed")); got != 1 {
		t.Errorf("expected 1 publish error recorded, got %v", got)
	}
}

func TestPublisher_MarshalError(t *testing.T) {
	p, _ := newEnabledPublisher(&fakeWriter{}, &fakeWriter{})
	if err := p.PublishCompleted(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func TestPublisher_Close(t *testing.T) {
	completed, timedOut := &fakeWriter{}, &fakeWriter{}
	p, _ := newEnabledPublisher(completed, timedOut)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !completed.closed || !timedOut.closed {
		t.Error("expected both writers closed")
	}
}
