package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-voice-transcription-service/internal/models"
)

// messageReader is the subset of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func newReader(brokers []string, topic string, since time.Duration) *kafka.Reader {
	// Partition reader without a consumer group works through port-forwards.
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	if since > 0 {
		if err := reader.SetOffsetAt(context.Background(), time.Now().Add(-since)); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Could not rewind reader")
		}
	}
	return reader
}

// consume decodes events from reader until ctx ends, printing each one to
// out and handing it to sink.
func consume(ctx context.Context, reader messageReader, topic string, out io.Writer, sink chan<- models.TranscriptionEvent) {
	defer reader.Close()
	log.Info().Str("topic", topic).Msg("Consuming transcription events")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var event models.TranscriptionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("Skipping undecodable event")
			continue
		}

		fmt.Fprintln(out, formatEvent(event))
		select {
		case sink <- event:
		case <-ctx.Done():
			return
		}
	}
}

func formatEvent(e models.TranscriptionEvent) string {
	switch e.EventType {
	case models.EventTranscriptionCompleted:
		return fmt.Sprintf("%s completed user=%s key=%s %dms %q", e.RequestID, e.UserID, e.ObjectKey, e.DurationMs, truncate(e.Text, 60))
	default:
		return fmt.Sprintf("%s timed out user=%s key=%s after %dms", e.RequestID, e.UserID, e.ObjectKey, e.DurationMs)
	}
}

func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
