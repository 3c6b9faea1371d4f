// Command eventtail follows the transcription outcome topics, printing each
// event and relaying it to WebSocket subscribers on /ws.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	addr := flag.String("listen", ":8081", "WebSocket listen address; empty disables it")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicCompleted := flag.String("topic-completed", "voice.transcription.completed", "completed events topic")
	topicTimedOut := flag.String("topic-timed-out", "voice.transcription.timedout", "timed-out events topic")
	since := flag.Duration("since", time.Hour, "replay events newer than this")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub()
	go hub.run(ctx.Done())

	brokerList := strings.Split(*brokers, ",")
	for _, topic := range []string{*topicCompleted, *topicTimedOut} {
		go consume(ctx, newReader(brokerList, topic, *since), topic, os.Stdout, hub.broadcast)
	}

	if *addr == "" {
		<-ctx.Done()
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(hub))
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", *addr).Strs("brokers", brokerList).Msg("Event tail started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server error")
	}
}
