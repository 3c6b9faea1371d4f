// Command voiceclient drives the voice transcription API from a terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"ai-voice-transcription-service/internal/models"
)

var (
	serverURL string
	userID    string
	timeout   time.Duration
	language  string
	fmtHint   string
	verbose   bool
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "voiceclient",
		Short:        "Command line client for the voice transcription API",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
				Level(level).With().Timestamp().Logger()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "voice API base URL")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "demo-user", "caller identity sent as X-User-ID")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 120*time.Second, "per-request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(newPingCmd(), newUploadCmd(), newSubmitCmd(), newHealthCmd())
	return rootCmd
}

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the voice API is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := client().ping(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload through a signed URL, then transcribe by object key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, f, err := readAudio(args[0])
			if err != nil {
				return err
			}
			c := client()

			signed, err := c.uploadURL(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("upload url: %w", err)
			}
			log.Debug().Str("objectKey", signed.ObjectKey).Time("expiresAt", signed.ExpiresAt).Msg("Upload URL issued")

			if err := c.putObject(cmd.Context(), signed.UploadURL, signed.ContentType, audio); err != nil {
				return err
			}
			log.Info().Str("objectKey", signed.ObjectKey).Int("bytes", len(audio)).Msg("Audio uploaded")

			resp, err := c.submitByKey(cmd.Context(), models.SubmitByKeyRequest{
				ObjectKey: signed.ObjectKey,
				Language:  language,
				Format:    f,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	addTranscriptionFlags(cmd)
	return cmd
}

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Send audio to the API for server-side upload and transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, f, err := readAudio(args[0])
			if err != nil {
				return err
			}
			resp, err := client().submitDirect(cmd.Context(), args[0], audio, language, f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	addTranscriptionFlags(cmd)
	return cmd
}

func newHealthCmd() *cobra.Command {
	var addr, service string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%q: %s\n", service, resp.GetStatus())
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "grpc", "localhost:50051", "gRPC server address")
	cmd.Flags().StringVar(&service, "service", "", "health entry to check (object_store, speech_service, ...)")
	return cmd
}

func addTranscriptionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&language, "language", "l", "", "language hint (zh, en, ...)")
	cmd.Flags().StringVarP(&fmtHint, "fmt", "f", "", "audio format; defaults to the file extension")
}

func client() *apiClient {
	return newAPIClient(strings.TrimSuffix(serverURL, "/"), userID, timeout)
}

// readAudio loads path and picks the format from --fmt or the extension.
func readAudio(path string) ([]byte, string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	f := fmtHint
	if f == "" {
		f = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	return audio, f, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
