// Package storage issues pre-signed URLs for, and uploads audio to, the
// S3-compatible object store holding voice recordings.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/middleware"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/rs/zerolog"

	"ai-voice-transcription-service/internal/apperror"
	"ai-voice-transcription-service/internal/config"
	"ai-voice-transcription-service/internal/observability/logging"
	"ai-voice-transcription-service/internal/observability/metrics"
	"ai-voice-transcription-service/internal/service/format"
)

const (
	defaultPresignExpiry = 600 * time.Second
	component            = "object store"
)

// ObjectLocation identifies one uploaded recording.
type ObjectLocation struct {
	Bucket      string
	Key         string
	ContentType string
}

// SignedURL is a time-limited URL granting one HTTP method on one object.
// It is never refreshed; callers past ExpiresAt must ask for a new one.
type SignedURL struct {
	URL       string
	Method    string
	ExpiresAt time.Time
}

// Gateway talks to the object store. A Gateway built from an incomplete
// configuration is usable but fails every call with a ConfigurationError.
type Gateway struct {
	cfg       config.StorageConfig
	client    *s3.Client
	presigner *s3.PresignClient
	keys      *KeyGenerator
	now       func() time.Time
	expiry    time.Duration
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithClock sets the clock used for expiry timestamps and object keys.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
		g.keys.now = now
	}
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New loads the AWS SDK configuration for the store. It does not fail on
// missing credentials; see Gateway.
func New(ctx context.Context, cfg config.StorageConfig, opts ...Option) (*Gateway, error) {
	if len(cfg.Missing()) > 0 {
		return newGateway(cfg, nil, opts...), nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	}
	if cfg.MaxAttempts > 0 {
		loadOpts = append(loadOpts, awsconfig.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}
	return NewFromAWSConfig(awsCfg, cfg, opts...), nil
}

// NewFromAWSConfig builds a Gateway on an already loaded aws.Config.
func NewFromAWSConfig(awsCfg aws.Config, cfg config.StorageConfig, opts ...Option) *Gateway {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.MaxAttempts > 0 {
			o.RetryMaxAttempts = cfg.MaxAttempts
		}
	})
	return newGateway(cfg, client, opts...)
}

func newGateway(cfg config.StorageConfig, client *s3.Client, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:     cfg,
		client:  client,
		keys:    NewKeyGenerator(),
		now:     time.Now,
		expiry:  cfg.PresignExpiry,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("storage"),
	}
	if client != nil {
		g.presigner = s3.NewPresignClient(client)
	}
	if g.expiry <= 0 {
		g.expiry = defaultPresignExpiry
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Configured returns a ConfigurationError when store settings are absent.
func (g *Gateway) Configured() error {
	if err := apperror.NewConfigurationError(component, g.cfg.Missing()); err != nil {
		return err
	}
	if g.client == nil {
		return apperror.NewConfigurationError(component, []string{"s3 client"})
	}
	return nil
}

// NewLocation allocates a fresh object location for a user's recording.
func (g *Gateway) NewLocation(userID string, f format.Format) ObjectLocation {
	return ObjectLocation{
		Bucket:      g.cfg.Bucket,
		Key:         g.keys.Next(userID, f),
		ContentType: format.ContentType(f),
	}
}

// UploadURL allocates a location and signs a PUT for it.
func (g *Gateway) UploadURL(ctx context.Context, userID string, f format.Format) (SignedURL, ObjectLocation, error) {
	if err := g.Configured(); err != nil {
		return SignedURL{}, ObjectLocation{}, err
	}

	loc := g.NewLocation(userID, f)
	start := time.Now()
	req, err := g.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	}, s3.WithPresignExpires(g.expiry))
	signed, err := g.signed("presign_put", http.MethodPut, req, err, start)
	if err != nil {
		return SignedURL{}, ObjectLocation{}, err
	}
	return signed, loc, nil
}

// DownloadURL signs a GET for an existing object.
func (g *Gateway) DownloadURL(ctx context.Context, key string) (SignedURL, error) {
	if err := g.Configured(); err != nil {
		return SignedURL{}, err
	}
	if key == "" {
		return SignedURL{}, apperror.Invalid("object_key", "must not be empty")
	}

	start := time.Now()
	req, err := g.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(g.expiry))
	return g.signed("presign_get", http.MethodGet, req, err, start)
}

func (g *Gateway) signed(op, method string, req *v4.PresignedHTTPRequest, err error, start time.Time) (SignedURL, error) {
	g.metrics.RecordStoreCall(op, err, time.Since(start).Seconds())
	if err != nil {
		g.logger.Error().Err(err).Str("op", op).Msg("Presign failed")
		return SignedURL{}, g.upstream(op, err)
	}
	if req == nil || req.URL == "" {
		return SignedURL{}, &apperror.UpstreamError{
			Service: apperror.ServiceObjectStore,
			Op:      op,
			Message: "store returned an empty signed url",
		}
	}

	g.metrics.RecordPresign(method)
	g.logger.Debug().
		Str("op", op).
		Str("url", logging.RedactURL(req.URL)).
		Msg("Signed URL issued")

	return SignedURL{
		URL:       req.URL,
		Method:    method,
		ExpiresAt: g.now().Add(g.expiry),
	}, nil
}

// PutObject uploads data to loc. Only 200 and 204 count as success.
func (g *Gateway) PutObject(ctx context.Context, loc ObjectLocation, data []byte) error {
	if err := g.Configured(); err != nil {
		return err
	}

	var status int
	start := time.Now()
	_, err := g.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(loc.Bucket),
		Key:           aws.String(loc.Key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(loc.ContentType),
	}, captureStatus(&status))

	if err == nil && status != http.StatusOK && status != http.StatusNoContent {
		err = &apperror.UpstreamError{
			Service:    apperror.ServiceObjectStore,
			Op:         "put_object",
			StatusCode: status,
			Message:    "unexpected status from store",
		}
	}
	g.metrics.RecordStoreCall("put_object", err, time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", apperror.ErrCanceled, ctx.Err())
		}
		g.logger.Error().Err(err).Str("objectKey", loc.Key).Int("status", status).Msg("PutObject failed")
		var upErr *apperror.UpstreamError
		if errors.As(err, &upErr) {
			return err
		}
		return g.upstream("put_object", err)
	}

	g.metrics.RecordUpload(len(data))
	g.logger.Debug().Str("objectKey", loc.Key).Int("bytes", len(data)).Int("status", status).Msg("Object stored")
	return nil
}

// upstream converts an SDK error into an UpstreamError carrying the store's
// HTTP status and error code when the SDK exposes them.
func (g *Gateway) upstream(op string, err error) error {
	ue := &apperror.UpstreamError{Service: apperror.ServiceObjectStore, Op: op, Err: err}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		ue.StatusCode = respErr.HTTPStatusCode()
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		ue.Message = apiErr.ErrorCode()
		if msg := apiErr.ErrorMessage(); msg != "" {
			ue.Message += ": " + msg
		}
	}
	return ue
}

// captureStatus records the raw HTTP status of the final attempt.
func captureStatus(status *int) func(*s3.Options) {
	return func(o *s3.Options) {
		o.APIOptions = append(o.APIOptions, func(stack *middleware.Stack) error {
			return stack.Deserialize.Add(middleware.DeserializeMiddlewareFunc("CaptureStatusCode",
				func(ctx context.Context, in middleware.DeserializeInput, next middleware.DeserializeHandler) (
					middleware.DeserializeOutput, middleware.Metadata, error,
				) {
					out, md, err := next.HandleDeserialize(ctx, in)
					if resp, ok := out.RawResponse.(*smithyhttp.Response); ok && resp != nil {
						*status = resp.StatusCode
					}
					return out, md, err
				}), middleware.After)
		})
	}
}
