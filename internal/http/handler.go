package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"ai-voice-transcription-service/internal/apperror"
	"ai-voice-transcription-service/internal/models"
	"ai-voice-transcription-service/internal/observability/logging"
	"ai-voice-transcription-service/internal/schema"
	"ai-voice-transcription-service/internal/service/stt"
)

// UserIDHeader carries the authenticated caller. Authentication happens in
// front of this service.
const UserIDHeader = "X-User-ID"

// multipartOverhead is allowed on top of the audio limit for form fields and
// part headers.
const multipartOverhead = 1 << 20

// VoiceService is the orchestrator surface the handlers call.
type VoiceService interface {
	Ping() models.PingResponse
	MaxUploadBytes() int64
	UploadURL(ctx context.Context, userID, fmtHint string) (models.UploadURLResponse, error)
	SubmitByKey(ctx context.Context, userID, objectKey, language, fmtHint string) (stt.Result, error)
	SubmitDirect(ctx context.Context, userID string, audio []byte, language, fmtHint string) (stt.Result, error)
	Dependencies() map[string]error
}

// Handler serves the voice API.
type Handler struct {
	svc       VoiceService
	validator *schema.Validator
	logger    zerolog.Logger
}

// NewHandler creates a Handler over svc.
func NewHandler(svc VoiceService) *Handler {
	return &Handler{
		svc:       svc,
		validator: schema.New(),
		logger:    logging.WithComponent("http"),
	}
}

func (h *Handler) ping(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Ping())
}

func (h *Handler) uploadURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	resp, err := h.svc.UploadURL(r.Context(), userID, r.URL.Query().Get("fmt"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) submitByKey(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	var req models.SubmitByKeyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, r, apperror.Invalid("", "malformed JSON body: "+err.Error()))
		return
	}
	if err := h.validator.Validate(req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.svc.SubmitByKey(r.Context(), userID, req.ObjectKey, req.Language, req.Format)
	h.writeResult(w, r, res, err)
}

func (h *Handler) submitDirect(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	limit := h.svc.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, r, apperror.Invalid("audio", "request body too large"))
			return
		}
		h.writeError(w, r, apperror.Invalid("", "malformed multipart body: "+err.Error()))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, _, err := r.FormFile("audio")
	if err != nil {
		h.writeError(w, r, apperror.Invalid("audio", "file part is required"))
		return
	}
	defer file.Close()

	// One byte past the limit is enough for the service to reject it.
	audio, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		h.writeError(w, r, apperror.Invalid("audio", "unreadable upload"))
		return
	}

	res, err := h.svc.SubmitDirect(r.Context(), userID, audio, r.FormValue("language"), r.FormValue("fmt"))
	h.writeResult(w, r, res, err)
}

func (h *Handler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness always answers 200 so the ping flow stays routable; missing
// configuration is reported per dependency.
func (h *Handler) readiness(w http.ResponseWriter, _ *http.Request) {
	resp := models.ReadinessResponse{Status: "ready", Dependencies: map[string]string{}}
	for name, err := range h.svc.Dependencies() {
		if err != nil {
			resp.Status = "degraded"
			resp.Dependencies[name] = err.Error()
			continue
		}
		resp.Dependencies[name] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{
			Error:  "unauthenticated",
			Detail: UserIDHeader + " header is required",
		})
		return "", false
	}
	return userID, true
}

func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, res stt.Result, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	raw := res.Raw
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	writeJSON(w, http.StatusOK, models.TranscriptionResponse{
		Text:      res.Text,
		Raw:       raw,
		RawText:   res.RawText,
		RequestID: res.RequestID,
		TimedOut:  res.TimedOut,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperror.HTTPStatus(err)
	resp := models.ErrorResponse{Error: errorCode(err), Detail: err.Error()}

	var cfgErr *apperror.ConfigurationError
	if errors.As(err, &cfgErr) {
		resp.Missing = cfgErr.Missing
	}

	event := h.logger.Warn()
	if status >= 500 {
		event = h.logger.Error()
	}
	event.Err(err).
		Str("path", r.URL.Path).
		Str("httpRequestId", middleware.GetReqID(r.Context())).
		Int("status", status).
		Msg("Request failed")

	writeJSON(w, status, resp)
}

func errorCode(err error) string {
	var cfgErr *apperror.ConfigurationError
	var upErr *apperror.UpstreamError
	var valErr *apperror.ValidationError
	switch {
	case errors.As(err, &valErr):
		return "invalid_request"
	case errors.As(err, &cfgErr):
		return "not_configured"
	case errors.As(err, &upErr):
		return "upstream_error"
	case errors.Is(err, apperror.ErrCanceled):
		return "canceled"
	default:
		return "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
