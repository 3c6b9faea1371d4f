package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"ai-voice-transcription-service/internal/models"
)

// apiClient calls the voice API the way the mobile and web recorders do.
type apiClient struct {
	baseURL string
	userID  string
	http    *http.Client
}

func newAPIClient(baseURL, userID string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		userID:  userID,
		http:    &http.Client{Timeout: timeout},
	}
}

// apiError is a non-2xx answer from the voice API.
type apiError struct {
	StatusCode int
	Body       models.ErrorResponse
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Body.Error, e.Body.Detail)
	if len(e.Body.Missing) > 0 {
		msg += fmt.Sprintf(" (missing %v)", e.Body.Missing)
	}
	return msg
}

func (c *apiClient) ping(ctx context.Context) (models.PingResponse, error) {
	var out models.PingResponse
	err := c.do(ctx, http.MethodGet, "/v1/voice/ping", nil, "", &out)
	return out, err
}

func (c *apiClient) uploadURL(ctx context.Context, fmtHint string) (models.UploadURLResponse, error) {
	var out models.UploadURLResponse
	path := "/v1/voice/asr/upload_url?fmt=" + url.QueryEscape(fmtHint)
	err := c.do(ctx, http.MethodGet, path, nil, "", &out)
	return out, err
}

// putObject uploads straight to the object store with the signed URL. The
// voice API is not involved.
func (c *apiClient) putObject(ctx context.Context, signedURL, contentType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signedURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("object store PUT failed: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *apiClient) submitByKey(ctx context.Context, req models.SubmitByKeyRequest) (models.TranscriptionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.TranscriptionResponse{}, err
	}
	var out models.TranscriptionResponse
	err = c.do(ctx, http.MethodPost, "/v1/voice/asr/submit_by_key", bytes.NewReader(body), "application/json", &out)
	return out, err
}

func (c *apiClient) submitDirect(ctx context.Context, filename string, audio []byte, language, fmtHint string) (models.TranscriptionResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("audio", filepath.Base(filename))
	if err != nil {
		return models.TranscriptionResponse{}, err
	}
	if _, err := part.Write(audio); err != nil {
		return models.TranscriptionResponse{}, err
	}
	if language != "" {
		_ = mw.WriteField("language", language)
	}
	if fmtHint != "" {
		_ = mw.WriteField("fmt", fmtHint)
	}
	if err := mw.Close(); err != nil {
		return models.TranscriptionResponse{}, err
	}

	var out models.TranscriptionResponse
	err = c.do(ctx, http.MethodPost, "/v1/voice/asr/submit", &buf, mw.FormDataContentType(), &out)
	return out, err
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-User-ID", c.userID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr.Body)
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
