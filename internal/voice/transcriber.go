package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"habitvoice/internal/config"
)

// Transcriber converts a voice note to text. Transcription itself is an
// external collaborator; tests replace this with a stub.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

type httpTranscriber struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewTranscriber builds the default transcriber over an OpenAI-compatible
// /audio/transcriptions endpoint.
func NewTranscriber(cfg *config.Config) Transcriber {
	return &httpTranscriber{
		apiKey:     cfg.Provider.APIKey,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.Provider.BaseURL), "/"),
		model:      cfg.Transcription.Model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *httpTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return "", fmt.Errorf("missing transcription api key")
	}
	if t.baseURL == "" {
		return "", fmt.Errorf("missing transcription base url")
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio payload")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName(mimeType))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := mw.WriteField("model", t.model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("transcription http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	text := strings.TrimSpace(decoded.Text)
	if text == "" {
		return "", fmt.Errorf("empty transcription")
	}
	return text, nil
}

func fileName(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "ogg"):
		return "voice.ogg"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return "voice.mp3"
	case strings.Contains(mimeType, "wav"):
		return "voice.wav"
	default:
		return "voice.oga"
	}
}
