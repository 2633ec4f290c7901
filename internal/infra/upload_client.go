package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/Vovarama1992/go-utils/logger"
	"github.com/Vovarama1992/voicememo/internal/models"
	"github.com/Vovarama1992/voicememo/internal/ports"
	"github.com/go-resty/resty/v2"
)

const maxPlainErrorLen = 200

type UploadClientConfig struct {
	Endpoint  string
	Method    string
	UserAgent string
}

// UploadClient posts a whole recording in one request and normalizes the
// answer. It sets no timeout of its own: a stalled server holds the call
// until the transport gives up.
type UploadClient struct {
	cfg    UploadClientConfig
	client *resty.Client
	log    *logger.ZapLogger
}

func NewUploadClient(cfg UploadClientConfig, log *logger.ZapLogger) ports.Uploader {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}

	client := resty.New().
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &UploadClient{
		cfg:    cfg,
		client: client,
		log:    log,
	}
}

type uploadResponse struct {
	Transcript *string `json:"transcript"`
	Size       *int64  `json:"size"`
}

func (c *UploadClient) Upload(ctx context.Context, audio models.AudioObject) (models.UploadResult, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", audio.MIMEType()).
		SetBody(audio.Bytes()).
		Execute(c.cfg.Method, c.cfg.Endpoint)
	if err != nil {
		return models.UploadResult{}, &models.UploadError{
			Kind:    models.UploadErrTransport,
			Message: "network error: " + err.Error(),
			Err:     err,
		}
	}

	raw := resp.Body()

	if !resp.IsSuccess() {
		code := resp.StatusCode()
		msg := serverMessage(raw)
		if msg == "" {
			msg = fmt.Sprintf("server responded with status %d %s", code, http.StatusText(code))
		} else {
			msg = fmt.Sprintf("server responded with status %d: %s", code, msg)
		}

		c.log.Log(logger.LogEntry{
			Level:   "warn",
			Message: "upload rejected by server",
			Fields:  map[string]any{"status": code, "bytes": audio.Len()},
		})
		return models.UploadResult{}, &models.UploadError{
			Kind:       models.UploadErrStatus,
			StatusCode: code,
			Message:    msg,
		}
	}

	res, err := parseUploadResponse(raw)
	if err != nil {
		return models.UploadResult{}, &models.UploadError{
			Kind:       models.UploadErrParse,
			StatusCode: resp.StatusCode(),
			Message:    "could not parse server response: " + err.Error(),
			Err:        err,
		}
	}
	return res, nil
}

func parseUploadResponse(raw []byte) (models.UploadResult, error) {
	var parsed uploadResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return models.UploadResult{}, err
	}
	if parsed.Transcript == nil {
		return models.UploadResult{}, errors.New("missing transcript")
	}
	if parsed.Size == nil {
		return models.UploadResult{}, errors.New("missing size")
	}
	return models.UploadResult{Transcript: *parsed.Transcript, Size: *parsed.Size}, nil
}

// serverMessage pulls human text out of an error body, "" if there is none.
func serverMessage(raw []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err == nil {
		for _, key := range []string{"error", "message", "error_message", "detail"} {
			switch v := payload[key].(type) {
			case string:
				if strings.TrimSpace(v) != "" {
					return v
				}
			case map[string]any:
				if m, ok := v["message"].(string); ok && strings.TrimSpace(m) != "" {
					return m
				}
			}
		}
		return ""
	}

	text := strings.TrimSpace(string(raw))
	if text == "" || len(text) > maxPlainErrorLen || !utf8.ValidString(text) || strings.HasPrefix(text, "<") {
		return ""
	}
	return text
}
