// Package llm talks to the Mistral chat-completions API. It carries two
// concerns: a thin rate-limited client with retry on 429, and the prompt
// layer that turns model output into homework candidates and time
// estimates for the services package.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Defaults applied by NewClient when the corresponding Config field is zero.
const (
	DefaultBaseURL     = "https://api.mistral.ai"
	DefaultTextModel   = "mistral-small-latest"
	DefaultVisionModel = "pixtral-12b-2409"
	DefaultTimeout     = 60 * time.Second
	DefaultMaxAttempts = 4
)

// Config holds the connection settings for the Mistral API.
type Config struct {
	APIKey      string
	BaseURL     string
	TextModel   string
	VisionModel string

	// Timeout bounds a single HTTP round trip, not the whole retry loop.
	Timeout time.Duration

	// MaxAttempts is the total number of tries per call; only HTTP 429
	// triggers a retry, with exponential backoff between attempts.
	MaxAttempts int

	// RPS caps outgoing requests per second. Zero disables the limiter.
	RPS float64
}

// Client is a minimal Mistral chat-completions client. It is safe for
// concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient builds a Client, filling unset Config fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultTextModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = DefaultVisionModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  log.With().Str("component", "llm").Logger(),
	}
}

// message is one turn of a chat-completions conversation. Content is either
// a plain string or a []contentPart for multimodal requests.
type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// userMessage wraps a plain prompt into a single-turn conversation.
func userMessage(prompt string) []message {
	return []message{{Role: "user", Content: prompt}}
}

// userImageMessage pairs a prompt with an inline base64 image.
func userImageMessage(prompt string, image []byte, mime string) []message {
	if mime == "" {
		mime = "image/jpeg"
	}
	url := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image))
	return []message{{
		Role: "user",
		Content: []contentPart{
			{Type: "text", Text: prompt},
			{Type: "image_url", ImageURL: &imageURL{URL: url}},
		},
	}}
}

// chat sends one completion request and returns the trimmed reply text,
// retrying with exponential backoff while the API answers 429.
func (c *Client) chat(ctx context.Context, model string, msgs []message) (string, error) {
	reqID := uuid.NewString()
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<(attempt-1)) * time.Second
			c.logger.Warn().
				Str("request_id", reqID).
				Dur("wait", wait).
				Int("attempt", attempt+1).
				Msg("mistral rate limited, backing off")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		text, retryable, err := c.doChat(ctx, reqID, model, msgs)
		if err == nil {
			c.logger.Debug().
				Str("request_id", reqID).
				Str("model", model).
				Dur("elapsed", time.Since(start)).
				Msg("mistral call complete")
			return text, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %v", ErrRateLimited, lastErr)
}

func (c *Client) doChat(ctx context.Context, reqID, model string, msgs []message) (text string, retryable bool, err error) {
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    msgs,
		Temperature: 0.1,
	})
	if err != nil {
		return "", false, fmt.Errorf("marshal request: %w", err)
	}

	url := c.cfg.BaseURL + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("mistral request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", false, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, fmt.Errorf("mistral status 429: %s", strings.TrimSpace(string(data)))
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("mistral status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, ErrEmptyResponse
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), false, nil
}
