package director

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"codeberg.org/mutker/vibesd/internal/config"
	"codeberg.org/mutker/vibesd/internal/errors"
	"github.com/sethvargo/go-retry"
)

const maxResponseBytes = 1 << 20

// Client talks to an Ollama-compatible generate endpoint.
type Client struct {
	host     string
	model    string
	http     *http.Client
	timeout  time.Duration
	attempts uint64
	base     time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = config.DefaultRetryBase
	}

	return &Client{
		host:     strings.TrimRight(cfg.Host, "/"),
		model:    cfg.Model,
		http:     &http.Client{},
		timeout:  cfg.RequestTimeout,
		attempts: uint64(max(cfg.RetryAttempts, 1)),
		base:     cfg.RetryBase,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format"`
}

type generateResponse struct {
	Response *string `json:"response"`
}

func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(c.base)
	b = retry.WithJitterPercent(20, b)
	return retry.WithMaxRetries(c.attempts-1, b)
}

// Generate posts prompt and returns the model's raw answer text. Transport
// failures and 5xx/429 responses are retried; everything else fails fast.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return "", errors.New().Wrap(errors.ErrInternal, err)
	}

	return retry.DoValue(ctx, c.backoff(), func(ctx context.Context) (string, error) {
		return c.generateOnce(ctx, body)
	})
}

func (c *Client) generateOnce(ctx context.Context, body []byte) (string, error) {
	errFactory := errors.New()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", errFactory.Wrap(ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", retry.RetryableError(errFactory.Wrap(ErrTransport, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		statusErr := errFactory.WithData(ErrBadStatus, resp.Status)
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return "", retry.RetryableError(statusErr)
		}
		return "", statusErr
	}

	var envelope generateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&envelope); err != nil {
		return "", errFactory.Wrap(ErrParse, err)
	}
	if envelope.Response == nil {
		return "", errFactory.WithMessage(ErrParse, "envelope has no response field")
	}

	return *envelope.Response, nil
}

// Probe polls the host's model listing until it answers 200, giving up
// after tries attempts spaced interval apart.
func (c *Client) Probe(ctx context.Context, tries int, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	b := retry.WithMaxRetries(uint64(max(tries, 1)-1), retry.NewConstant(interval))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, max(interval, time.Second))
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
		if err != nil {
			return errors.New().Wrap(ErrProbeFailed, err)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(errors.New().Wrap(ErrProbeFailed, err))
		}
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return retry.RetryableError(errors.New().WithData(ErrProbeFailed, resp.Status))
		}
		return nil
	})
}
