package backend

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/hpungsan/reel/internal/channel"
	"github.com/hpungsan/reel/internal/errors"
)

// DefaultStatusPath is the push-channel path on the backend.
const DefaultStatusPath = "/gen_status"

// Options configures a Client.
type Options struct {
	BaseURL    string
	StatusPath string
	Timeout    time.Duration
	MaxRetries int

	// ClipBody builds the clip-generation request body. Defaults to MovementBody.
	ClipBody RequestBuilder

	// Backoffs overrides the retry delays; used by tests.
	Backoffs []time.Duration

	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// Client talks to the generation backend's REST endpoints.
type Client struct {
	baseURL    string
	statusPath string
	maxRetries int
	backoffs   []time.Duration
	clipBody   RequestBuilder
	httpClient *http.Client
	validate   *validator.Validate
	log        logrus.FieldLogger
}

// NewClient creates a backend client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	statusPath := opts.StatusPath
	if statusPath == "" {
		statusPath = DefaultStatusPath
	}
	backoffs := opts.Backoffs
	if backoffs == nil {
		backoffs = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	clipBody := opts.ClipBody
	if clipBody == nil {
		clipBody = MovementBody
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Client{
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		statusPath: statusPath,
		maxRetries: maxRetries,
		backoffs:   backoffs,
		clipBody:   clipBody,
		httpClient: httpClient,
		validate:   validator.New(),
		log:        log,
	}
}

// StatusURL returns the WebSocket endpoint for the push channel.
func (c *Client) StatusURL(clientID string) string {
	u := channel.ToWebSocketURL(c.baseURL + c.statusPath)
	if clientID != "" {
		u += "?clientId=" + url.QueryEscape(clientID)
	}
	return u
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// Transport failures map to CONNECTION_ERROR and non-2xx replies to GENERATION_FAILED.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.NewInternal(fmt.Errorf("failed to marshal request: %w", err))
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	logger := c.log.WithFields(logrus.Fields{"method": method, "path": path})
	logger.Debug("backend request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.WithError(err).Warn("backend request failed")
		return errors.NewConnection(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewConnection(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.WithField("status", resp.StatusCode).Warn("backend rejected request")
		return &errors.ReelError{
			Code:    errors.ErrGenerationFailed,
			Status:  502,
			Message: fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(respBody))),
			Details: map[string]any{"status": resp.StatusCode},
		}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return errors.NewGenerationFailed(fmt.Sprintf("failed to decode response: %v", err))
	}
	return nil
}

// RetryWithBackoff runs fn up to maxRetries times, sleeping between attempts.
// Validation failures and rejections are returned without retrying.
func (c *Client) RetryWithBackoff(ctx context.Context, fn func() error, maxRetries int) error {
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}

		lastErr = err
		if i == maxRetries-1 {
			break
		}
		if i < len(c.backoffs) {
			timer := time.NewTimer(c.backoffs[i])
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return lastErr
			}
		}
	}

	if maxRetries > 1 {
		c.log.WithError(lastErr).WithField("attempts", maxRetries).Warn("backend retries exhausted")
	}
	return lastErr
}

func retryable(err error) bool {
	if errors.Is(err, errors.ErrConnection) {
		return true
	}
	var re *errors.ReelError
	if stderrors.As(err, &re) && re.Code == errors.ErrGenerationFailed {
		status, _ := re.Details["status"].(int)
		return status >= 500
	}
	return false
}

// check runs struct validation and converts the first failure to a ValidationError.
func (c *Client) check(v any) error {
	err := c.validate.Struct(v)
	if err == nil {
		return nil
	}
	// non-struct bodies from custom builders carry no tags
	if _, ok := err.(*validator.InvalidValidationError); ok {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return errors.NewValidation(fe.Field(), fmt.Sprintf("%s failed %q validation", fe.Field(), fe.Tag()))
	}
	return errors.NewValidation("", err.Error())
}
