package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/pkg/httpx"
)

// ErrNotFound is returned when the CMS has no course or quiz under the
// requested id.
var ErrNotFound = errors.New("cms: not found")

// Client is the raw, uncached CMS contract. Most callers should go through
// a Resolver instead.
type Client interface {
	GetCourseLayout(ctx context.Context, courseID uuid.UUID) (*CourseLayout, error)
	GetQuizWithAnswers(ctx context.Context, quizID uuid.UUID) (*Quiz, error)
}

type Config struct {
	BaseURL    string
	APIToken   string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	timeoutSec := 15
	if v := strings.TrimSpace(os.Getenv("CMS_TIMEOUT_SECONDS")); v != "" {
		if n, err := time.ParseDuration(v + "s"); err == nil {
			timeoutSec = int(n.Seconds())
		}
	}
	return Config{
		BaseURL:    strings.TrimSpace(os.Getenv("CMS_BASE_URL")),
		APIToken:   strings.TrimSpace(os.Getenv("CMS_API_TOKEN")),
		Timeout:    time.Duration(timeoutSec) * time.Second,
		MaxRetries: 3,
	}
}

func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("missing CMS_BASE_URL")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &client{
		log:        log.With("client", "CMSClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func (c *client) GetCourseLayout(ctx context.Context, courseID uuid.UUID) (*CourseLayout, error) {
	if courseID == uuid.Nil {
		return nil, fmt.Errorf("cms: course id required")
	}
	var layout CourseLayout
	if err := c.getJSON(ctx, "/api/courses/"+courseID.String()+"/layout", &layout); err != nil {
		return nil, err
	}
	return &layout, nil
}

func (c *client) GetQuizWithAnswers(ctx context.Context, quizID uuid.UUID) (*Quiz, error) {
	if quizID == uuid.Nil {
		return nil, fmt.Errorf("cms: quiz id required")
	}
	var quiz Quiz
	if err := c.getJSON(ctx, "/api/quizzes/"+quizID.String(), &quiz); err != nil {
		return nil, err
	}
	return &quiz, nil
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "cms: <nil error>"
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 2000 {
		msg = msg[:2000] + "..."
	}
	return fmt.Sprintf("cms http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) getJSON(ctx context.Context, path string, dest any) error {
	backoff := 500 * time.Millisecond

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path)
		if err == nil {
			return json.Unmarshal(raw, dest)
		}

		var he *HTTPError
		if errors.As(err, &he) && he.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}

		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return err
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 5*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)

		c.log.Warn("CMS request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		time.Sleep(sleepFor)
		backoff *= 2
	}

	return errors.New("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, path string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, nil, err
	}
	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}
