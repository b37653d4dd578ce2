package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/edusync/assignsync/internal/models"
	"github.com/edusync/assignsync/pkg/retry"
)

// Config holds HTTP client configuration for the portal API.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client fetches assignments from the portal's REST API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
	retryer *retry.Retryer
	breaker *retry.CircuitBreaker
}

// assignmentPayload is the wire shape of an assignment. Due dates arrive as
// RFC 3339 strings and may be absent.
type assignmentPayload struct {
	ID         int64  `json:"id"`
	CourseID   int64  `json:"course_id"`
	Title      string `json:"title"`
	CourseName string `json:"course_name"`
	DueAt      string `json:"due_at"`
	Submission string `json:"submission_state"`
	Unread     bool   `json:"unread"`
}

// NewClient creates a portal API client.
func NewClient(config *Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	retryConfig := &retry.Config{
		MaxAttempts:   3,
		InitialDelay:  2 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
		RetriableStatuses: []int{
			http.StatusRequestTimeout,      // 408
			http.StatusTooManyRequests,     // 429
			http.StatusInternalServerError, // 500
			http.StatusBadGateway,          // 502
			http.StatusServiceUnavailable,  // 503
			http.StatusGatewayTimeout,      // 504
		},
		RetriableErrors: []string{
			"connection refused",
			"timeout",
			"temporary failure",
			"no such host",
			"connection reset",
		},
	}

	return &Client{
		baseURL: config.BaseURL,
		token:   config.Token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		retryer: retry.NewRetryer(retryConfig, logger),
		breaker: retry.NewCircuitBreaker(nil, logger),
	}
}

// FetchAssignments retrieves the assignment list for a scope.
func (c *Client) FetchAssignments(ctx context.Context, scope models.Scope) ([]models.Assignment, error) {
	url := c.baseURL + "/assignments"
	if !scope.IsAll() {
		url = fmt.Sprintf("%s/courses/%d/assignments", c.baseURL, scope.CourseID)
	}

	c.logger.Debug("Fetching assignments", "url", url, "scope", scope.Key())

	var payloads []assignmentPayload
	err := c.breaker.Execute(func() error {
		var fetchErr error
		payloads, fetchErr = retry.DoWithResult(ctx, c.retryer, func() ([]assignmentPayload, error) {
			return c.fetchOnce(ctx, url)
		})
		return fetchErr
	})
	if err != nil {
		return nil, &FetchError{Kind: classify(err), Scope: scope, Err: err}
	}

	assignments := make([]models.Assignment, 0, len(payloads))
	for _, p := range payloads {
		a, err := p.toAssignment()
		if err != nil {
			c.logger.Warn("Skipping malformed assignment", "id", p.ID, "error", err)
			continue
		}
		assignments = append(assignments, a)
	}

	c.logger.Debug("Fetched assignments", "scope", scope.Key(), "count", len(assignments))
	return assignments, nil
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]assignmentPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, retry.NewHTTPError(resp.StatusCode, resp.Status, url)
	}

	var payloads []assignmentPayload
	if err := json.NewDecoder(resp.Body).Decode(&payloads); err != nil {
		return nil, fmt.Errorf("failed to decode assignment list: %w", err)
	}
	return payloads, nil
}

func (p assignmentPayload) toAssignment() (models.Assignment, error) {
	a := models.Assignment{
		ID:         p.ID,
		CourseID:   p.CourseID,
		Title:      p.Title,
		CourseName: p.CourseName,
		Submission: models.SubmissionState(p.Submission),
		Unread:     p.Unread,
	}
	if a.ID == 0 {
		return a, errors.New("missing assignment id")
	}
	if p.DueAt != "" {
		due, err := time.Parse(time.RFC3339, p.DueAt)
		if err != nil {
			return a, fmt.Errorf("bad due_at %q: %w", p.DueAt, err)
		}
		a.DueAt = due
	}
	if a.Submission == "" {
		a.Submission = models.SubmissionAvailable
	}
	return a, nil
}

// classify maps transport and HTTP failures onto the fetch failure taxonomy.
func classify(err error) FailureKind {
	var httpErr *retry.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden:
			return FailureAuth
		case httpErr.StatusCode >= 500:
			return FailureServer
		default:
			return FailureServer
		}
	}
	return FailureNetwork
}
