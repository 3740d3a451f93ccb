// Package orthanc talks to an Orthanc archive over its REST API: it lists the
// instances of a study, downloads DICOM files and uploads generated reports.
package orthanc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

// ErrStatus is wrapped by errors for non-2xx archive responses
var ErrStatus = errors.New("unexpected archive status")

// StatusError describes a failed archive request
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: request failed with code %d, returned error was: %s", e.Method, e.Path, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// retryable reports whether a later attempt might succeed
func (e *StatusError) retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Client is an Orthanc REST client with rate limiting, retries and a circuit breaker
type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	retries    int
	retryDelay time.Duration
	logger     *logrus.Logger
}

// NewClient creates a new archive client
func NewClient(config domain.ArchiveConfig, logger *logrus.Logger) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	trips := config.BreakerTrips
	if trips <= 0 {
		trips = 5
	}
	breakerTimeout := config.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 60 * time.Second
	}

	c := &Client{
		baseURL:  strings.TrimRight(config.BaseURL, "/"),
		username: config.Username,
		password: config.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		rateLimit:  rate.NewLimiter(limit, 1),
		retries:    config.RetryCount,
		retryDelay: config.RetryDelay,
		logger:     logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "Orthanc",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(trips)
		},
		IsSuccessful: func(err error) bool {
			// client errors say nothing about archive health
			var status *StatusError
			if errors.As(err, &status) {
				return !status.retryable()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return c
}

// BreakerState returns the current circuit breaker state
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

type studyResponse struct {
	ID     string   `json:"ID"`
	Series []string `json:"Series"`
}

type seriesResponse struct {
	ID        string   `json:"ID"`
	Instances []string `json:"Instances"`
}

// StudyInstances lists the Orthanc instance IDs of a study, series by series
func (c *Client) StudyInstances(ctx context.Context, studyID string) ([]string, error) {
	var study studyResponse
	if err := c.getJSON(ctx, "/studies/"+studyID, &study); err != nil {
		return nil, fmt.Errorf("failed to get study %s: %w", studyID, err)
	}

	var instances []string
	for _, seriesID := range study.Series {
		var series seriesResponse
		if err := c.getJSON(ctx, "/series/"+seriesID, &series); err != nil {
			return nil, fmt.Errorf("failed to get series %s: %w", seriesID, err)
		}
		instances = append(instances, series.Instances...)
	}

	c.logger.WithFields(logrus.Fields{
		"study_id":  studyID,
		"series":    len(study.Series),
		"instances": len(instances),
	}).Debug("Listed study instances")
	return instances, nil
}

// FetchInstance downloads the DICOM file of an instance
func (c *Client) FetchInstance(ctx context.Context, instanceID string) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, "/instances/"+instanceID+"/file", "", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download instance %s: %w", instanceID, err)
	}
	return body, nil
}

// SendReport uploads a DICOM file to the archive
func (c *Client) SendReport(ctx context.Context, dicomFile []byte) error {
	if _, err := c.do(ctx, http.MethodPost, "/instances", "application/dicom", dicomFile); err != nil {
		return fmt.Errorf("failed to upload report: %w", err)
	}
	return nil
}

// Ping checks that the archive answers
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/system", "", nil)
	return err
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	body, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// do runs one request with retries. Each attempt waits on the rate limiter and
// goes through the circuit breaker.
func (c *Client) do(ctx context.Context, method, path, contentType string, payload []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"method":  method,
				"path":    path,
				"attempt": attempt,
				"error":   lastErr,
			}).Warn("Retrying archive request")

			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.rateLimit.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.once(ctx, method, path, contentType, payload)
		})
		if err == nil {
			return result.([]byte), nil
		}
		lastErr = err

		var status *StatusError
		if errors.As(err, &status) && !status.retryable() {
			return nil, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, method, path, contentType string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}
