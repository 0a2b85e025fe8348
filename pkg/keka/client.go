// Package keka is a client for the Keka HR REST API: bearer-token
// acquisition plus the paginated attendance and employee endpoints
// the sync engines crawl.
package keka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/sequoiaprint/keka-integrations/pkg/app/errors"
	"github.com/sequoiaprint/keka-integrations/pkg/config"
)

const (
	defaultRequestTimeout = 30 * time.Second

	// Limit error-body reads so we don't accidentally slurp huge responses.
	maxErrBodyBytes = 4096
)

// Client calls the Keka HR API. It is stateless: callers supply the
// bearer token on each request so that token refresh stays under the
// sync engine's rate accounting.
type Client struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a Client from configuration.
func NewClient(cfg *config.KekaConfig, logger *zap.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}
	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = 100
	}

	return &Client{
		baseURL:    cfg.APIBaseURL(),
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("keka"),
	}
}

// AttendancePage fetches one page of attendance records for a single
// employee over the inclusive [from, to] date range. Dates are
// YYYY-MM-DD. Returns an Unauthorized error when the API responds 401
// so callers can refresh the credential and retry.
func (c *Client) AttendancePage(ctx context.Context, token, employeeID, from, to string, page int) (*AttendancePage, error) {
	query := url.Values{}
	query.Set("employeeIds", employeeID)
	query.Set("from", from)
	query.Set("to", to)
	query.Set("pageNumber", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(c.pageSize))

	var parsed attendanceResponse
	if err := c.get(ctx, token, "/time/attendance", query, &parsed); err != nil {
		return nil, err
	}

	if !parsed.Succeeded || parsed.Data == nil {
		// The API reports "no data" as a succeeded=false envelope, not an error.
		c.logger.Debug("attendance page returned no data",
			zap.String("employee_id", employeeID),
			zap.Int("page", page),
			zap.String("message", parsed.Message))
		return &AttendancePage{TotalPages: 0}, nil
	}

	return &AttendancePage{
		Records:      parsed.Data,
		TotalPages:   parsed.TotalPages,
		TotalRecords: parsed.TotalRecords,
	}, nil
}

// EmployeesPage fetches one page of the global employee roster.
func (c *Client) EmployeesPage(ctx context.Context, token string, page int) (*EmployeePage, error) {
	query := url.Values{}
	query.Set("pageNumber", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(c.pageSize))

	var parsed employeesResponse
	if err := c.get(ctx, token, "/hris/employees", query, &parsed); err != nil {
		return nil, err
	}

	return &EmployeePage{
		Employees:    parsed.Data,
		TotalPages:   parsed.TotalPages,
		TotalRecords: parsed.TotalRecords,
	}, nil
}

func (c *Client) get(ctx context.Context, token, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	// Correlation ID for tracing a request through remote-side logs
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		c.logger.Debug("request failed", zap.String("path", path),
			zap.String("request_id", requestID), zap.Error(err))
		return apperrors.TransientError(err, fmt.Sprintf("call %s", path))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return apperrors.AuthError(readHTTPError(resp), "remote API rejected credential")
	case resp.StatusCode != http.StatusOK:
		return apperrors.TransientError(readHTTPError(resp), fmt.Sprintf("%s returned %d", path, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func readHTTPError(resp *http.Response) error {
	limited := io.LimitReader(resp.Body, maxErrBodyBytes)

	b, err := io.ReadAll(limited)
	if err != nil {
		return fmt.Errorf("status %d and body read failed: %w", resp.StatusCode, err)
	}

	return fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
}
