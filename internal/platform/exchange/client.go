package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/hie/internal/platform/fhir"
)

// ErrorDetail is one error reported by the exchange or synthesized from a
// transport failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PollResult is the outcome of one poll request. On failure Data may still
// carry a partially decoded envelope for audit purposes.
type PollResult struct {
	Success      bool
	Data         map[string]interface{}
	ResponseCode string
	Errors       []ErrorDetail
}

// Client talks to the exchange endpoint. It is the sole network boundary of
// the polling core; it never retries (retry policy belongs to the trigger)
// and never panics.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SendPoll posts the poll envelope for one tenant scope and returns the
// decoded response envelope. A non-2xx status or transport failure yields
// Success=false; the body is still decoded into Data when possible.
func (c *Client) SendPoll(ctx context.Context, scope string, envelope *fhir.Bundle) PollResult {
	body, err := json.Marshal(envelope)
	if err != nil {
		return PollResult{Errors: []ErrorDetail{{Code: "encode", Message: err.Error()}}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/poll", bytes.NewReader(body))
	if err != nil {
		return PollResult{Errors: []ErrorDetail{{Code: "request", Message: err.Error()}}}
	}
	req.Header.Set("Content-Type", "application/fhir+json")
	req.Header.Set("Accept", "application/fhir+json")
	req.Header.Set("X-Tenant-Scope", scope)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("scope", scope).Msg("exchange poll transport failure")
		return PollResult{Errors: []ErrorDetail{{Code: "transport", Message: err.Error()}}}
	}
	defer resp.Body.Close()

	result := PollResult{ResponseCode: fmt.Sprintf("%d", resp.StatusCode)}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		result.Errors = append(result.Errors, ErrorDetail{Code: "read", Message: err.Error()})
		return result
	}

	var data map[string]interface{}
	if len(raw) > 0 {
		// Keep whatever decodes, even on error statuses: the raw envelope
		// is persisted for audit.
		if err := json.Unmarshal(raw, &data); err == nil {
			result.Data = data
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		result.Errors = append(result.Errors, remoteErrors(data, resp.StatusCode)...)
		c.logger.Warn().
			Str("scope", scope).
			Int("status", resp.StatusCode).
			Dur("latency", time.Since(start)).
			Msg("exchange poll rejected")
		return result
	}

	result.Success = true
	c.logger.Debug().
		Str("scope", scope).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("exchange poll completed")
	return result
}

// remoteErrors extracts OperationOutcome issues from an error response, or
// synthesizes a single status-based error.
func remoteErrors(data map[string]interface{}, status int) []ErrorDetail {
	if data != nil && fhir.ResourceType(data) == "OperationOutcome" {
		var out []ErrorDetail
		for _, i := range fhir.GetSlice(data, "issue") {
			issue, ok := i.(map[string]interface{})
			if !ok {
				continue
			}
			out = append(out, ErrorDetail{
				Code:    fhir.GetString(issue, "code"),
				Message: fhir.GetString(issue, "diagnostics"),
			})
		}
		if len(out) > 0 {
			return out
		}
	}
	return []ErrorDetail{{Code: "http", Message: fmt.Sprintf("exchange returned status %d", status)}}
}
