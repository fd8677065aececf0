package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.elastic.co/apm"
)

var (
	globalTimeout int
)

type upstreamHeadersKey struct{}

// withUpstreamHeaders attaches headers (the presenter's bearer token) that
// are forwarded on upstream calls made under ctx.
func withUpstreamHeaders(ctx context.Context, headers map[string]string) context.Context {
	return context.WithValue(ctx, upstreamHeadersKey{}, headers)
}

func upstreamHeaders(ctx context.Context) map[string]string {
	headers := map[string]string{
		"Accept":          "application/json",
		"Accept-Encoding": "gzip",
	}
	if extra, ok := ctx.Value(upstreamHeadersKey{}).(map[string]string); ok {
		for key, value := range extra {
			headers[key] = value
		}
	}
	return headers
}

func sendRequest(ctx context.Context, method, url string, queryParams url.Values, headers map[string]string, body io.Reader, timeout ...int) (*http.Response, error) {
	// Get timeout value, if passed, or use environment variable
	t := globalTimeout
	if len(timeout) > 0 {
		t = timeout[0]
	}

	// Create new HTTP client with timeout
	client := http.Client{
		Timeout: time.Duration(t) * time.Second,
	}

	// Create a new request
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	// Set query parameters if provided
	if queryParams != nil {
		req.URL.RawQuery = queryParams.Encode()
	}

	// Set headers if provided
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	// Initiate request
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	// Initialize re-used variables
	var respBody []byte
	var err error

	// Read the body and set up a defer to close the body to avoid
	// leaking resources.
	defer resp.Body.Close()

	// Check for gzipped "Content-Encoding" header
	if resp.Header.Get("Content-Encoding") == "gzip" {
		// Decompress response body
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("error creating gzip reader: %s", err)
		}
		defer gzipReader.Close()

		// Read decompressed content
		respBody, err = io.ReadAll(gzipReader)
		if err != nil {
			return nil, fmt.Errorf("error reading decompressed data: %s", err)
		}
	} else {
		// Assume decompressed data
		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %s", err)
		}
	}
	return respBody, nil
}

// AlertClient talks to the upstream alert and vigency window endpoints.
type AlertClient struct {
	alertsEndpoint    string
	vigenciasEndpoint string
}

func NewAlertClient(alertsEndpoint, vigenciasEndpoint string) *AlertClient {
	return &AlertClient{
		alertsEndpoint:    strings.TrimRight(alertsEndpoint, "/"),
		vigenciasEndpoint: vigenciasEndpoint,
	}
}

func (ac *AlertClient) FetchAlerts(ctx context.Context, patientID string) ([]RawAlertRecord, error) {
	// Create span
	span, ctx := apm.StartSpan(ctx, "Get and Parse Data", "Alerts")
	defer span.End()

	endpoint := ac.alertsEndpoint + "/" + url.PathEscape(patientID)

	body, err := ac.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	// Unmarshal response into struct
	var payload AlertsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: unable to unmarshal alerts response: %v", ErrParse, err)
	}
	if !payload.Success || payload.Alertas == nil {
		return nil, fmt.Errorf("%w: invalid alerts response (patient: %s): %s", ErrParse, patientID, payload.Error)
	}

	return payload.Alertas, nil
}

func (ac *AlertClient) FetchVigencias(ctx context.Context) (map[string]int, error) {
	// Create span
	span, ctx := apm.StartSpan(ctx, "Get and Parse Data", "Vigencias")
	defer span.End()

	body, err := ac.get(ctx, ac.vigenciasEndpoint)
	if err != nil {
		return nil, err
	}

	var payload VigenciasResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: unable to unmarshal vigencias response: %v", ErrParse, err)
	}
	if !payload.Success || payload.Vigencias == nil {
		return nil, fmt.Errorf("%w: invalid vigencias response", ErrParse)
	}

	return payload.Vigencias, nil
}

func (ac *AlertClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	resp, err := sendRequest(ctx, http.MethodGet, endpoint, nil, upstreamHeaders(ctx), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	// Read the body
	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	// Verify status code
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: request %s failed (%d): %s", ErrNetwork, endpoint, resp.StatusCode, string(body))
	}

	return body, nil
}
