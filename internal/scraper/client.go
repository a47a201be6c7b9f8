// Package scraper fetches movie and music listings from the upstream scraping
// services and reconciles every valid item into the local catalog.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout    = 15 * time.Second
	defaultRetries    = 1
	retryDelay        = 200 * time.Millisecond
	maxResponseLength = 8 << 20
)

// ErrUpstream marks the upstream service as temporarily unavailable: non-200
// status, empty or malformed body, or a network failure past the retry budget.
// Callers must not read it as "no results".
var ErrUpstream = errors.New("scraper: upstream unavailable")

var (
	errMissingBaseURL = errors.New("scraper: base url is required")
	errMissingCatalog = errors.New("scraper: catalog dependency is required")
)

type fetcher struct {
	baseURL    string
	accessKey  string
	httpClient *http.Client
	timeout    time.Duration
	retries    int
	logger     *zap.Logger
}

// fetchItems performs one authenticated GET against the upstream endpoint and
// decodes the JSON array envelope. Transient network failures consume the
// retry budget; all terminal failures surface as ErrUpstream.
func (f *fetcher) fetchItems(ctx context.Context, endpoint string, params url.Values) ([]map[string]any, error) {
	target, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	target = target.JoinPath(endpoint)
	target.RawQuery = params.Encode()

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, err := f.get(callCtx, target.String())
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: empty response body", ErrUpstream)
	}

	var items []map[string]any
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUpstream, err)
	}
	return items, nil
}

func (f *fetcher) get(ctx context.Context, target string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrUpstream, ctx.Err())
			case <-time.After(retryDelay):
			}
		}

		request, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		request.Header.Set("Accept", "application/json")
		if f.accessKey != "" {
			request.Header.Set("Authorization", "Bearer "+f.accessKey)
		}

		response, err := f.httpClient.Do(request)
		if err != nil {
			lastErr = err
			f.logger.Warn("upstream request failed",
				zap.String("url", target),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(response.Body, maxResponseLength))
		response.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if response.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", ErrUpstream, response.StatusCode)
		}
		return body, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUpstream, lastErr)
}

func intParam(value int) string {
	return strconv.Itoa(value)
}
