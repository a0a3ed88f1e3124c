package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// retryBackoff scales the delay between page retries: 1x, 2x, 4x.
var retryBackoff = time.Second

// FetchOptions control a REST identity pull.
type FetchOptions struct {
	// Token is sent as a Bearer Authorization header when set.
	Token string
	// PageLimit is the per-page record limit, server default when 0.
	PageLimit int
	// MaxPages caps the cursor walk, 100 when 0.
	MaxPages int
	// Retries is the per-page attempt count on 5xx responses, 3 when 0.
	Retries int
	// Client overrides the HTTP client.
	Client *http.Client
}

// Fetch pulls identity records from a REST feed. Pages have the shape
// {"api_keys": [...], "next": "<cursor>"}; an empty next ends the walk.
func Fetch(ctx context.Context, feedURL string, opts FetchOptions) ([]Record, error) {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	retries := opts.Retries
	if retries == 0 {
		retries = 3
	}
	maxPages := opts.MaxPages
	if maxPages == 0 {
		maxPages = 100
	}

	base, err := url.Parse(feedURL)
	if err != nil {
		return nil, fmt.Errorf("feed url: %w", err)
	}

	var all []Record
	cursor := ""
	for page := 0; page < maxPages; page++ {
		u := *base
		q := u.Query()
		if opts.PageLimit > 0 {
			q.Set("limit", strconv.Itoa(opts.PageLimit))
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		u.RawQuery = q.Encode()

		body, err := fetchPage(ctx, client, u.String(), opts.Token, retries)
		if err != nil {
			return nil, err
		}

		var pageDoc struct {
			APIKeys []Record `json:"api_keys"`
			Next    string   `json:"next"`
		}
		if err := json.Unmarshal(body, &pageDoc); err != nil {
			return nil, fmt.Errorf("parse feed page: %w", err)
		}

		all = append(all, pageDoc.APIKeys...)
		if pageDoc.Next == "" {
			break
		}
		cursor = pageDoc.Next
	}
	return all, nil
}

func fetchPage(ctx context.Context, client *http.Client, pageURL, token string, retries int) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(1<<(attempt-1)) * retryBackoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("feed returned %d", resp.StatusCode)
		default:
			return nil, fmt.Errorf("feed returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
	return nil, lastErr
}
