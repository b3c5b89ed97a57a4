// Package recipesource reads the pre-generated recipe bank from the hosted
// backend's REST endpoint.
package recipesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"despensa/internal/config"
	"despensa/internal/recipes"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const maxResponseBytes = 4 << 20

var tracer = otel.Tracer("despensa/internal/recipesource")

// Source supplies recipes of one category, at most limit of them.
type Source interface {
	Fetch(ctx context.Context, category string, limit int) ([]recipes.Recipe, error)
}

type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
}

var _ Source = (*Client)(nil)

func NewClient(cfg config.RecipesConfig) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.Logger = slog.Default()

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		http:    rc,
	}
}

// Fetch lists recipes in category. Rows that can't be normalized are skipped
// and logged rather than failing the whole page.
func (c *Client) Fetch(ctx context.Context, category string, limit int) ([]recipes.Recipe, error) {
	ctx, span := tracer.Start(ctx, "recipesource.Fetch", trace.WithAttributes(
		attribute.String("recipe.category", category),
		attribute.Int("recipe.limit", limit),
	))
	defer span.End()

	rows, err := c.fetchRows(ctx, category, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := make([]recipes.Recipe, 0, len(rows))
	for _, row := range rows {
		r, err := recipes.FromRow(row)
		if err != nil {
			slog.WarnContext(ctx, "skipping malformed recipe row", "category", category, "error", err)
			continue
		}
		out = append(out, r)
	}
	span.SetAttributes(attribute.Int("recipe.count", len(out)))
	return out, nil
}

func (c *Client) fetchRows(ctx context.Context, category string, limit int) ([]recipes.Row, error) {
	q := url.Values{}
	q.Set("select", "*")
	if category != "" {
		q.Set("category", "eq."+category)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := c.baseURL + "/rest/v1/recipes?" + q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build recipes request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request recipes: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read recipes response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var rows []recipes.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode recipes response: %w", err)
	}
	return rows, nil
}

// StatusError captures non-2xx responses from the recipe bank.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("recipes request failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("recipes request failed: status %d: %s", e.StatusCode, e.Body)
}
