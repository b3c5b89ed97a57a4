// Package generator talks to the hosted recipe and image generation
// functions. The ingredient core never calls it; its output is handed over as
// a plain recipe list.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"despensa/internal/config"
	"despensa/internal/recipes"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/invopop/jsonschema"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	ErrNotConfigured = errors.New("generator url is not configured")
	ErrEmptyResponse = errors.New("generator returned nothing")
)

var tracer = otel.Tracer("despensa/internal/generator")

type Request struct {
	People       int      `json:"people"`
	Days         int      `json:"days"`
	Meals        []string `json:"meals"`
	Restrictions []string `json:"restrictions,omitempty"`
}

type Client struct {
	baseURL string
	apiKey  string
	schema  map[string]any
	http    *retryablehttp.Client
}

func NewClient(cfg config.GeneratorConfig) *Client {
	r := jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schemaJSON := lo.Must(json.Marshal(r.Reflect(&recipes.Generated{})))
	var m map[string]any
	lo.Must0(json.Unmarshal(schemaJSON, &m))

	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.HTTPClient.Timeout = 90 * time.Second
	rc.Logger = slog.Default()

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		schema:  m,
		http:    rc,
	}
}

type generateRequest struct {
	Request
	Schema map[string]any `json:"schema"`
}

type generateResponse struct {
	Recipes []recipes.Generated `json:"recipes"`
}

type imageResponse struct {
	ImageURL string   `json:"imageUrl"`
	Images   []string `json:"images"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// GenerateRecipes asks for a fresh set of recipes. Generated recipes without a
// title are dropped.
func (c *Client) GenerateRecipes(ctx context.Context, req Request) ([]recipes.Recipe, error) {
	ctx, span := tracer.Start(ctx, "generator.GenerateRecipes")
	defer span.End()
	span.SetAttributes(
		attribute.Int("plan.people", req.People),
		attribute.Int("plan.days", req.Days),
		attribute.StringSlice("plan.meals", req.Meals),
	)

	var out generateResponse
	if err := c.post(ctx, "/generate-recipes", generateRequest{Request: req, Schema: c.schema}, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to generate recipes: %w", err)
	}

	generated := lo.Filter(out.Recipes, func(g recipes.Generated, _ int) bool {
		return strings.TrimSpace(g.Title) != ""
	})
	if len(generated) == 0 {
		return nil, ErrEmptyResponse
	}
	if dropped := len(out.Recipes) - len(generated); dropped > 0 {
		slog.WarnContext(ctx, "dropped untitled generated recipes", "count", dropped)
	}
	return lo.Map(generated, func(g recipes.Generated, _ int) recipes.Recipe {
		return recipes.FromGenerated(g)
	}), nil
}

// GenerateImage returns the url of a new illustration for category.
func (c *Client) GenerateImage(ctx context.Context, category string) (string, error) {
	ctx, span := tracer.Start(ctx, "generator.GenerateImage")
	defer span.End()

	var out imageResponse
	if err := c.post(ctx, "/generate-image", map[string]string{"category": category}, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to generate image: %w", err)
	}
	if out.ImageURL == "" {
		return "", ErrEmptyResponse
	}
	return out.ImageURL, nil
}

// Images lists already generated illustrations for category.
func (c *Client) Images(ctx context.Context, category string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "generator.Images")
	defer span.End()

	var out imageResponse
	if err := c.post(ctx, "/get-images", map[string]string{"category": category}, &out); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	return lo.Compact(out.Images), nil
}

// Illustrate fills in missing image urls. Existing illustrations of a
// category are reused in turn; a category without any gets a new one.
// Failures are logged and leave the recipe without an image.
func (c *Client) Illustrate(ctx context.Context, rs []recipes.Recipe) []recipes.Recipe {
	out := slices.Clone(rs)
	pools := map[string][]string{}
	next := map[string]int{}
	for i := range out {
		if out[i].ImageURL != "" {
			continue
		}
		category := out[i].Category
		pool, ok := pools[category]
		if !ok {
			images, err := c.Images(ctx, category)
			if err != nil {
				slog.WarnContext(ctx, "failed to list images", "category", category, "error", err)
			}
			pool = images
			pools[category] = pool
		}
		if len(pool) > 0 {
			out[i].ImageURL = pool[next[category]%len(pool)]
			next[category]++
			continue
		}
		url, err := c.GenerateImage(ctx, category)
		if err != nil {
			slog.WarnContext(ctx, "failed to illustrate recipe", "recipe", out[i].ID, "error", err)
			continue
		}
		out[i].ImageURL = url
		pools[category] = []string{url}
	}
	return out
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("generator error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("generator error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
