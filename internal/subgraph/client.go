package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Default configuration values.
const (
	DefaultEndpoint   = "https://api.thegraph.com/subgraphs/name/uniswap/uniswap-v3"
	DefaultTimeout    = 30 * time.Second
	DefaultAttempts   = 5
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultPageSize   = 1000
	DefaultPages      = 6
)

var (
	// ErrNotFound is returned when the subgraph has no entity for an id.
	ErrNotFound = errors.New("entity not found")
	// ErrTruncated is returned when a list query fills every page it may read.
	ErrTruncated = errors.New("result exceeds page limit")
)

// Client queries a Uniswap V3 subgraph over GraphQL.
type Client struct {
	endpoint   string
	client     *http.Client
	apiKey     string
	attempts   uint
	retryDelay time.Duration
	pageSize   int
	pages      int
	logger     *zap.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithAPIKey sends the key as a bearer token (gateway deployments).
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithAttempts sets the number of tries per query.
func WithAttempts(n uint) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithRetryDelay sets the base delay between tries.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithPaging sets how many pages of pageSize rows a list query reads.
func WithPaging(pages, pageSize int) ClientOption {
	return func(c *Client) {
		if pages > 0 {
			c.pages = pages
		}
		if pageSize > 0 {
			c.pageSize = pageSize
		}
	}
}

func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a subgraph client. An empty endpoint selects DefaultEndpoint.
func New(endpoint string, opts ...ClientOption) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: DefaultTimeout},
		attempts:   DefaultAttempts,
		retryDelay: DefaultRetryDelay,
		pageSize:   DefaultPageSize,
		pages:      DefaultPages,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

func (e gqlError) Error() string {
	return e.Message
}

// query runs one GraphQL request and decodes its data into out.
// Transport, status and GraphQL errors are all retried.
func (c *Client) query(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return retry.Do(
		func() error {
			return c.do(ctx, body, out)
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("subgraph query failed", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

func (c *Client) do(ctx context.Context, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(respBody, 256))
	}

	var gqlResp gqlResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return fmt.Errorf("graphql: %w", gqlResp.Errors[0])
	}
	if err := json.Unmarshal(gqlResp.Data, out); err != nil {
		return retry.Unrecoverable(fmt.Errorf("unmarshal data: %w", err))
	}
	return nil
}

// paged reads every page of a list query concurrently and concatenates
// the rows in page order. The query must declare $first and $skip.
// A full last page means rows were left unread and fails with ErrTruncated.
func paged[T any](ctx context.Context, c *Client, name, query string, vars map[string]any) ([]T, error) {
	results := make([][]T, c.pages)

	g, gctx := errgroup.WithContext(ctx)
	for page := 0; page < c.pages; page++ {
		g.Go(func() error {
			pageVars := maps.Clone(vars)
			if pageVars == nil {
				pageVars = make(map[string]any, 2)
			}
			pageVars["first"] = c.pageSize
			pageVars["skip"] = page * c.pageSize

			var data map[string][]T
			if err := c.query(gctx, query, pageVars, &data); err != nil {
				return fmt.Errorf("%s page %d: %w", name, page, err)
			}
			results[page] = data[name]
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(results[c.pages-1]) >= c.pageSize {
		return nil, fmt.Errorf("%s over %d rows: %w", name, c.pages*c.pageSize, ErrTruncated)
	}

	var out []T
	for _, rows := range results {
		out = append(out, rows...)
	}
	c.logger.Debug("subgraph rows", zap.String("entity", name), zap.Int("rows", len(out)))
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
