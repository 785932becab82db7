package upstream

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

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/docsmith/docsync/internal/models"
)

const maxResponseBody = 8 << 20 // 8 MiB

type Config struct {
	BaseURL        string
	Token          string
	PageSize       int
	MaxPages       int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

func (c *Config) applyDefaults() {
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 1000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// Client talks to the tenant-scoped platform REST API, hiding pagination and
// transient-failure handling from its callers.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "upstream").Logger(),
	}
}

// RecipeFilter narrows a recipe listing. UpdatedAfter is the incremental
// fetch watermark; a nil value requests the full set.
type RecipeFilter struct {
	FolderID     *int64
	UpdatedAfter *time.Time
}

func (c *Client) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	return listPages[models.Tenant](ctx, c, "/v1/accounts", nil)
}

func (c *Client) ListProjects(ctx context.Context, tenantID int64) ([]models.Project, error) {
	return listPages[models.Project](ctx, c, fmt.Sprintf("/v1/accounts/%d/projects", tenantID), nil)
}

func (c *Client) ListRecipes(ctx context.Context, tenantID int64, filter RecipeFilter) ([]models.Recipe, error) {
	query := url.Values{}
	if filter.FolderID != nil {
		query.Set("folder_id", strconv.FormatInt(*filter.FolderID, 10))
	}
	if filter.UpdatedAfter != nil {
		query.Set("updated_after", filter.UpdatedAfter.UTC().Format(time.RFC3339))
	}
	return listPages[models.Recipe](ctx, c, fmt.Sprintf("/v1/accounts/%d/recipes", tenantID), query)
}

func (c *Client) ListLookupTables(ctx context.Context, tenantID int64) ([]models.LookupTable, error) {
	return listPages[models.LookupTable](ctx, c, fmt.Sprintf("/v1/accounts/%d/lookup_tables", tenantID), nil)
}

// ListTableRows fetches up to limit sample rows of a lookup table. Sampling
// never walks past the first page.
func (c *Client) ListTableRows(ctx context.Context, tenantID, tableID int64, limit int) ([]models.TableRow, error) {
	query := url.Values{}
	query.Set("page", "1")
	query.Set("per_page", strconv.Itoa(limit))
	var pg page[models.TableRow]
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/accounts/%d/lookup_tables/%d/rows", tenantID, tableID), query, &pg); err != nil {
		return nil, err
	}
	if len(pg.Items) > limit {
		pg.Items = pg.Items[:limit]
	}
	return pg.Items, nil
}

// FilterTenants keeps tenants whose numeric id or external id exactly matches
// one of the supplied identifiers. No substring or prefix matching.
func FilterTenants(tenants []models.Tenant, idents []string) []models.Tenant {
	if len(idents) == 0 {
		return tenants
	}
	wanted := make(map[string]struct{}, len(idents))
	for _, id := range idents {
		wanted[id] = struct{}{}
	}
	var out []models.Tenant
	for _, t := range tenants {
		if _, ok := wanted[strconv.FormatInt(t.ID, 10)]; ok {
			out = append(out, t)
			continue
		}
		if t.ExternalID != nil {
			if _, ok := wanted[*t.ExternalID]; ok {
				out = append(out, t)
			}
		}
	}
	return out
}

type page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// listPages walks numbered pages of a fixed size until an empty page arrives
// or the accumulated count reaches the server-reported total.
func listPages[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T
	for pageNum := 1; ; pageNum++ {
		if pageNum > c.cfg.MaxPages {
			return nil, &PaginationError{Resource: path, Pages: c.cfg.MaxPages}
		}
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("page", strconv.Itoa(pageNum))
		q.Set("per_page", strconv.Itoa(c.cfg.PageSize))

		var pg page[T]
		if err := c.getJSON(ctx, path, q, &pg); err != nil {
			return nil, err
		}
		if len(pg.Items) == 0 {
			break
		}
		all = append(all, pg.Items...)
		if pg.Total > 0 && len(all) >= pg.Total {
			break
		}
	}
	return all, nil
}

// getJSON performs one logical GET with retries. The correlation id is
// generated once per logical request and reused across retries.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	requestID := uuid.NewString()
	requestURL := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var lastUpstream *UpstreamError
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, backoff.Permanent(errors.Wrap(err, "build request"))
		}
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-Id", requestID)

		resp, err := c.http.Do(req)
		if err != nil {
			lastUpstream = &UpstreamError{Message: err.Error()}
			return nil, lastUpstream
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if readErr != nil {
			lastUpstream = &UpstreamError{StatusCode: resp.StatusCode, Message: readErr.Error()}
			return nil, lastUpstream
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return body, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			lastUpstream = &UpstreamError{StatusCode: resp.StatusCode, Message: apiMessage(body)}
			if delay := retryAfter(resp); delay > 0 {
				if delay > c.cfg.MaxBackoff {
					delay = c.cfg.MaxBackoff
				}
				secs := int(delay / time.Second)
				if secs < 1 {
					secs = 1
				}
				return nil, backoff.RetryAfter(secs)
			}
			return nil, lastUpstream
		case resp.StatusCode >= 500:
			lastUpstream = &UpstreamError{StatusCode: resp.StatusCode, Message: apiMessage(body)}
			return nil, lastUpstream
		default:
			return nil, backoff.Permanent(&UpstreamError{StatusCode: resp.StatusCode, Message: apiMessage(body)})
		}
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.cfg.InitialBackoff
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.MaxInterval = c.cfg.MaxBackoff

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)+1),
	)
	if err != nil {
		var ue *UpstreamError
		if errors.As(err, &ue) {
			return ue
		}
		// Retry-after exhaustion surfaces the backoff sentinel; report the
		// last observed upstream failure instead.
		if lastUpstream != nil {
			return lastUpstream
		}
		return errors.Wrapf(err, "GET %s", path)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "decode response of GET %s", path)
	}
	return nil
}

func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

// apiMessage extracts a best-effort error message from a response body.
func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
