package wpets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/petitionwatch/backend/internal/logger"
	"github.com/petitionwatch/backend/internal/utils"
)

// Client talks to the UK Parliament petitions API. Bulk operations fan out
// over a bounded worker pool, partition per-item outcomes into
// success/failure, and retry only the failed subset each round.
type Client interface {
	Fetch(ctx context.Context, id int64, opts FetchOptions) (*FetchResult, error)
	FetchPage(ctx context.Context, index int, query ListQuery) (*PageResult, error)
	FetchMany(ctx context.Context, reqs []FetchRequest, opts BulkOptions) *BulkResult
	QueryPages(ctx context.Context, query ListQuery, opts BulkOptions) (*PageBulkResult, error)
	ListIDs(ctx context.Context, query ListQuery, opts BulkOptions) (map[int64]struct{}, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	httpClient *http.Client
	maxWorkers int

	// overridable in tests
	now   func() time.Time
	sleep func(time.Duration)
}

func NewClient(log *logger.Logger) Client {
	clientLog := log.With("client", "WPetsClient")

	baseURL := strings.TrimRight(utils.GetEnv("WPETS_BASE_URL", "https://petition.parliament.uk", log), "/")
	timeoutSec := utils.GetEnvAsInt("WPETS_TIMEOUT_SECONDS", 10, log)
	maxWorkers := utils.GetEnvAsInt("WPETS_MAX_WORKERS", 24, log)
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	return &client{
		log:        clientLog,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxWorkers: maxWorkers,
		now:        func() time.Time { return time.Now().UTC() },
		sleep:      time.Sleep,
	}
}

func (c *client) detailURL(id int64, archived bool) string {
	if archived {
		return fmt.Sprintf("%s/archived/petitions/%d.json", c.baseURL, id)
	}
	return fmt.Sprintf("%s/petitions/%d.json", c.baseURL, id)
}

func (c *client) pageURL(index int, query ListQuery) string {
	path := "/petitions.json"
	if query.Archived {
		path = "/archived/petitions.json"
	}
	params := url.Values{}
	params.Set("page", strconv.Itoa(index))
	params.Set("state", query.State)
	if len(query.Terms) > 0 {
		params.Set("q", strings.Join(query.Terms, ","))
	}
	return c.baseURL + path + "?" + params.Encode()
}

func validateState(state string) error {
	for _, s := range ListStates {
		if state == s {
			return nil
		}
	}
	return &ValidationError{Param: "state", Value: state, Allowed: ListStates}
}

// Fetch gets one petition. A 404 yields (nil, nil) unless opts.Raise404.
func (c *client) Fetch(ctx context.Context, id int64, opts FetchOptions) (*FetchResult, error) {
	rawURL := c.detailURL(id, opts.Archived)
	c.log.Debug("fetching petition", "id", id, "url", rawURL)

	body, status, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, &TransportError{Op: "fetch petition", URL: rawURL, Err: err}
	}

	switch {
	case status == http.StatusOK:
		result := &FetchResult{ID: id, Raw: body, Timestamp: c.now()}
		payload := &Payload{}
		if err := json.Unmarshal(body, payload); err != nil {
			return nil, &TransportError{Op: "fetch petition", URL: rawURL, Err: err}
		}
		result.Payload = payload
		return result, nil
	case status == http.StatusNotFound:
		if opts.Raise404 {
			return nil, fmt.Errorf("fetch petition ID %d: %w", id, ErrNotFound)
		}
		c.log.Warn("petition not found", "id", id)
		return nil, nil
	default:
		return nil, &TransportError{Op: "fetch petition", URL: rawURL, StatusCode: status}
	}
}

// FetchPage gets one listing page. The state param is validated before any
// network call.
func (c *client) FetchPage(ctx context.Context, index int, query ListQuery) (*PageResult, error) {
	if err := validateState(query.State); err != nil {
		return nil, err
	}

	rawURL := c.pageURL(index, query)
	c.log.Debug("fetching page", "index", index, "url", rawURL)

	body, status, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, &TransportError{Op: "fetch page", URL: rawURL, Err: err}
	}
	if status != http.StatusOK {
		return nil, &TransportError{Op: "fetch page", URL: rawURL, StatusCode: status}
	}

	envelope := pageEnvelope{}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &TransportError{Op: "fetch page", URL: rawURL, Err: err}
	}
	return &PageResult{Index: index, Data: envelope.Data, Links: envelope.Links, Timestamp: c.now()}, nil
}

// FetchMany issues one GET per request concurrently, then keeps retrying the
// failed subset until the budget runs out. 404s are permanent failures and
// are never retried. Result order is unrelated to input order.
func (c *client) FetchMany(ctx context.Context, reqs []FetchRequest, opts BulkOptions) *BulkResult {
	result := &BulkResult{}
	pending := reqs
	budget := opts.MaxRetries

	for {
		success, retryable, permanent := c.fetchRound(ctx, pending)
		result.Success = append(result.Success, success...)
		result.Failed = append(result.Failed, permanent...)

		if len(retryable) == 0 || budget <= 0 {
			result.Failed = append(result.Failed, retryable...)
			break
		}

		budget--
		pending = pending[:0:0]
		for _, r := range retryable {
			pending = append(pending, r.req)
		}
		c.log.Warn("retrying failed petition fetches",
			"count", len(pending), "retries_left", budget, "backoff", opts.Backoff)
		c.sleep(opts.Backoff)
	}

	c.log.Info("bulk petition fetch completed",
		"success", len(result.Success), "failed", len(result.Failed))
	return result
}

func (c *client) fetchRound(ctx context.Context, reqs []FetchRequest) (success, retryable, permanent []*FetchResult) {
	results := make([]*FetchResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = c.fetchItem(gctx, req)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch {
		case r.Err == nil:
			success = append(success, r)
		case errors.Is(r.Err, ErrNotFound):
			permanent = append(permanent, r)
		default:
			retryable = append(retryable, r)
		}
	}
	return success, retryable, permanent
}

func (c *client) fetchItem(ctx context.Context, req FetchRequest) *FetchResult {
	result := &FetchResult{ID: req.ID, Petition: req.Petition, req: req}
	rawURL := c.detailURL(req.ID, req.Archived)

	body, status, err := c.get(ctx, rawURL)
	if err != nil {
		result.Err = &TransportError{Op: "bulk fetch petition", URL: rawURL, Err: err}
		return result
	}
	if status == http.StatusNotFound {
		result.Err = fmt.Errorf("bulk fetch petition ID %d: %w", req.ID, ErrNotFound)
		return result
	}
	if status != http.StatusOK {
		result.Err = &TransportError{Op: "bulk fetch petition", URL: rawURL, StatusCode: status}
		return result
	}

	payload := &Payload{}
	if err := json.Unmarshal(body, payload); err != nil {
		result.Err = &TransportError{Op: "bulk fetch petition", URL: rawURL, Err: err}
		return result
	}
	result.Payload = payload
	result.Raw = body
	result.Timestamp = c.now()
	c.log.Debug("bulk fetched petition", "id", req.ID)
	return result
}

// QueryPages fetches every listing page for a query. Page 1 is fetched
// synchronously to learn the page count from the pagination links; the rest
// fan out with the same retry shape as FetchMany.
func (c *client) QueryPages(ctx context.Context, query ListQuery, opts BulkOptions) (*PageBulkResult, error) {
	if err := validateState(query.State); err != nil {
		return nil, err
	}

	first, err := c.FetchPage(ctx, 1, query)
	if err != nil {
		return nil, err
	}

	result := &PageBulkResult{Success: []*PageResult{first}}
	last := lastPageIndex(first.Links)
	if last <= 1 {
		return result, nil
	}

	pending := make([]int, 0, last-1)
	for i := 2; i <= last; i++ {
		pending = append(pending, i)
	}
	budget := opts.MaxRetries

	for {
		success, failed := c.pageRound(ctx, pending, query)
		result.Success = append(result.Success, success...)

		if len(failed) == 0 || budget <= 0 {
			result.Failed = append(result.Failed, failed...)
			break
		}

		budget--
		pending = pending[:0:0]
		for _, p := range failed {
			pending = append(pending, p.Index)
		}
		c.log.Warn("retrying failed page fetches",
			"indexes", pending, "retries_left", budget, "backoff", opts.Backoff)
		c.sleep(opts.Backoff)
	}

	c.log.Info("paged query completed",
		"state", query.State, "pages_ok", len(result.Success), "pages_failed", len(result.Failed))
	return result, nil
}

func (c *client) pageRound(ctx context.Context, indexes []int, query ListQuery) (success, failed []*PageResult) {
	results := make([]*PageResult, len(indexes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)
	for i, index := range indexes {
		i, index := i, index
		g.Go(func() error {
			page, err := c.FetchPage(gctx, index, query)
			if err != nil {
				page = &PageResult{Index: index, Err: err}
			}
			results[i] = page
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r.Err == nil {
			success = append(success, r)
		} else {
			failed = append(failed, r)
		}
	}
	return success, failed
}

// ListIDs collects the ids of every petition matching the query. Errors if
// not a single page could be fetched.
func (c *client) ListIDs(ctx context.Context, query ListQuery, opts BulkOptions) (map[int64]struct{}, error) {
	pages, err := c.QueryPages(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if len(pages.Success) == 0 {
		return nil, &TransportError{Op: "list ids", Err: fmt.Errorf("all %d pages failed", len(pages.Failed))}
	}

	ids := make(map[int64]struct{})
	for _, page := range pages.Success {
		for _, item := range page.Data {
			ids[item.ID] = struct{}{}
		}
	}
	return ids, nil
}

func (c *client) get(ctx context.Context, rawURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

// lastPageIndex extracts the final page number from the pagination links.
func lastPageIndex(links Links) int {
	if links.Next == nil || *links.Next == "" {
		return 1
	}
	if links.Last == nil {
		return 1
	}
	parsed, err := url.Parse(*links.Last)
	if err != nil {
		return 1
	}
	page := parsed.Query().Get("page")
	if page == "" {
		return 1
	}
	n, err := strconv.Atoi(page)
	if err != nil || n < 1 {
		return 1
	}
	return n
}
