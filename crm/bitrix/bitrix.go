// Package bitrix fetches deal snapshots from a Bitrix24 REST webhook.
package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"sales-funnel-analytics/config"
	"sales-funnel-analytics/models"
	"sales-funnel-analytics/utils"
)

// pageSize is fixed by the Bitrix24 list API.
const pageSize = 50

const (
	methodDealList     = "crm.deal.list"
	methodUserGet      = "user.get"
	methodCategoryList = "crm.dealcategory.list"
)

// ErrAPI is returned when Bitrix24 answers with an error payload.
var ErrAPI = errors.New("bitrix api error")

// Client acquires raw CRM snapshots. Page fetches run on a bounded worker
// pool; every request, pooled or not, waits on one shared rate limiter.
type Client struct {
	webhook     string
	limit       int
	window      func(now time.Time) (from, to time.Time)
	concurrency int
	http        *http.Client
	limiter     *rate.Limiter
	retry       *utils.RetryConfig
	logger      *utils.Logger
	now         func() time.Time
}

// New creates a ready-to-use Client.
func New(cfg *config.Config, logger *utils.Logger) *Client {
	return &Client{
		webhook:     strings.TrimRight(cfg.BitrixWebhook, "/"),
		limit:       cfg.DealLimit,
		window:      cfg.Window,
		concurrency: cfg.MaxConcurrency,
		http:        &http.Client{Timeout: cfg.RequestTimeout},
		limiter:     utils.NewLimiter(time.Duration(cfg.RateLimitMs) * time.Millisecond),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   time.Second,
			Logger:      logger,
		},
		logger: logger,
		now:    time.Now,
	}
}

type response struct {
	Result           json.RawMessage `json:"result"`
	Next             *int            `json:"next"`
	Total            int             `json:"total"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// Snapshot fetches deals in the configured fetch window together with the
// user and category lookups. Lookup failures degrade to empty lookups; only a
// failed deal fetch fails the snapshot.
func (c *Client) Snapshot(ctx context.Context) (*models.Snapshot, error) {
	now := c.now()
	from, to := c.window(now)

	snap := &models.Snapshot{FetchedAt: now}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		deals, err := c.FetchDeals(gctx, from, to)
		if err != nil {
			return err
		}
		snap.Deals = deals
		return nil
	})
	g.Go(func() error {
		users, err := c.FetchUsers(gctx)
		if err != nil {
			c.logger.Warn("[bitrix] User lookup unavailable, managers shown by id: %v", err)
			return nil
		}
		snap.Users = users
		return nil
	})
	g.Go(func() error {
		cats, err := c.FetchCategories(gctx)
		if err != nil {
			c.logger.Warn("[bitrix] Category lookup unavailable: %v", err)
			return nil
		}
		snap.Categories = cats
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Info("[bitrix] Snapshot: %d deals, %d users, %d categories",
		len(snap.Deals), len(snap.Users), len(snap.Categories))
	return snap, nil
}

// FetchDeals returns deals created or closed within [from, to], merged by ID,
// ordered by numeric ID and truncated to the configured limit.
func (c *Client) FetchDeals(ctx context.Context, from, to time.Time) ([]models.RawDeal, error) {
	var created, closed []map[string]any
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		created, err = c.list(gctx, methodDealList, dealParams(models.FieldCreatedAt, from, to))
		return err
	})
	g.Go(func() error {
		var err error
		closed, err = c.list(gctx, methodDealList, dealParams(models.FieldClosedAt, from, to))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bitrix: fetch deals: %w", err)
	}

	byID := make(map[string]models.RawDeal, len(created)+len(closed))
	seen := utils.NewIDSet()
	var ids []string
	for _, item := range append(created, closed...) {
		id := fmt.Sprint(item[models.FieldID])
		if seen.Add(id) {
			ids = append(ids, id)
		}
		byID[id] = models.RawDeal(item)
	}

	slices.SortStableFunc(ids, utils.CompareIDs)
	if c.limit > 0 && len(ids) > c.limit {
		ids = ids[:c.limit]
	}

	deals := make([]models.RawDeal, 0, len(ids))
	for _, id := range ids {
		deals = append(deals, byID[id])
	}

	c.logger.Info("[bitrix] Deals: %d created + %d closed in window → %d unique",
		len(created), len(closed), len(deals))
	return deals, nil
}

// FetchUsers returns the manager id→display-name lookup.
func (c *Client) FetchUsers(ctx context.Context) (map[string]string, error) {
	items, err := c.list(ctx, methodUserGet, nil)
	if err != nil {
		return nil, fmt.Errorf("bitrix: fetch users: %w", err)
	}

	users := make(map[string]string, len(items))
	for _, u := range items {
		name := strings.TrimSpace(fmt.Sprintf("%s %s", str(u["NAME"]), str(u["LAST_NAME"])))
		if name == "" {
			continue
		}
		users[str(u["ID"])] = name
	}
	return users, nil
}

// FetchCategories returns the deal category id→name lookup.
func (c *Client) FetchCategories(ctx context.Context) (map[string]string, error) {
	items, err := c.list(ctx, methodCategoryList, nil)
	if err != nil {
		return nil, fmt.Errorf("bitrix: fetch categories: %w", err)
	}

	cats := make(map[string]string, len(items))
	for _, cat := range items {
		cats[str(cat["ID"])] = str(cat["NAME"])
	}
	return cats, nil
}

// list fetches every page of a list method. The first page reveals the total;
// the remaining pages are fetched concurrently and reassembled in order.
func (c *Client) list(ctx context.Context, method string, params url.Values) ([]map[string]any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	first, err := c.call(ctx, method, withStart(params, 0))
	if err != nil {
		return nil, err
	}
	items, err := decodeItems(first.Result)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if first.Next == nil || len(items) == 0 {
		return items, nil
	}
	if first.Total <= *first.Next {
		c.logger.Warn("[bitrix] %s: next=%d without a usable total (%d), paging sequentially",
			method, *first.Next, first.Total)
		return c.follow(ctx, method, params, items, *first.Next)
	}

	var starts []int
	for start := *first.Next; start < first.Total; start += pageSize {
		starts = append(starts, start)
	}
	c.logger.Debug("[bitrix] %s: %d items across %d more pages", method, first.Total, len(starts))

	pages := make([][]map[string]any, len(starts))
	fetched := make([]bool, len(starts))
	var (
		mu       sync.Mutex
		firstErr error
	)
	pool := utils.NewWorkerPool(c.concurrency, c.limiter)
	for i, start := range starts {
		pool.Submit(ctx, func(ctx context.Context) {
			fetched[i] = true
			resp, err := c.call(ctx, method, withStart(params, start))
			if err == nil {
				pages[i], err = decodeItems(resp.Result)
			}
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%s start=%d: %w", method, start, err)
				}
				mu.Unlock()
			}
		})
	}
	pool.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	// The pool skips jobs whose rate-limit wait would outlive ctx.
	for i, ok := range fetched {
		if !ok {
			return nil, fmt.Errorf("%s start=%d: %w", method, starts[i], errPageSkipped(ctx))
		}
	}
	for _, page := range pages {
		items = append(items, page...)
	}
	return items, nil
}

// follow pages through a list one request at a time by its next cursor.
func (c *Client) follow(ctx context.Context, method string, params url.Values, items []map[string]any, next int) ([]map[string]any, error) {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := c.call(ctx, method, withStart(params, next))
		if err != nil {
			return nil, fmt.Errorf("%s start=%d: %w", method, next, err)
		}
		page, err := decodeItems(resp.Result)
		if err != nil {
			return nil, fmt.Errorf("%s start=%d: %w", method, next, err)
		}
		items = append(items, page...)
		// A cursor that does not advance would loop forever.
		if resp.Next == nil || len(page) == 0 || *resp.Next <= next {
			return items, nil
		}
		next = *resp.Next
	}
}

// call performs one API request with retries. HTTP 4xx responses other than
// 429 and API error payloads other than rate-limit errors are not retried.
func (c *Client) call(ctx context.Context, method string, params url.Values) (*response, error) {
	endpoint := c.webhook + "/" + method + ".json"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var out *response
	err := c.retry.Do(ctx, method, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return utils.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		var r response
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		decodeErr := dec.Decode(&r)

		if r.Error != "" {
			apiErr := fmt.Errorf("%w: %s: %s", ErrAPI, r.Error, r.ErrorDescription)
			if r.Error == "QUERY_LIMIT_EXCEEDED" {
				return apiErr
			}
			return utils.Permanent(apiErr)
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("http status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return utils.Permanent(fmt.Errorf("http status %d", resp.StatusCode))
		}
		if decodeErr != nil {
			return utils.Permanent(fmt.Errorf("decode response: %w", decodeErr))
		}
		out = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func errPageSkipped(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return errors.New("page skipped: rate limit wait exceeds deadline")
}

// decodeItems accepts both a bare result array and {"items": [...]}.
func decodeItems(raw json.RawMessage) ([]map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if raw[0] == '{' {
		var wrapped struct {
			Items []map[string]any `json:"items"`
		}
		if err := dec.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		return wrapped.Items, nil
	}

	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	return items, nil
}

func dealParams(field string, from, to time.Time) url.Values {
	p := url.Values{}
	for _, f := range models.RawFields {
		p.Add("select[]", f)
	}
	p.Set("filter[>="+field+"]", from.Format("2006-01-02"))
	p.Set("filter[<="+field+"]", to.Format("2006-01-02"))
	return p
}

func withStart(params url.Values, start int) url.Values {
	p := url.Values{}
	for k, v := range params {
		p[k] = slices.Clone(v)
	}
	p.Set("start", strconv.Itoa(start))
	return p
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
