package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/roach88/tramites/internal/tramite"
	"github.com/roach88/tramites/internal/value"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultBaseURL       = "https://www.gob.bo/ws/api/portal"
	DefaultPageSize      = 30
	DefaultMaxConcurrent = 10
	DefaultUserAgent     = "Mozilla/5.0"
	DefaultTimeout       = 30 * time.Second
)

// Options configures a Client.
type Options struct {
	BaseURL       string
	PageSize      int
	MaxConcurrent int
	// MaxRecords limits FetchAll to the first n entries; 0 fetches all.
	MaxRecords int
	// RequestsPerSecond paces requests; 0 disables pacing.
	RequestsPerSecond float64
	Retry             RetryPolicy
	UserAgent         string
	HTTPClient        *http.Client
}

// Client talks to the portal API.
type Client struct {
	baseURL       string
	pageSize      int
	maxConcurrent int
	maxRecords    int
	retry         RetryPolicy
	userAgent     string
	http          *http.Client
	limiter       *rate.Limiter
	logger        logrus.FieldLogger
}

// Entry is one row of the catalog index.
type Entry struct {
	ID     value.Value `json:"id"`
	Nombre string      `json:"nombre"`
	Slug   string      `json:"slug"`
}

// Failure is an entry whose detail could not be fetched.
type Failure struct {
	Entry
	Error string `json:"error"`
}

// NewClient creates a client, filling zero options with defaults.
func NewClient(opts Options, logger logrus.FieldLogger) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		pageSize:      opts.PageSize,
		maxConcurrent: opts.MaxConcurrent,
		maxRecords:    opts.MaxRecords,
		retry:         opts.Retry,
		userAgent:     opts.UserAgent,
		http:          opts.HTTPClient,
		logger:        logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	if c.maxConcurrent <= 0 {
		c.maxConcurrent = DefaultMaxConcurrent
	}
	if c.retry == (RetryPolicy{}) {
		c.retry = DefaultRetryPolicy
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), c.maxConcurrent)
	}
	if c.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.logger = l
	}
	return c
}

type listResponse struct {
	Datos struct {
		Filas []value.Object `json:"filas"`
		Total int            `json:"total"`
	} `json:"datos"`
}

type detailResponse struct {
	Datos value.Object `json:"datos"`
}

// List pages through the catalog index until the reported total is reached
// or a page comes back empty. Entries are deduplicated by slug; a later
// duplicate replaces the earlier one but keeps its position.
func (c *Client) List(ctx context.Context) ([]Entry, error) {
	var (
		entries   []Entry
		positions = map[string]int{}
		collected int
	)

	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/tramites?pagina=%d&limite=%d", c.baseURL, page, c.pageSize)

		var resp listResponse
		if err := c.getJSON(ctx, u, &resp); err != nil {
			return nil, fmt.Errorf("list page %d: %w", page, err)
		}

		for _, fila := range resp.Datos.Filas {
			e := entryOf(fila)
			if i, ok := positions[e.Slug]; ok {
				entries[i] = e
				continue
			}
			positions[e.Slug] = len(entries)
			entries = append(entries, e)
		}
		collected += len(resp.Datos.Filas)

		c.logger.WithFields(logrus.Fields{
			"page":      page,
			"collected": collected,
			"total":     resp.Datos.Total,
		}).Debug("listed catalog page")

		if len(resp.Datos.Filas) == 0 || collected >= resp.Datos.Total {
			break
		}
	}

	c.logger.WithField("entries", len(entries)).Info("catalog listed")
	return entries, nil
}

func entryOf(fila value.Object) Entry {
	e := Entry{ID: fila.Get(tramite.FieldID)}
	if e.ID == nil {
		e.ID = value.Null{}
	}
	if s, ok := fila.Get(tramite.FieldNombre).(value.String); ok {
		e.Nombre = string(s)
	}
	if s, ok := fila.Get(tramite.FieldSlug).(value.String); ok {
		e.Slug = string(s)
	}
	return e
}

// Get downloads the detail document of one procedure.
func (c *Client) Get(ctx context.Context, slug string) (value.Object, error) {
	u := fmt.Sprintf("%s/tramites/%s", c.baseURL, url.PathEscape(slug))

	var resp detailResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if resp.Datos == nil {
		return nil, fmt.Errorf("GET %s: response has no datos", u)
	}
	return resp.Datos, nil
}

// FetchAll downloads every entry's detail with at most MaxConcurrent
// requests in flight. Records come back in listing order; failures carry
// the listing entry and the final error. The returned error is non-nil only
// when ctx is cancelled.
func (c *Client) FetchAll(ctx context.Context, entries []Entry) ([]value.Object, []Failure, error) {
	if c.maxRecords > 0 && len(entries) > c.maxRecords {
		entries = entries[:c.maxRecords]
	}

	records := make([]value.Object, len(entries))
	errs := make([]error, len(entries))

	var (
		mu   sync.Mutex
		done int
	)

	var g errgroup.Group
	g.SetLimit(c.maxConcurrent)
	for i, e := range entries {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rec, err := c.Get(ctx, e.Slug)
			records[i], errs[i] = rec, err

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if err != nil {
				c.logger.WithField("slug", e.Slug).Warnf("fetch failed: %v", err)
			}
			if n%100 == 0 || n == len(entries) {
				c.logger.WithFields(logrus.Fields{"done": n, "total": len(entries)}).Info("fetching procedures")
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		ok       = make([]value.Object, 0, len(entries))
		failures []Failure
	)
	for i, e := range entries {
		if errs[i] != nil {
			failures = append(failures, Failure{Entry: e, Error: errs[i].Error()})
			continue
		}
		ok = append(ok, records[i])
	}
	return ok, failures, nil
}

// getJSON performs a GET with retries and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	for attempt := 0; ; attempt++ {
		err := c.attempt(ctx, u, out)
		if err == nil {
			return nil
		}
		if attempt >= c.retry.MaxRetries || !retryable(ctx, err) {
			return err
		}

		delay := c.retry.Delay(attempt)
		c.logger.WithFields(logrus.Fields{
			"url":     u,
			"attempt": attempt + 1,
			"delay":   delay,
		}).Debugf("retrying after error: %v", err)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) attempt(ctx context.Context, u string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{URL: u, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return permanent(fmt.Errorf("decode %s: %w", u, err))
	}
	return nil
}
