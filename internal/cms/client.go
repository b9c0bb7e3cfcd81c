package cms

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
	"sync"
	"time"

	"github.com/dgallion1/spacetraveling/internal/content"
	"github.com/dgallion1/spacetraveling/internal/site"
)

// ErrForeignCursor is returned when a cursor points outside the CMS API.
var ErrForeignCursor = fmt.Errorf("%w: cursor does not belong to the cms api", site.ErrBadCursor)

// refTTL bounds how long a master ref is reused before re-reading the API root.
const refTTL = 30 * time.Second

// Client communicates with a Prismic-style REST API.
type Client struct {
	apiURL      *url.URL
	accessToken string
	httpClient  *http.Client

	// Stats records the latency of every API call.
	Stats *Stats

	mu        sync.Mutex
	masterRef string
	refAt     time.Time
}

func NewClient(apiURL, accessToken string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(apiURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse cms url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported cms url scheme %q", u.Scheme)
	}
	return &Client{
		apiURL:      u,
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		Stats: NewStats(time.Hour),
	}, nil
}

type apiRoot struct {
	Refs []struct {
		ID          string `json:"id"`
		Ref         string `json:"ref"`
		IsMasterRef bool   `json:"isMasterRef"`
	} `json:"refs"`
}

// searchResponse is the body of /documents/search.
type searchResponse struct {
	Page     int            `json:"page"`
	Results  []content.Post `json:"results"`
	NextPage *string        `json:"next_page"`
}

func (r searchResponse) pageResult() content.PageResult {
	res := content.PageResult{Results: r.Results}
	if r.NextPage != nil {
		res.NextPage = content.Cursor(*r.NextPage)
	}
	if res.Results == nil {
		res.Results = []content.Post{}
	}
	return res
}

// MasterRef returns the ref of the currently published content.
func (c *Client) MasterRef(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.masterRef != "" && time.Since(c.refAt) < refTTL {
		ref := c.masterRef
		c.mu.Unlock()
		return ref, nil
	}
	c.mu.Unlock()

	var root apiRoot
	if err := c.getJSON(ctx, c.withToken(*c.apiURL), &root); err != nil {
		return "", fmt.Errorf("read api root: %w", err)
	}
	for _, r := range root.Refs {
		if r.IsMasterRef {
			c.mu.Lock()
			c.masterRef = r.Ref
			c.refAt = time.Now()
			c.mu.Unlock()
			return r.Ref, nil
		}
	}
	return "", fmt.Errorf("api root has no master ref")
}

// Query lists posts, newest first.
func (c *Client) Query(ctx context.Context, opts site.QueryOptions) (content.PageResult, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf(`[[at(document.type,"%s")]]`, site.PostType))
	params.Set("orderings", "[document.first_publication_date desc]")
	if opts.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	if opts.Page > 1 {
		params.Set("page", strconv.Itoa(opts.Page))
	}

	resp, err := c.search(ctx, params)
	if err != nil {
		return content.PageResult{}, err
	}
	return resp.pageResult(), nil
}

// FetchPage follows a next_page URL returned by an earlier query.
func (c *Client) FetchPage(ctx context.Context, cursor content.Cursor) (content.PageResult, error) {
	u, err := url.Parse(string(cursor))
	if err != nil {
		return content.PageResult{}, fmt.Errorf("%w: %v", site.ErrBadCursor, err)
	}
	if u.Scheme != c.apiURL.Scheme || u.Host != c.apiURL.Host {
		return content.PageResult{}, ErrForeignCursor
	}

	var resp searchResponse
	if err := c.getJSON(ctx, c.withToken(*u), &resp); err != nil {
		return content.PageResult{}, fmt.Errorf("fetch page: %w", err)
	}
	return resp.pageResult(), nil
}

// GetByUID loads a single document by its uid.
func (c *Client) GetByUID(ctx context.Context, docType, uid string) (*content.Post, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf(`[[at(my.%s.uid,%s)]]`, docType, strconv.Quote(uid)))
	params.Set("pageSize", "1")

	resp, err := c.search(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, site.ErrNotFound
	}
	post := resp.Results[0]
	return &post, nil
}

func (c *Client) search(ctx context.Context, params url.Values) (searchResponse, error) {
	ref, err := c.MasterRef(ctx)
	if err != nil {
		return searchResponse{}, err
	}
	params.Set("ref", ref)

	u := *c.apiURL
	u.Path += "/documents/search"
	u.RawQuery = params.Encode()

	var resp searchResponse
	if err := c.getJSON(ctx, c.withToken(u), &resp); err != nil {
		return searchResponse{}, fmt.Errorf("search documents: %w", err)
	}
	return resp, nil
}

func (c *Client) withToken(u url.URL) string {
	if c.accessToken == "" {
		return u.String()
	}
	q := u.Query()
	if q.Get("access_token") == "" {
		q.Set("access_token", c.accessToken)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.Stats.Record(time.Since(start).Milliseconds(), true)
		return fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()
	c.Stats.Record(time.Since(start).Milliseconds(), resp.StatusCode != http.StatusOK)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &RetryableError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// RetryableError indicates a transient CMS failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	msg := e.Message
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, msg)
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
