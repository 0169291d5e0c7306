// internal/workers/cicd/jenkins-job/client.go
package jenkinsjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	httpclient "infra-chatops/internal/common/http"
)

var queueIDPattern = regexp.MustCompile(`/queue/item/(\d+)/?$`)

// Doer is satisfied by the shared http client.
type Doer interface {
	DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client talks to the Jenkins remote access API.
type Client struct {
	baseURL  string
	username string
	token    string
	http     Doer
	retries  int
	backoff  time.Duration
}

func NewClient(config *Config, doer Doer) *Client {
	if doer == nil {
		doer = httpclient.NewClient(30 * time.Second)
	}
	return &Client{
		baseURL:  strings.TrimRight(config.URL, "/"),
		username: config.Username,
		token:    config.APIToken,
		http:     doer,
		retries:  config.MaxRetries,
		backoff:  config.RetryBackoff,
	}
}

// JobPath turns "folder/job" into "/job/folder/job/job".
func JobPath(job string) string {
	var b strings.Builder
	for _, part := range strings.Split(strings.Trim(job, "/"), "/") {
		b.WriteString("/job/")
		b.WriteString(url.PathEscape(part))
	}
	return b.String()
}

func (c *Client) crumb(ctx context.Context) (*crumbResponse, error) {
	var crumb crumbResponse
	status, err := c.getJSON(ctx, c.baseURL+"/crumbIssuer/api/json", &crumb)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch crumb: %w", err)
	}
	return &crumb, nil
}

// Trigger queues a build and returns the queue item URL and id.
func (c *Client) Trigger(ctx context.Context, job string, params map[string]string) (string, int64, error) {
	crumb, err := c.crumb(ctx)
	if err != nil {
		return "", 0, err
	}

	endpoint := c.baseURL + JobPath(job) + "/build"
	if len(params) > 0 {
		endpoint = c.baseURL + JobPath(job) + "/buildWithParameters"
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		q := url.Values{}
		for _, k := range keys {
			q.Set(k, params[k])
		}
		endpoint += "?" + q.Encode()
	}

	var location string
	err = c.withRetry(ctx, retryableTrigger, func() (int, error) {
		req, err := http.NewRequest(http.MethodPost, endpoint, nil)
		if err != nil {
			return 0, err
		}
		if crumb != nil {
			req.Header.Set(crumb.CrumbRequestField, crumb.Crumb)
		}
		resp, err := c.do(ctx, req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			return resp.StatusCode, &httpclient.StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		location = resp.Header.Get("Location")
		return resp.StatusCode, nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("trigger %s: %w", job, err)
	}

	var id int64
	if m := queueIDPattern.FindStringSubmatch(location); m != nil {
		id, _ = strconv.ParseInt(m[1], 10, 64)
	}
	return location, id, nil
}

func (c *Client) QueueItem(ctx context.Context, location string) (*queueItem, error) {
	var item queueItem
	if _, err := c.getJSON(ctx, strings.TrimRight(location, "/")+"/api/json", &item); err != nil {
		return nil, fmt.Errorf("queue item: %w", err)
	}
	return &item, nil
}

func (c *Client) Build(ctx context.Context, job string, number int) (*buildInfo, error) {
	var info buildInfo
	endpoint := fmt.Sprintf("%s%s/%d/api/json", c.baseURL, JobPath(job), number)
	if _, err := c.getJSON(ctx, endpoint, &info); err != nil {
		return nil, fmt.Errorf("build %s #%d: %w", job, number, err)
	}
	return &info, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dst interface{}) (int, error) {
	var status int
	err := c.withRetry(ctx, retryable, func() (int, error) {
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return 0, err
		}
		resp, err := c.do(ctx, req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		status = resp.StatusCode

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return status, err
		}
		if status != http.StatusOK {
			return status, &httpclient.StatusError{StatusCode: status, Body: string(body)}
		}
		return status, json.Unmarshal(body, dst)
	})
	return status, err
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.token)
	}
	req.Header.Set("Accept", "application/json")
	return c.http.DoWithContext(ctx, req)
}

// withRetry repeats call with exponential backoff while retry accepts the
// failure. Other failures return immediately.
func (c *Client) withRetry(ctx context.Context, retry func(status int, err error) bool, call func() (int, error)) error {
	delay := c.backoff
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		var status int
		status, err = call()
		if err == nil || !retry(status, err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

// retryable covers idempotent GETs: transport errors and 5xx/429 responses.
func retryable(status int, err error) bool {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return false
	}
	return status == 0
}

// retryableTrigger only repeats a build POST when Jenkins cannot have queued
// it: 429 and 503 rejections, or a connection that was never established.
func retryableTrigger(_ int, err error) bool {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode == http.StatusServiceUnavailable
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
