// Package api talks to the WIIM REST service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wiimwatch/internal/models"
)

const defaultTimeout = 10 * time.Second

// Error is the single failure kind surfaced to the screen: the request could
// not be completed or its body could not be decoded.
type Error struct {
	URL     string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Endpoint describes where to fetch from and how to authenticate.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// Client fetches processes and tags.
type Client struct {
	http *http.Client
	now  func() time.Time
}

// NewClient builds a client whose requests time out after timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		http: &http.Client{Transport: transport, Timeout: timeout},
		now:  time.Now,
	}
}

// Fetch performs exactly one request for target and maps it to a snapshot.
func (c *Client) Fetch(ctx context.Context, ep Endpoint, target models.Target) (models.Snapshot, error) {
	switch target.Kind {
	case models.KindProcess:
		p, err := c.Process(ctx, ep, target.ID)
		if err != nil {
			return models.Snapshot{}, err
		}
		return models.ProcessSnapshot(target, p, c.now().UTC()), nil
	case models.KindTag:
		t, err := c.Tag(ctx, ep, target.ID)
		if err != nil {
			return models.Snapshot{}, err
		}
		return models.TagSnapshot(target, t, c.now().UTC()), nil
	default:
		return models.Snapshot{}, &Error{Message: fmt.Sprintf("unsupported target kind %q", target.Kind)}
	}
}

// Process fetches GET {base}/processes/{id}.
func (c *Client) Process(ctx context.Context, ep Endpoint, id string) (models.Process, error) {
	var p models.Process
	err := c.getJSON(ctx, ep, "processes", id, &p)
	return p, err
}

// Tag fetches GET {base}/tags/{id}.
func (c *Client) Tag(ctx context.Context, ep Endpoint, id string) (models.Tag, error) {
	var t models.Tag
	err := c.getJSON(ctx, ep, "tags", id, &t)
	return t, err
}

func (c *Client) getJSON(ctx context.Context, ep Endpoint, collection, id string, dest any) error {
	target, err := resourceURL(ep.BaseURL, collection, id)
	if err != nil {
		return &Error{Message: err.Error(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &Error{URL: target, Message: err.Error(), Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if ep.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		}
		return &Error{URL: target, Message: msg, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			URL:     target,
			Message: fmt.Sprintf("%s returned http %d %s", target, resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return &Error{URL: target, Message: fmt.Sprintf("decode %s: %v", collection, err), Err: err}
	}
	return nil
}

func resourceURL(base, collection, id string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("server address is not configured")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("server address: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("server address %q is not an absolute url", base)
	}
	return strings.TrimSuffix(base, "/") + "/" + collection + "/" + url.PathEscape(id), nil
}
