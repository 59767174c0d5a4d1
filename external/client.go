// Package external wraps outbound HTTP calls to collaborating services.
package external

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"tracker/apperrors"

	"github.com/go-resty/resty/v2"
)

// Client is a thin resty wrapper that maps transport and status failures to
// EXTERNAL application errors.
type Client struct {
	http    *resty.Client
	baseURL string
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	http := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: http, baseURL: baseURL}
}

// Configured reports whether a base URL has been set.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != ""
}

// Do issues method against path, sending body as JSON when non-nil and
// decoding the response into out when non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		log.Printf("[external] %s %s failed: %v", method, path, err)
		return apperrors.NewExternalError(apperrors.CodeUpstreamUnavailable,
			fmt.Sprintf("%s %s failed", method, path), err)
	}
	if resp.IsError() {
		log.Printf("[external] %s %s returned %d: %s", method, path, resp.StatusCode(), resp.String())
		return apperrors.NewExternalError(apperrors.CodeUpstreamFailed,
			fmt.Sprintf("%s %s returned %d", method, path, resp.StatusCode()), nil).
			WithDetails(map[string]interface{}{"status": resp.StatusCode()})
	}
	return nil
}

// ContentMetadata is the subset of a content record the tracker stores.
type ContentMetadata struct {
	ContentType string `json:"contentType"`
	MimeType    string `json:"mimeType"`
}

type contentReadResponse struct {
	Result struct {
		Content ContentMetadata `json:"content"`
	} `json:"result"`
}

// ContentMetadata reads the type and mime of contentID from the content service.
func (c *Client) ContentMetadata(ctx context.Context, contentID string) (*ContentMetadata, error) {
	var out contentReadResponse
	if err := c.Do(ctx, "GET", "/content/"+url.PathEscape(contentID), nil, &out); err != nil {
		return nil, err
	}
	return &out.Result.Content, nil
}
