// Package publisher formats leader announcements and posts them to X.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/highest-aircraft/internal/apperror"
)

const (
	DefaultBaseURL = "https://api.twitter.com/2"

	defaultTimeout = 30 * time.Second
)

// Client posts text to the X v2 API on behalf of an authorized account.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(logger *slog.Logger) *Client {
	return &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

// WithBaseURL points the client at a different server (tests).
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type postRequest struct {
	Text string `json:"text"`
}

type postResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Post publishes text using token. It makes exactly one request; any
// transport error or non-2xx status is returned as apperror.ErrPublish.
func (c *Client) Post(ctx context.Context, token *oauth2.Token, text string) error {
	if token == nil || token.AccessToken == "" {
		return apperror.Publish("missing credential", nil)
	}

	body, err := json.Marshal(postRequest{Text: text})
	if err != nil {
		return apperror.Publish("encoding body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", bytes.NewReader(body))
	if err != nil {
		return apperror.Publish("creating request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperror.Publish("posting", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if readErr != nil {
			return apperror.Publish("posting",
				fmt.Errorf("status %d (reading body: %w)", resp.StatusCode, readErr))
		}
		return apperror.Publish("posting",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}
	if readErr != nil {
		c.logger.Warn("announcement posted, response unreadable", slog.String("error", readErr.Error()))
		return nil
	}

	// The post ID is only logged; a body we cannot parse is not a failure
	// because the provider already accepted the post.
	var pr postResponse
	if err := json.Unmarshal(respBody, &pr); err == nil && pr.Data.ID != "" {
		c.logger.Info("announcement posted", slog.String("post_id", pr.Data.ID))
	} else {
		c.logger.Info("announcement posted", slog.Int("status", resp.StatusCode))
	}

	return nil
}
