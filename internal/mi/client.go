package mi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const userAgent = "scribemi-go/0.1"

// Client is an HTTP client for the Scribe MI API. Every API request is
// signed with the credentials held by its SessionManager; presigned
// storage URLs are fetched unsigned.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    *SessionManager
	signer     *requestSigner
	logger     *slog.Logger
}

// NewClient creates an MI API client. apiURL is the configured API host
// plus optional path prefix (e.g. "api.example.com/prod"); https is
// assumed when no scheme is given.
func NewClient(apiURL, region string, httpClient *http.Client, session *SessionManager, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    BaseURL(apiURL),
		httpClient: httpClient,
		session:    session,
		signer:     newRequestSigner(region),
		logger:     logger,
	}
}

// BaseURL turns a configured API URL into an absolute base URL without a
// trailing slash.
func BaseURL(apiURL string) string {
	base := strings.TrimRight(apiURL, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}

	return base
}

// call executes a signed request against the API and decodes a 200 JSON
// body into out (nil discards the body). There is no retry: the only
// implicit extra round trip is the expiry-triggered reauthentication.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	sess, err := c.session.current(ctx)
	if err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("mi: encoding request body: %w", err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader = http.NoBody
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("mi: creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := c.signer.sign(ctx, req, payload, sess); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("mi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("mi: reading response body: %w", err)
	}

	if sentinel := classifyStatus(resp.StatusCode); sentinel != nil {
		c.logger.Warn("request rejected",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return &APIError{
			StatusCode: resp.StatusCode,
			RequestID:  requestID(resp.Header),
			Message:    strings.TrimSpace(string(data)),
			Err:        sentinel,
		}
	}

	c.logger.Debug("request succeeded",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("mi: decoding %s %s response: %w", method, path, err)
	}

	return nil
}

// doPresigned sends an unsigned request to a presigned storage URL and
// returns the response with its body fully read. The URL embeds
// credentials and is never logged.
func (c *Client) doPresigned(ctx context.Context, req *http.Request, op string) (*http.Response, []byte, error) {
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("presigned request failed",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)

		return nil, nil, fmt.Errorf("mi: %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("mi: reading %s response: %w", op, err)
	}

	return resp, data, nil
}
