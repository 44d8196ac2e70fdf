// Package https delivers device payloads to HTTP(S) webhook endpoints.
package https

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/devsim/pkg/models"
)

const (
	defaultMethod    = http.MethodPost
	defaultTimeout   = 30
	defaultUserAgent = "DeviceManager/1.0"

	// maxDetailSize bounds how much of a response body ends up in the log.
	maxDetailSize = 4096
)

// Authentication modes read from config["auth_type"].
const (
	AuthNone     = "NONE"
	AuthUserPass = "USER_PASS"
	AuthToken    = "TOKEN"
	AuthAPIKey   = "API_KEY"
)

// Client posts payloads to a single URL.
type Client struct {
	conn       *models.Connection
	method     string
	url        string
	headers    map[string]string
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds a client for the given connection.
func New(conn *models.Connection, logger *slog.Logger) (*Client, error) {
	target, err := BuildURL(conn)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   defaultUserAgent,
	}

	if extra, ok := conn.Config["headers"].(map[string]any); ok {
		for k, v := range extra {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !conn.ConfigBool("verify_ssl", true) {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in per connection
	}

	return &Client{
		conn:    conn,
		method:  strings.ToUpper(conn.ConfigString("method", defaultMethod)),
		url:     target,
		headers: headers,
		httpClient: &http.Client{
			Timeout:   time.Duration(conn.ConfigInt("timeout", defaultTimeout)) * time.Second,
			Transport: transport,
		},
		logger: logger.With("module", "https_client", "connection_id", conn.ID),
	}, nil
}

// BuildURL assembles scheme, host, port and endpoint. Ports 80 and 443 are omitted.
func BuildURL(conn *models.Connection) (string, error) {
	scheme := "https"
	if !conn.ConfigBool("ssl", true) {
		scheme = "http"
	}

	host := conn.Host
	if conn.Port != 0 && conn.Port != 80 && conn.Port != 443 {
		host += ":" + strconv.Itoa(conn.Port)
	}

	endpoint := conn.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	target, err := url.Parse(scheme + "://" + host + endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint url: %w", err)
	}

	return target.String(), nil
}

// Send performs the request. Only 2xx responses count as success.
func (c *Client) Send(ctx context.Context, payload []byte) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, c.method, c.url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Sprintf("failed to create http request: %v", err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "HTTP send failed", "url", c.url, "error", err)

		return false, fmt.Sprintf("http request failed: %v", err)
	}

	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDetailSize))
	if err != nil {
		return false, fmt.Sprintf("failed to read response body: %v", err)
	}

	detail := string(body)
	if detail == "" {
		detail = strconv.Itoa(resp.StatusCode)
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		detail = fmt.Sprintf("%d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), detail)
	}

	return ok, detail
}

func (c *Client) applyAuth(req *http.Request) {
	auth := c.conn.Auth

	switch c.conn.ConfigString("auth_type", AuthNone) {
	case AuthUserPass:
		if auth["username"] != "" && auth["password"] != "" {
			req.SetBasicAuth(auth["username"], auth["password"])
		}
	case AuthToken:
		if auth["token"] != "" {
			tokenType := auth["token_type"]
			if tokenType == "" {
				tokenType = "Bearer"
			}

			req.Header.Set("Authorization", tokenType+" "+auth["token"])
		}
	case AuthAPIKey:
		if auth["key"] == "" {
			return
		}

		if auth["location"] == "query" {
			name := auth["parameter_name"]
			if name == "" {
				name = "api_key"
			}

			query := req.URL.Query()
			query.Set(name, auth["key"])
			req.URL.RawQuery = query.Encode()

			return
		}

		name := auth["parameter_name"]
		if name == "" {
			name = "X-API-Key"
		}

		req.Header.Set(name, auth["key"])
	}
}
