package atlas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Jigsaw-Code/outline-sdk/transport"
	"github.com/Jigsaw-Code/outline-sdk/x/configurl"
)

// Version of the toolkit, sent as part of the client identifier.
const Version = "0.1.0"

// DefaultBaseURL is the measurement collection of the RIPE Atlas v2 API.
const DefaultBaseURL = "https://atlas.ripe.net/api/v2/measurements"

const userAgent = "blaeu-go/" + Version

// HTTPError is a non-2xx response from the API. It carries the numeric
// status code and the response body as the reason.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("HTTP %s", e.Status)
	}
	return fmt.Sprintf("HTTP %s: %s", e.Status, body)
}

// TransportError is a connection-level failure (DNS, TCP, TLS) as opposed
// to a response the server actually sent.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "transport failure: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// ClientOptions configures a Client. The zero value is usable: the base
// URL defaults to DefaultBaseURL and the key is read from the per-user
// authentication file.
type ClientOptions struct {
	// BaseURL of the measurement collection, without trailing slash.
	BaseURL string
	// Key is the API key. If empty, it is read from AuthFile.
	Key string
	// AuthFile overrides the default $HOME/.atlas/auth location.
	AuthFile string
	// Transport is an optional stream dialer config string (e.g.
	// "socks5://localhost:1080"). API traffic is routed through it.
	Transport string
	// Timeout per HTTP request. Defaults to 60 seconds.
	Timeout time.Duration
	// Logger for request tracing. Defaults to slog.Default().
	Logger *slog.Logger
}

// Client performs JSON HTTP requests against the measurement API.
type Client struct {
	baseURL    string
	key        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a Client, resolving the API key from the authentication
// file when no explicit key is given.
func NewClient(opts ClientOptions) (*Client, error) {
	key := opts.Key
	if key == "" {
		authFile := opts.AuthFile
		if authFile == "" {
			authFile = DefaultAuthFile()
		}
		var err error
		key, err = ReadKey(authFile)
		if err != nil {
			return nil, err
		}
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{Timeout: timeout}
	if opts.Transport != "" {
		var dialer transport.StreamDialer
		dialer, err := configurl.NewDefaultConfigToDialer().NewStreamDialer(opts.Transport)
		if err != nil {
			return nil, fmt.Errorf("could not create dialer: %w", err)
		}
		httpClient.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				if !strings.HasPrefix(network, "tcp") {
					return nil, fmt.Errorf("protocol not supported: %v", network)
				}
				return dialer.DialStream(ctx, addr)
			},
		}
	}

	return &Client{
		baseURL:    baseURL,
		key:        key,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// GetJSON issues a GET request and decodes the 2xx response body into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

// PostJSON issues a POST request carrying in as the JSON body and decodes
// the 2xx response body into out.
func (c *Client) PostJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, bytes.NewReader(body), out)
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug("API request", "method", method, "url", url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: data}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

// Endpoint URLs. The key travels as a query parameter, as the API expects.

func (c *Client) createURL() string {
	return fmt.Sprintf("%s/?key=%s", c.baseURL, c.key)
}

func (c *Client) probesURL(id int64) string {
	return fmt.Sprintf("%s/%d/?fields=probes,status&key=%s", c.baseURL, id, c.key)
}

func (c *Client) statusURL(id int64) string {
	return fmt.Sprintf("%s/%d/?fields=status&key=%s", c.baseURL, id, c.key)
}

func (c *Client) measurementURL(id int64) string {
	return fmt.Sprintf("%s/%d/?key=%s", c.baseURL, id, c.key)
}

func (c *Client) resultsURL(id int64) string {
	return fmt.Sprintf("%s/%d/results/?key=%s", c.baseURL, id, c.key)
}

func (c *Client) latestURL(id int64, versions int) string {
	return fmt.Sprintf("%s-latest/%d/?versions=%d", c.baseURL, id, versions)
}
