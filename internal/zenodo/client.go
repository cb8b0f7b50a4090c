// Package zenodo drives the "new version" workflow of the Zenodo deposition API:
// creating a draft from a published record, replacing its file and version
// metadata, and publishing or discarding it.
package zenodo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"
)

// Environment holds the two base URLs of a deployment: the REST API root and
// the public site that serves record landing pages.
type Environment struct {
	APIURL  string
	SiteURL string
}

var (
	Production = Environment{APIURL: "https://zenodo.org/api", SiteURL: "https://zenodo.org"}
	Sandbox    = Environment{APIURL: "https://sandbox.zenodo.org/api", SiteURL: "https://sandbox.zenodo.org"}
)

// EnvironmentFor selects the sandbox or the production deployment.
func EnvironmentFor(sandbox bool) Environment {
	if sandbox {
		return Sandbox
	}
	return Production
}

// Filesystem is the read access AddFile needs for the file being uploaded.
type Filesystem interface {
	Open(name string) (io.ReadCloser, error)
	Stat(name string) (fs.FileInfo, error)
}

// Clock supplies the date written as publication_date.
type Clock interface {
	Now() time.Time
}

// Logger receives request-level diagnostics. The args follow slog conventions.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type osFilesystem struct{}

func (osFilesystem) Open(name string) (io.ReadCloser, error) { return os.Open(name) }
func (osFilesystem) Stat(name string) (fs.FileInfo, error)   { return os.Stat(name) }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}

// Client talks to one Zenodo environment on behalf of one access token.
// Drafts created by a Client inherit its token and dedup setting.
type Client struct {
	env        Environment
	token      string
	dedup      bool
	httpClient *http.Client
	fsys       Filesystem
	clock      Clock
	logger     Logger
}

// Option configures a Client.
type Option func(*Client)

// WithDedup enables the checksum comparison in Draft.AddFile.
func WithDedup(enabled bool) Option {
	return func(c *Client) { c.dedup = enabled }
}

// WithHTTPClient replaces the HTTP client used for all calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the request timeout. A client passed to WithHTTPClient
// is copied rather than modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithFilesystem replaces the filesystem files are uploaded from.
func WithFilesystem(fsys Filesystem) Option {
	return func(c *Client) { c.fsys = fsys }
}

// WithClock replaces the clock used for publication dates.
func WithClock(clock Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLogger attaches a logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a client for env authenticating with token.
func NewClient(env Environment, token string, opts ...Option) *Client {
	c := &Client{
		env:   env,
		token: token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		fsys:   osFilesystem{},
		clock:  realClock{},
		logger: nopLogger{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Environment returns the deployment the client talks to.
func (c *Client) Environment() Environment { return c.env }

func (c *Client) apiURL(path string) string {
	return strings.TrimRight(c.env.APIURL, "/") + path
}

func (c *Client) siteURL(path string) string {
	return strings.TrimRight(c.env.SiteURL, "/") + path
}

// newRequest builds an authenticated request.
func (c *Client) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

// do sends req with hc, logging the exchange.
func (c *Client) do(hc *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}
	c.logger.Debug("zenodo request", "method", req.Method, "url", req.URL.Redacted(), "status", resp.StatusCode)
	return resp, nil
}

// decodeJSON decodes the body of a successful response into out.
func decodeJSON(resp *http.Response, out any) error {
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

func isSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// drainAndClose lets the transport reuse the connection.
func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
