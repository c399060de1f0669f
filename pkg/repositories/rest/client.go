// Package rest implements the grid repository over the grid's HTTP REST API.
package rest

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/ignis/pkg/errors"
	"github.com/TFMV/ignis/pkg/models"
	"github.com/TFMV/ignis/pkg/repositories"
)

// REST commands used by the pipeline.
const (
	CmdSize        = "size"
	CmdFieldsQuery = "qryfldexe"
	CmdVersion     = "version"
)

// DefaultPath is the grid's REST handler path.
const DefaultPath = "/ignite"

// maxErrorBody bounds how much of a non-JSON body is quoted in errors.
const maxErrorBody = 512

// Config holds the read-only connection settings.
type Config struct {
	BaseURL       string
	Path          string
	Username      string
	Password      string
	SpaceEncoding SpaceEncoding
	Timeout       time.Duration
	TLS           TLSConfig
}

// TLSConfig holds client TLS settings.
type TLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	InsecureSkipVerify bool
}

// Client is a GridRepository over HTTP(S) GET requests.
type Client struct {
	endpoint      string
	username      string
	password      string
	spaceEncoding SpaceEncoding
	http          *http.Client
	logger        zerolog.Logger
}

var _ repositories.GridRepository = (*Client)(nil)

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, e.g. with one managed by the host.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a REST client for cfg.
func NewClient(cfg Config, logger zerolog.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid grid url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("grid url %q must use http or https", cfg.BaseURL)
	}
	if base.Host == "" {
		return nil, fmt.Errorf("grid url %q has no host", cfg.BaseURL)
	}

	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	mode := cfg.SpaceEncoding
	if mode == "" {
		mode = SpaceEncodingFirst
	}

	c := &Client{
		endpoint:      base.String() + path,
		username:      cfg.Username,
		password:      cfg.Password,
		spaceEncoding: mode,
		logger:        logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		transport, err := newTransport(cfg.TLS)
		if err != nil {
			return nil, err
		}
		c.http = &http.Client{Transport: transport, Timeout: cfg.Timeout}
	}

	return c, nil
}

func newTransport(cfg TLSConfig) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CAFile == "" && cfg.CertFile == "" && !cfg.InsecureSkipVerify {
		return transport, nil
	}

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed grids
	}

	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		roots := x509.NewCertPool()
		if !roots.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsCfg.RootCAs = roots
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	transport.TLSClientConfig = tlsCfg
	return transport, nil
}

// Endpoint returns the REST handler URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// CacheSize issues cmd=size for cacheName.
func (c *Client) CacheSize(ctx context.Context, cacheName string) (*models.RestResponse, error) {
	return c.get(ctx, CmdSize, param{"cacheName", EncodeComponent(cacheName)})
}

// ExecuteFieldsQuery issues cmd=qryfldexe for sql against cacheName.
func (c *Client) ExecuteFieldsQuery(ctx context.Context, cacheName, sql string, pageSize int) (*models.RestResponse, error) {
	return c.get(ctx, CmdFieldsQuery,
		param{"cacheName", EncodeComponent(cacheName)},
		param{"pageSize", strconv.Itoa(pageSize)},
		param{"qry", EncodeQuery(sql, c.spaceEncoding)},
	)
}

// Version issues cmd=version.
func (c *Client) Version(ctx context.Context) (*models.RestResponse, error) {
	return c.get(ctx, CmdVersion)
}

// param is a query parameter whose value is already encoded.
type param struct {
	key   string
	value string
}

// rawQuery assembles the query string by hand so the encoded SQL reaches the
// wire exactly as EncodeQuery produced it.
func (c *Client) rawQuery(cmd string, params []param) string {
	var sb strings.Builder
	sb.WriteString("cmd=")
	sb.WriteString(cmd)
	for _, p := range params {
		sb.WriteByte('&')
		sb.WriteString(p.key)
		sb.WriteByte('=')
		sb.WriteString(p.value)
	}
	if c.username != "" {
		sb.WriteString("&ignite.login=")
		sb.WriteString(EncodeComponent(c.username))
		sb.WriteString("&ignite.password=")
		sb.WriteString(EncodeComponent(c.password))
	}
	return sb.String()
}

func (c *Client) get(ctx context.Context, cmd string, params ...param) (*models.RestResponse, error) {
	target := c.endpoint + "?" + c.rawQuery(cmd, params)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeTransport, "failed to build %s request", cmd)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("cmd", cmd).Dur("duration", time.Since(start)).Msg("Grid request failed")
		return nil, errors.Wrapf(err, errors.CodeTransport, "%s request failed", cmd)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeTransport, "failed to read %s response", cmd)
	}

	c.logger.Debug().
		Str("cmd", cmd).
		Int("http_status", resp.StatusCode).
		Int("bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("Grid request completed")

	var envelope models.RestResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.Wrapf(err, errors.CodeTransport, "%s returned HTTP %d with a non-JSON body", cmd, resp.StatusCode).
			WithDetail("body", truncate(string(body), maxErrorBody))
	}
	return &envelope, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
