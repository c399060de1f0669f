// Package client is a Flight client for the ignis query bridge.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/TFMV/ignis/pkg/infrastructure/converter"
	"github.com/TFMV/ignis/pkg/models"
)

// Action names understood by the server.
const (
	actionQuery           = "query"
	actionHealth          = "health"
	actionMetricFindQuery = "metricFindQuery"
)

// Config holds the connection settings.
type Config struct {
	Address            string
	Token              string
	TLS                bool
	CAFile             string
	InsecureSkipVerify bool
	MaxMessageSize     int
}

// Client runs query batches against a remote bridge.
type Client struct {
	conn      *grpc.ClientConn
	flight    flight.Client
	allocator memory.Allocator
	token     string
}

// New dials the bridge at cfg.Address.
func New(cfg Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("address is required")
	}

	creds, err := transportCredentials(cfg)
	if err != nil {
		return nil, err
	}

	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if cfg.MaxMessageSize > 0 {
		opts = append(opts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize)))
	}

	conn, err := grpc.NewClient(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Address, err)
	}

	c := NewFromConn(conn, nil)
	c.conn = conn
	c.token = cfg.Token
	return c, nil
}

// NewFromConn wraps an existing connection. A nil allocator means the Go allocator.
func NewFromConn(conn grpc.ClientConnInterface, allocator memory.Allocator) *Client {
	if allocator == nil {
		allocator = memory.NewGoAllocator()
	}
	return &Client{
		flight:    flight.NewClientFromConn(conn, nil),
		allocator: allocator,
	}
}

// WithToken sets the bearer token sent on every call.
func (c *Client) WithToken(token string) *Client {
	c.token = token
	return c
}

func transportCredentials(cfg Config) (credentials.TransportCredentials, error) {
	if !cfg.TLS {
		return insecure.NewCredentials(), nil
	}

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test clusters
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}
	return credentials.NewTLS(tlsCfg), nil
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
}

func (c *Client) doAction(ctx context.Context, typ string, body any) ([][]byte, error) {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", typ, err)
		}
	}

	stream, err := c.flight.DoAction(c.outgoing(ctx), &flight.Action{Type: typ, Body: data})
	if err != nil {
		return nil, err
	}

	var results [][]byte
	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return results, nil
		}
		if err != nil {
			return nil, err
		}
		results = append(results, res.GetBody())
	}
}

// Query runs a batch and returns one frame per valid target, in order.
func (c *Client) Query(ctx context.Context, targets []models.QueryTarget) ([]*models.ResultFrame, error) {
	results, err := c.doAction(ctx, actionQuery, models.QueryBatch{Targets: targets})
	if err != nil {
		return nil, err
	}

	frames := make([]*models.ResultFrame, 0, len(results))
	for _, data := range results {
		frame, err := converter.DecodeIPCFrame(data, c.allocator)
		if err != nil {
			return nil, fmt.Errorf("failed to decode frame: %w", err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// Stream runs a single target through DoGet.
func (c *Client) Stream(ctx context.Context, target models.QueryTarget) (*models.ResultFrame, error) {
	ticket, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ticket: %w", err)
	}

	stream, err := c.flight.DoGet(c.outgoing(ctx), &flight.Ticket{Ticket: ticket})
	if err != nil {
		return nil, err
	}

	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(c.allocator))
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	frame := models.NewEmptyFrame(target.RefID)
	for reader.Next() {
		part, err := converter.ToFrame(reader.Record())
		if err != nil {
			return nil, err
		}
		frame.RefID = part.RefID
		frame.Fields = part.Fields
		frame.Rows = append(frame.Rows, part.Rows...)
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return frame, nil
}

// Health probes the grid through the bridge.
func (c *Client) Health(ctx context.Context) (*models.HealthResult, error) {
	results, err := c.doAction(ctx, actionHealth, nil)
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("expected one health result, got %d", len(results))
	}

	var result models.HealthResult
	if err := json.Unmarshal(results[0], &result); err != nil {
		return nil, fmt.Errorf("failed to decode health result: %w", err)
	}
	return &result, nil
}

// MetricFind runs a template variable query.
func (c *Client) MetricFind(ctx context.Context, target models.QueryTarget) ([]models.MetricFindValue, error) {
	results, err := c.doAction(ctx, actionMetricFindQuery, target)
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("expected one metric find result, got %d", len(results))
	}

	var values []models.MetricFindValue
	if err := json.Unmarshal(results[0], &values); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	return values, nil
}

// Close closes the connection when the client dialed it.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
