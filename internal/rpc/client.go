package rpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"

	"github.com/torosent/benchhub/internal/metrics"
	"github.com/torosent/benchhub/internal/registry"
	"github.com/torosent/benchhub/internal/service"
	"github.com/torosent/benchhub/internal/tracing"
)

const defaultCallTimeout = 30 * time.Second

// ClientConfig holds the connection settings for an Aggregator client.
type ClientConfig struct {
	Target    string
	Metadata  map[string]string
	Timeout   time.Duration // per call; 0 means 30s
	UseTLS    bool
	Insecure  bool // skip TLS verification
	Propagate bool // inject W3C trace context into every call
}

// CallStats summarizes the calls a Client has made.
type CallStats struct {
	Calls      int64
	Errors     int64
	LastStatus string
}

// Client calls the Aggregator service.
type Client struct {
	conn      *grpc.ClientConn
	owned     bool
	md        metadata.MD
	timeout   time.Duration
	propagate bool

	mu         sync.Mutex
	calls      int64
	errors     int64
	lastStatus string
}

// Dial opens a connection to cfg.Target. The connection is established
// lazily on the first call.
func Dial(cfg ClientConfig) (*Client, error) {
	var creds credentials.TransportCredentials
	switch {
	case cfg.UseTLS && cfg.Insecure:
		creds = credentials.NewTLS(&tls.Config{InsecureSkipVerify: true})
	case cfg.UseTLS:
		creds = credentials.NewClientTLSFromCert(nil, "")
	default:
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(cfg.Target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Target, err)
	}
	c := NewClientWithConn(conn, cfg)
	c.owned = true
	return c, nil
}

// NewClientWithConn builds a Client on an existing connection. Close does
// not close conn.
func NewClientWithConn(conn *grpc.ClientConn, cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Client{
		conn:       conn,
		md:         metadata.New(cfg.Metadata),
		timeout:    timeout,
		propagate:  cfg.Propagate,
		lastStatus: "UNSET",
	}
}

// RegisterClient registers a worker and returns its id.
func (c *Client) RegisterClient(ctx context.Context, cfg registry.ClientConfig) (registry.ClientID, error) {
	m := method("RegisterClient")
	config, err := encodeClientConfig(messageType(m.GetInputType(), "config"), cfg)
	if err != nil {
		return "", err
	}
	req, err := newMessage(m.GetInputType(), field{"config", config})
	if err != nil {
		return "", err
	}
	resp, err := c.invoke(ctx, m, req)
	if err != nil {
		return "", err
	}
	r := fieldReader{msg: resp}
	id := r.str("client_id")
	if r.err != nil {
		return "", r.err
	}
	return registry.ClientID(id), nil
}

// CloseClient ends the session of id.
func (c *Client) CloseClient(ctx context.Context, id registry.ClientID) error {
	m := method("CloseClient")
	req, err := newMessage(m.GetInputType(), field{"client_id", string(id)})
	if err != nil {
		return err
	}
	_, err = c.invoke(ctx, m, req)
	return err
}

// SubmitSamples sends one batch on behalf of id.
func (c *Client) SubmitSamples(ctx context.Context, id registry.ClientID, batch metrics.SampleBatch) error {
	m := method("SubmitSamples")
	msg, err := encodeBatch(messageType(m.GetInputType(), "batch"), batch)
	if err != nil {
		return err
	}
	req, err := newMessage(m.GetInputType(), field{"client_id", string(id)}, field{"batch", msg})
	if err != nil {
		return err
	}
	_, err = c.invoke(ctx, m, req)
	return err
}

// GetConfig fetches the server configuration.
func (c *Client) GetConfig(ctx context.Context) (service.ConfigSnapshot, error) {
	m := method("GetConfig")
	resp, err := c.invoke(ctx, m, dynamic.NewMessage(m.GetInputType()))
	if err != nil {
		return service.ConfigSnapshot{}, err
	}
	return decodeSnapshot(resp)
}

func (c *Client) invoke(ctx context.Context, m *desc.MethodDescriptor, req *dynamic.Message) (*dynamic.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if len(c.md) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, c.md.Copy())
	}
	if c.propagate {
		ctx = tracing.OutgoingContext(ctx)
	}

	resp := dynamic.NewMessage(m.GetOutputType())
	err := c.conn.Invoke(ctx, fullMethod(m.GetName()), protoadapt.MessageV2Of(req), protoadapt.MessageV2Of(resp))

	c.mu.Lock()
	c.calls++
	if err != nil {
		c.errors++
	}
	c.lastStatus = status.Code(err).String()
	c.mu.Unlock()

	if err != nil {
		return nil, FromStatus(err)
	}
	return resp, nil
}

// Stats returns call counters.
func (c *Client) Stats() CallStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CallStats{Calls: c.calls, Errors: c.errors, LastStatus: c.lastStatus}
}

// Close closes the connection if Dial opened it.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}
