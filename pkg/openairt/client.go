package openairt

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// DefaultURL is the production Realtime WebSocket endpoint.
const DefaultURL = "wss://api.openai.com/v1/realtime"

// Client dials Realtime sessions. One Client can serve many concurrent
// calls; each Connect returns an independent Session.
type Client struct {
	config *clientConfig
}

type clientConfig struct {
	apiKey       string
	organization string
	project      string
	url          string
	httpClient   *http.Client
}

// Option configures the Client.
type Option func(*clientConfig)

// NewClient creates a Realtime client. The API key is required.
func NewClient(apiKey string, opts ...Option) *Client {
	if apiKey == "" {
		panic("openairt: API key is required")
	}

	cfg := &clientConfig{
		apiKey:     apiKey,
		url:        DefaultURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{config: cfg}
}

// WithOrganization sets the organization ID sent with the handshake.
func WithOrganization(orgID string) Option {
	return func(c *clientConfig) { c.organization = orgID }
}

// WithProject sets the project ID sent with the handshake.
func WithProject(projectID string) Option {
	return func(c *clientConfig) { c.project = projectID }
}

// WithURL overrides the WebSocket endpoint, e.g. for a gateway or a
// test server.
func WithURL(url string) Option {
	return func(c *clientConfig) { c.url = url }
}

// WithHTTPClient sets the HTTP client used for the handshake.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = client }
}

// ConnectConfig selects the model for a session.
type ConnectConfig struct {
	// Model defaults to ModelGPTRealtime.
	Model string
}

// Connect opens a Realtime session. The returned Session reads server
// events on a background goroutine until Close or a transport error.
func (c *Client) Connect(ctx context.Context, config *ConnectConfig) (*Session, error) {
	if config == nil {
		config = &ConnectConfig{}
	}
	model := config.Model
	if model == "" {
		model = ModelGPTRealtime
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.config.apiKey)
	headers.Set("OpenAI-Beta", "realtime=v1")
	if c.config.organization != "" {
		headers.Set("OpenAI-Organization", c.config.organization)
	}
	if c.config.project != "" {
		headers.Set("OpenAI-Project", c.config.project)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.httpClient.Timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, fmt.Sprintf("%s?model=%s", c.config.url, model), headers)
	if err != nil {
		if resp != nil {
			return nil, &Error{
				Code:       "connection_failed",
				Message:    fmt.Sprintf("connect: %v", err),
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, fmt.Errorf("openairt: connect: %w", err)
	}

	s := &Session{
		conn:     conn,
		closeCh:  make(chan struct{}),
		eventsCh: make(chan eventOrErr, 100),
	}
	go s.readLoop()
	return s, nil
}
