// Package directory implements the ports.Endpoint against an OEF-style
// directory node speaking its HTTP command protocol: every operation is a
// GET with command parameters, answered with a small XML document.
package directory

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

const defaultChainIdentifier = "parley"

// Client talks to one directory node. It is safe for concurrent use.
type Client struct {
	baseURL string
	chainID string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithChainIdentifier sets the ledger identifier presented on registration.
func WithChainIdentifier(id string) Option {
	return func(c *Client) { c.chainID = id }
}

// NewClient creates a client for the node at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("directory client requires a base URL")
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		chainID: defaultChainIdentifier,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// response is the XML document the node wraps every reply in.
type response struct {
	XMLName     xml.Name `xml:"response"`
	PageAddress string   `xml:"page_address"`
	Agents      []struct {
		Address string `xml:"address,attr"`
		Name    string `xml:"name,attr"`
	} `xml:"agents>agent"`
	Error string `xml:"error"`
}

func (c *Client) get(ctx context.Context, page string, params url.Values) (*response, string, error) {
	target := c.baseURL
	if page != "" {
		target += "/" + url.PathEscape(page)
	}
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build directory request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading reply: %v", domain.ErrUnreachable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: directory node answered %d", domain.ErrBadResponse, resp.StatusCode)
	}

	var parsed response
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return nil, "", fmt.Errorf("%w: malformed reply: %v", domain.ErrBadResponse, err)
	}
	if parsed.Error != "" {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrBadResponse, parsed.Error)
	}
	return &parsed, string(body), nil
}

// Connect probes the node's root document.
func (c *Client) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}
	resp.Body.Close()
	return nil
}

// Disconnect is a no-op; the client holds no persistent transport state.
func (c *Client) Disconnect(ctx context.Context) error { return nil }

// Register performs the two-step handshake: the register command yields a
// unique page address, which must then be acknowledged before use.
func (c *Client) Register(ctx context.Context, reg ports.Registration) (ports.Session, error) {
	params := url.Values{}
	params.Set("command", "register")
	params.Set("address", reg.Address)
	params.Set("declared_name", reg.DeclaredName)
	params.Set("chain_identifier", c.chainID)
	if reg.APIKey != "" {
		params.Set("api_key", reg.APIKey)
	}

	parsed, _, err := c.get(ctx, "", params)
	if err != nil {
		return ports.Session{}, err
	}
	if parsed.PageAddress == "" {
		return ports.Session{}, fmt.Errorf("%w: register reply carries no page address", domain.ErrBadResponse)
	}

	ack := url.Values{}
	ack.Set("command", "acknowledge")
	if _, _, err := c.get(ctx, parsed.PageAddress, ack); err != nil {
		return ports.Session{}, fmt.Errorf("acknowledge failed: %w", err)
	}

	c.logger.Debug("registered with directory node", "page_address", parsed.PageAddress)
	return ports.Session{PageAddress: parsed.PageAddress}, nil
}

// Unregister issues the bye command, invalidating the page address.
func (c *Client) Unregister(ctx context.Context, session ports.Session) error {
	params := url.Values{}
	params.Set("command", "bye")
	_, _, err := c.get(ctx, session.PageAddress, params)
	return err
}

// Search issues find_around_me and returns the matching agent addresses.
func (c *Client) Search(ctx context.Context, session ports.Session, q ports.SearchQuery) ([]string, error) {
	params := url.Values{}
	params.Set("command", "find_around_me")
	params.Set("range_in_km", strconv.FormatFloat(q.RangeKM, 'f', -1, 64))
	for key, values := range q.Filters {
		for _, v := range values {
			params.Add(key, v)
		}
	}

	parsed, _, err := c.get(ctx, session.PageAddress, params)
	if err != nil {
		return nil, err
	}
	agents := make([]string, 0, len(parsed.Agents))
	for _, a := range parsed.Agents {
		agents = append(agents, a.Address)
	}
	return agents, nil
}

// Ping checks the page address is still honoured by the node.
func (c *Client) Ping(ctx context.Context, session ports.Session) error {
	params := url.Values{}
	params.Set("command", "ping")
	_, _, err := c.get(ctx, session.PageAddress, params)
	return err
}

// Call issues a generic command against the session page and returns the raw
// XML reply, for commands the typed surface does not cover.
func (c *Client) Call(ctx context.Context, session ports.Session, command string, cmdParams map[string]string) (string, error) {
	params := url.Values{}
	params.Set("command", command)
	for k, v := range cmdParams {
		params.Set(k, v)
	}
	_, raw, err := c.get(ctx, session.PageAddress, params)
	return raw, err
}

var _ ports.Endpoint = (*Client)(nil)
