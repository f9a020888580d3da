package parley

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/channel"
	"github.com/aretw0/parley/pkg/dialogue"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/protocols/oefsearch"
)

// Version is the library version, surfaced by the CLI.
const Version = "0.1.0"

// Node is the facade joining an agent-side dialogue engine with a channel to
// the directory service. It exposes the typed request surface and keeps the
// agent's conversation state consistent with what Receive hands back.
type Node struct {
	address   string
	logger    *slog.Logger
	dialogues *dialogue.Dialogues
	channel   *channel.Channel
}

// NodeOption configures a Node.
type NodeOption func(*nodeOptions)

type nodeOptions struct {
	logger     *slog.Logger
	cfg        *channel.Config
	tokens     ports.TokenStore
	registerer prometheus.Registerer
}

// WithLogger sets the node's logger, propagated to the engine and channel.
func WithLogger(logger *slog.Logger) NodeOption {
	return func(o *nodeOptions) { o.logger = logger }
}

// WithChannelConfig replaces the default channel configuration.
func WithChannelConfig(cfg channel.Config) NodeOption {
	return func(o *nodeOptions) { o.cfg = &cfg }
}

// WithTokenStore persists the directory session across restarts.
func WithTokenStore(store ports.TokenStore) NodeOption {
	return func(o *nodeOptions) { o.tokens = store }
}

// WithRegisterer exposes the channel metrics on the given registry.
func WithRegisterer(reg prometheus.Registerer) NodeOption {
	return func(o *nodeOptions) { o.registerer = reg }
}

// NewNode creates a node for the agent address, talking to the directory
// service through the given endpoint.
func NewNode(address string, endpoint ports.Endpoint, opts ...NodeOption) (*Node, error) {
	if address == "" {
		return nil, fmt.Errorf("node requires an agent address")
	}

	options := nodeOptions{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := channel.DefaultConfig(address)
	if options.cfg != nil {
		cfg = *options.cfg
		cfg.SelfAddress = address
	}
	cfg.Logger = options.logger
	cfg.Registerer = options.registerer

	dialogues, err := dialogue.New(address, oefsearch.Spec(), oefsearch.RoleFromFirstMessage,
		dialogue.WithLogger(options.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build dialogues: %w", err)
	}

	var chOpts []channel.Option
	if options.tokens != nil {
		chOpts = append(chOpts, channel.WithTokenStore(options.tokens))
	}
	ch, err := channel.New(cfg, endpoint, chOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build channel: %w", err)
	}

	return &Node{
		address:   address,
		logger:    options.logger,
		dialogues: dialogues,
		channel:   ch,
	}, nil
}

// Address returns the agent address the node speaks as.
func (n *Node) Address() string { return n.address }

// Dialogues returns the agent-side dialogue engine.
func (n *Node) Dialogues() *dialogue.Dialogues { return n.dialogues }

// Channel returns the underlying channel, mainly for state inspection.
func (n *Node) Channel() *channel.Channel { return n.channel }

// Connect brings the channel up.
func (n *Node) Connect(ctx context.Context) error {
	return n.channel.Connect(ctx)
}

// Disconnect tears the channel down.
func (n *Node) Disconnect(ctx context.Context) error {
	return n.channel.Disconnect(ctx)
}

// RegisterService announces a service key on the directory.
func (n *Node) RegisterService(ctx context.Context, key, value string) error {
	return n.request(ctx, oefsearch.RegisterService, map[string]any{
		"service": map[string]any{"key": key, "value": value},
	})
}

// UnregisterService withdraws a service key.
func (n *Node) UnregisterService(ctx context.Context, key string) error {
	return n.request(ctx, oefsearch.UnregisterService, map[string]any{
		"service": map[string]any{"key": key},
	})
}

// Search asks the directory for agents matching the query. The result
// arrives later as a search_result envelope on Receive.
func (n *Node) Search(ctx context.Context, query oefsearch.Query) error {
	return n.request(ctx, oefsearch.SearchServices, map[string]any{
		"query": map[string]any{"range_km": query.RangeKM, "filters": query.Filters},
	})
}

// Ping checks the directory session end to end.
func (n *Node) Ping(ctx context.Context) error {
	return n.request(ctx, oefsearch.Ping, nil)
}

// request opens a fresh two-step dialogue and dispatches it on the channel.
func (n *Node) request(ctx context.Context, performative domain.Performative, content map[string]any) error {
	msg, dlg, err := n.dialogues.Create(n.channel.NodeAddress(), performative, content)
	if err != nil {
		return err
	}
	env := domain.NewEnvelope(msg.To, msg.Sender, oefsearch.Name, msg)
	if err := n.channel.Send(ctx, env); err != nil {
		n.logger.Debug("request not dispatched", "label", dlg.Label().String(), "err", err)
		return err
	}
	return nil
}

// Receive blocks for the next reply envelope and records it on the agent's
// dialogue state before handing it back.
func (n *Node) Receive(ctx context.Context) (*domain.Envelope, error) {
	env, err := n.channel.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if env.Message != nil {
		if _, uerr := n.dialogues.Update(env.Message); uerr != nil {
			n.logger.Warn("received envelope did not match a dialogue",
				"envelope", env.String(), "err", uerr)
		}
	}
	return env, nil
}
