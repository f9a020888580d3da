package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/dialogue"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/protocols/oefsearch"
)

// Config carries all channel settings. Zero values fall back to the
// defaults of DefaultConfig.
type Config struct {
	// SelfAddress is the local agent the channel serves.
	SelfAddress string
	// NodeAddress is the address the directory node speaks as in replies.
	NodeAddress string
	// DeclaredName and APIKey are presented during registration.
	DeclaredName string
	APIKey       string

	QueueSize int
	Workers   int

	// PingPeriod spaces keep-alive pings, ProbePeriod the watchdog's
	// liveness probes, SearchDelay consecutive search requests.
	PingPeriod  time.Duration
	ProbePeriod time.Duration
	SearchDelay time.Duration

	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	Retry RetryPolicy

	Logger     *slog.Logger
	Registerer prometheus.Registerer
	Sleeper    ports.Sleeper
}

// DefaultConfig returns the production defaults for an agent address.
func DefaultConfig(selfAddress string) Config {
	return Config{
		SelfAddress:     selfAddress,
		NodeAddress:     "directory",
		DeclaredName:    "parley-agent",
		QueueSize:       64,
		Workers:         4,
		PingPeriod:      30 * time.Minute,
		ProbePeriod:     2 * time.Second,
		SearchDelay:     time.Second,
		ConnectTimeout:  15 * time.Second,
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		Retry:           RetryPolicy{Attempts: 0, Delay: 5 * time.Second},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig(c.SelfAddress)
	if c.NodeAddress == "" {
		c.NodeAddress = def.NodeAddress
	}
	if c.DeclaredName == "" {
		c.DeclaredName = def.DeclaredName
	}
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = def.PingPeriod
	}
	if c.ProbePeriod <= 0 {
		c.ProbePeriod = def.ProbePeriod
	}
	if c.SearchDelay <= 0 {
		c.SearchDelay = def.SearchDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.Retry.Delay <= 0 {
		c.Retry.Delay = def.Retry.Delay
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop()
	}
	if c.Sleeper == nil {
		c.Sleeper = ports.RealSleeper{}
	}
	return c
}

// Channel manages one external connection's lifecycle: it translates
// envelopes into directory-endpoint calls executed off the caller's
// goroutine, maintains a bounded inbound queue of reply envelopes, and
// keeps the connection alive with a reconnection watchdog.
type Channel struct {
	cfg      Config
	logger   *slog.Logger
	endpoint ports.Endpoint
	tokens   ports.TokenStore
	sleeper  ports.Sleeper

	dialogues *dialogue.Dialogues
	metrics   *metrics
	state     stateValue

	mu       sync.Mutex
	session  ports.Session
	inbound  *Queue
	pool     *workerPool
	searches chan string
	bgCtx    context.Context
	cancel   context.CancelFunc
	bg       sync.WaitGroup

	requestsMu sync.Mutex
	requests   map[string]*dialogue.Dialogue
}

// Option configures a Channel.
type Option func(*Channel)

// WithTokenStore persists the unique page address across restarts so a
// reconnect does not always require full re-registration.
func WithTokenStore(store ports.TokenStore) Option {
	return func(c *Channel) { c.tokens = store }
}

// New creates a channel for the given endpoint. The channel owns a node-side
// Dialogues engine for the search protocol so every request/reply pair is a
// well-formed two-step dialogue.
func New(cfg Config, endpoint ports.Endpoint, opts ...Option) (*Channel, error) {
	if cfg.SelfAddress == "" {
		return nil, fmt.Errorf("channel requires a self address")
	}
	if endpoint == nil {
		return nil, fmt.Errorf("channel requires an endpoint")
	}
	cfg = cfg.withDefaults()

	dialogues, err := dialogue.New(cfg.NodeAddress, oefsearch.Spec(), oefsearch.RoleFromFirstMessage,
		dialogue.WithLogger(cfg.Logger))
	if err != nil {
		return nil, fmt.Errorf("failed to build search dialogues: %w", err)
	}

	ch := &Channel{
		cfg:       cfg,
		logger:    cfg.Logger,
		endpoint:  endpoint,
		sleeper:   cfg.Sleeper,
		dialogues: dialogues,
		requests:  make(map[string]*dialogue.Dialogue),
	}
	for _, opt := range opts {
		opt(ch)
	}
	ch.metrics = newMetrics(cfg.Registerer, func() float64 {
		if q := ch.inboundQueue(); q != nil {
			return float64(q.Len())
		}
		return 0
	})
	return ch, nil
}

// State returns the current lifecycle state.
func (c *Channel) State() State { return c.state.Load() }

// NodeAddress returns the address the directory node speaks as.
func (c *Channel) NodeAddress() string { return c.cfg.NodeAddress }

// Dialogues returns the node-side search dialogues, mainly for statistics.
func (c *Channel) Dialogues() *dialogue.Dialogues { return c.dialogues }

// Connect performs the handshake with the directory endpoint, retrying per
// the configured policy, then allocates the inbound queue and starts the
// background tasks. A bounded policy that exhausts its attempts surfaces
// domain.ErrConnectAttemptsExhausted, fatal to this channel.
func (c *Channel) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(Disconnected, Connecting) {
		if c.state.Load() == Connected {
			return nil
		}
		return fmt.Errorf("cannot connect while %s", c.state.Load())
	}
	c.metrics.setState(Connecting)
	c.logger.Debug("connecting to directory endpoint")

	if err := c.cfg.Retry.run(ctx, c.sleeper, c.logger, "connect", c.establish); err != nil {
		c.state.Store(Disconnected)
		c.metrics.setState(Disconnected)
		return err
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.inbound = NewQueue(c.cfg.QueueSize)
	c.pool = newWorkerPool(c.cfg.Workers, c.cfg.QueueSize)
	c.searches = make(chan string, c.cfg.QueueSize)
	c.bgCtx = bgCtx
	c.cancel = cancel
	c.mu.Unlock()

	c.bg.Add(3)
	go c.watchdog(bgCtx)
	go c.keepalive(bgCtx)
	go c.searchLoop(bgCtx)

	c.state.Store(Connected)
	c.metrics.setState(Connected)
	c.logger.Info("connected to directory endpoint", "address", c.cfg.SelfAddress)
	return nil
}

// establish probes reachability and registers, preferring a persisted page
// address when it is still alive on the directory side.
func (c *Channel) establish(ctx context.Context) error {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	if err := c.endpoint.Connect(cctx); err != nil {
		return err
	}
	session, err := c.restoreOrRegister(cctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
	return nil
}

func (c *Channel) restoreOrRegister(ctx context.Context) (ports.Session, error) {
	if c.tokens != nil {
		token, err := c.tokens.Load(ctx)
		switch {
		case err == nil:
			restored := ports.Session{PageAddress: token}
			if perr := c.endpoint.Ping(ctx, restored); perr == nil {
				c.logger.Debug("restored persisted session", "page_address", token)
				return restored, nil
			}
			c.logger.Debug("persisted session is stale, re-registering")
			if cerr := c.tokens.Clear(ctx); cerr != nil {
				c.logger.Warn("failed to clear stale token", "err", cerr)
			}
		case !errors.Is(err, domain.ErrTokenNotFound):
			c.logger.Warn("failed to load persisted token", "err", err)
		}
	}

	session, err := c.endpoint.Register(ctx, ports.Registration{
		Address:      c.cfg.SelfAddress,
		DeclaredName: c.cfg.DeclaredName,
		APIKey:       c.cfg.APIKey,
	})
	if err != nil {
		return ports.Session{}, err
	}
	if c.tokens != nil {
		if serr := c.tokens.Store(ctx, session.PageAddress); serr != nil {
			c.logger.Warn("failed to persist session token", "err", serr)
		}
	}
	return session, nil
}

// Send dispatches an envelope's request to the directory endpoint. Searches
// go through the rate-limited queue; other request kinds run on the worker
// pool. The eventual result or error comes back as a reply envelope on the
// inbound queue, built through the dialogue that carried the request.
func (c *Channel) Send(ctx context.Context, env *domain.Envelope) error {
	if c.state.Load() != Connected {
		return fmt.Errorf("channel is %s, not connected", c.state.Load())
	}
	if err := env.Validate(); err != nil {
		return err
	}
	if env.Message == nil {
		return fmt.Errorf("cannot dispatch an opaque payload to the directory endpoint")
	}

	dlg, err := c.dialogues.Update(env.Message)
	if err != nil {
		c.logger.Warn("rejected request envelope", "envelope", env.String(), "err", err)
		return err
	}

	reqID := uuid.NewString()
	c.requestsMu.Lock()
	c.requests[reqID] = dlg
	c.requestsMu.Unlock()
	c.metrics.requests.WithLabelValues(string(env.Message.Performative)).Inc()

	if env.Message.Performative == oefsearch.SearchServices {
		select {
		case c.searches <- reqID:
			return nil
		case <-ctx.Done():
			c.dropRequest(reqID)
			return ctx.Err()
		}
	}

	if err := c.pool.submit(func() { c.execute(reqID) }); err != nil {
		c.dropRequest(reqID)
		return err
	}
	return nil
}

// Receive blocks until the next inbound envelope is available. It returns
// domain.ErrQueueClosed once the queue is drained after Disconnect, and the
// context error for a cancelled wait; both are clean outcomes, not faults.
func (c *Channel) Receive(ctx context.Context) (*domain.Envelope, error) {
	q := c.inboundQueue()
	if q == nil {
		return nil, domain.ErrQueueClosed
	}
	env, err := q.Get(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.logger.Debug("receive cancelled")
		}
		return nil, err
	}
	return env, nil
}

// Disconnect cancels background tasks, says a best-effort goodbye to the
// endpoint and closes the inbound queue so blocked Receive calls unblock.
// It is idempotent.
func (c *Channel) Disconnect(ctx context.Context) error {
	if !c.state.CompareAndSwap(Connected, Disconnecting) &&
		!c.state.CompareAndSwap(Connecting, Disconnecting) {
		return nil
	}
	c.metrics.setState(Disconnecting)
	c.logger.Debug("disconnecting from directory endpoint")

	c.mu.Lock()
	cancel := c.cancel
	pool := c.pool
	inbound := c.inbound
	session := c.session
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if pool != nil {
		pool.stop()
	}
	c.waitBackground()

	uctx, uncancel := context.WithTimeout(ctx, c.cfg.ShutdownTimeout)
	defer uncancel()
	if session.PageAddress != "" {
		if err := c.endpoint.Unregister(uctx, session); err != nil {
			c.logger.Warn("goodbye to directory endpoint failed", "err", err)
		} else if c.tokens != nil {
			if err := c.tokens.Clear(uctx); err != nil {
				c.logger.Warn("failed to clear persisted token", "err", err)
			}
		}
	}
	if err := c.endpoint.Disconnect(uctx); err != nil {
		c.logger.Warn("endpoint disconnect failed", "err", err)
	}

	if inbound != nil {
		inbound.Close()
	}
	c.state.Store(Disconnected)
	c.metrics.setState(Disconnected)
	c.logger.Info("disconnected from directory endpoint")
	return nil
}

func (c *Channel) waitBackground() {
	done := make(chan struct{})
	go func() {
		c.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.cfg.ShutdownTimeout):
		c.logger.Warn("background tasks did not stop within shutdown bound")
	}
}

func (c *Channel) inboundQueue() *Queue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inbound
}

func (c *Channel) currentSession() ports.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Channel) takeRequest(reqID string) *dialogue.Dialogue {
	c.requestsMu.Lock()
	defer c.requestsMu.Unlock()
	dlg := c.requests[reqID]
	delete(c.requests, reqID)
	return dlg
}

func (c *Channel) dropRequest(reqID string) {
	c.requestsMu.Lock()
	delete(c.requests, reqID)
	c.requestsMu.Unlock()
}

// execute runs one non-search request on a worker goroutine and pushes the
// reply envelope inbound.
func (c *Channel) execute(reqID string) {
	dlg := c.takeRequest(reqID)
	if dlg == nil {
		return
	}
	msg := dlg.LastMessage()

	c.mu.Lock()
	bgCtx := c.bgCtx
	c.mu.Unlock()
	if bgCtx == nil {
		return
	}
	rctx, cancel := context.WithTimeout(bgCtx, c.cfg.RequestTimeout)
	defer cancel()

	session := c.currentSession()
	var err error
	switch msg.Performative {
	case oefsearch.RegisterService:
		err = c.registerService(rctx, session, msg)
	case oefsearch.UnregisterService:
		err = c.unregisterService(rctx, session, msg)
	case oefsearch.Ping:
		err = c.endpoint.Ping(rctx, session)
	default:
		err = fmt.Errorf("%w: %q is not a directory request", domain.ErrUnknownPerformative, msg.Performative)
	}

	if err != nil {
		c.replyError(dlg, msg, err)
		return
	}
	reply, rerr := dlg.Reply(oefsearch.Success, msg, nil)
	if rerr != nil {
		c.logger.Warn("failed to build success reply", "err", rerr)
		return
	}
	c.pushInbound(reply)
}

func (c *Channel) registerService(ctx context.Context, session ports.Session, msg *domain.Message) error {
	var content struct {
		Service oefsearch.ServiceDescription `mapstructure:"service"`
	}
	if err := msg.DecodeContent(&content); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadResponse, err)
	}
	_, err := c.endpoint.Call(ctx, session, "set_service_key", map[string]string{
		"key":   content.Service.Key,
		"value": content.Service.Value,
	})
	return err
}

func (c *Channel) unregisterService(ctx context.Context, session ports.Session, msg *domain.Message) error {
	var content struct {
		Service oefsearch.ServiceDescription `mapstructure:"service"`
	}
	if err := msg.DecodeContent(&content); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrBadResponse, err)
	}
	if content.Service.Key == "" {
		_, err := c.endpoint.Call(ctx, session, "unregister", nil)
		return err
	}
	_, err := c.endpoint.Call(ctx, session, "remove_service_key", map[string]string{
		"key": content.Service.Key,
	})
	return err
}

// searchLoop is the rate-limited queue: one search at a time, spaced by the
// configured delay, so the directory service is never hammered. A failing
// item becomes an error reply, never a stopped loop.
func (c *Channel) searchLoop(ctx context.Context) {
	defer c.bg.Done()
	for {
		var reqID string
		select {
		case <-ctx.Done():
			return
		case reqID = <-c.searches:
		}
		c.runSearch(ctx, reqID)
		if err := c.sleeper.Sleep(ctx, c.cfg.SearchDelay); err != nil {
			return
		}
	}
}

func (c *Channel) runSearch(ctx context.Context, reqID string) {
	dlg := c.takeRequest(reqID)
	if dlg == nil {
		return
	}
	msg := dlg.LastMessage()

	var content struct {
		Query oefsearch.Query `mapstructure:"query"`
	}
	if err := msg.DecodeContent(&content); err != nil {
		c.replyError(dlg, msg, fmt.Errorf("%w: %v", domain.ErrBadResponse, err))
		return
	}

	rctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	agents, err := c.endpoint.Search(rctx, c.currentSession(), ports.SearchQuery{
		RangeKM: content.Query.RangeKM,
		Filters: content.Query.Filters,
	})
	if err != nil {
		c.replyError(dlg, msg, err)
		return
	}

	reply, rerr := dlg.Reply(oefsearch.SearchResult, msg, map[string]any{"agents": agents})
	if rerr != nil {
		c.logger.Warn("failed to build search result reply", "err", rerr)
		return
	}
	c.pushInbound(reply)
}

// replyError converts an upstream failure into a protocol-level error reply
// delivered through the dialogue that originated the request.
func (c *Channel) replyError(dlg *dialogue.Dialogue, msg *domain.Message, cause error) {
	c.metrics.failures.WithLabelValues(string(msg.Performative)).Inc()
	c.logger.Warn("directory request failed",
		"performative", string(msg.Performative), "sender", msg.Sender, "err", cause)

	reply, err := dlg.Reply(oefsearch.OefError, msg, map[string]any{
		"operation": string(msg.Performative),
		"message":   cause.Error(),
	})
	if err != nil {
		c.logger.Warn("failed to build error reply", "err", err)
		return
	}
	c.pushInbound(reply)
}

func (c *Channel) pushInbound(reply *domain.Message) {
	c.mu.Lock()
	bgCtx := c.bgCtx
	inbound := c.inbound
	c.mu.Unlock()
	if bgCtx == nil || inbound == nil {
		return
	}
	env := domain.NewEnvelope(reply.To, c.cfg.NodeAddress, oefsearch.Name, reply)
	if err := inbound.Put(bgCtx, env); err != nil {
		c.logger.Debug("dropping reply, inbound queue unavailable", "err", err)
	}
}

// watchdog probes liveness while connected and drives the reconnect path on
// loss. It never lets a probe or reconnect failure escape the loop.
func (c *Channel) watchdog(ctx context.Context) {
	defer c.bg.Done()
	for {
		if err := c.sleeper.Sleep(ctx, c.cfg.ProbePeriod); err != nil {
			return
		}
		if c.state.Load() != Connected {
			continue
		}

		pctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		err := c.endpoint.Ping(pctx, c.currentSession())
		cancel()
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		c.logger.Warn("lost connection to directory endpoint", "err", err)
		c.metrics.reconnects.Inc()
		c.state.Store(Connecting)
		c.metrics.setState(Connecting)

		if rerr := c.cfg.Retry.run(ctx, c.sleeper, c.logger, "reconnect", c.establish); rerr != nil {
			if ctx.Err() != nil {
				return
			}
			// Stay in connecting; the next probe tick starts another round.
			c.logger.Error("reconnect gave up, will retry", "err", rerr)
			continue
		}
		c.state.Store(Connected)
		c.metrics.setState(Connected)
		c.logger.Info("re-established connection to directory endpoint")
	}
}

// keepalive pings periodically so the directory side keeps the registration
// alive. Failures are left to the watchdog.
func (c *Channel) keepalive(ctx context.Context) {
	defer c.bg.Done()
	for {
		if err := c.sleeper.Sleep(ctx, c.cfg.PingPeriod); err != nil {
			return
		}
		if c.state.Load() != Connected {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		if err := c.endpoint.Ping(pctx, c.currentSession()); err != nil {
			c.logger.Debug("keep-alive ping failed", "err", err)
		}
		cancel()
	}
}
