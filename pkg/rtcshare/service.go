package rtcshare

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bft-labs/rtcshare/internal/adapters/fs"
	"github.com/bft-labs/rtcshare/internal/adapters/httpapi"
	"github.com/bft-labs/rtcshare/internal/adapters/servicequery"
	"github.com/bft-labs/rtcshare/internal/adapters/webrtc"
	"github.com/bft-labs/rtcshare/internal/adapters/websocket"
	"github.com/bft-labs/rtcshare/internal/app"
	"github.com/bft-labs/rtcshare/internal/domain"
	"github.com/bft-labs/rtcshare/internal/metrics"
	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/peer"
	"github.com/bft-labs/rtcshare/pkg/relay"
	"github.com/bft-labs/rtcshare/pkg/wire"
)

// Service shares a directory over the direct HTTP API, WebRTC data
// channels and, optionally, the relay proxy. Create it with New and run
// it with Start.
type Service struct {
	config    Config
	opts      options
	logger    Logger
	lifecycle *app.Lifecycle
	emitter   *emitter
	metrics   *metrics.Metrics
	dir       *fs.Dir
	identity  *fs.IdentityFile
	answerer  *webrtc.Answerer

	mu   sync.RWMutex
	hub  *peer.SignalHub
	conn *relay.Connection
	addr net.Addr
}

// New creates a Service in StateStopped. It returns an error if cfg is
// invalid.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = log.NoopLogger{}
	}
	if o.dialer == nil {
		o.dialer = websocket.NewDialer(websocket.DefaultOptions())
	}
	if o.services == nil && cfg.ServiceAddr != "" {
		o.services = servicequery.NewForwarder(cfg.ServiceAddr, cfg.Dir, logger)
	}

	s := &Service{
		config:   cfg,
		opts:     o,
		logger:   logger,
		dir:      fs.NewDir(cfg.Dir, cfg.EnableRelay, logger),
		identity: fs.NewIdentityFile(cfg.Dir),
	}
	s.emitter = &emitter{handler: o.eventHandler, publicURL: s.PublicURL}
	s.lifecycle = app.NewLifecycle(logger, s.emitter)
	if o.registry != nil {
		s.metrics = metrics.New(o.registry)
		s.emitter.next = s.metrics
	}

	s.answerer = webrtc.NewAnswerer(cfg.ICEServers, NewHandler(s.dir, nil, o.services), logger,
		peer.WithMaxMessageBytes(cfg.MaxMessageBytes),
		peer.WithThrottleConfig(cfg.throttleConfig()),
	)
	if s.metrics != nil {
		s.answerer.ObserveThrottles(s.metrics.ThrottleObserver)
	}
	return s, nil
}

// Start begins serving in the background and returns once every
// listener is bound. ctx bounds the lifetime of the service.
func (s *Service) Start(ctx context.Context) error {
	if !s.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.lifecycle.SetCancel(cancel)

	if err := s.start(runCtx); err != nil {
		cancel()
		s.closeComponents()
		_ = s.lifecycle.WaitWithTimeout(app.ShutdownTimeout)
		_ = s.lifecycle.TransitionTo(app.StateCrashed, err.Error())
		return err
	}

	return s.lifecycle.TransitionTo(app.StateRunning, "started")
}

func (s *Service) start(ctx context.Context) error {
	hub := peer.NewSignalHub(s.answerer,
		peer.WithHubLogger(s.logger),
		peer.WithIdleTimeout(s.config.PeerIdleTimeout),
	)
	handler := NewHandler(s.dir, hub, s.opts.services)
	s.mu.Lock()
	s.hub = hub
	s.mu.Unlock()

	if s.config.ListenAddr != "" {
		if err := s.startHTTP(ctx, handler); err != nil {
			return err
		}
	}
	if s.config.EnableRelay {
		if err := s.startRelay(ctx, handler); err != nil {
			return err
		}
	}

	pluginCfg := PluginConfig{
		Dir:       s.config.Dir,
		PublicURL: s.PublicURL(),
		Pacer:     s,
		Logger:    s.logger,
	}
	for _, p := range s.opts.plugins {
		if err := p.Initialize(ctx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed", log.String("plugin", p.Name()), log.Err(err))
			return fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		s.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}
	return nil
}

func (s *Service) startHTTP(ctx context.Context, handler RequestHandler) error {
	l, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.ListenAddr, err)
	}
	hopts := []httpapi.Option{httpapi.WithLogger(s.logger)}
	if len(s.config.AllowedOrigins) > 0 {
		hopts = append(hopts, httpapi.WithAllowedOrigins(s.config.AllowedOrigins))
	}
	if s.opts.registry != nil {
		hopts = append(hopts, httpapi.WithMetrics(s.opts.registry))
	}
	srv := httpapi.NewServer(s.config.ListenAddr, handler, hopts...)

	s.mu.Lock()
	s.addr = l.Addr()
	s.mu.Unlock()

	s.lifecycle.Go(func() {
		if err := srv.Serve(ctx, l); err != nil && !errors.Is(err, context.Canceled) {
			s.crash("http api", err)
		}
	})
	return nil
}

func (s *Service) startRelay(ctx context.Context, handler RequestHandler) error {
	id, err := s.identity.LoadOrCreate(ctx)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	ropts := []relay.Option{
		relay.WithLogger(s.logger),
		relay.WithObserver(s.emitter),
		relay.WithThrottle(s.config.throttleConfig()),
	}
	var wopts []wire.ReassemblerOption
	if s.config.MaxPendingGroups > 0 {
		wopts = append(wopts, wire.WithMaxPendingGroups(s.config.MaxPendingGroups))
	}
	if s.metrics != nil {
		wopts = append(wopts, wire.WithEvictHandler(s.metrics.GroupEvicted))
	}
	ropts = append(ropts, relay.WithReassemblerOptions(wopts...))
	conn := relay.New(s.config.relayConfig(id), s.opts.dialer, handler, ropts...)

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.logger.Info("sharing through relay", log.String("url", conn.PublicURL()))

	s.lifecycle.Go(func() {
		if err := conn.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.crash("relay", err)
		}
	})
	return nil
}

// crash records a worker failure and stops the other workers.
func (s *Service) crash(worker string, err error) {
	s.logger.Error("worker failed", log.String("worker", worker), log.Err(err))
	if s.lifecycle.TransitionTo(app.StateCrashed, worker+": "+err.Error()) == nil {
		s.lifecycle.Cancel()
		s.closeComponents()
	}
}

func (s *Service) closeComponents() {
	s.mu.RLock()
	hub, conn := s.hub, s.conn
	s.mu.RUnlock()
	if conn != nil {
		_ = conn.Close()
	}
	if hub != nil {
		_ = hub.Close()
	}
}

// Stop shuts the service down, waiting up to app.ShutdownTimeout for its
// workers. It returns ErrShutdownTimeout if they did not finish in time.
func (s *Service) Stop() error {
	if !s.lifecycle.CanStop() {
		return domain.ErrNotRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		return err
	}

	s.lifecycle.Cancel()
	s.closeComponents()
	err := s.lifecycle.WaitWithTimeout(app.ShutdownTimeout)

	for i := len(s.opts.plugins) - 1; i >= 0; i-- {
		p := s.opts.plugins[i]
		if perr := p.Shutdown(context.Background()); perr != nil {
			s.logger.Error("plugin shutdown failed", log.String("plugin", p.Name()), log.Err(perr))
		}
	}

	if err != nil {
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
		return err
	}
	return s.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
}

// Status returns the lifecycle state.
func (s *Service) Status() State {
	return convertState(s.lifecycle.State())
}

// Addr returns the bound address of the HTTP API, or nil before Start or
// when the API is disabled.
func (s *Service) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// PublicURL returns the relay URL of the service, or "" when the relay
// is disabled or not started.
func (s *Service) PublicURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return ""
	}
	return s.conn.PublicURL()
}

// RelayState returns the state of the relay session.
func (s *Service) RelayState() relay.State {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return relay.StateClosed
	}
	return conn.State()
}

// Peers returns the number of clients with a live peer.
func (s *Service) Peers() int {
	s.mu.RLock()
	hub := s.hub
	s.mu.RUnlock()
	if hub == nil {
		return 0
	}
	return hub.Len()
}

// SetLimit changes the pacing of peer data channels. It implements
// Pacer.
func (s *Service) SetLimit(maxBytesPerPeriod int, period time.Duration) {
	s.answerer.SetLimit(maxBytesPerPeriod, period)
	s.logger.Info("peer pacing changed",
		log.Int("max_bytes_per_period", maxBytesPerPeriod),
		log.Duration("period", period))
	if s.opts.eventHandler != nil {
		s.opts.eventHandler.OnLimitChange(LimitChangeEvent{MaxBytesPerPeriod: maxBytesPerPeriod, Period: period})
	}
}

var _ Pacer = (*Service)(nil)
