package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/harun/roundtable/internal/observability"
	"github.com/harun/roundtable/internal/tracing"
	"github.com/harun/roundtable/pkg/agent"
	"github.com/harun/roundtable/pkg/discussion"
	"github.com/harun/roundtable/pkg/provider"
	"github.com/harun/roundtable/pkg/store"
	"github.com/rs/zerolog"
)

const tracerName = "roundtable.engine"

// State is the lifecycle position of a session
type State int

const (
	StateAwaitingInit State = iota
	StateReady
	StateRunningAgent
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateAwaitingInit:
		return "awaiting_init"
	case StateReady:
		return "ready"
	case StateRunningAgent:
		return "running_agent"
	case StateEnded:
		return "ended"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	// ErrInitFailed is returned by Run when the session could not start
	ErrInitFailed = errors.New("session init failed")

	errNotInit       = errors.New("the first message must start a discussion")
	errTopicRequired = errors.New("topic cannot be empty")
	errNoAgents      = errors.New("no known agents selected")
	errSessionLoad   = errors.New("failed to load session")
)

// Conn is a bidirectional message transport for one client
type Conn interface {
	// ReadFrame blocks for the next inbound frame. Any error ends the session.
	ReadFrame(ctx context.Context) ([]byte, error)

	// WriteEvent sends one event to the client
	WriteEvent(ctx context.Context, ev Event) error
}

// Runner executes persona turns
type Runner interface {
	Resolve(opts agent.RuntimeOptions) agent.RuntimeOptions
	Stream(ctx context.Context, persona agent.Persona, history []provider.Message, opts agent.RuntimeOptions) iter.Seq[provider.Chunk]
	Complete(ctx context.Context, persona agent.Persona, history []provider.Message, opts agent.RuntimeOptions) (string, provider.Usage, error)
}

// Store persists sessions and usage receipts
type Store interface {
	CreateSession(ctx context.Context, in store.NewSession) (string, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	SaveState(ctx context.Context, id string, state discussion.Export) error
	EndSession(ctx context.Context, id string) error
	LogReceipt(ctx context.Context, r store.Receipt) (float64, error)
}

// Config holds engine configuration
type Config struct {
	Registry *agent.Registry
	Runner   Runner

	// Store is optional; without it sessions live only in memory
	Store Store

	CuratorKey   string
	SentimentKey string

	DefaultRounds    int
	MaxRounds        int
	MaxFileChars     int
	DrainPoll        time.Duration
	InboundQueueSize int

	Logger zerolog.Logger
}

// Engine runs discussion sessions. One Engine serves every connection; each
// call to Run owns its own session state.
type Engine struct {
	registry *agent.Registry
	runner   Runner
	store    Store
	cfg      Config
	logger   zerolog.Logger
}

// New creates a new engine
func New(cfg Config) (*Engine, error) {
	observability.EnsureRegistered()

	if cfg.Registry == nil {
		return nil, fmt.Errorf("persona registry is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 5
	}
	if cfg.DefaultRounds <= 0 {
		cfg.DefaultRounds = 3
	}
	cfg.DefaultRounds = min(cfg.DefaultRounds, cfg.MaxRounds)
	if cfg.MaxFileChars <= 0 {
		cfg.MaxFileChars = 10000
	}
	if cfg.DrainPoll < 0 {
		cfg.DrainPoll = 0
	}
	if cfg.InboundQueueSize <= 0 {
		cfg.InboundQueueSize = 64
	}

	return &Engine{
		registry: cfg.Registry,
		runner:   cfg.Runner,
		store:    cfg.Store,
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "engine").Logger(),
	}, nil
}

// inbound is one frame handed from the reader goroutine to the session
type inbound struct {
	frame Frame
	err   error
}

// Run serves one client until it ends the discussion or disconnects.
// It returns nil on a normal end or disconnect and ErrInitFailed when the
// first frame could not start a session.
func (e *Engine) Run(ctx context.Context, conn Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan inbound, e.cfg.InboundQueueSize)
	go e.readLoop(ctx, conn, frames)

	s := &session{
		engine:  e,
		conn:    conn,
		inbound: frames,
		state:   StateAwaitingInit,
		logger:  e.logger,
	}

	first, ok := <-frames
	if !ok {
		return nil
	}
	if err := s.init(ctx, first); err != nil {
		s.send(ctx, errorEvent(err.Error()))
		return fmt.Errorf("%w: %w", ErrInitFailed, err)
	}

	observability.SessionOpened()
	defer observability.SessionClosed()

	return s.loop(s.ctx)
}

// readLoop feeds frames to the session until the transport fails
func (e *Engine) readLoop(ctx context.Context, conn Conn, frames chan<- inbound) {
	defer close(frames)

	first := true
	for {
		data, err := conn.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Debug().Err(err).Msg("Inbound stream closed")
			}
			return
		}

		frame, err := ParseFrame(data, first)
		first = false
		if err != nil {
			reason := "invalid"
			if errors.Is(err, ErrUnknownAction) {
				reason = "unknown_action"
			} else if errors.Is(err, ErrMalformedFrame) {
				reason = "malformed"
			}
			observability.RecordFrameRejected(reason)
		}

		select {
		case frames <- inbound{frame: frame, err: err}:
		case <-ctx.Done():
			return
		}
	}
}

// init handles the first frame: a fresh discussion or a resumed one
func (s *session) init(ctx context.Context, in inbound) error {
	if in.err != nil {
		return in.err
	}
	frame := in.frame
	if frame.Action != ActionInit {
		return errNotInit
	}

	e := s.engine
	s.opts = agent.RuntimeOptions{
		Provider:     frame.Provider,
		Model:        frame.Model,
		APIKey:       frame.APIKey,
		SearchAPIKey: frame.BraveAPIKey,
	}

	if frame.SessionID != "" {
		return s.resume(ctx, frame)
	}

	topic := frame.Topic
	if topic == "" {
		return errTopicRequired
	}

	rounds := frame.Rounds
	if rounds == 0 {
		rounds = e.cfg.DefaultRounds
	}
	rounds = max(1, min(rounds, e.cfg.MaxRounds))

	var personas []agent.Persona
	for _, p := range e.registry.Order(frame.AgentKeys) {
		if !p.IsObserver() {
			personas = append(personas, p)
		}
	}
	if len(personas) == 0 {
		return errNoAgents
	}

	fileContext := truncateRunes(frame.FileContext, e.cfg.MaxFileChars)
	keys := make([]string, 0, len(personas))
	for _, p := range personas {
		keys = append(keys, p.Key)
	}
	s.disc = discussion.New(topic, rounds, keys, fileContext)
	s.personas = personas

	resolved := e.runner.Resolve(s.opts)
	id, err := s.createSession(ctx, resolved)
	if err != nil {
		return err
	}
	s.start(ctx, id, false)
	return nil
}

func (s *session) createSession(ctx context.Context, resolved agent.RuntimeOptions) (string, error) {
	if s.engine.store == nil {
		return newSessionID()
	}
	id, err := s.engine.store.CreateSession(ctx, store.NewSession{
		Topic:       s.disc.Topic(),
		AgentKeys:   s.disc.Personas(),
		Provider:    resolved.Provider,
		Model:       resolved.Model,
		FileContext: s.disc.FileContext(),
		State:       s.disc.Export(),
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to persist session, continuing in memory")
		return newSessionID()
	}
	return id, nil
}

func (s *session) resume(ctx context.Context, frame Frame) error {
	e := s.engine
	if e.store == nil {
		return store.ErrSessionNotFound
	}

	saved, err := e.store.GetSession(ctx, frame.SessionID)
	if errors.Is(err, store.ErrSessionNotFound) || (err == nil && saved.State == nil) {
		return store.ErrSessionNotFound
	}
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", frame.SessionID).Msg("Failed to load session")
		return errSessionLoad
	}

	d, err := discussion.FromExport(*saved.State)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", saved.ID).Msg("Saved session is corrupt")
		return errSessionLoad
	}

	for _, key := range d.Personas() {
		if p, ok := e.registry.Get(key); ok {
			s.personas = append(s.personas, p)
		}
	}
	if s.opts.Provider == "" {
		s.opts.Provider = saved.Provider
	}
	if s.opts.Model == "" && s.opts.Provider == saved.Provider {
		s.opts.Model = saved.Model
	}

	s.disc = d
	s.start(ctx, saved.ID, true)
	return nil
}

// start announces the session and moves it to Ready
func (s *session) start(ctx context.Context, id string, resumed bool) {
	s.id = id
	s.ctx = tracing.NewSessionContext(ctx, id)
	s.logger = tracing.LoggerFromContext(s.ctx, s.engine.logger)

	agents := make([]AgentInfo, 0, len(s.personas))
	for _, p := range s.personas {
		agents = append(agents, agentInfo(p))
	}

	action := "session_start"
	if resumed {
		action = "session_resume"
	}
	observability.RecordSessionAudit(s.ctx, action, id, map[string]interface{}{
		"topic":    s.disc.Topic(),
		"rounds":   s.disc.TotalRounds(),
		"personas": s.disc.Personas(),
	})
	s.logger.Info().
		Str("topic", s.disc.Topic()).
		Int("rounds", s.disc.TotalRounds()).
		Bool("resumed", resumed).
		Msg("Discussion started")

	ev := sessionEvent(id, s.disc, agents, resumed)
	if resumed {
		ev["export"] = s.disc.Export()
	}
	s.send(s.ctx, ev)
	s.send(s.ctx, roundStartEvent(s.disc.Round(), s.disc.TotalRounds()))
	s.ready()
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
