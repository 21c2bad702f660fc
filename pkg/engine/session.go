package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harun/roundtable/internal/observability"
	"github.com/harun/roundtable/internal/tracing"
	"github.com/harun/roundtable/pkg/agent"
	"github.com/harun/roundtable/pkg/discussion"
	"github.com/harun/roundtable/pkg/provider"
	"github.com/harun/roundtable/pkg/store"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// errDisconnected aborts a turn whose client went away mid-stream
var errDisconnected = errors.New("client disconnected")

// commandHandler processes one command in the Ready state. It reports
// whether a ready event should follow.
type commandHandler func(s *session, frame Frame) (ready bool)

var commands = map[string]commandHandler{
	ActionPing:        (*session).handlePing,
	ActionRunAgent:    (*session).handleRunAgent,
	ActionRunBatch:    (*session).handleRunBatch,
	ActionUserMessage: (*session).handleUserMessage,
	ActionNewRound:    (*session).handleNewRound,
	ActionEnd:         (*session).handleEnd,
	ActionGetExport:   (*session).handleGetExport,
}

// session is the state of one connection. Only the Run goroutine touches it.
type session struct {
	engine   *Engine
	conn     Conn
	inbound  <-chan inbound
	ctx      context.Context
	id       string
	disc     *discussion.Discussion
	personas []agent.Persona
	opts     agent.RuntimeOptions
	state    State
	logger   zerolog.Logger

	// analyzedRound is the last round the sentiment observer scored
	analyzedRound int
	disconnected  bool
}

func newSessionID() (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return id, nil
}

// loop dispatches commands until the client ends the discussion or leaves
func (s *session) loop(ctx context.Context) error {
	for {
		var (
			in inbound
			ok bool
		)
		select {
		case in, ok = <-s.inbound:
		case <-ctx.Done():
			return nil
		}
		if !ok {
			s.logger.Info().Msg("Client disconnected")
			return nil
		}

		if in.err != nil {
			s.send(ctx, errorEvent(in.err.Error()))
			s.ready()
			continue
		}

		handler, exists := commands[in.frame.Action]
		if !exists {
			// init after init lands here
			s.send(ctx, errorEvent(fmt.Sprintf("Unknown action: %s", in.frame.Action)))
			s.ready()
			continue
		}

		observability.RecordCommand(in.frame.Action)
		if handler(s, in.frame) {
			s.ready()
		}
		if s.state == StateEnded || s.disconnected {
			return nil
		}
	}
}

// send writes one event. Transport failures are logged and swallowed; the
// read side notices a dead connection.
func (s *session) send(ctx context.Context, ev Event) {
	if err := s.conn.WriteEvent(ctx, ev); err != nil {
		s.logger.Debug().Err(err).Str("event", ev.Type()).Msg("Failed to send event")
	}
}

func (s *session) ready() {
	s.state = StateReady
	s.send(s.ctx, readyEvent(s.disc.Round()))
}

func (s *session) nameOf(key string) string {
	if p, ok := s.engine.registry.Get(key); ok {
		return p.Name
	}
	return key
}

// participant looks up a persona that may speak in the discussion.
// Observers are never run as participants.
func (s *session) participant(key string) (agent.Persona, bool) {
	p, ok := s.engine.registry.Get(key)
	if !ok || p.IsObserver() {
		return agent.Persona{}, false
	}
	return p, true
}

func (s *session) handlePing(Frame) bool {
	s.send(s.ctx, newEvent(EventPong, nil))
	return false
}

func (s *session) handleRunAgent(frame Frame) bool {
	persona, ok := s.participant(frame.AgentKey)
	if !ok {
		s.send(s.ctx, errorEvent(fmt.Sprintf("Unknown agent: %s", frame.AgentKey)))
		return true
	}

	text, err := s.runTurn(persona, strings.TrimSpace(frame.ContinueFrom))
	if err != nil {
		return !s.disconnected
	}

	s.checkCompleteness(persona, text)
	if s.allSpoken() && s.analyzedRound != s.disc.Round() {
		s.analyzeSentiment()
	}
	return true
}

func (s *session) handleRunBatch(frame Frame) bool {
	var (
		personas []agent.Persona
		unknown  []string
	)
	for _, key := range frame.AgentKeys {
		p, ok := s.participant(key)
		if !ok {
			unknown = append(unknown, key)
			continue
		}
		personas = append(personas, p)
	}
	if len(unknown) > 0 {
		s.send(s.ctx, errorEvent(fmt.Sprintf("Unknown agents: %s", strings.Join(unknown, ", "))))
		return true
	}

	for _, p := range personas {
		text, err := s.runTurn(p, "")
		if err != nil {
			return !s.disconnected
		}
		s.checkCompleteness(p, text)
	}

	s.analyzeSentiment()
	return true
}

func (s *session) handleUserMessage(frame Frame) bool {
	if !s.appendUserMessage(frame.Message) {
		s.send(s.ctx, errorEvent("Message cannot be empty"))
	}
	return true
}

// appendUserMessage records a non-empty user message and echoes it
func (s *session) appendUserMessage(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if err := s.disc.Append(discussion.Message{Speaker: discussion.UserSpeaker, Text: text}); err != nil {
		s.logger.Error().Err(err).Msg("Failed to record user message")
		return false
	}
	s.send(s.ctx, userMessageEvent(text, s.disc.Round()))
	return true
}

func (s *session) handleNewRound(Frame) bool {
	round := s.disc.NextRound()
	s.saveState()
	s.logger.Info().Int("round", round).Msg("Round started")
	s.send(s.ctx, roundStartEvent(round, s.disc.TotalRounds()))
	return true
}

func (s *session) handleEnd(Frame) bool {
	s.state = StateEnded
	export := s.disc.Export()

	if st := s.engine.store; st != nil {
		if err := st.EndSession(s.ctx, s.id); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to end stored session")
		}
	}
	observability.RecordSessionAudit(s.ctx, "session_end", s.id, map[string]interface{}{
		"rounds":   s.disc.Round(),
		"messages": s.disc.Len(),
	})
	s.logger.Info().Int("messages", s.disc.Len()).Msg("Discussion ended")

	s.send(s.ctx, exportEvent(EventDiscussionEnd, export))
	return false
}

func (s *session) handleGetExport(Frame) bool {
	s.send(s.ctx, exportEvent(EventExportData, s.disc.Export()))
	return false
}

// allSpoken reports whether every enrolled participant spoke this round
func (s *session) allSpoken() bool {
	spoken := s.disc.Speakers(s.disc.Round())
	for _, p := range s.personas {
		if !p.IsObserver() && !spoken[p.Key] {
			return false
		}
	}
	return len(s.personas) > 0
}

// runTurn streams one persona turn to the client, draining queued user
// messages between fragments. The completed text is appended to the log.
func (s *session) runTurn(persona agent.Persona, continueFrom string) (string, error) {
	s.state = StateRunningAgent
	round := s.disc.Round()

	var history []provider.Message
	if continueFrom != "" {
		history = continuationPrompt(s.disc, continueFrom, s.nameOf)
	} else {
		history = turnPrompt(s.disc, persona, s.nameOf)
	}

	ctx := tracing.NewTurnContext(s.ctx, persona.Key, round)
	ctx, span := tracing.StartSpan(ctx, tracerName, "engine.turn",
		attribute.String("persona", persona.Key),
		attribute.Int("round", round),
		attribute.Bool("continuation", continueFrom != ""),
	)
	logger := tracing.LoggerFromContext(ctx, s.engine.logger)

	s.send(ctx, agentStartEvent(persona, round))

	var (
		sb     strings.Builder
		usage  provider.Usage
		err    error
		cancel context.CancelFunc
	)
	ctx, cancel = context.WithCancel(ctx)
	defer cancel()

	for chunk := range s.engine.runner.Stream(ctx, persona, history, s.opts) {
		if chunk.IsFinal() {
			usage = *chunk.Usage
			err = chunk.Err
			break
		}
		if chunk.Text == "" {
			continue
		}
		sb.WriteString(chunk.Text)
		s.send(ctx, agentChunkEvent(persona, chunk.Text))

		if !s.drain() {
			err = errDisconnected
			break
		}
	}

	if err != nil {
		tracing.EndSpan(span, err)
		if errors.Is(err, errDisconnected) {
			logger.Info().Msg("Client left during turn, abandoning it")
			return "", err
		}
		logger.Warn().Err(err).Msg("Turn failed")
		s.send(ctx, errorEvent(fmt.Sprintf("%s: %s", persona.Name, describeError(err))))
		return "", err
	}

	text := sb.String()
	if err := s.disc.Append(discussion.Message{Speaker: persona.Key, Text: text, Round: round}); err != nil {
		tracing.EndSpan(span, err)
		logger.Error().Err(err).Msg("Failed to record turn")
		s.send(ctx, errorEvent("failed to record response"))
		return "", err
	}

	resolved := s.engine.runner.Resolve(s.opts)
	cost := s.logReceipt(ctx, persona.Key, round, usage, resolved)
	s.saveState()

	s.send(ctx, agentDoneEvent(persona, round, usage, cost, resolved))
	tracing.EndSpan(span, nil)
	logger.Debug().
		Int("input_tokens", usage.InputTokens).
		Int("output_tokens", usage.OutputTokens).
		Msg("Turn completed")
	return text, nil
}

// drain handles commands that arrived while a turn is streaming. User
// messages are recorded, pings answered and everything else dropped.
// It returns false once the client has disconnected.
func (s *session) drain() bool {
	var timeout <-chan time.Time
	if s.engine.cfg.DrainPoll > 0 {
		timer := time.NewTimer(s.engine.cfg.DrainPoll)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		var (
			in inbound
			ok bool
		)
		if timeout == nil {
			select {
			case in, ok = <-s.inbound:
			default:
				return true
			}
		} else {
			select {
			case in, ok = <-s.inbound:
			case <-timeout:
				return true
			}
		}

		if !ok {
			s.disconnected = true
			return false
		}

		switch {
		case in.err != nil:
			s.logger.Debug().Err(in.err).Msg("Dropping invalid frame during turn")
		case in.frame.Action == ActionUserMessage:
			observability.RecordCommand(ActionUserMessage)
			s.appendUserMessage(in.frame.Message)
		case in.frame.Action == ActionPing:
			s.send(s.ctx, newEvent(EventPong, nil))
		default:
			s.logger.Debug().Str("action", in.frame.Action).Msg("Dropping command during turn")
		}
		// one bounded wait per fragment; later frames are taken only if already queued
		timeout = nil
	}
}

func describeError(err error) string {
	var perr *provider.ProviderError
	if errors.As(err, &perr) {
		return perr.Error()
	}
	return err.Error()
}

func (s *session) logReceipt(ctx context.Context, persona string, round int, usage provider.Usage, opts agent.RuntimeOptions) float64 {
	st := s.engine.store
	if st == nil {
		return store.EstimateCost(opts.Model, usage.InputTokens, usage.OutputTokens)
	}
	cost, err := st.LogReceipt(ctx, store.Receipt{
		SessionID:    s.id,
		Persona:      persona,
		Round:        round,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Provider:     opts.Provider,
		Model:        opts.Model,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("persona", persona).Msg("Failed to log receipt")
		return store.EstimateCost(opts.Model, usage.InputTokens, usage.OutputTokens)
	}
	return cost
}

func (s *session) saveState() {
	st := s.engine.store
	if st == nil {
		return
	}
	if err := st.SaveState(s.ctx, s.id, s.disc.Export()); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to save discussion state")
	}
}
