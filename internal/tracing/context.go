package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RunIDKey is the context key for the id of one agent turn
	RunIDKey ContextKey = "run_id"
	// SessionIDKey is the context key for the discussion session id
	SessionIDKey ContextKey = "session_id"
	// PersonaKey is the context key for the persona taking a turn
	PersonaKey ContextKey = "persona"
	// RoundKey is the context key for the discussion round
	RoundKey ContextKey = "round"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	RunID     string
	SessionID string
	Persona   string
	Round     int
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRunID generates a new run ID
func NewRunID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

// WithSessionID adds a session ID to the context
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithPersona adds a persona key to the context
func WithPersona(ctx context.Context, persona string) context.Context {
	return context.WithValue(ctx, PersonaKey, persona)
}

// WithRound adds a round number to the context
func WithRound(ctx context.Context, round int) context.Context {
	return context.WithValue(ctx, RoundKey, round)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetRunID retrieves the run ID from the context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetSessionID retrieves the session ID from the context
func GetSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(SessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}

// GetPersona retrieves the persona key from the context
func GetPersona(ctx context.Context) string {
	if persona, ok := ctx.Value(PersonaKey).(string); ok {
		return persona
	}
	return ""
}

// GetRound retrieves the round number from the context, 0 when unset
func GetRound(ctx context.Context) int {
	if round, ok := ctx.Value(RoundKey).(int); ok {
		return round
	}
	return 0
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		RunID:     GetRunID(ctx),
		SessionID: GetSessionID(ctx),
		Persona:   GetPersona(ctx),
		Round:     GetRound(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.RunID != "" {
		ctx = WithRunID(ctx, tc.RunID)
	}
	if tc.SessionID != "" {
		ctx = WithSessionID(ctx, tc.SessionID)
	}
	if tc.Persona != "" {
		ctx = WithPersona(ctx, tc.Persona)
	}
	if tc.Round > 0 {
		ctx = WithRound(ctx, tc.Round)
	}
	return ctx
}

// NewSessionContext starts a trace for one discussion session
func NewSessionContext(ctx context.Context, sessionID string) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	return WithSessionID(ctx, sessionID)
}

// NewTurnContext tags the context for a single agent turn with a fresh run ID.
// The trace and session IDs of the parent are kept.
func NewTurnContext(ctx context.Context, persona string, round int) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithRunID(ctx, NewRunID())
	ctx = WithPersona(ctx, persona)
	return WithRound(ctx, round)
}
