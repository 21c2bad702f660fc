package engine

import (
	"github.com/harun/roundtable/internal/observability"
	"github.com/harun/roundtable/internal/tracing"
	"github.com/harun/roundtable/pkg/agent"
	"github.com/harun/roundtable/pkg/provider"
	"go.opentelemetry.io/otel/attribute"
)

const (
	observerCurator   = "curator"
	observerSentiment = "sentiment"
)

// checkCompleteness asks the curator whether a response was cut off and
// emits curator_requeue when it was. Observer failures count as complete.
func (s *session) checkCompleteness(speaker agent.Persona, text string) {
	ending, lastTopic := AssessEnding(text)

	// A decisive ending is final; the curator is consulted only when the
	// heuristic is undecided.
	verdict := Verdict{Complete: ending != EndingIncomplete, LastTopic: lastTopic}
	if ending == EndingUndecided {
		verdict = s.askCurator(speaker, text, lastTopic)
	}

	outcome := "complete"
	if !verdict.Complete {
		outcome = "incomplete"
		s.send(s.ctx, curatorRequeueEvent(speaker, verdict.LastTopic))
	}
	observability.RecordObserverRun(observerCurator, outcome)
	s.logger.Debug().
		Str("persona", speaker.Key).
		Str("heuristic", ending.String()).
		Bool("complete", verdict.Complete).
		Msg("Completeness checked")
}

func (s *session) askCurator(speaker agent.Persona, text, fallbackTopic string) Verdict {
	complete := Verdict{Complete: true}

	curator, ok := s.engine.registry.Get(s.engine.cfg.CuratorKey)
	if !ok {
		return complete
	}

	output, ok := s.runObserver(observerCurator, curator, curatorPrompt(speaker.Name, text))
	if !ok {
		return complete
	}

	verdict, err := ParseVerdict(output)
	if err != nil {
		observability.RecordObserverFailure(observerCurator, "parse")
		s.logger.Warn().Err(err).Str("output", output).Msg("Unreadable curator verdict, treating as complete")
		return complete
	}
	if !verdict.Complete && verdict.LastTopic == "" {
		verdict.LastTopic = fallbackTopic
	}
	return verdict
}

// analyzeSentiment scores the current round and emits sentiment_update.
// The first accepted viewpoint pair is pinned for the rest of the session.
func (s *session) analyzeSentiment() {
	round := s.disc.Round()
	s.analyzedRound = round

	analyst, ok := s.engine.registry.Get(s.engine.cfg.SentimentKey)
	if !ok {
		return
	}
	messages := s.disc.RoundMessages(round, true)
	if len(messages) == 0 {
		return
	}

	keys := []string{}
	seen := map[string]bool{}
	for _, m := range messages {
		if !seen[m.Speaker] {
			seen[m.Speaker] = true
			keys = append(keys, m.Speaker)
		}
	}

	output, ok := s.runObserver(observerSentiment, analyst, sentimentPrompt(s.disc, round, messages, keys, s.nameOf))
	if !ok {
		return
	}

	data, err := ParseSentiment(output)
	if err != nil {
		observability.RecordObserverFailure(observerSentiment, "parse")
		s.logger.Warn().Err(err).Str("output", output).Msg("Unreadable sentiment payload, skipping update")
		return
	}

	if s.disc.PinViewpoints(data.Viewpoints) {
		s.logger.Info().Strs("viewpoints", data.Viewpoints).Msg("Viewpoints pinned")
	} else {
		data.Viewpoints = s.disc.Viewpoints()
	}

	observability.RecordObserverRun(observerSentiment, "updated")
	s.send(s.ctx, sentimentEvent(round, data))
}

// runObserver makes one non-streaming observer call and logs its receipt.
// ok is false when the call failed.
func (s *session) runObserver(name string, observer agent.Persona, history []provider.Message) (string, bool) {
	round := s.disc.Round()
	ctx := tracing.NewTurnContext(s.ctx, observer.Key, round)
	ctx, span := tracing.StartSpan(ctx, tracerName, "engine.observer",
		attribute.String("observer", name),
		attribute.String("persona", observer.Key),
	)

	output, usage, err := s.engine.runner.Complete(ctx, observer, history, s.opts)
	tracing.EndSpan(span, err)
	if err != nil {
		observability.RecordObserverFailure(name, "call")
		s.logger.Warn().Err(err).Str("observer", name).Msg("Observer call failed")
		return "", false
	}

	s.logReceipt(ctx, observer.Key, round, usage, s.engine.runner.Resolve(s.opts))
	return output, true
}
