package engine

import (
	"github.com/harun/roundtable/pkg/agent"
	"github.com/harun/roundtable/pkg/discussion"
	"github.com/harun/roundtable/pkg/provider"
)

// Server event types
const (
	EventSession        = "session"
	EventPong           = "pong"
	EventRoundStart     = "round_start"
	EventReady          = "ready"
	EventAgentStart     = "agent_start"
	EventAgentChunk     = "agent_chunk"
	EventAgentDone      = "agent_done"
	EventUserMessage    = "user_message"
	EventCuratorRequeue = "curator_requeue"
	EventSentiment      = "sentiment_update"
	EventExportData     = "export_data"
	EventDiscussionEnd  = "discussion_end"
	EventError          = "error"
)

// Event is one server-to-client message. The "type" key names the event.
type Event map[string]interface{}

// Type returns the event type
func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

func newEvent(eventType string, fields map[string]interface{}) Event {
	ev := Event{"type": eventType}
	for k, v := range fields {
		ev[k] = v
	}
	return ev
}

// AgentInfo is the client view of an enrolled persona
type AgentInfo struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	Specialty string `json:"specialty"`
	Color     string `json:"color"`
	Avatar    string `json:"avatar"`
	Role      string `json:"role"`
}

func agentInfo(p agent.Persona) AgentInfo {
	return AgentInfo{
		Key:       p.Key,
		Name:      p.Name,
		Specialty: p.Specialty,
		Color:     p.Color,
		Avatar:    p.Avatar,
		Role:      p.Role,
	}
}

func sessionEvent(id string, d *discussion.Discussion, agents []AgentInfo, resumed bool) Event {
	return newEvent(EventSession, map[string]interface{}{
		"session_id":   id,
		"topic":        d.Topic(),
		"total_rounds": d.TotalRounds(),
		"agents":       agents,
		"resumed":      resumed,
	})
}

func roundStartEvent(round, total int) Event {
	return newEvent(EventRoundStart, map[string]interface{}{"round": round, "total_rounds": total})
}

func readyEvent(round int) Event {
	return newEvent(EventReady, map[string]interface{}{"round": round})
}

func agentStartEvent(p agent.Persona, round int) Event {
	return newEvent(EventAgentStart, map[string]interface{}{
		"agent":     p.Name,
		"agent_key": p.Key,
		"round":     round,
		"color":     p.Color,
		"avatar":    p.Avatar,
	})
}

func agentChunkEvent(p agent.Persona, text string) Event {
	return newEvent(EventAgentChunk, map[string]interface{}{
		"agent":     p.Name,
		"agent_key": p.Key,
		"chunk":     text,
	})
}

// TurnUsage is the usage block of agent_done
type TurnUsage struct {
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
}

func agentDoneEvent(p agent.Persona, round int, usage provider.Usage, cost float64, opts agent.RuntimeOptions) Event {
	return newEvent(EventAgentDone, map[string]interface{}{
		"agent":     p.Name,
		"agent_key": p.Key,
		"round":     round,
		"usage": TurnUsage{
			InputTokens:   usage.InputTokens,
			OutputTokens:  usage.OutputTokens,
			EstimatedCost: cost,
			Provider:      opts.Provider,
			Model:         opts.Model,
		},
	})
}

func userMessageEvent(content string, round int) Event {
	return newEvent(EventUserMessage, map[string]interface{}{"content": content, "round": round})
}

func curatorRequeueEvent(p agent.Persona, lastTopic string) Event {
	return newEvent(EventCuratorRequeue, map[string]interface{}{
		"agent":      p.Name,
		"agent_key":  p.Key,
		"last_topic": lastTopic,
	})
}

func sentimentEvent(round int, data SentimentData) Event {
	return newEvent(EventSentiment, map[string]interface{}{"round": round, "data": data})
}

func exportEvent(eventType string, export discussion.Export) Event {
	return newEvent(eventType, map[string]interface{}{"export": export})
}

func errorEvent(message string) Event {
	return newEvent(EventError, map[string]interface{}{"message": message})
}
