package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Client actions
const (
	ActionInit        = "init"
	ActionPing        = "ping"
	ActionRunAgent    = "run_agent"
	ActionRunBatch    = "run_batch"
	ActionUserMessage = "user_message"
	ActionNewRound    = "new_round"
	ActionEnd         = "end"
	ActionGetExport   = "get_export"
)

var (
	// ErrMalformedFrame is returned for frames that are not a JSON object
	ErrMalformedFrame = errors.New("invalid JSON")

	// ErrUnknownAction is returned for actions without a handler
	ErrUnknownAction = errors.New("unknown action")
)

// FrameError describes why an inbound frame was rejected
type FrameError struct {
	Action string
	Reason string
	Err    error
}

func (e *FrameError) Error() string {
	switch {
	case errors.Is(e.Err, ErrUnknownAction):
		return fmt.Sprintf("Unknown action: %s", e.Action)
	case errors.Is(e.Err, ErrMalformedFrame):
		return "Invalid JSON"
	}
	return fmt.Sprintf("Invalid %s frame: %s", e.Action, e.Reason)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Frame is one decoded client command
type Frame struct {
	Action       string   `json:"action"`
	Topic        string   `json:"topic,omitempty"`
	Rounds       int      `json:"rounds,omitempty"`
	AgentKeys    []string `json:"agent_keys,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
	Provider     string   `json:"provider,omitempty"`
	Model        string   `json:"model,omitempty"`
	APIKey       string   `json:"api_key,omitempty"`
	BraveAPIKey  string   `json:"brave_api_key,omitempty"`
	FileContext  string   `json:"file_context,omitempty"`
	AgentKey     string   `json:"agent_key,omitempty"`
	ContinueFrom string   `json:"continue_from,omitempty"`
	Message      string   `json:"message,omitempty"`
}

func stringProp() map[string]interface{} {
	return map[string]interface{}{"type": "string"}
}

func stringList(minItems int) map[string]interface{} {
	list := map[string]interface{}{
		"type":  "array",
		"items": stringProp(),
	}
	if minItems > 0 {
		list["minItems"] = minItems
	}
	return list
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	properties["action"] = stringProp()
	properties["type"] = stringProp()

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// frameSchemas holds one compiled schema per action
var frameSchemas = mustCompile(map[string]map[string]interface{}{
	ActionInit: objectSchema(map[string]interface{}{
		"topic":         stringProp(),
		"rounds":        map[string]interface{}{"type": []string{"integer", "string"}},
		"agent_keys":    stringList(0),
		"session_id":    stringProp(),
		"provider":      stringProp(),
		"model":         stringProp(),
		"api_key":       stringProp(),
		"brave_api_key": stringProp(),
		"file_context":  stringProp(),
	}),
	ActionPing: objectSchema(nil),
	ActionRunAgent: objectSchema(map[string]interface{}{
		"agent_key":     map[string]interface{}{"type": "string", "minLength": 1},
		"continue_from": stringProp(),
	}, "agent_key"),
	ActionRunBatch: objectSchema(map[string]interface{}{
		"agent_keys": stringList(1),
	}, "agent_keys"),
	ActionUserMessage: objectSchema(map[string]interface{}{
		"message": stringProp(),
	}, "message"),
	ActionNewRound:  objectSchema(nil),
	ActionEnd:       objectSchema(nil),
	ActionGetExport: objectSchema(nil),
})

func mustCompile(schemas map[string]map[string]interface{}) map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, len(schemas))
	for action, schemaMap := range schemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
		if err != nil {
			panic(fmt.Sprintf("invalid %s frame schema: %v", action, err))
		}
		compiled[action] = schema
	}
	return compiled
}

// ParseFrame decodes and validates one inbound frame. The action is read
// from "action" or, for older clients, "type". A first frame without an
// action is treated as init.
func ParseFrame(data []byte, first bool) (Frame, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return Frame{}, &FrameError{Err: ErrMalformedFrame}
	}

	action, _ := raw["action"].(string)
	if action == "" {
		action, _ = raw["type"].(string)
	}
	if action == "" && first {
		action = ActionInit
	}

	schema, ok := frameSchemas[action]
	if !ok {
		return Frame{}, &FrameError{Action: action, Err: ErrUnknownAction}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return Frame{}, &FrameError{Action: action, Reason: err.Error(), Err: ErrMalformedFrame}
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return Frame{}, &FrameError{Action: action, Reason: strings.Join(errs, "; ")}
	}

	// rounds may arrive as a numeric string
	if s, ok := raw["rounds"].(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return Frame{}, &FrameError{Action: action, Reason: fmt.Sprintf("rounds: %q is not a whole number", s)}
		}
		raw["rounds"] = n
		if data, err = json.Marshal(raw); err != nil {
			return Frame{}, &FrameError{Action: action, Reason: err.Error()}
		}
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Frame{}, &FrameError{Action: action, Reason: err.Error()}
	}
	frame.Action = action
	return frame, nil
}
