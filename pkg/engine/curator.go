package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Ending is the heuristic judgement of how a response ends
type Ending int

const (
	// EndingUndecided leaves the decision to the curator persona
	EndingUndecided Ending = iota
	// EndingComplete overrides the curator with complete
	EndingComplete
	// EndingIncomplete overrides the curator with incomplete
	EndingIncomplete
)

func (e Ending) String() string {
	switch e {
	case EndingComplete:
		return "complete"
	case EndingIncomplete:
		return "incomplete"
	}
	return "undecided"
}

// Verdict is the curator's judgement of one response
type Verdict struct {
	Complete  bool   `json:"complete"`
	LastTopic string `json:"last_topic"`
}

var errNoVerdict = errors.New("no completeness verdict in curator output")

var (
	// promises announce content that must follow in the same response
	promiseStart = regexp.MustCompile(`(?i)^(here (are|is)|let me (list|outline|walk|break)|consider (these|the following))\b`)
	promiseEnd   = regexp.MustCompile(`(?i)\b(as follows|the following|below)\W*$`)

	terminalEnding = regexp.MustCompile(`[.!?…]["'”’)\]*_]*$`)
	openEnding     = regexp.MustCompile(`[,;(\-–—/&]$`)
	fencePattern   = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

// AssessEnding inspects the tail of a response. A trailing colon, an open
// clause or a dangling promise means incomplete; terminal punctuation
// without a promise means complete. Anything else is undecided.
func AssessEnding(text string) (Ending, string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return EndingIncomplete, "the response was empty"
	}

	last := lastSentence(trimmed)
	if strings.HasSuffix(trimmed, ":") || openEnding.MatchString(trimmed) {
		return EndingIncomplete, last
	}

	delivered := strings.Contains(last, ": ")
	if (promiseStart.MatchString(last) && !delivered) || promiseEnd.MatchString(last) {
		return EndingIncomplete, last
	}

	if terminalEnding.MatchString(trimmed) || strings.HasSuffix(trimmed, "```") {
		return EndingComplete, ""
	}
	return EndingUndecided, last
}

// lastSentence returns the final line of text, cut to its last sentence
func lastSentence(text string) string {
	line := text
	if i := strings.LastIndex(text, "\n"); i >= 0 {
		line = text[i+1:]
	}
	line = strings.TrimSpace(line)

	body := strings.TrimRight(line, ".!?:")
	if i := strings.LastIndexAny(body, ".!?"); i >= 0 && i+1 < len(body) {
		line = strings.TrimSpace(line[i+1:])
	}
	return line
}

// ParseVerdict extracts the JSON verdict from curator output. Code fences
// and surrounding prose are tolerated.
func ParseVerdict(output string) (Verdict, error) {
	raw := strings.TrimSpace(output)
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}

	obj, ok := extractObject(raw)
	if !ok {
		return Verdict{}, errNoVerdict
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return Verdict{}, fmt.Errorf("failed to decode verdict: %w", err)
	}
	if _, ok := fields["complete"]; !ok {
		return Verdict{}, errNoVerdict
	}

	var v Verdict
	if err := json.Unmarshal([]byte(obj), &v); err != nil {
		return Verdict{}, fmt.Errorf("failed to decode verdict: %w", err)
	}
	return v, nil
}

// extractObject returns the outermost {...} span of s
func extractObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
