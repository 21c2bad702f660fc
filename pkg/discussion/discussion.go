package discussion

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserSpeaker is the speaker of messages typed by the client
const UserSpeaker = "user"

var (
	// ErrRoundRegression is returned when a message would go back to an earlier round
	ErrRoundRegression = errors.New("round number regression")

	// ErrEmptySpeaker is returned for messages without a speaker
	ErrEmptySpeaker = errors.New("message speaker is required")
)

// Message is one immutable entry of the discussion log
type Message struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Round     int       `json:"round"`
	CreatedAt time.Time `json:"created_at"`
}

// IsUser reports whether the message was typed by the client
func (m Message) IsUser() bool {
	return m.Speaker == UserSpeaker
}

// Discussion is the append-only state of one discussion.
// It is not safe for concurrent use; the owning session is its only writer.
type Discussion struct {
	topic       string
	totalRounds int
	fileContext string
	personas    []string
	round       int
	messages    []Message
	viewpoints  []string
}

// New creates a fresh discussion positioned at round 1
func New(topic string, totalRounds int, personas []string, fileContext string) *Discussion {
	return &Discussion{
		topic:       topic,
		totalRounds: totalRounds,
		fileContext: fileContext,
		personas:    append([]string{}, personas...),
		round:       1,
		messages:    []Message{},
	}
}

// Topic returns the discussion topic
func (d *Discussion) Topic() string { return d.topic }

// TotalRounds returns the round target
func (d *Discussion) TotalRounds() int { return d.totalRounds }

// FileContext returns the optional uploaded file text
func (d *Discussion) FileContext() string { return d.fileContext }

// Round returns the current round number
func (d *Discussion) Round() int { return d.round }

// Personas returns the enrolled persona keys
func (d *Discussion) Personas() []string {
	return append([]string{}, d.personas...)
}

// NextRound advances the round counter and returns the new round
func (d *Discussion) NextRound() int {
	d.round++
	return d.round
}

// Append adds a message to the log. A zero Round means the current round and
// a zero CreatedAt is stamped with the current time.
func (d *Discussion) Append(msg Message) error {
	if msg.Speaker == "" {
		return ErrEmptySpeaker
	}
	if msg.Round == 0 {
		msg.Round = d.round
	}
	if n := len(d.messages); n > 0 && msg.Round < d.messages[n-1].Round {
		return fmt.Errorf("%w: %d after %d", ErrRoundRegression, msg.Round, d.messages[n-1].Round)
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.Round > d.round {
		d.round = msg.Round
	}

	d.messages = append(d.messages, msg)
	return nil
}

// Messages returns a copy of the log in append order
func (d *Discussion) Messages() []Message {
	return append([]Message{}, d.messages...)
}

// Len returns the number of messages
func (d *Discussion) Len() int {
	return len(d.messages)
}

// LastMessage returns the most recent message
func (d *Discussion) LastMessage() (Message, bool) {
	if len(d.messages) == 0 {
		return Message{}, false
	}
	return d.messages[len(d.messages)-1], true
}

// RoundMessages returns the messages of one round, optionally without user messages
func (d *Discussion) RoundMessages(round int, excludeUser bool) []Message {
	out := []Message{}
	for _, m := range d.messages {
		if m.Round != round || (excludeUser && m.IsUser()) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Speakers returns the set of non-user speakers of one round
func (d *Discussion) Speakers(round int) map[string]bool {
	out := map[string]bool{}
	for _, m := range d.RoundMessages(round, true) {
		out[m.Speaker] = true
	}
	return out
}

// Viewpoints returns the pinned viewpoint labels, if any
func (d *Discussion) Viewpoints() []string {
	return append([]string{}, d.viewpoints...)
}

// PinViewpoints records viewpoint labels once; later calls are ignored.
// It reports whether the labels were stored.
func (d *Discussion) PinViewpoints(labels []string) bool {
	if len(d.viewpoints) > 0 || len(labels) == 0 {
		return false
	}
	d.viewpoints = append([]string{}, labels...)
	return true
}

// Transcript renders the full discussion with speaker keys
func (d *Discussion) Transcript() string {
	return d.TranscriptNamed(nil)
}

// TranscriptNamed renders the full discussion, mapping speaker keys through
// name when it is non-nil.
func (d *Discussion) TranscriptNamed(name func(speaker string) string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n", d.topic)

	current := 0
	for _, m := range d.messages {
		if m.Round != current {
			current = m.Round
			fmt.Fprintf(&sb, "\n--- Round %d ---\n", current)
		}
		writeLine(&sb, m, name)
	}
	return sb.String()
}

// RoundTranscript renders the messages of a single round
func (d *Discussion) RoundTranscript(round int, name func(speaker string) string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- Round %d ---\n", round)
	for _, m := range d.RoundMessages(round, false) {
		writeLine(&sb, m, name)
	}
	return sb.String()
}

func writeLine(sb *strings.Builder, m Message, name func(string) string) {
	speaker := m.Speaker
	switch {
	case m.IsUser():
		speaker = "User"
	case name != nil:
		speaker = name(m.Speaker)
	}
	fmt.Fprintf(sb, "%s: %s\n", speaker, m.Text)
}
