package discussion

import (
	"fmt"
)

// Export is the serializable snapshot of a discussion
type Export struct {
	Topic        string    `json:"topic"`
	TotalRounds  int       `json:"total_rounds"`
	CurrentRound int       `json:"current_round"`
	Personas     []string  `json:"personas"`
	FileContext  string    `json:"file_context,omitempty"`
	Viewpoints   []string  `json:"viewpoints,omitempty"`
	Messages     []Message `json:"messages"`
}

// Export snapshots the discussion
func (d *Discussion) Export() Export {
	e := Export{
		Topic:        d.topic,
		TotalRounds:  d.totalRounds,
		CurrentRound: d.round,
		Personas:     d.Personas(),
		FileContext:  d.fileContext,
		Messages:     d.Messages(),
	}
	if len(d.viewpoints) > 0 {
		e.Viewpoints = d.Viewpoints()
	}
	return e
}

// FromExport reconstructs a discussion from a snapshot
func FromExport(e Export) (*Discussion, error) {
	d := New(e.Topic, e.TotalRounds, e.Personas, e.FileContext)
	d.PinViewpoints(e.Viewpoints)

	for i, m := range e.Messages {
		if m.Speaker == "" {
			return nil, fmt.Errorf("failed to restore message %d: %w", i, ErrEmptySpeaker)
		}
		if i > 0 && m.Round < e.Messages[i-1].Round {
			return nil, fmt.Errorf("failed to restore message %d: %w", i, ErrRoundRegression)
		}
		d.messages = append(d.messages, m)
	}

	d.round = e.CurrentRound
	if n := len(d.messages); n > 0 && d.messages[n-1].Round > d.round {
		d.round = d.messages[n-1].Round
	}
	if d.round < 1 {
		d.round = 1
	}

	return d, nil
}
