package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/harun/roundtable/internal/config"
)

// SentimentData is the structured payload of sentiment_update
type SentimentData struct {
	Viewpoints []string           `json:"viewpoints"`
	Scores     map[string]float64 `json:"scores"`
	Consensus  float64            `json:"consensus"`
}

var (
	errNoSentiment   = errors.New("no sentiment payload in analyst output")
	errBadViewpoints = errors.New("sentiment payload needs exactly two viewpoints")
	errNoScores      = errors.New("sentiment payload has no scores")
)

// ParseSentiment reads the payload after the sentiment delimiter. Output
// without the delimiter is searched for a bare JSON object instead.
// Scores are clamped to [-1, 1] and consensus is recomputed from them.
func ParseSentiment(output string) (SentimentData, error) {
	payload := output
	if i := strings.Index(output, config.SentimentDelimiter); i >= 0 {
		payload = output[i+len(config.SentimentDelimiter):]
	}
	payload = strings.TrimSpace(payload)
	if m := fencePattern.FindStringSubmatch(payload); m != nil {
		payload = m[1]
	}

	obj, ok := extractObject(payload)
	if !ok {
		return SentimentData{}, errNoSentiment
	}

	var raw struct {
		Viewpoints []string           `json:"viewpoints"`
		Scores     map[string]float64 `json:"scores"`
		Consensus  *float64           `json:"consensus"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return SentimentData{}, fmt.Errorf("failed to decode sentiment payload: %w", err)
	}

	if len(raw.Viewpoints) != 2 || strings.TrimSpace(raw.Viewpoints[0]) == "" || strings.TrimSpace(raw.Viewpoints[1]) == "" {
		return SentimentData{}, errBadViewpoints
	}
	if len(raw.Scores) == 0 {
		return SentimentData{}, errNoScores
	}

	data := SentimentData{
		Viewpoints: raw.Viewpoints,
		Scores:     make(map[string]float64, len(raw.Scores)),
	}
	for key, score := range raw.Scores {
		data.Scores[key] = clamp(score, -1, 1)
	}
	data.Consensus = Consensus(data.Scores)
	return data, nil
}

// Consensus is one minus the population standard deviation of scores,
// clamped to [0, 1]. No scores means full consensus.
func Consensus(scores map[string]float64) float64 {
	if len(scores) == 0 {
		return 1
	}

	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))

	var variance float64
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(scores))

	return clamp(1-math.Sqrt(variance), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
