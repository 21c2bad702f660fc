package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAssessEnding(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		want  Ending
		topic string
	}{
		{"trailing colon", "Regulation has three pillars:", EndingIncomplete, "Regulation has three pillars:"},
		{"terminal period", "Regulation has three pillars.", EndingComplete, ""},
		{"question", "Who pays for compliance?", EndingComplete, ""},
		{"closing quote", `As they say, "trust but verify."`, EndingComplete, ""},
		{"open clause", "We should start with audits,", EndingIncomplete, "We should start with audits,"},
		{"promise at start", "Costs are real. Here are my three concerns.", EndingIncomplete, "Here are my three concerns."},
		{"promise at end", "My reasoning is as follows.", EndingIncomplete, "My reasoning is as follows."},
		{"delivered promise", "Here is my conclusion: audits work.", EndingComplete, ""},
		{"there is not a promise", "There is no easy answer.", EndingComplete, ""},
		{"mid sentence", "The answer depends on the", EndingUndecided, "The answer depends on the"},
		{"empty", "   ", EndingIncomplete, "the response was empty"},
		{"last line decides", "First point.\n\n1. Audits\n2. Disclosure:", EndingIncomplete, "Disclosure:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, topic := AssessEnding(tt.text)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.topic, topic)
		})
	}
}

func TestParseVerdict(t *testing.T) {
	v, err := ParseVerdict(`{"complete": false, "last_topic": "the second pillar"}`)
	require.NoError(t, err)
	assert.Equal(t, Verdict{Complete: false, LastTopic: "the second pillar"}, v)

	v, err = ParseVerdict("```json\n{\"complete\": true}\n```")
	require.NoError(t, err)
	assert.True(t, v.Complete)

	v, err = ParseVerdict(`Sure! {"complete": true, "last_topic": ""} Hope that helps.`)
	require.NoError(t, err)
	assert.True(t, v.Complete)

	_, err = ParseVerdict("The response looks complete to me.")
	assert.Error(t, err)

	_, err = ParseVerdict(`{"last_topic": "x"}`)
	assert.Error(t, err, "complete is required")

	_, err = ParseVerdict(`{"complete": "yes"}`)
	assert.Error(t, err)
}

func TestParseSentiment(t *testing.T) {
	out := "Positions are close.\n---SENTIMENT_DATA---\n" +
		`{"viewpoints": ["Regulate now", "Let markets lead"], "scores": {"a": 0.9, "b": 0.8, "c": 0.85}, "consensus": 0.1}`

	data, err := ParseSentiment(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"Regulate now", "Let markets lead"}, data.Viewpoints)
	assert.Len(t, data.Scores, 3)
	assert.Greater(t, data.Consensus, 0.7, "consensus is recomputed from scores")

	data, err = ParseSentiment("Split.\n---SENTIMENT_DATA---\n```json\n" +
		`{"viewpoints": ["A", "B"], "scores": {"a": -1, "b": 1, "c": 0}}` + "\n```")
	require.NoError(t, err)
	assert.Less(t, data.Consensus, 0.3)

	data, err = ParseSentiment(`{"viewpoints": ["A", "B"], "scores": {"a": 3, "b": -7}}`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, data.Scores["a"])
	assert.Equal(t, -1.0, data.Scores["b"])

	for _, bad := range []string{
		"commentary only",
		"x ---SENTIMENT_DATA--- not json",
		`---SENTIMENT_DATA--- {"viewpoints": ["only one"], "scores": {"a": 0}}`,
		`---SENTIMENT_DATA--- {"viewpoints": ["A", "B"]}`,
		`---SENTIMENT_DATA--- {"viewpoints": ["A", ""], "scores": {"a": 0}}`,
	} {
		_, err := ParseSentiment(bad)
		assert.Error(t, err, bad)
	}
}

func TestConsensus(t *testing.T) {
	assert.Equal(t, 1.0, Consensus(nil))
	assert.Equal(t, 1.0, Consensus(map[string]float64{"a": 0.4}))
	assert.InDelta(t, 0.0, Consensus(map[string]float64{"a": -1, "b": 1}), 1e-9)
	assert.InDelta(t, 0.9592, Consensus(map[string]float64{"a": 0.9, "b": 0.8, "c": 0.85}), 1e-4)
}

func TestConsensusIsBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := rapid.SliceOfN(rapid.Float64Range(-1, 1), 1, 12).Draw(t, "scores")
		scores := map[string]float64{}
		for i, v := range values {
			scores[string(rune('a'+i))] = v
		}
		c := Consensus(scores)
		if c < 0 || c > 1 {
			t.Fatalf("consensus %v out of range", c)
		}
	})
}
