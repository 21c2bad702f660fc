package engine

import (
	"fmt"
	"strings"

	"github.com/harun/roundtable/pkg/agent"
	"github.com/harun/roundtable/pkg/discussion"
	"github.com/harun/roundtable/pkg/provider"
)

// turnPrompt builds the single user message sent to a persona for its turn
func turnPrompt(d *discussion.Discussion, persona agent.Persona, nameOf func(string) string) []provider.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The discussion topic is: %s\n\n", d.Topic())
	writeFileContext(&sb, d.FileContext())

	if d.Len() == 0 {
		sb.WriteString("Please share your perspective.")
		return []provider.Message{provider.TextMessage(provider.RoleUser, sb.String())}
	}

	fmt.Fprintf(&sb, "Here is the discussion so far:\n%s\n", d.TranscriptNamed(nameOf))
	round := d.Round()
	fmt.Fprintf(&sb, "This is round %d of %d. ", round, d.TotalRounds())

	switch {
	case persona.IsMediator() && round >= d.TotalRounds():
		sb.WriteString("This is the final round. Summarize where the panel agrees, name the open disagreements, and propose a balanced conclusion.")
	case persona.IsMediator():
		sb.WriteString("Summarize the strongest points so far and steer the panel toward the questions that still divide it.")
	default:
		sb.WriteString("Please respond to the other panelists' points, build on ideas you agree with, and challenge those you disagree with.")
	}

	if last, ok := d.LastMessage(); ok && last.IsUser() {
		fmt.Fprintf(&sb, "\n\nThe user just said: %q. Address it directly.", last.Text)
	}

	return []provider.Message{provider.TextMessage(provider.RoleUser, sb.String())}
}

// continuationPrompt asks a persona to resume a response that was cut off
func continuationPrompt(d *discussion.Discussion, hint string, nameOf func(string) string) []provider.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The discussion topic is: %s\n\n", d.Topic())
	writeFileContext(&sb, d.FileContext())
	fmt.Fprintf(&sb, "Here is the discussion so far:\n%s\n", d.TranscriptNamed(nameOf))
	fmt.Fprintf(&sb, "Your previous response was cut off while discussing: %s\n", hint)
	sb.WriteString("Continue exactly where you left off. Do not repeat what you already said and do not start over.")
	return []provider.Message{provider.TextMessage(provider.RoleUser, sb.String())}
}

func writeFileContext(sb *strings.Builder, fileContext string) {
	if fileContext == "" {
		return
	}
	fmt.Fprintf(sb, "Reference material shared by the user:\n%s\n\n", fileContext)
}

// curatorPrompt carries only the message under review
func curatorPrompt(speaker, text string) []provider.Message {
	content := fmt.Sprintf("Response from %s:\n\n%s\n\nIs this response complete?", speaker, text)
	return []provider.Message{provider.TextMessage(provider.RoleUser, content)}
}

// sentimentPrompt carries the non-user messages of one round
func sentimentPrompt(d *discussion.Discussion, round int, messages []discussion.Message, keys []string, nameOf func(string) string) []provider.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Topic: %s\n\n--- Round %d ---\n", d.Topic(), round)
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s (%s): %s\n", nameOf(m.Speaker), m.Speaker, m.Text)
	}
	fmt.Fprintf(&sb, "\nScore these panelists by key: %s", strings.Join(keys, ", "))
	if vp := d.Viewpoints(); len(vp) == 2 {
		fmt.Fprintf(&sb, "\nUse exactly these viewpoints: %q vs %q", vp[0], vp[1])
	}
	return []provider.Message{provider.TextMessage(provider.RoleUser, sb.String())}
}
