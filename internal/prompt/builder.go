// Package prompt renders conversation history into the Mistral
// instruction format consumed by the inference backend.
package prompt

import (
	"strings"

	"github.com/xiaot623/converse/internal/domain"
)

// Mistral chat template markers.
const (
	bos       = "<s>"
	eos       = "</s>"
	instOpen  = "[INST]"
	instClose = "[/INST]"
)

type exchange struct {
	user      string
	assistant string
}

// Build converts an ordered message list into a Mistral-format prompt:
//
//	<s>[INST] system + first user [/INST] assistant </s>
//	<s>[INST] next user [/INST] next assistant </s>
//	<s>[INST] latest user [/INST]
//
// The system content is folded into the first instruction block only.
// When the last message is an unanswered user turn, the output ends
// with an open instruction block for the model to continue from.
// Messages breaking strict user/assistant alternation are skipped from
// pairing; the session layer's invariants make that a non-event in
// practice.
func Build(messages []domain.Message) string {
	var system string
	var rest []domain.Message
	for _, msg := range messages {
		if msg.Role == domain.RoleSystem {
			system = msg.Content
		} else {
			rest = append(rest, msg)
		}
	}

	var pairs []exchange
	for i := 0; i < len(rest)-1; {
		if rest[i].Role == domain.RoleUser && rest[i+1].Role == domain.RoleAssistant {
			pairs = append(pairs, exchange{user: rest[i].Content, assistant: rest[i+1].Content})
			i += 2
		} else {
			i++
		}
	}

	var latestUser string
	if len(rest) > 0 && rest[len(rest)-1].Role == domain.RoleUser {
		latestUser = rest[len(rest)-1].Content
	}

	var b strings.Builder
	for i, pair := range pairs {
		user := pair.user
		if i == 0 && system != "" {
			user = system + "\n\n" + user
		}
		b.WriteString(bos + instOpen + " " + user + " " + instClose + " " + pair.assistant + " " + eos)
	}

	if latestUser != "" {
		if len(pairs) == 0 && system != "" {
			latestUser = system + "\n\n" + latestUser
		}
		b.WriteString(bos + instOpen + " " + latestUser + " " + instClose)
	}

	return b.String()
}

// BuildSummary renders the dedicated summarization prompt from a
// session's history. The system message is excluded; the model sees a
// plain role-labelled transcript.
func BuildSummary(messages []domain.Message) string {
	var b strings.Builder
	b.WriteString("Summarize this conversation concisely in 2-3 sentences:\n\n")
	for _, msg := range messages {
		if msg.Role == domain.RoleSystem {
			continue
		}
		b.WriteString(strings.ToUpper(string(msg.Role)) + ": " + msg.Content + "\n")
	}
	b.WriteString("\nSummary:")
	return b.String()
}
