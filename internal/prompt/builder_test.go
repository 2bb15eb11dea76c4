package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/converse/internal/domain"
)

func msg(role domain.Role, content string) domain.Message {
	return domain.Message{Role: role, Content: content}
}

func TestBuildSingleUserTurn(t *testing.T) {
	out := Build([]domain.Message{
		msg(domain.RoleSystem, "Be helpful."),
		msg(domain.RoleUser, "Hello"),
	})

	assert.Equal(t, "<s>[INST] Be helpful.\n\nHello [/INST]", out)
}

func TestBuildCompletedExchange(t *testing.T) {
	out := Build([]domain.Message{
		msg(domain.RoleSystem, "Be helpful."),
		msg(domain.RoleUser, "Hello"),
		msg(domain.RoleAssistant, "Hi there!"),
	})

	assert.Equal(t, "<s>[INST] Be helpful.\n\nHello [/INST] Hi there! </s>", out)
}

func TestBuildMultiTurnEndsWithOpenBlock(t *testing.T) {
	out := Build([]domain.Message{
		msg(domain.RoleSystem, "Be helpful."),
		msg(domain.RoleUser, "Hello"),
		msg(domain.RoleAssistant, "Hi there!"),
		msg(domain.RoleUser, "What is Go?"),
	})

	assert.True(t, strings.HasSuffix(out, "[INST] What is Go? [/INST]"))
	// System content appears exactly once, in the first block.
	assert.Equal(t, 1, strings.Count(out, "Be helpful."))
	assert.True(t, strings.HasPrefix(out, "<s>[INST] Be helpful.\n\nHello [/INST] Hi there! </s>"))
}

func TestBuildNoTrailingUserClosesCleanly(t *testing.T) {
	out := Build([]domain.Message{
		msg(domain.RoleSystem, "Be helpful."),
		msg(domain.RoleUser, "Hello"),
		msg(domain.RoleAssistant, "Hi there!"),
	})

	// A history ending on an assistant reply has no open block.
	assert.True(t, strings.HasSuffix(out, "</s>"))
}

func TestBuildSkipsBrokenAlternation(t *testing.T) {
	out := Build([]domain.Message{
		msg(domain.RoleSystem, "Be helpful."),
		msg(domain.RoleAssistant, "orphaned reply"),
		msg(domain.RoleUser, "Hello"),
	})

	assert.NotContains(t, out, "orphaned reply")
	assert.Equal(t, "<s>[INST] Be helpful.\n\nHello [/INST]", out)
}

func TestBuildWithoutSystemMessage(t *testing.T) {
	out := Build([]domain.Message{
		msg(domain.RoleUser, "Hello"),
	})

	assert.Equal(t, "<s>[INST] Hello [/INST]", out)
}

func TestBuildEmptyHistory(t *testing.T) {
	assert.Equal(t, "", Build(nil))
}

func TestBuildSummaryTranscript(t *testing.T) {
	out := BuildSummary([]domain.Message{
		msg(domain.RoleSystem, "Be helpful."),
		msg(domain.RoleUser, "Hello"),
		msg(domain.RoleAssistant, "Hi there!"),
	})

	assert.True(t, strings.HasPrefix(out, "Summarize this conversation concisely in 2-3 sentences:\n\n"))
	assert.Contains(t, out, "USER: Hello\n")
	assert.Contains(t, out, "ASSISTANT: Hi there!\n")
	assert.NotContains(t, out, "Be helpful.")
	assert.True(t, strings.HasSuffix(out, "\nSummary:"))
}
