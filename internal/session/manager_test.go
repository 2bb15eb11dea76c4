package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xiaot623/converse/internal/domain"
	"github.com/xiaot623/converse/internal/kv"
)

func newTestManager(maxTurns, summarizeAfter int) (*Manager, *kv.MemoryStore) {
	store := kv.NewMemoryStore()
	return NewManager(store, maxTurns, 30*time.Minute, summarizeAfter), store
}

func addTurns(t *testing.T, m *Manager, sessionID string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		assert.NoError(t, m.AppendUser(ctx, sessionID, fmt.Sprintf("question %d", i)))
		assert.NoError(t, m.AppendAssistant(ctx, sessionID, fmt.Sprintf("answer %d", i)))
	}
}

func TestInitialise(t *testing.T) {
	m, _ := newTestManager(10, 8)
	ctx := context.Background()
	id := m.NewSessionID()

	assert.NoError(t, m.Initialise(ctx, id))

	history, err := m.History(ctx, id)
	assert.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
	assert.Equal(t, SystemPrompt, history[0].Content)

	count, err := m.TurnCount(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHistoryMissingSession(t *testing.T) {
	m, _ := newTestManager(10, 8)

	_, err := m.History(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAppendKeepsSystemMessageFirst(t *testing.T) {
	m, _ := newTestManager(10, 8)
	ctx := context.Background()
	id := m.NewSessionID()
	assert.NoError(t, m.Initialise(ctx, id))

	addTurns(t, m, id, 3)

	history, err := m.History(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
	assert.Len(t, history, 7)
	assert.Equal(t, domain.RoleUser, history[1].Role)
	assert.Equal(t, domain.RoleAssistant, history[2].Role)
}

func TestSlidingWindowTrimsOldestPairs(t *testing.T) {
	m, _ := newTestManager(2, 100)
	ctx := context.Background()
	id := m.NewSessionID()
	assert.NoError(t, m.Initialise(ctx, id))

	addTurns(t, m, id, 5)

	history, err := m.History(ctx, id)
	assert.NoError(t, err)
	// System message plus 2 retained pairs.
	assert.Len(t, history, 5)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
	assert.Equal(t, "question 3", history[1].Content)
	assert.Equal(t, "answer 3", history[2].Content)
	assert.Equal(t, "question 4", history[3].Content)
	assert.Equal(t, "answer 4", history[4].Content)
}

func TestSlidingWindowSingleTurn(t *testing.T) {
	m, _ := newTestManager(1, 100)
	ctx := context.Background()
	id := m.NewSessionID()
	assert.NoError(t, m.Initialise(ctx, id))

	addTurns(t, m, id, 3)

	history, err := m.History(ctx, id)
	assert.NoError(t, err)
	assert.Len(t, history, 3)
	assert.Equal(t, "question 2", history[1].Content)
	assert.Equal(t, "answer 2", history[2].Content)
}

func TestTurnCountIncrementsOnAssistantOnly(t *testing.T) {
	m, _ := newTestManager(10, 8)
	ctx := context.Background()
	id := m.NewSessionID()
	assert.NoError(t, m.Initialise(ctx, id))

	assert.NoError(t, m.AppendUser(ctx, id, "hello"))
	count, err := m.TurnCount(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, 0, count)

	assert.NoError(t, m.AppendAssistant(ctx, id, "hi"))
	count, err = m.TurnCount(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestShouldSummarizeThreshold(t *testing.T) {
	m, _ := newTestManager(10, 3)
	ctx := context.Background()
	id := m.NewSessionID()
	assert.NoError(t, m.Initialise(ctx, id))

	addTurns(t, m, id, 2)
	should, err := m.ShouldSummarize(ctx, id)
	assert.NoError(t, err)
	assert.False(t, should)

	addTurns(t, m, id, 1)
	should, err = m.ShouldSummarize(ctx, id)
	assert.NoError(t, err)
	assert.True(t, should)
}

func TestApplySummary(t *testing.T) {
	m, _ := newTestManager(10, 8)
	ctx := context.Background()
	id := m.NewSessionID()
	assert.NoError(t, m.Initialise(ctx, id))
	addTurns(t, m, id, 8)

	assert.NoError(t, m.ApplySummary(ctx, id, "They discussed Go."))

	history, err := m.History(ctx, id)
	assert.NoError(t, err)
	// System prompt, summary message, last two pairs.
	assert.Len(t, history, 6)
	assert.Equal(t, SystemPrompt, history[0].Content)
	assert.Equal(t, domain.RoleSystem, history[1].Role)
	assert.Equal(t, "[Previous conversation summary]: They discussed Go.", history[1].Content)
	assert.Equal(t, "question 6", history[2].Content)
	assert.Equal(t, "answer 7", history[5].Content)

	count, err := m.TurnCount(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestApplySummaryShortHistory(t *testing.T) {
	m, _ := newTestManager(10, 8)
	ctx := context.Background()
	id := m.NewSessionID()
	assert.NoError(t, m.Initialise(ctx, id))
	addTurns(t, m, id, 1)

	assert.NoError(t, m.ApplySummary(ctx, id, "Brief chat."))

	history, err := m.History(ctx, id)
	assert.NoError(t, err)
	// All messages are retained when there is nothing older to drop.
	assert.Len(t, history, 4)
	assert.Equal(t, "[Previous conversation summary]: Brief chat.", history[1].Content)
	assert.Equal(t, "question 0", history[2].Content)
	assert.Equal(t, "answer 0", history[3].Content)
}

func TestDelete(t *testing.T) {
	m, _ := newTestManager(10, 8)
	ctx := context.Background()
	id := m.NewSessionID()
	assert.NoError(t, m.Initialise(ctx, id))

	assert.NoError(t, m.Delete(ctx, id))

	exists, err := m.Exists(ctx, id)
	assert.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, m.Delete(ctx, id), ErrSessionNotFound)
}

func TestWritesRefreshTTL(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Unix(1700000000, 0)
	store.Now = func() time.Time { return now }
	m := NewManager(store, 10, 30*time.Minute, 8)

	ctx := context.Background()
	id := m.NewSessionID()
	assert.NoError(t, m.Initialise(ctx, id))

	// 20 minutes pass; a write resets the TTL to its full value.
	now = now.Add(20 * time.Minute)
	assert.NoError(t, m.AppendUser(ctx, id, "still here"))

	ttl, ok := store.TTL(id)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Minute, ttl)
}

func TestExpiredSessionNotFound(t *testing.T) {
	store := kv.NewMemoryStore()
	now := time.Unix(1700000000, 0)
	store.Now = func() time.Time { return now }
	m := NewManager(store, 10, 30*time.Minute, 8)

	ctx := context.Background()
	id := m.NewSessionID()
	assert.NoError(t, m.Initialise(ctx, id))

	now = now.Add(31 * time.Minute)

	exists, err := m.Exists(ctx, id)
	assert.NoError(t, err)
	assert.False(t, exists)

	_, err = m.History(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCorruptRecordDetected(t *testing.T) {
	store := kv.NewMemoryStore()
	m := NewManager(store, 10, 30*time.Minute, 8)
	ctx := context.Background()

	assert.NoError(t, store.SetEx(ctx, "bad-json", []byte("{not json"), time.Minute))
	_, err := m.History(ctx, "bad-json")
	assert.ErrorIs(t, err, ErrCorruptState)

	// Valid JSON whose first message is not a system message.
	raw := []byte(`{"session_id":"x","turn_count":0,"messages":[{"role":"user","content":"hi"}]}`)
	assert.NoError(t, store.SetEx(ctx, "bad-shape", raw, time.Minute))
	_, err = m.History(ctx, "bad-shape")
	assert.ErrorIs(t, err, ErrCorruptState)
}
