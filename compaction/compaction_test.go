package compaction

import (
	"context"
	"strings"
	"testing"

	"github.com/amcp-dev/amcp/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWindowForKnownAndFamilyFallback(t *testing.T) {
	assert.Equal(t, 200_000, ContextWindowFor("claude-3"))
	assert.Equal(t, 128_000, ContextWindowFor("gpt-4-turbo-preview"))
	assert.Equal(t, DefaultContextWindow, ContextWindowFor("some-unknown-model"))
}

func TestEstimateTokensGrowsWithContent(t *testing.T) {
	short := []session.Message{{Role: "user", Content: "hi"}}
	long := []session.Message{{Role: "user", Content: strings.Repeat("word ", 500)}}
	assert.Less(t, EstimateTokens(short), EstimateTokens(long))
}

func TestShouldCompactRespectsThreshold(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg, "gpt-4", nil, nil)

	small := []session.Message{{Role: "user", Content: "hello"}}
	assert.False(t, c.ShouldCompact(small))

	big := make([]session.Message, 0)
	for i := 0; i < 2000; i++ {
		big = append(big, session.Message{Role: "user", Content: strings.Repeat("x", 50)})
	}
	assert.True(t, c.ShouldCompact(big))
}

func buildOverBudgetHistory(n int) []session.Message {
	msgs := make([]session.Message, 0, n)
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		msgs = append(msgs, session.Message{Role: role, Content: strings.Repeat("word ", 200)})
	}
	return msgs
}

func TestCompactTruncateStrategyPreservesRecentMessages(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategyTruncate
	cfg.PreserveLast = 4
	c := New(cfg, "gpt-4", nil, nil)

	messages := buildOverBudgetHistory(50)
	result, res := c.Compact(context.Background(), "s1", messages)

	require.True(t, res.Compacted)
	assert.Less(t, len(result), len(messages))
	assert.Equal(t, messages[len(messages)-1], result[len(result)-1])
}

func TestCompactSummaryStrategyUsesSummarizer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = StrategySummary
	called := false
	summarize := func(ctx context.Context, text string, maxTokens int) (string, error) {
		called = true
		return "a short summary", nil
	}
	c := New(cfg, "gpt-4", summarize, nil)

	messages := buildOverBudgetHistory(50)
	result, res := c.Compact(context.Background(), "s1", messages)

	assert.True(t, called)
	assert.True(t, res.Compacted)
	assert.Contains(t, result[0].Content, "a short summary")
}

func TestCompactBelowThresholdIsNoop(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg, "claude-3", nil, nil)

	messages := []session.Message{{Role: "user", Content: "hello"}}
	result, res := c.Compact(context.Background(), "s1", messages)

	assert.False(t, res.Compacted)
	assert.Equal(t, messages, result)
}

func TestGetTokenUsageReportsRatio(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg, "gpt-4", nil, nil)
	usage := c.GetTokenUsage([]session.Message{{Role: "user", Content: "hi"}})
	assert.Equal(t, 8_192, usage.ContextWindow)
	assert.Greater(t, usage.Ratio, 0.0)
}
