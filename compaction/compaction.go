// Package compaction implements the smart context compactor: it estimates
// how many tokens a session's history occupies, decides whether that
// exceeds a configured threshold of the model's context window, and if so
// shrinks the history using one of four strategies (summary, truncate,
// sliding_window, hybrid) while always preserving the most recent
// user/assistant turns and a bounded number of recent tool results.
//
// Token estimation and strategy behavior are grounded on the reference
// SmartCompactor: tiktoken's cl100k_base encoding is the primary estimator,
// with a character-count fallback (len/4, plus a flat 50-token overhead per
// tool call) when a model's encoding can't be resolved.
package compaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/amcp-dev/amcp/eventbus"
	"github.com/amcp-dev/amcp/session"
	"github.com/pkoukk/tiktoken-go"
)

// Strategy selects how a compactor shrinks an over-budget history.
type Strategy string

const (
	StrategySummary       Strategy = "summary"
	StrategyTruncate      Strategy = "truncate"
	StrategySlidingWindow Strategy = "sliding_window"
	StrategyHybrid        Strategy = "hybrid"
)

// DefaultContextWindow is used for models with no known window.
const DefaultContextWindow = 32_000

// contextWindows is a small built-in table; unknown models fall back to
// family-pattern matching in ContextWindowFor, then DefaultContextWindow.
var contextWindows = map[string]int{
	"gpt-4":        8_192,
	"gpt-4-turbo":  128_000,
	"gpt-4o":       128_000,
	"gpt-3.5":      16_385,
	"claude-3":     200_000,
	"claude-sonnet": 200_000,
	"claude-opus":  200_000,
	"gemini":       1_000_000,
	"deepseek":     64_000,
	"llama":        128_000,
}

// ContextWindowFor returns the known or best-guessed context window size
// for a model name.
func ContextWindowFor(model string) int {
	if w, ok := contextWindows[model]; ok {
		return w
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "gpt-4") && (strings.Contains(lower, "turbo") || strings.Contains(lower, "4o")):
		return 128_000
	case strings.Contains(lower, "gpt-4"):
		return 8_192
	case strings.Contains(lower, "claude"):
		return 200_000
	case strings.Contains(lower, "gemini"):
		return 1_000_000
	case strings.Contains(lower, "deepseek"):
		return 64_000
	case strings.Contains(lower, "qwen"), strings.Contains(lower, "glm"):
		return 128_000
	case strings.Contains(lower, "mistral"), strings.Contains(lower, "mixtral"):
		return 32_000
	case strings.Contains(lower, "llama"):
		return 128_000
	default:
		return DefaultContextWindow
	}
}

// Config tunes when and how compaction happens.
type Config struct {
	Strategy            Strategy
	ThresholdRatio      float64 // trigger when usage exceeds this fraction of the window
	TargetRatio         float64 // aim to shrink to this fraction of the window
	PreserveLast        int     // most recent user/assistant messages kept untouched
	PreserveToolResults bool
	MaxToolResults      int // most recent tool-result messages kept alongside PreserveLast
}

// DefaultConfig matches the reference compactor's defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:            StrategySummary,
		ThresholdRatio:      0.7,
		TargetRatio:         0.3,
		PreserveLast:        6,
		PreserveToolResults: true,
		MaxToolResults:      10,
	}
}

// Summarizer produces a short natural-language summary of text, bounded to
// roughly maxTokens. The agent loop supplies one backed by the session's
// LLM client; compaction itself has no LLM dependency.
type Summarizer func(ctx context.Context, text string, maxTokens int) (string, error)

var encodingCache map[string]*tiktoken.Tiktoken

func init() {
	encodingCache = make(map[string]*tiktoken.Tiktoken)
}

func getEncoding() (*tiktoken.Tiktoken, error) {
	if enc, ok := encodingCache["cl100k_base"]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	encodingCache["cl100k_base"] = enc
	return enc, nil
}

// EstimateTokens approximates the token cost of messages, preferring a real
// tiktoken encoding and falling back to a character-count heuristic when
// the encoding table can't be loaded (e.g. offline with no bundled ranks).
func EstimateTokens(messages []session.Message) int {
	if enc, err := getEncoding(); err == nil {
		total := 0
		for _, m := range messages {
			total += 4 // per-message role/framing overhead
			total += len(enc.Encode(m.Content, nil, nil))
			for _, tc := range m.ToolCalls {
				total += len(enc.Encode(tc.Name, nil, nil))
				total += len(enc.Encode(fmt.Sprintf("%v", tc.Args), nil, nil))
			}
		}
		return total
	}
	return estimateTokensFallback(messages)
}

func estimateTokensFallback(messages []session.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
		for _, tc := range m.ToolCalls {
			total += 50
			total += len(fmt.Sprintf("%v", tc.Args)) / 4
		}
	}
	return total
}

// Result reports what a Compact call did.
type Result struct {
	StrategyUsed     Strategy
	OriginalTokens   int
	CompactedTokens  int
	MessagesRemoved  int
	Summary          string
	Compacted        bool
}

// Compactor shrinks a session's message history when it grows past the
// configured threshold of a model's context window.
type Compactor struct {
	cfg             Config
	model           string
	contextWindow   int
	thresholdTokens int
	targetTokens    int
	summarize       Summarizer
	bus             *eventbus.Bus
}

// New builds a Compactor for model, with optional summarizer (required only
// for StrategySummary/StrategyHybrid) and an optional event bus to publish
// ContextCompacted on.
func New(cfg Config, model string, summarize Summarizer, bus *eventbus.Bus) *Compactor {
	window := ContextWindowFor(model)
	c := &Compactor{
		cfg:           cfg,
		model:         model,
		contextWindow: window,
		summarize:     summarize,
		bus:           bus,
	}
	c.thresholdTokens = int(float64(window) * cfg.ThresholdRatio)
	c.targetTokens = int(float64(window) * cfg.TargetRatio)
	return c
}

// ShouldCompact reports whether messages' estimated token count exceeds the
// configured threshold.
func (c *Compactor) ShouldCompact(messages []session.Message) bool {
	return EstimateTokens(messages) > c.thresholdTokens
}

// Usage is a point-in-time token-budget snapshot.
type Usage struct {
	EstimatedTokens int     `json:"estimated_tokens"`
	ContextWindow   int     `json:"context_window"`
	ThresholdTokens int     `json:"threshold_tokens"`
	Ratio           float64 `json:"ratio"`
}

// GetTokenUsage reports the current usage snapshot for messages.
func (c *Compactor) GetTokenUsage(messages []session.Message) Usage {
	tokens := EstimateTokens(messages)
	ratio := 0.0
	if c.contextWindow > 0 {
		ratio = float64(tokens) / float64(c.contextWindow)
	}
	return Usage{
		EstimatedTokens: tokens,
		ContextWindow:   c.contextWindow,
		ThresholdTokens: c.thresholdTokens,
		Ratio:           ratio,
	}
}

// splitPreserved finds the split point that keeps the last PreserveLast
// user/assistant messages (and, if configured, up to MaxToolResults
// trailing tool messages ahead of them) untouched by compaction.
func (c *Compactor) splitPreserved(messages []session.Message) (int, []session.Message, []session.Message) {
	preserveIdx := len(messages)
	userAssistant := 0
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" || messages[i].Role == "assistant" {
			userAssistant++
			if userAssistant >= c.cfg.PreserveLast {
				preserveIdx = i
				break
			}
		}
	}
	if userAssistant < c.cfg.PreserveLast {
		// Fewer user/assistant messages than PreserveLast: keep them all.
		preserveIdx = 0
	}

	if c.cfg.PreserveToolResults {
		toolCount := 0
		for i := preserveIdx - 1; i >= 0; i-- {
			if messages[i].Role != "tool" {
				break
			}
			toolCount++
			if toolCount <= c.cfg.MaxToolResults {
				preserveIdx = i
			} else {
				break
			}
		}
	}

	return preserveIdx, messages[:preserveIdx], messages[preserveIdx:]
}

// Compact shrinks messages per the configured strategy if ShouldCompact
// reports true; otherwise it returns messages unchanged.
func (c *Compactor) Compact(ctx context.Context, sessionID string, messages []session.Message) ([]session.Message, Result) {
	originalTokens := EstimateTokens(messages)
	if originalTokens <= c.thresholdTokens {
		return messages, Result{StrategyUsed: c.cfg.Strategy, OriginalTokens: originalTokens, CompactedTokens: originalTokens}
	}

	_, toCompact, toPreserve := c.splitPreserved(messages)
	if len(toCompact) == 0 {
		return messages, Result{StrategyUsed: c.cfg.Strategy, OriginalTokens: originalTokens, CompactedTokens: originalTokens}
	}

	var compactedHead []session.Message
	var summary string
	switch c.cfg.Strategy {
	case StrategyTruncate:
		compactedHead, summary = c.truncate(toCompact)
	case StrategySlidingWindow:
		compactedHead, summary = c.slidingWindow(toCompact)
	case StrategyHybrid:
		compactedHead, summary = c.hybrid(ctx, toCompact)
	default:
		compactedHead, summary = c.summarizeStrategy(ctx, toCompact)
	}

	result := append(compactedHead, toPreserve...)
	compactedTokens := EstimateTokens(result)

	res := Result{
		StrategyUsed:    c.cfg.Strategy,
		OriginalTokens:  originalTokens,
		CompactedTokens: compactedTokens,
		MessagesRemoved: len(messages) - len(result),
		Summary:         summary,
		Compacted:       true,
	}
	c.emitEvent(sessionID, res)
	return result, res
}

func (c *Compactor) emitEvent(sessionID string, res Result) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(eventbus.Event{
		Type:      eventbus.ContextCompacted,
		SessionID: sessionID,
		Payload: map[string]interface{}{
			"original_tokens":  res.OriginalTokens,
			"compacted_tokens": res.CompactedTokens,
			"messages_removed": res.MessagesRemoved,
			"strategy":         string(res.StrategyUsed),
			"model":            c.model,
			"context_window":   c.contextWindow,
			"threshold_tokens": c.thresholdTokens,
		},
	})
}

func messagesToText(messages []session.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s]: %s\n", m.Role, m.Content)
	}
	return b.String()
}

func (c *Compactor) summarizeStrategy(ctx context.Context, messages []session.Message) ([]session.Message, string) {
	if c.summarize == nil {
		return c.truncate(messages)
	}
	text := messagesToText(messages)
	maxTokens := c.targetTokens
	if maxTokens > 4000 {
		maxTokens = 4000
	}
	summary, err := c.summarize(ctx, text, maxTokens)
	if err != nil || summary == "" {
		return c.truncate(messages)
	}
	content := fmt.Sprintf("[Previous context compacted - %d messages summarized]\n\n%s", len(messages), summary)
	return []session.Message{{Role: "assistant", Content: content}}, summary
}

func (c *Compactor) truncate(messages []session.Message) ([]session.Message, string) {
	if len(messages) <= 4 {
		return messages, ""
	}
	first := messages[:2]
	last := messages[len(messages)-2:]
	removed := len(messages) - 4
	summary := fmt.Sprintf("[... %d messages truncated ...]", removed)

	result := make([]session.Message, 0, len(first)+1+len(last))
	result = append(result, first...)
	result = append(result, session.Message{Role: "assistant", Content: summary})
	result = append(result, last...)
	return result, summary
}

func (c *Compactor) slidingWindow(messages []session.Message) ([]session.Message, string) {
	var kept []session.Message
	total := 0
	for i := len(messages) - 1; i >= 0; i-- {
		tok := EstimateTokens(messages[i : i+1])
		if total+tok > c.targetTokens {
			break
		}
		kept = append([]session.Message{messages[i]}, kept...)
		total += tok
	}
	removed := len(messages) - len(kept)
	if removed <= 0 {
		return kept, ""
	}
	summary := fmt.Sprintf("[... %d older messages removed ...]", removed)
	kept = append([]session.Message{{Role: "assistant", Content: summary}}, kept...)
	return kept, summary
}

func (c *Compactor) hybrid(ctx context.Context, messages []session.Message) ([]session.Message, string) {
	target := c.targetTokens / 2
	var kept []session.Message
	total := 0
	for i := len(messages) - 1; i >= 0; i-- {
		tok := EstimateTokens(messages[i : i+1])
		if total+tok > target {
			break
		}
		kept = append([]session.Message{messages[i]}, kept...)
		total += tok
	}
	removed := messages[:len(messages)-len(kept)]
	if len(removed) == 0 {
		return kept, ""
	}

	var summary string
	if c.summarize != nil {
		text := messagesToText(removed)
		if len(text) > 10000 {
			text = text[:10000]
		}
		if s, err := c.summarize(ctx, text, 500); err == nil && s != "" {
			summary = s
		}
	}
	if summary == "" {
		summary = fmt.Sprintf("[%d older messages summarized]", len(removed))
	}

	result := append([]session.Message{{Role: "assistant", Content: "[Earlier context summary]\n" + summary}}, kept...)
	return result, summary
}
