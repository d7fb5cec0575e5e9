package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/amcp-dev/amcp/session"
	"github.com/amcp-dev/amcp/tools"
)

// ChunkFunc receives one incremental piece of an in-progress assistant
// message as a provider streams its response. It is called from whatever
// goroutine is reading the provider's stream and must not block; nil means
// the caller doesn't want incremental delivery, in which case an
// implementation should skip streaming entirely and return the complete
// message from Chat as usual.
type ChunkFunc func(delta string)

// LLMClient is the interface for interacting with a Large Language Model.
type LLMClient interface {
	Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool, onChunk ChunkFunc) (*session.Message, error)
}

// MockLLMClient is a placeholder for testing. It streams its canned
// response one word at a time when onChunk is set, so callers exercising
// the streaming path don't need real provider credentials.
type MockLLMClient struct{}

func (m *MockLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool, onChunk ChunkFunc) (*session.Message, error) {
	fmt.Println("\n--- MOCK LLM CLIENT ---")
	fmt.Printf("Received %d messages. Last message: '%s'\n", len(messages), messages[len(messages)-1].Content)
	var toolNames []string
	for _, tool := range availableTools {
		toolNames = append(toolNames, tool.Name())
	}
	fmt.Printf("Available tools: %v\n", toolNames)
	fmt.Println("Returning a mock response.")
	fmt.Println("-----------------------")

	// This mock will just parrot back the user's last message.
	// A real implementation would make an API call here.
	lastUserMessage := messages[len(messages)-1].Content
	content := fmt.Sprintf("I am a mock LLM. You said: '%s'. I cannot use tools yet.", lastUserMessage)

	if onChunk != nil {
		words := strings.Split(content, " ")
		for i, word := range words {
			chunk := word
			if i < len(words)-1 {
				chunk += " "
			}
			onChunk(chunk)
		}
	}

	return &session.Message{
		Role:    "assistant",
		Content: content,
	}, nil
}
