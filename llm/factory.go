package llm

import "context"

// NewClient builds the LLMClient named by clientName ("anthropic", "openai",
// "bedrock", "gemini"), falling back to MockLLMClient for anything else so a
// session can always be created, even without provider credentials
// configured.
func NewClient(ctx context.Context, clientName, model string) (LLMClient, error) {
	switch clientName {
	case "gemini":
		return NewGeminiLLMClient(ctx, model)
	case "openai":
		return NewOpenAILLMClient(ctx, model)
	case "bedrock":
		return NewBedrockLLMClient(ctx, model)
	case "anthropic":
		return NewAnthropicLLMClient(ctx, model)
	default:
		return &MockLLMClient{}, nil
	}
}
