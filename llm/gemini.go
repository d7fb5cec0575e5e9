package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/amcp-dev/amcp/errors"
	"github.com/amcp-dev/amcp/session"
	"github.com/amcp-dev/amcp/tools"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	model *genai.GenerativeModel
}

// NewGeminiLLMClient creates a new GeminiLLMClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiLLMClient(ctx context.Context, modelName string) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	model := client.GenerativeModel(modelName)

	return &GeminiLLMClient{
		model: model,
	}, nil
}

// Chat sends a chat request to the Gemini API. Like the other clients, it
// never executes a tool itself: a requested function call comes back as a
// session.ToolCall on the returned message for the agent loop to dispatch.
// When onChunk is set, it drives SendMessageStream and forwards each
// candidate's text parts as they arrive; once the iterator is exhausted it
// returns the text of every chunk joined, with the function calls of the
// final chunk.
func (g *GeminiLLMClient) Chat(ctx context.Context, messages []session.Message, availableTools []tools.Tool, onChunk ChunkFunc) (*session.Message, error) {
	history := convertMessagesToGeminiContent(messages)
	g.model.Tools = convertToolsToGeminiTools(availableTools)

	if len(history) == 0 {
		return nil, errors.New("cannot send an empty message history to Gemini")
	}
	lastMessage := history[len(history)-1]

	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]

	if onChunk == nil {
		resp, err := chatSession.SendMessage(ctx, lastMessage.Parts...)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to send message to Gemini")
		}
		return processGeminiResponse(resp)
	}

	iter := chatSession.SendMessageStream(ctx, lastMessage.Parts...)
	var last *genai.GenerateContentResponse
	var streamed string
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to stream message from Gemini")
		}
		last = resp
		if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
			for _, part := range resp.Candidates[0].Content.Parts {
				if text, ok := part.(genai.Text); ok {
					onChunk(string(text))
					streamed += string(text)
				}
			}
		}
	}
	if last == nil {
		return &session.Message{Role: "assistant", Content: ""}, nil
	}

	msg, err := processGeminiResponse(last)
	if err != nil {
		return nil, err
	}
	msg.Content = streamed
	return msg, nil
}

// convertMessagesToGeminiContent converts our internal message format to
// Gemini's, translating tool calls to FunctionCall parts and tool results
// to FunctionResponse parts so the model sees its own prior calls.
func convertMessagesToGeminiContent(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case "tool":
			name := ""
			if len(msg.ToolCalls) > 0 {
				name = msg.ToolCalls[0].Name
			}
			contents = append(contents, &genai.Content{
				Role: "function",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     name,
					Response: map[string]interface{}{"result": msg.Content},
				}},
			})
		case "system":
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	return contents
}

// convertToolsToGeminiTools converts our Tool interface, including its
// JSON-schema-shaped Schema(), into Gemini's FunctionDeclaration format.
func convertToolsToGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, tool := range ts {
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  jsonSchemaToGenaiSchema(tool.Schema()),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

// jsonSchemaToGenaiSchema translates the subset of JSON Schema the built-in
// tools use (object/string/array properties plus a required list) into
// genai's own Schema type.
func jsonSchemaToGenaiSchema(schema map[string]interface{}) *genai.Schema {
	out := &genai.Schema{Type: genai.TypeObject}

	if props, ok := schema["properties"].(map[string]interface{}); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			prop, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			out.Properties[name] = &genai.Schema{
				Type:        jsonSchemaTypeToGenai(prop["type"]),
				Description: fmt.Sprintf("%v", prop["description"]),
			}
		}
	}
	if required, ok := schema["required"].([]string); ok {
		out.Required = required
	}
	return out
}

func jsonSchemaTypeToGenai(t interface{}) genai.Type {
	s, _ := t.(string)
	switch s {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

// processGeminiResponse converts a Gemini API response into our internal
// session.Message format, surfacing any requested function calls as
// session.ToolCalls for the agent loop to dispatch.
func processGeminiResponse(resp *genai.GenerateContentResponse) (*session.Message, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return &session.Message{Role: "assistant", Content: ""}, nil
	}

	content := resp.Candidates[0].Content
	var responseContent string
	var toolCalls []session.ToolCall
	callIndex := 0

	for _, part := range content.Parts {
		switch v := part.(type) {
		case genai.Text:
			responseContent += string(v)
		case genai.FunctionCall:
			toolCalls = append(toolCalls, session.ToolCall{
				ToolCallID: fmt.Sprintf("call_%d_%s", callIndex, v.Name),
				Name:       v.Name,
				Args:       v.Args,
			})
			callIndex++
		default:
			return nil, errors.New("unsupported part type in Gemini response: %T", v)
		}
	}

	return &session.Message{
		Role:      "assistant",
		Content:   responseContent,
		ToolCalls: toolCalls,
	}, nil
}
