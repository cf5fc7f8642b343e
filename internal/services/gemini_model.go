package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// GeminiChatModel adapts the Gemini API to ChatModel.
type GeminiChatModel struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

func NewGeminiChatModel(client *genai.Client, modelName string) *GeminiChatModel {
	return &GeminiChatModel{client: client, modelName: modelName, temperature: 0.4}
}

func (g *GeminiChatModel) ModelName() string {
	return g.modelName
}

func (g *GeminiChatModel) Generate(ctx context.Context, system string, tools []ToolDefinition, history []Turn) (*ModelReply, error) {
	if len(history) == 0 {
		return nil, errors.New("history must not be empty")
	}

	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(g.temperature)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if len(tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(tools)}}
	}

	contents := make([]*genai.Content, len(history))
	for i, turn := range history {
		content, err := toGenaiContent(turn)
		if err != nil {
			return nil, err
		}
		contents[i] = content
	}
	last := contents[len(contents)-1]
	if last.Role != "user" {
		return nil, fmt.Errorf("last turn must come from the user side, got %q", last.Role)
	}

	session := model.StartChat()
	session.History = contents[:len(contents)-1]
	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	return fromGenaiResponse(resp)
}

func toFunctionDeclarations(tools []ToolDefinition) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schema := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
		for _, p := range t.Parameters {
			typ := genai.TypeString
			if p.Type == "integer" {
				typ = genai.TypeInteger
			}
			schema.Properties[p.Name] = &genai.Schema{Type: typ, Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return decls
}

func toGenaiContent(turn Turn) (*genai.Content, error) {
	switch t := turn.(type) {
	case UserTurn:
		return &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(t.Text)}}, nil
	case ModelTextTurn:
		return &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(t.Text)}}, nil
	case ToolCallTurn:
		return &genai.Content{Role: "model", Parts: []genai.Part{genai.FunctionCall{Name: t.Name, Args: t.Args}}}, nil
	case ToolResultTurn:
		return &genai.Content{Role: "user", Parts: []genai.Part{genai.FunctionResponse{
			Name:     t.Name,
			Response: map[string]any{"content": t.Content},
		}}}, nil
	default:
		return nil, fmt.Errorf("unsupported turn type %T", turn)
	}
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) (*ModelReply, error) {
	reply := &ModelReply{}
	if resp.UsageMetadata != nil {
		reply.InputTokens = int64(resp.UsageMetadata.PromptTokenCount)
		reply.OutputTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("model returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.FunctionCall:
			reply.Turn = ToolCallTurn{Name: p.Name, Args: p.Args}
			return reply, nil
		case *genai.FunctionCall:
			reply.Turn = ToolCallTurn{Name: p.Name, Args: p.Args}
			return reply, nil
		case genai.Text:
			text.WriteString(string(p))
		}
	}
	reply.Turn = ModelTextTurn{Text: text.String()}
	return reply, nil
}
