package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = openai.ChatModelGPT4_1Mini

type OpenAIProvider struct {
	client *openai.Client
	model  openai.ChatModel
	usage  Usage
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return newOpenAIProvider(model, option.WithAPIKey(apiKey))
}

func newOpenAIProvider(model string, opts ...option.RequestOption) *OpenAIProvider {
	client := openai.NewClient(opts...)
	m := openai.ChatModel(model)
	if model == "" {
		m = defaultOpenAIModel
	}
	return &OpenAIProvider{client: &client, model: m}
}

func (p *OpenAIProvider) Name() string {
	return string(p.model)
}

func (p *OpenAIProvider) GetUsage() *Usage {
	return &p.usage
}

func (p *OpenAIProvider) ResetUsage() {
	p.usage = Usage{}
}

func (p *OpenAIProvider) Answer(ctx context.Context, question, registrySummary string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(registryQuestionPrompt),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(buildQuestionContent(question, registrySummary)),
					},
				},
			},
		},
		MaxTokens: openai.Int(maxAnswerTokens),
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}

	p.usage.InputTokens += int(resp.Usage.PromptTokens)
	p.usage.OutputTokens += int(resp.Usage.CompletionTokens)

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
