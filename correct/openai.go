package correct

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// OpenAI corrects through a streamed chat completion.
type OpenAI struct {
	client      *openai.Client
	model       string
	instruction *Instruction
}

func NewOpenAI(client *openai.Client, model string, instruction *Instruction) *OpenAI {
	if model == "" {
		model = openai.GPT4oMini
	}
	if instruction == nil {
		instruction = NewInstruction(DefaultInstruction)
	}
	return &OpenAI{client: client, model: model, instruction: instruction}
}

func (o *OpenAI) Correct(ctx context.Context, text string) (Stream, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: o.instruction.String()},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open completion stream: %w", err)
	}
	return &chatStream{stream: stream}, nil
}

type chatStream struct {
	stream *openai.ChatCompletionStream
}

func (s *chatStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("completion stream failed: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *chatStream) Close() error {
	s.stream.Close()
	return nil
}
