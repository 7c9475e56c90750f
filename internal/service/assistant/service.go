package assistant

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/ssalazarv/voicegate/internal/config"
	"github.com/ssalazarv/voicegate/internal/model/conversation"
)

// systemPrompt 回复会被再次合成为语音，所以要求简短、口语化、无标记。
const systemPrompt = `Eres el asistente de voz de una línea telefónica de atención.
Responde en una o dos frases cortas, con tono cálido y natural.
Tu respuesta será convertida a audio: no uses listas, enlaces ni formato alguno.
Si el usuario habla en otro idioma, responde en ese idioma.`

// historyLimit 携带的最近轮次上限，避免提示词无限增长。
const historyLimit = 10

// Service encapsulates LLM-backed reply generation for voice conversations.
type Service struct {
	chatModel model.ChatModel
	cfg       config.AssistantConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
	logger    *zap.Logger
}

// NewService creates the assistant service from the configured chat model.
func NewService(ctx context.Context, cfg config.AssistantConfig, logger *zap.Logger) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
		logger:    logger,
	}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Reply generates a single assistant reply for the conversation.
func (s *Service) Reply(ctx context.Context, sessionID string, history []conversation.Turn, userText string) (string, error) {
	response, err := s.chain.Invoke(ctx, s.buildChainInput(history, userText))
	if err != nil {
		return "", fmt.Errorf("failed to run assistant chain: %w", err)
	}

	s.logger.Debug("assistant reply generated",
		zap.String("sessionId", sessionID),
		zap.Int("length", len(response.Content)),
	)
	return response.Content, nil
}

// StreamReply streams assistant reply chunks via the configured chain.
func (s *Service) StreamReply(ctx context.Context, history []conversation.Turn, userText string) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}

	stream, err := s.chain.Stream(ctx, s.buildChainInput(history, userText))
	if err != nil {
		return nil, fmt.Errorf("failed to stream assistant chain output: %w", err)
	}

	return stream, nil
}

func (s *Service) buildChainInput(history []conversation.Turn, userText string) map[string]any {
	return map[string]any{
		"system":  systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   userText,
	}
}

func buildHistoryMessages(turns []conversation.Turn) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if len(turns) > historyLimit {
		startIdx = len(turns) - historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, turn := range turns[startIdx:] {
		switch turn.Sender {
		case "user":
			history = append(history, schema.UserMessage(turn.Content))
		case "assistant":
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		}
	}

	return history
}
