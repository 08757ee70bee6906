package eino

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	gemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"google.golang.org/genai"

	"contentscore/internal/core/score"
	"contentscore/internal/logger"
	"contentscore/internal/utils/markdown"
	"contentscore/prompts"
)

// Config selects and configures the LLM provider.
type Config struct {
	Provider  string `json:"provider"` // "anthropic" or "gemini"
	APIKey    string `json:"api_key"`
	BaseURL   string `json:"base_url,omitempty"`
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
}

// Service scores page content through an Eino chat model.
type Service struct {
	config       Config
	chatModel    model.BaseChatModel
	chatTemplate prompt.ChatTemplate
	log          *logger.Logger
}

func NewService(config Config) (*Service, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("%s API key is not set", strings.ToLower(config.Provider))
	}
	s := &Service{config: config, log: logger.New("Scorer")}
	if err := s.initializeChatModel(); err != nil {
		return nil, fmt.Errorf("failed to initialize chat model: %w", err)
	}
	s.chatTemplate = prompts.NewSystemPrompts().Scoring
	return s, nil
}

// NewServiceWithModel builds a Service around a pre-configured chat model.
func NewServiceWithModel(config Config, chatModel model.BaseChatModel) *Service {
	return &Service{
		config:       config,
		chatModel:    chatModel,
		chatTemplate: prompts.NewSystemPrompts().Scoring,
		log:          logger.New("Scorer"),
	}
}

func (s *Service) initializeChatModel() error {
	switch strings.ToLower(s.config.Provider) {
	case "anthropic", "claude":
		s.chatModel = NewAnthropicChatModel(AnthropicConfig{
			APIKey:    s.config.APIKey,
			BaseURL:   s.config.BaseURL,
			Model:     s.config.Model,
			MaxTokens: s.config.MaxTokens,
		})
		return nil
	case "gemini":
		return s.initializeGeminiModel()
	default:
		return fmt.Errorf("unsupported provider: %s. Supported: %s", s.config.Provider, strings.Join(GetAvailableProviders(), ", "))
	}
}

func (s *Service) initializeGeminiModel() error {
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: s.config.APIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}
	modelName := s.config.Model
	if modelName == "" || strings.HasPrefix(modelName, "claude") {
		modelName = "gemini-1.5-flash"
	}
	cfg := &gemini.Config{Client: client, Model: modelName}
	if s.config.MaxTokens > 0 {
		cfg.MaxTokens = &s.config.MaxTokens
	}
	geminiModel, err := gemini.NewChatModel(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create Gemini chat model: %w", err)
	}
	s.chatModel = geminiModel
	return nil
}

// Score asks the model for Cw/Sd/Dv scores. Transport and provider errors
// are returned as-is so the caller can classify them.
func (s *Service) Score(ctx context.Context, text, url string) (*score.Result, error) {
	if s.chatModel == nil {
		return nil, fmt.Errorf("chat model not initialized")
	}
	messages, err := s.chatTemplate.Format(ctx, map[string]any{
		"url":     url,
		"content": score.ClipContent(markdown.CleanText(text)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to format chat template: %w", err)
	}

	if hs := handlersFrom(ctx); len(hs) > 0 {
		ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
			Name:      s.config.Model,
			Type:      s.config.Provider,
			Component: components.ComponentOfChatModel,
		}, hs...)
	}
	ctx = callbacks.OnStart(ctx, &model.CallbackInput{Messages: messages})

	resp, err := s.chatModel.Generate(ctx, messages)
	if err == nil && resp == nil {
		err = fmt.Errorf("empty response from %s", s.config.Provider)
	}
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, err
	}

	res := score.Parse(resp.Content)
	res.Usage = usageFrom(resp, messages)
	if res.Fallback {
		s.log.Warn().Str("url", url).Msg("response was not valid JSON, used text fallback")
	}
	callbacks.OnEnd(ctx, &model.CallbackOutput{
		Message: resp,
		TokenUsage: &model.TokenUsage{
			PromptTokens:     res.Usage.InputTokens,
			CompletionTokens: res.Usage.OutputTokens,
			TotalTokens:      res.Usage.InputTokens + res.Usage.OutputTokens,
		},
	})
	return res, nil
}

// usageFrom reads provider-reported usage, estimating at four characters
// per token when the provider reports none.
func usageFrom(resp *schema.Message, input []*schema.Message) *score.Usage {
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		u := resp.ResponseMeta.Usage
		if u.PromptTokens > 0 || u.CompletionTokens > 0 {
			return &score.Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens}
		}
	}
	return &score.Usage{
		InputTokens:  score.EstimateTokens(messagesToText(input)),
		OutputTokens: score.EstimateTokens(resp.Content),
	}
}

func messagesToText(messages []*schema.Message) string {
	var text strings.Builder
	for _, msg := range messages {
		text.WriteString(msg.Content)
		text.WriteString("\n")
	}
	return text.String()
}

func (s *Service) GetChatModel() model.BaseChatModel { return s.chatModel }

func GetAvailableProviders() []string {
	return []string{"anthropic", "gemini"}
}

func GetProviderInstructions() map[string]string {
	return map[string]string{
		"anthropic": "Set ANTHROPIC_API_KEY. Get a key from: https://console.anthropic.com/",
		"gemini":    "Set GEMINI_API_KEY. Get a key from: https://aistudio.google.com/app/apikey",
	}
}
