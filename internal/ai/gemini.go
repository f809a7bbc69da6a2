package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"VoiceLab/internal/config"
)

// Gemini клиент генеративных моделей Google. Одна модель для речи, другая для
// текстовых запросов над аудио.
type Gemini struct {
	client      *genai.Client
	speechModel string
	textModel   string
	logger      *zap.SugaredLogger
}

var _ Client = (*Gemini)(nil)

func NewGemini(ctx context.Context, cfg config.GeminiConfig, logger *zap.SugaredLogger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Gemini{
		client:      client,
		speechModel: cfg.SpeechModel,
		textModel:   cfg.TextModel,
		logger:      logger,
	}, nil
}

func (g *Gemini) Synthesize(ctx context.Context, text string, voice string) ([]byte, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	started := time.Now()

	resp, err := g.client.Models.GenerateContent(ctx, g.speechModel,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}}, cfg)
	if err != nil {
		return nil, classify(err)
	}

	g.logger.Infow("Gemini synthesis done",
		"model", g.speechModel,
		"voice", voice,
		"took", time.Since(started).String(),
	)

	pcm := firstInlineData(resp)
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}

	return pcm, nil
}

func (g *Gemini) GenerateText(ctx context.Context, instruction string, clip Clip) (string, error) {
	// Сначала аудио, потом инструкция — так модель стабильнее следует ей.
	content := &genai.Content{Parts: []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: clip.MIMEType, Data: clip.Data}},
		{Text: instruction},
	}}

	started := time.Now()

	resp, err := g.client.Models.GenerateContent(ctx, g.textModel, []*genai.Content{content}, nil)
	if err != nil {
		return "", classify(err)
	}

	g.logger.Infow("Gemini audio request done",
		"model", g.textModel,
		"took", time.Since(started).String(),
	)

	return strings.TrimSpace(firstText(resp)), nil
}

// classify переводит ошибки квоты в ErrQuota, остальные отдаёт как есть.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Status == "RESOURCE_EXHAUSTED" {
			return fmt.Errorf("%w: %s", ErrQuota, apiErr.Message)
		}
		return err
	}

	// gRPC-транспорт Cloud TTS пишет код словом, REST — константой статуса.
	msg := err.Error()
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") || strings.Contains(msg, "ResourceExhausted") || strings.Contains(msg, "429") {
		return fmt.Errorf("%w: %v", ErrQuota, err)
	}

	return err
}

func firstInlineData(resp *genai.GenerateContentResponse) []byte {
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data
			}
		}
	}

	return nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" {
				return part.Text
			}
		}
	}

	return ""
}
