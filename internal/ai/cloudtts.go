package ai

import (
	"bytes"
	"context"
	"fmt"
	"time"

	gctts "cloud.google.com/go/texttospeech/apiv1"
	ttspb "cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"go.uber.org/zap"
)

// Голоса каталога существуют в Cloud TTS как Chirp3-HD с теми же именами.
const cloudVoicePrefix = "en-US-Chirp3-HD-"

const cloudSampleRate = 24000

// CloudTTS синтез через Cloud Text-to-Speech. Авторизация по ADC
// (GOOGLE_APPLICATION_CREDENTIALS), ключ API не нужен. Понимания аудио у
// сервиса нет: смена голоса и дубляж на этом провайдере недоступны.
type CloudTTS struct {
	client *gctts.Client
	logger *zap.SugaredLogger
}

var _ Client = (*CloudTTS)(nil)

func NewCloudTTS(ctx context.Context, logger *zap.SugaredLogger) (*CloudTTS, error) {
	client, err := gctts.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cloud tts: create client: %w", err)
	}

	return &CloudTTS{client: client, logger: logger}, nil
}

func (c *CloudTTS) Synthesize(ctx context.Context, text string, voice string) ([]byte, error) {
	req := &ttspb.SynthesizeSpeechRequest{
		Input: &ttspb.SynthesisInput{InputSource: &ttspb.SynthesisInput_Text{Text: text}},
		Voice: &ttspb.VoiceSelectionParams{
			LanguageCode: "en-US",
			Name:         cloudVoiceName(voice),
		},
		AudioConfig: &ttspb.AudioConfig{
			AudioEncoding:   ttspb.AudioEncoding_LINEAR16,
			SampleRateHertz: cloudSampleRate,
		},
	}

	started := time.Now()

	resp, err := c.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, classify(err)
	}

	c.logger.Infow("Cloud TTS synthesis done",
		"voice", req.Voice.Name,
		"took", time.Since(started).String(),
	)

	pcm := stripWAVHeader(resp.GetAudioContent())
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}

	return pcm, nil
}

func (c *CloudTTS) GenerateText(context.Context, string, Clip) (string, error) {
	return "", ErrTextOnly
}

func (c *CloudTTS) Close() error { return c.client.Close() }

func cloudVoiceName(voice string) string { return cloudVoicePrefix + voice }

// stripWAVHeader убирает контейнер: LINEAR16 приходит с RIFF-заголовком,
// а конвейер работает с голым PCM.
func stripWAVHeader(data []byte) []byte {
	if len(data) > 44 && bytes.HasPrefix(data, []byte("RIFF")) {
		return data[44:]
	}

	return data
}
