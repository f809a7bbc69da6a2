package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"VoiceLab/internal/ai"
	"VoiceLab/internal/config"
	"VoiceLab/internal/playback"
	"VoiceLab/internal/voices"
	"VoiceLab/internal/wav"
)

// Консольная проверка синтеза: озвучивает фразу выбранным голосом
// либо сохраняет wav в файл.
// Пример запуска:
//
//	go run ./cmd/speak -text "Привет! Это проверка синтеза речи" -voice kore -speed 1.25
func main() {
	var (
		text   string
		voice  string
		speed  float64
		volume float64
		out    string
	)

	// Флаги регистрируются до чтения конфигурации: она разбирает их сама.
	flag.StringVar(&text, "text", "Это проверка синтеза речи студии.", "текст для озвучивания")
	flag.StringVar(&voice, "voice", voices.Default().ID, "голос из каталога, напр. kore")
	flag.Float64Var(&speed, "speed", 1.0, "темп воспроизведения 0.5..2.0")
	flag.Float64Var(&volume, "volume", 0, "громкость в dB (отрицательные — тише)")
	flag.StringVar(&out, "out", "", "путь для сохранения wav; пусто — проиграть вслух")

	cfg := config.NewConfig()

	zl, _ := zap.NewDevelopment()
	logger := zl.Sugar()
	defer zl.Sync() // flush

	profile, ok := voices.ByID(voice)
	if !ok {
		fmt.Printf("неизвестный голос %q, доступные:\n", voice)
		for _, p := range voices.Catalog() {
			fmt.Printf("  %-10s %s\n", p.ID, p.Name)
		}
		os.Exit(1)
	}

	if speed < 0.5 || speed > 2.0 {
		fmt.Println("темп вне диапазона 0.5..2.0")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.SynthesisTimeout)
	defer cancel()

	provider, err := newProvider(ctx, cfg, logger)
	if err != nil {
		logger.Errorw("Failed to create speech provider", "error", err)
		os.Exit(1)
	}

	pcm, err := provider.Synthesize(ctx, text, profile.Name)
	if err != nil {
		logger.Errorw("Synthesize failed", "error", err)
		os.Exit(1)
	}

	data, err := wav.Encode(pcm, wav.DefaultSampleRate)
	if err != nil {
		logger.Errorw("Encode failed", "error", err)
		os.Exit(1)
	}

	if out != "" {
		if err := os.WriteFile(out, data, 0o644); err != nil {
			logger.Errorw("Failed to write file", "error", err, "path", out)
			os.Exit(1)
		}
		logger.Infow("Saved", "path", out, "bytes", len(data))
		return
	}

	p := playback.NewWithVolume(volume)
	if err := p.Play(io.NopCloser(bytes.NewReader(data)), speed); err != nil {
		logger.Errorw("Playback failed", "error", err)
		os.Exit(1)
	}

	logger.Infow("Playback finished", "voice", profile.Name, "runes", len([]rune(text)))
}

// newProvider выбирает провайдера речи по конфигурации.
func newProvider(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (ai.Client, error) {
	switch cfg.SpeechProvider {
	case "stub":
		return ai.NewStubClient(), nil
	case "cloud-tts":
		return ai.NewCloudTTS(ctx, logger)
	default:
		if cfg.Gemini.APIKey == "" && cfg.DebugMode {
			logger.Warnw("GEMINI_API_KEY is empty, using stub speech provider")
			return ai.NewStubClient(), nil
		}

		return ai.NewGemini(ctx, cfg.Gemini, logger)
	}
}
