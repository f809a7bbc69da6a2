package ai

import (
	"context"
	"errors"
)

// Clip аудиофрагмент, который передаётся модели вместе с текстовой инструкцией.
type Clip struct {
	MIMEType string
	Data     []byte
}

// Client интерфейс для взаимодействия с AI. Все реализации должны быть взаимозаменяемыми.
type Client interface {
	// Synthesize озвучивает текст выбранным голосом и возвращает сырой PCM
	// (16 бит, моно, 24 кГц) без контейнера.
	Synthesize(ctx context.Context, text string, voice string) ([]byte, error)
	// GenerateText выполняет текстовый запрос над аудиофрагментом
	// (транскрипция, перевод). Пустой результат — "" без ошибки.
	GenerateText(ctx context.Context, instruction string, clip Clip) (string, error)
}

var (
	// ErrQuota модель отклонила запрос из-за исчерпанной квоты.
	ErrQuota = errors.New("quota exhausted")
	// ErrEmptyAudio модель ответила без аудиоданных.
	ErrEmptyAudio = errors.New("empty response from model")
	// ErrTextOnly провайдер умеет только озвучивать текст.
	ErrTextOnly = errors.New("provider supports text to speech only")
)
