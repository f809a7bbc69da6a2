package compose

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"VoiceLab/internal/ai"
)

// Mode режим подготовки текста перед синтезом.
type Mode string

const (
	ModeTextToSpeech Mode = "tts"
	ModeVoiceChange  Mode = "voice-change"
	ModeDubbing      Mode = "dubbing"
)

// ParseMode принимает режим с проводного уровня.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTextToSpeech, ModeVoiceChange, ModeDubbing:
		return Mode(s), nil
	}

	return "", fmt.Errorf("unknown mode %q", s)
}

// RequiresAudio режимы, которым нужен загруженный аудиофайл.
func (m Mode) RequiresAudio() bool {
	return m == ModeVoiceChange || m == ModeDubbing
}

const (
	// MaxTextRunes жёсткий потолок длины текста для синтеза.
	MaxTextRunes = 20000
	// maxUploadBytes предел размера загруженного аудио после декодирования.
	maxUploadBytes = 50 << 20
)

var (
	ErrBlankText       = errors.New("text is blank")
	ErrTextTooLong     = errors.New("text exceeds the 20000 character limit")
	ErrMissingAudio    = errors.New("audio file is required")
	ErrInvalidAudio    = errors.New("audio payload is malformed")
	ErrAudioTooLarge   = errors.New("audio file exceeds the 50 MiB limit")
	ErrMissingLanguage = errors.New("target language is required")
	// ErrNoSpeech модель не нашла речи в загруженном аудио.
	ErrNoSpeech = errors.New("could not extract speech")
)

const (
	transcribeInstruction = "Transcribe the speech in this audio exactly. Return only the transcription, nothing else."
	translateInstruction  = "Translate the speech in this audio to %s. Return only the translated text, nothing else."
)

// Upload аудиофайл, присланный клиентом. Полезная нагрузка в base64,
// полностью буферизована, допускается и как data-URL.
type Upload struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Base64   string `json:"data"`
}

// Request входные данные одной генерации.
type Request struct {
	Mode           Mode
	Text           string
	Audio          *Upload
	TargetLanguage string
}

// Composer готовит финальный текст для синтеза. В режимах с аудио сам
// ходит к модели за транскрипцией или переводом.
type Composer struct {
	ai     ai.Client
	logger *zap.SugaredLogger
}

func NewComposer(client ai.Client, logger *zap.SugaredLogger) *Composer {
	return &Composer{ai: client, logger: logger}
}

// Compose возвращает текст, который будет озвучен. Валидация входа всегда
// предшествует сетевым вызовам; ошибки модели отдаются без обёрток, чтобы
// их сообщения дошли до пользователя как есть.
func (c *Composer) Compose(ctx context.Context, req Request) (string, error) {
	var text string

	switch req.Mode {
	case ModeTextToSpeech:
		if strings.TrimSpace(req.Text) == "" {
			return "", ErrBlankText
		}
		text = req.Text

	case ModeVoiceChange:
		clip, err := req.Audio.clip()
		if err != nil {
			return "", err
		}

		text, err = c.ai.GenerateText(ctx, transcribeInstruction, clip)
		if err != nil {
			c.logger.Warnw("Transcription failed", "error", err)
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrNoSpeech
		}

	case ModeDubbing:
		if strings.TrimSpace(req.TargetLanguage) == "" {
			return "", ErrMissingLanguage
		}

		clip, err := req.Audio.clip()
		if err != nil {
			return "", err
		}

		text, err = c.ai.GenerateText(ctx, fmt.Sprintf(translateInstruction, req.TargetLanguage), clip)
		if err != nil {
			c.logger.Warnw("Translation failed", "error", err, "language", req.TargetLanguage)
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrNoSpeech
		}

	default:
		return "", fmt.Errorf("unknown mode %q", req.Mode)
	}

	// Потолок проверяется после композиции: транскрипция или перевод,
	// вышедшие за предел, отклоняются уже после потраченного вызова.
	if utf8.RuneCountInString(text) > MaxTextRunes {
		return "", ErrTextTooLong
	}

	return text, nil
}

// clip декодирует полезную нагрузку и проверяет предел размера.
func (u *Upload) clip() (ai.Clip, error) {
	if u == nil || u.Base64 == "" {
		return ai.Clip{}, ErrMissingAudio
	}

	payload := u.Base64
	mime := u.MIMEType

	// FileReader в браузере отдаёт data-URL, принимаем и такой вид.
	if strings.HasPrefix(payload, "data:") {
		head, rest, ok := strings.Cut(payload, ",")
		if !ok {
			return ai.Clip{}, ErrInvalidAudio
		}
		payload = rest
		if mime == "" {
			mime = strings.TrimSuffix(strings.TrimPrefix(head, "data:"), ";base64")
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ai.Clip{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	if len(data) == 0 {
		return ai.Clip{}, ErrMissingAudio
	}
	if len(data) > maxUploadBytes {
		return ai.Clip{}, ErrAudioTooLarge
	}

	if mime == "" {
		mime = "audio/mpeg"
	}

	return ai.Clip{MIMEType: mime, Data: data}, nil
}
