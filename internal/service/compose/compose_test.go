package compose

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"VoiceLab/internal/ai"
)

// scriptedAI отдаёт заранее заданный ответ и запоминает, как его вызвали.
type scriptedAI struct {
	text string
	err  error

	calls       int
	instruction string
	clip        ai.Clip
}

func (s *scriptedAI) Synthesize(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("синтез в композиции не используется")
}

func (s *scriptedAI) GenerateText(_ context.Context, instruction string, clip ai.Clip) (string, error) {
	s.calls++
	s.instruction = instruction
	s.clip = clip

	return s.text, s.err
}

func newComposer(mock *scriptedAI) *Composer {
	return NewComposer(mock, zap.NewNop().Sugar())
}

func upload(data []byte, mime string) *Upload {
	return &Upload{Name: "clip.mp3", MIMEType: mime, Base64: base64.StdEncoding.EncodeToString(data)}
}

func TestComposeTextPassthrough(t *testing.T) {
	t.Parallel()

	mock := &scriptedAI{}

	text, err := newComposer(mock).Compose(context.Background(), Request{
		Mode: ModeTextToSpeech,
		Text: "Hello world",
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
	assert.Zero(t, mock.calls, "прямой режим не ходит к модели")
}

func TestComposeBlankText(t *testing.T) {
	t.Parallel()

	_, err := newComposer(&scriptedAI{}).Compose(context.Background(), Request{
		Mode: ModeTextToSpeech,
		Text: "   \n\t",
	})

	assert.ErrorIs(t, err, ErrBlankText)
}

func TestComposeCeilingBoundary(t *testing.T) {
	t.Parallel()

	c := newComposer(&scriptedAI{})

	_, err := c.Compose(context.Background(), Request{
		Mode: ModeTextToSpeech,
		Text: strings.Repeat("a", MaxTextRunes),
	})
	assert.NoError(t, err, "ровно на потолке текст проходит")

	_, err = c.Compose(context.Background(), Request{
		Mode: ModeTextToSpeech,
		Text: strings.Repeat("a", MaxTextRunes+1),
	})
	assert.ErrorIs(t, err, ErrTextTooLong)
}

func TestComposeVoiceChange(t *testing.T) {
	t.Parallel()

	mock := &scriptedAI{text: "Привет, мир"}

	text, err := newComposer(mock).Compose(context.Background(), Request{
		Mode:  ModeVoiceChange,
		Audio: upload([]byte("fake-audio"), "audio/wav"),
	})

	require.NoError(t, err)
	assert.Equal(t, "Привет, мир", text)
	assert.Equal(t, 1, mock.calls)
	assert.Contains(t, mock.instruction, "only the transcription")
	assert.Equal(t, "audio/wav", mock.clip.MIMEType)
	assert.Equal(t, []byte("fake-audio"), mock.clip.Data)
}

func TestComposeVoiceChangeWithoutAudio(t *testing.T) {
	t.Parallel()

	mock := &scriptedAI{}

	_, err := newComposer(mock).Compose(context.Background(), Request{Mode: ModeVoiceChange})

	assert.ErrorIs(t, err, ErrMissingAudio)
	assert.Zero(t, mock.calls, "валидация идёт до сети")
}

func TestComposeVoiceChangeBlankTranscription(t *testing.T) {
	t.Parallel()

	mock := &scriptedAI{text: "   "}

	_, err := newComposer(mock).Compose(context.Background(), Request{
		Mode:  ModeVoiceChange,
		Audio: upload([]byte("fake-audio"), "audio/wav"),
	})

	assert.ErrorIs(t, err, ErrNoSpeech)
}

func TestComposeDubbing(t *testing.T) {
	t.Parallel()

	mock := &scriptedAI{text: "नमस्ते दुनिया"}

	text, err := newComposer(mock).Compose(context.Background(), Request{
		Mode:           ModeDubbing,
		Audio:          upload([]byte("fake-audio"), "audio/mpeg"),
		TargetLanguage: "Hindi",
	})

	require.NoError(t, err)
	assert.Equal(t, "नमस्ते दुनिया", text)
	assert.Contains(t, mock.instruction, "Hindi")
	assert.Contains(t, mock.instruction, "only the translated text")
}

func TestComposeDubbingWithoutLanguage(t *testing.T) {
	t.Parallel()

	mock := &scriptedAI{}

	_, err := newComposer(mock).Compose(context.Background(), Request{
		Mode:  ModeDubbing,
		Audio: upload([]byte("fake-audio"), "audio/mpeg"),
	})

	assert.ErrorIs(t, err, ErrMissingLanguage)
	assert.Zero(t, mock.calls)
}

func TestComposeDubbingEmptyTranslation(t *testing.T) {
	t.Parallel()

	mock := &scriptedAI{text: ""}

	_, err := newComposer(mock).Compose(context.Background(), Request{
		Mode:           ModeDubbing,
		Audio:          upload([]byte("fake-audio"), "audio/mpeg"),
		TargetLanguage: "Hindi",
	})

	assert.ErrorIs(t, err, ErrNoSpeech)
}

func TestComposeRemoteErrorPassesThrough(t *testing.T) {
	t.Parallel()

	remote := errors.New("provider exploded")
	mock := &scriptedAI{err: remote}

	_, err := newComposer(mock).Compose(context.Background(), Request{
		Mode:  ModeVoiceChange,
		Audio: upload([]byte("fake-audio"), "audio/wav"),
	})

	assert.Equal(t, remote, err, "сообщение модели не должно обрастать обёртками")
}

func TestComposeDataURLPayload(t *testing.T) {
	t.Parallel()

	mock := &scriptedAI{text: "распознано"}
	payload := "data:audio/mpeg;base64," + base64.StdEncoding.EncodeToString([]byte("fake-audio"))

	_, err := newComposer(mock).Compose(context.Background(), Request{
		Mode:  ModeVoiceChange,
		Audio: &Upload{Name: "clip.mp3", Base64: payload},
	})

	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", mock.clip.MIMEType, "MIME берётся из data-URL")
	assert.Equal(t, []byte("fake-audio"), mock.clip.Data)
}

func TestComposeMalformedBase64(t *testing.T) {
	t.Parallel()

	_, err := newComposer(&scriptedAI{}).Compose(context.Background(), Request{
		Mode:  ModeVoiceChange,
		Audio: &Upload{Name: "clip.mp3", Base64: "это не base64!!!"},
	})

	assert.ErrorIs(t, err, ErrInvalidAudio)
}

func TestComposeOversizedUpload(t *testing.T) {
	t.Parallel()

	_, err := newComposer(&scriptedAI{}).Compose(context.Background(), Request{
		Mode:  ModeVoiceChange,
		Audio: upload(make([]byte, maxUploadBytes+1), "audio/wav"),
	})

	assert.ErrorIs(t, err, ErrAudioTooLarge)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"tts", "voice-change", "dubbing"} {
		mode, err := ParseMode(raw)
		require.NoError(t, err)
		assert.EqualValues(t, raw, mode)
	}

	_, err := ParseMode("karaoke")
	assert.Error(t, err)
}
