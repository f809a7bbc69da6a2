package studio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"VoiceLab/internal/ai"
	"VoiceLab/internal/config"
	"VoiceLab/internal/service/compose"
	"VoiceLab/internal/service/push"
	"VoiceLab/internal/service/session"
)

// studioAI управляемый провайдер: фиксированные ответы, опциональная
// задержка синтеза до закрытия gate.
type studioAI struct {
	mu         sync.Mutex
	pcm        []byte
	synthErr   error
	textOut    string
	textErr    error
	gate       chan struct{}
	synthTexts []string
}

func (a *studioAI) Synthesize(ctx context.Context, text string, _ string) ([]byte, error) {
	a.mu.Lock()
	a.synthTexts = append(a.synthTexts, text)
	gate := a.gate
	a.gate = nil // ждёт только первый вызов
	pcm, err := a.pcm, a.synthErr
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return pcm, err
}

func (a *studioAI) GenerateText(context.Context, string, ai.Clip) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.textOut, a.textErr
}

func (a *studioAI) texts() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(a.synthTexts))
	copy(out, a.synthTexts)

	return out
}

type fakeAccounts struct {
	mu        sync.Mutex
	acc       session.Account
	fetchErr  error
	deductErr error
	deducts   []int64
}

func (f *fakeAccounts) FetchSession(context.Context, string) (session.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fetchErr != nil {
		return session.Account{}, f.fetchErr
	}

	return f.acc, nil
}

func (f *fakeAccounts) Deduct(_ context.Context, _ string, amount int64) (session.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deductErr != nil {
		return session.Account{}, f.deductErr
	}

	f.deducts = append(f.deducts, amount)
	f.acc.Credits -= amount
	if f.acc.Credits < 0 {
		f.acc.Credits = 0
	}

	return f.acc, nil
}

func (f *fakeAccounts) deductCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.deducts)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []push.Event
}

func (f *fakeNotifier) Notify(_ string, e push.Event) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.events)
}

func newStudio(provider ai.Client, accounts Accounts, notify Notifier) *Studio {
	return New("sid-1", config.Defaults(), provider, accounts, notify, zap.NewNop().Sugar())
}

func ttsRequest(text string) GenerateRequest {
	return GenerateRequest{Mode: compose.ModeTextToSpeech, Text: text, VoiceID: "kore"}
}

func TestGenerateTextToSpeech(t *testing.T) {
	t.Parallel()

	provider := &studioAI{pcm: []byte("pcm-data")}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 20000}}
	notify := &fakeNotifier{}
	st := newStudio(provider, accounts, notify)

	res, err := st.Generate(context.Background(), "tok", ttsRequest("Hello world"))

	require.NoError(t, err)
	assert.Equal(t, "Hello world", res.Entry.Text)
	assert.Equal(t, "Kore", res.Entry.VoiceName)

	entries := st.History()
	require.Len(t, entries, 1)
	assert.Equal(t, res.Entry.ID, entries[0].ID)

	data, ok := st.Artifact(res.Entry.ArtifactID)
	require.True(t, ok)
	assert.Len(t, data, len("pcm-data")+44, "контейнер = заголовок + сэмплы")

	player := st.Player()
	assert.Equal(t, res.Entry.ArtifactID, player.ArtifactID)
	assert.True(t, player.Autoplay)
	assert.Equal(t, 1.0, player.Speed)

	// Стоимость "Hello world" — 11 кредитов, списывается ровно один раз.
	require.Eventually(t, func() bool { return accounts.deductCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{11}, accounts.deducts)

	require.Eventually(t, func() bool { return notify.count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "account", notify.events[0].Type)

	assert.Equal(t, PhaseIdle, st.Phase())
}

func TestGeneratePremiumSkipsDeduction(t *testing.T) {
	t.Parallel()

	provider := &studioAI{pcm: []byte("pcm-data")}
	accounts := &fakeAccounts{acc: session.Account{Email: "vip@example.com", Credits: -1, IsPremium: true}}
	st := newStudio(provider, accounts, &fakeNotifier{})

	_, err := st.Generate(context.Background(), "tok", ttsRequest("Hello world"))

	require.NoError(t, err)
	assert.Never(t, func() bool { return accounts.deductCount() > 0 }, 300*time.Millisecond, 50*time.Millisecond)
}

func TestGenerateInsufficientCredit(t *testing.T) {
	t.Parallel()

	provider := &studioAI{pcm: []byte("pcm-data")}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 5}}
	st := newStudio(provider, accounts, &fakeNotifier{})

	_, err := st.Generate(context.Background(), "tok", ttsRequest("Hello world"))

	assert.ErrorIs(t, err, ErrInsufficientCredit)
	assert.Empty(t, st.History())
	assert.Empty(t, provider.texts(), "синтез не должен вызываться")
	assert.Equal(t, PhaseIdle, st.Phase())
}

func TestGenerateUnauthenticated(t *testing.T) {
	t.Parallel()

	provider := &studioAI{pcm: []byte("pcm-data")}
	accounts := &fakeAccounts{fetchErr: session.ErrUnauthenticated}
	st := newStudio(provider, accounts, &fakeNotifier{})

	_, err := st.Generate(context.Background(), "tok", ttsRequest("Hello world"))

	assert.ErrorIs(t, err, session.ErrUnauthenticated)
	assert.Empty(t, st.History())
	assert.Zero(t, accounts.deductCount())
}

func TestGenerateUnknownVoice(t *testing.T) {
	t.Parallel()

	st := newStudio(&studioAI{}, &fakeAccounts{}, &fakeNotifier{})

	_, err := st.Generate(context.Background(), "tok", GenerateRequest{
		Mode:    compose.ModeTextToSpeech,
		Text:    "Hello",
		VoiceID: "несуществующий",
	})

	assert.ErrorIs(t, err, ErrUnknownVoice)
}

func TestCancelDiscardsInFlightResult(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	provider := &studioAI{pcm: []byte("pcm-data"), gate: gate}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 20000}}
	st := newStudio(provider, accounts, &fakeNotifier{})

	done := make(chan error, 1)
	go func() {
		_, err := st.Generate(context.Background(), "tok", ttsRequest("Hello world"))
		done <- err
	}()

	require.Eventually(t, func() bool { return st.Phase() == PhaseInFlight }, time.Second, 5*time.Millisecond)
	require.True(t, st.Cancel())

	close(gate) // сетевой вызов доживает до успешного ответа

	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Empty(t, st.History(), "после отмены история не растёт")
	assert.Empty(t, st.Player().ArtifactID)
	assert.Never(t, func() bool { return accounts.deductCount() > 0 }, 300*time.Millisecond, 50*time.Millisecond)
}

func TestCancelWhenIdleIsNoop(t *testing.T) {
	t.Parallel()

	st := newStudio(&studioAI{}, &fakeAccounts{}, &fakeNotifier{})

	assert.False(t, st.Cancel())
	assert.Equal(t, PhaseIdle, st.Phase())
}

func TestNewRequestSupersedesPrevious(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	provider := &studioAI{pcm: []byte("pcm-data"), gate: gate}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 20000}}
	st := newStudio(provider, accounts, &fakeNotifier{})

	first := make(chan error, 1)
	go func() {
		_, err := st.Generate(context.Background(), "tok", ttsRequest("первый текст"))
		first <- err
	}()

	require.Eventually(t, func() bool { return st.Phase() == PhaseInFlight }, time.Second, 5*time.Millisecond)

	res, err := st.Generate(context.Background(), "tok", ttsRequest("второй текст"))
	require.NoError(t, err)
	assert.Equal(t, "второй текст", res.Entry.Text)

	close(gate)
	assert.ErrorIs(t, <-first, ErrSuperseded)

	entries := st.History()
	require.Len(t, entries, 1, "перекрытый запрос не оставляет записей")
	assert.Equal(t, "второй текст", entries[0].Text)

	require.Eventually(t, func() bool { return accounts.deductCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{int64(len([]rune("второй текст")))}, accounts.deducts)
}

func TestSetModeSupersedesActiveRequest(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	provider := &studioAI{pcm: []byte("pcm-data"), gate: gate}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 20000}}
	st := newStudio(provider, accounts, &fakeNotifier{})

	done := make(chan error, 1)
	go func() {
		_, err := st.Generate(context.Background(), "tok", ttsRequest("Hello world"))
		done <- err
	}()

	require.Eventually(t, func() bool { return st.Phase() == PhaseInFlight }, time.Second, 5*time.Millisecond)
	st.SetMode(compose.ModeDubbing)

	close(gate)

	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, compose.ModeDubbing, st.Mode())
	assert.Empty(t, st.History())
}

func TestGenerateQuotaError(t *testing.T) {
	t.Parallel()

	provider := &studioAI{synthErr: ai.ErrQuota}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 20000}}
	st := newStudio(provider, accounts, &fakeNotifier{})

	_, err := st.Generate(context.Background(), "tok", ttsRequest("Hello world"))

	assert.ErrorIs(t, err, ai.ErrQuota)
	assert.Empty(t, st.History())
	assert.Zero(t, accounts.deductCount())
	assert.Equal(t, PhaseIdle, st.Phase())
}

func TestGenerateEmptyAudioError(t *testing.T) {
	t.Parallel()

	provider := &studioAI{synthErr: ai.ErrEmptyAudio}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 20000}}
	st := newStudio(provider, accounts, &fakeNotifier{})

	_, err := st.Generate(context.Background(), "tok", ttsRequest("Hello world"))

	assert.ErrorIs(t, err, ai.ErrEmptyAudio)
}

func TestVoiceChangeSendsPlainTextToSynthesis(t *testing.T) {
	t.Parallel()

	provider := &studioAI{pcm: []byte("pcm-data"), textOut: "расшифрованная речь"}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 20000}}
	st := newStudio(provider, accounts, &fakeNotifier{})

	res, err := st.Generate(context.Background(), "tok", GenerateRequest{
		Mode:    compose.ModeVoiceChange,
		Audio:   &compose.Upload{Name: "clip.mp3", MIMEType: "audio/mpeg", Base64: "ZmFrZS1hdWRpbw=="},
		VoiceID: "puck",
	})

	require.NoError(t, err)
	assert.Equal(t, "расшифрованная речь", res.Entry.Text)

	texts := provider.texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "расшифрованная речь", texts[0])
	assert.NotContains(t, texts[0], "Transcribe", "инструкции не должны попадать в синтез")
}

func TestGenerateTruncatesHistoryText(t *testing.T) {
	t.Parallel()

	provider := &studioAI{pcm: []byte("pcm-data")}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 20000}}
	st := newStudio(provider, accounts, &fakeNotifier{})

	long := strings.Repeat("а", 100)
	res, err := st.Generate(context.Background(), "tok", ttsRequest(long))

	require.NoError(t, err)
	assert.Len(t, []rune(res.Entry.Text), 83)
	assert.True(t, strings.HasSuffix(res.Entry.Text, "..."))

	// Списывается длина полного текста, а не обрезанного.
	require.Eventually(t, func() bool { return accounts.deductCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{100}, accounts.deducts)
}

func TestClearHistoryKeepsPlayerArtifact(t *testing.T) {
	t.Parallel()

	provider := &studioAI{pcm: []byte("pcm-data")}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 20000}}
	st := newStudio(provider, accounts, &fakeNotifier{})

	res, err := st.Generate(context.Background(), "tok", ttsRequest("Hello world"))
	require.NoError(t, err)

	st.ClearHistory()

	assert.Empty(t, st.History())
	_, ok := st.Artifact(res.Entry.ArtifactID)
	assert.True(t, ok, "плеер ещё держит аудио")

	// Следующий успех замещает источник плеера, старое аудио освобождается.
	res2, err := st.Generate(context.Background(), "tok", ttsRequest("далее"))
	require.NoError(t, err)

	_, ok = st.Artifact(res.Entry.ArtifactID)
	assert.False(t, ok)
	_, ok = st.Artifact(res2.Entry.ArtifactID)
	assert.True(t, ok)
}

func TestSetSpeedValidation(t *testing.T) {
	t.Parallel()

	st := newStudio(&studioAI{}, &fakeAccounts{}, &fakeNotifier{})

	assert.ErrorIs(t, st.SetSpeed(0.4), ErrBadSpeed)
	assert.ErrorIs(t, st.SetSpeed(2.5), ErrBadSpeed)

	require.NoError(t, st.SetSpeed(1.5))
	assert.Equal(t, 1.5, st.Player().Speed)
}

func TestResetAccountClearsCacheAndPlayer(t *testing.T) {
	t.Parallel()

	provider := &studioAI{pcm: []byte("pcm-data")}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 20000}}
	notify := &fakeNotifier{}
	st := newStudio(provider, accounts, notify)

	res, err := st.Generate(context.Background(), "tok", ttsRequest("Hello world"))
	require.NoError(t, err)

	// Дожидаемся фонового списания, чтобы оно не перезаписало сброс.
	require.Eventually(t, func() bool { return notify.count() == 1 }, time.Second, 10*time.Millisecond)

	st.ClearHistory()
	st.ResetAccount()

	_, ok := st.Account()
	assert.False(t, ok)
	assert.Empty(t, st.Player().ArtifactID)
	_, ok = st.Artifact(res.Entry.ArtifactID)
	assert.False(t, ok, "последняя ссылка снята, аудио освобождено")
}

func TestDeductFailureDoesNotAffectResult(t *testing.T) {
	t.Parallel()

	provider := &studioAI{pcm: []byte("pcm-data")}
	accounts := &fakeAccounts{
		acc:       session.Account{Email: "user@example.com", Credits: 20000},
		deductErr: errors.New("ledger down"),
	}
	notify := &fakeNotifier{}
	st := newStudio(provider, accounts, notify)

	_, err := st.Generate(context.Background(), "tok", ttsRequest("Hello world"))

	require.NoError(t, err)
	assert.Len(t, st.History(), 1)
	assert.Never(t, func() bool { return notify.count() > 0 }, 300*time.Millisecond, 50*time.Millisecond)
}

func TestRegistryReturnsSameStudio(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(config.Defaults(), &studioAI{}, &fakeAccounts{}, &fakeNotifier{}, zap.NewNop().Sugar())

	a := reg.Studio("sid-1")
	b := reg.Studio("sid-1")
	c := reg.Studio("sid-2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestSweepEvictsIdleStudio(t *testing.T) {
	t.Parallel()

	provider := &studioAI{pcm: []byte("pcm-data")}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 20000}}
	reg := NewRegistry(config.Defaults(), provider, accounts, &fakeNotifier{}, zap.NewNop().Sugar())

	st := reg.Studio("sid-1")
	res, err := st.Generate(context.Background(), "tok", ttsRequest("Hello world"))
	require.NoError(t, err)

	reg.mu.Lock()
	reg.touched["sid-1"] = time.Now().Add(-48 * time.Hour)
	reg.mu.Unlock()

	require.Equal(t, 1, reg.Sweep(24*time.Hour))
	assert.Equal(t, 0, reg.Len())

	_, ok := st.Artifact(res.Entry.ArtifactID)
	assert.False(t, ok, "аудио вытесненной студии освобождено")
}

func TestSweepKeepsFreshAndBusyStudios(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	provider := &studioAI{pcm: []byte("pcm-data"), gate: gate}
	accounts := &fakeAccounts{acc: session.Account{Email: "user@example.com", Credits: 20000}}
	reg := NewRegistry(config.Defaults(), provider, accounts, &fakeNotifier{}, zap.NewNop().Sugar())

	busy := reg.Studio("busy")
	reg.Studio("fresh")

	done := make(chan error, 1)
	go func() {
		_, err := busy.Generate(context.Background(), "tok", ttsRequest("Hello world"))
		done <- err
	}()
	require.Eventually(t, func() bool { return busy.Phase() == PhaseInFlight }, time.Second, 5*time.Millisecond)

	reg.mu.Lock()
	reg.touched["busy"] = time.Now().Add(-48 * time.Hour)
	reg.mu.Unlock()

	assert.Equal(t, 0, reg.Sweep(24*time.Hour), "занятая и свежая студии переживают уборку")
	assert.Equal(t, 2, reg.Len())

	close(gate)
	require.NoError(t, <-done)
}
