package studio

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"VoiceLab/internal/ai"
	"VoiceLab/internal/config"
	"VoiceLab/internal/service/artifact"
	"VoiceLab/internal/service/compose"
	"VoiceLab/internal/service/history"
	"VoiceLab/internal/service/push"
	"VoiceLab/internal/service/session"
	"VoiceLab/internal/voices"
	"VoiceLab/internal/wav"
)

// Phase фазы конвейера генерации. Терминальные исходы возвращают Idle.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseComposing   Phase = "composing"
	PhaseAuthorizing Phase = "authorizing"
	PhaseInFlight    Phase = "in-flight"
)

var (
	// ErrSuperseded запрос перекрыт более новым (или отменён). Не ошибка
	// для пользователя, наружу уходит как статус cancelled.
	ErrSuperseded = errors.New("request superseded")
	// ErrInsufficientCredit на счету меньше кредитов, чем стоит текст.
	ErrInsufficientCredit = errors.New("insufficient credits")
	ErrUnknownVoice       = errors.New("unknown voice")
	ErrBadSpeed           = errors.New("speed must be between 0.5 and 2.0")
)

// Accounts операции сервиса счетов, которые нужны студии.
type Accounts interface {
	FetchSession(ctx context.Context, token string) (session.Account, error)
	Deduct(ctx context.Context, token string, amount int64) (session.Account, error)
}

var _ Accounts = (*session.Client)(nil)

// Notifier доставляет события клиенту студии.
type Notifier interface {
	Notify(session string, event push.Event)
}

var _ Notifier = (*push.Hub)(nil)

// GenerateRequest вход одной генерации.
type GenerateRequest struct {
	Mode           compose.Mode
	Text           string
	Audio          *compose.Upload
	TargetLanguage string
	VoiceID        string
}

// Result успешный исход генерации.
type Result struct {
	Entry   history.Entry
	Account session.Account
}

// PlayerSlot текущий источник плеера.
type PlayerSlot struct {
	ArtifactID string
	Speed      float64
	Autoplay   bool
}

// Studio конвейер синтеза одной студийной сессии. Одновременно активен не
// более чем один запрос: новый перекрывает предыдущий по счётчику
// поколений, сетевой вызов перекрытого не прерывается, его результат
// просто отбрасывается на финише.
type Studio struct {
	sid      string
	ai       ai.Client
	composer *compose.Composer
	accounts Accounts
	notify   Notifier
	logger   *zap.SugaredLogger

	artifacts *artifact.Store
	history   *history.Store

	synthesisTimeout time.Duration
	composeTimeout   time.Duration
	accountTimeout   time.Duration

	mu      sync.Mutex
	gen     int64 // счётчик поколений запросов
	phase   Phase
	mode    compose.Mode
	account *session.Account
	player  PlayerSlot
}

func New(sid string, cfg *config.Config, client ai.Client, accounts Accounts, notify Notifier, logger *zap.SugaredLogger) *Studio {
	s := &Studio{
		sid:              sid,
		ai:               client,
		composer:         compose.NewComposer(client, logger),
		accounts:         accounts,
		notify:           notify,
		logger:           logger,
		artifacts:        artifact.NewStore(),
		synthesisTimeout: cfg.SynthesisTimeout,
		composeTimeout:   cfg.ComposeTimeout,
		accountTimeout:   cfg.AccountTimeout,
		phase:            PhaseIdle,
		mode:             compose.ModeTextToSpeech,
		player:           PlayerSlot{Speed: 1.0},
	}
	s.history = history.NewStore(s.artifacts.Release)

	return s
}

// Generate проводит запрос по конвейеру Idle → Composing → Authorizing →
// InFlight → терминал. Результат применяется только если поколение не
// сменилось; перекрытый запрос завершается ErrSuperseded без следов в
// истории, кредитах и плеере.
func (s *Studio) Generate(ctx context.Context, accountToken string, req GenerateRequest) (Result, error) {
	profile, err := resolveVoice(req.VoiceID)
	if err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	s.gen++
	localGen := s.gen
	s.mode = req.Mode
	if req.Mode.RequiresAudio() {
		s.phase = PhaseComposing
	} else {
		s.phase = PhaseAuthorizing
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.gen == localGen {
			s.phase = PhaseIdle
		}
		s.mu.Unlock()
	}()

	start := time.Now()
	s.logger.Infow("Generation start", "mode", req.Mode, "voice", profile.ID, "gen", localGen)

	// Composing: для режимов с аудио — отдельный вызов модели.
	composeCtx, cancelCompose := context.WithTimeoutCause(ctx, s.composeTimeout, errors.New("compose timeout"))
	text, err := s.composer.Compose(composeCtx, compose.Request{
		Mode:           req.Mode,
		Text:           req.Text,
		Audio:          req.Audio,
		TargetLanguage: req.TargetLanguage,
	})
	cancelCompose()
	if err != nil {
		return Result{}, s.settleError(localGen, err)
	}
	if s.superseded(localGen) {
		return Result{}, ErrSuperseded
	}

	// Authorizing: личность, потолок, баланс.
	s.setPhase(localGen, PhaseAuthorizing)

	acc, err := s.currentAccount(ctx, accountToken)
	if err != nil {
		return Result{}, s.settleError(localGen, err)
	}

	cost := int64(utf8.RuneCountInString(text))
	if cost > compose.MaxTextRunes {
		return Result{}, s.settleError(localGen, compose.ErrTextTooLong)
	}
	if !acc.IsPremium && acc.Credits < cost {
		return Result{}, s.settleError(localGen, ErrInsufficientCredit)
	}
	if s.superseded(localGen) {
		return Result{}, ErrSuperseded
	}

	// InFlight: ровно один вызов синтеза с чистым текстом, без инструкций
	// и метаданных режима. Отмена вызов не прерывает, предохранительный
	// тайм-аут ниже считается ошибкой провайдера, не отменой.
	s.setPhase(localGen, PhaseInFlight)

	callCtx, cancel := context.WithTimeoutCause(ctx, s.synthesisTimeout, errors.New("synthesis timeout"))
	defer cancel()

	pcm, err := s.ai.Synthesize(callCtx, text, profile.Name)
	if err != nil {
		return Result{}, s.settleError(localGen, err)
	}

	encoded, err := wav.Encode(pcm, wav.DefaultSampleRate)
	if err != nil {
		return Result{}, s.settleError(localGen, err)
	}

	// Финиш: результат применяется целиком под локом, чтобы отмена не
	// успела вклиниться между проверкой поколения и записью.
	s.mu.Lock()
	if s.gen != localGen {
		s.mu.Unlock()
		s.logger.Infow("Superseded result discarded", "gen", localGen)
		return Result{}, ErrSuperseded
	}

	if !acc.IsPremium {
		go s.settleDeduction(accountToken, cost)
	}

	id := s.artifacts.Put(encoded)
	entry := s.history.Append(text, profile.ID, profile.Name, id)

	s.artifacts.Retain(id)
	if s.player.ArtifactID != "" {
		s.artifacts.Release(s.player.ArtifactID)
	}
	s.player.ArtifactID = id
	s.player.Autoplay = true

	current := acc
	if s.account != nil {
		current = *s.account
	}
	s.mu.Unlock()

	s.logger.Infow("Generation done",
		"mode", req.Mode,
		"voice", profile.ID,
		"runes", cost,
		"duration", time.Since(start).String(),
	)

	return Result{Entry: entry, Account: current}, nil
}

// Cancel отбрасывает активный запрос. Без активного запроса — no-op.
func (s *Studio) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseIdle {
		return false
	}
	s.gen++
	s.phase = PhaseIdle

	return true
}

// SetMode переключает режим. Активный запрос при этом перекрывается, его
// результат будет отброшен.
func (s *Studio) SetMode(mode compose.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = mode
	if s.phase != PhaseIdle {
		s.gen++
		s.phase = PhaseIdle
	}
}

func (s *Studio) Mode() compose.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mode
}

func (s *Studio) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.phase
}

// Account возвращает кэшированный счёт, если он есть.
func (s *Studio) Account() (session.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.account == nil {
		return session.Account{}, false
	}

	return *s.account, true
}

// ResetAccount сбрасывает кэш счёта и снимает результат с плеера.
// Вызывается при входе под другой личностью и при выходе.
func (s *Studio) ResetAccount() {
	s.mu.Lock()
	s.account = nil
	released := s.player.ArtifactID
	s.player.ArtifactID = ""
	s.player.Autoplay = false
	s.mu.Unlock()

	if released != "" {
		s.artifacts.Release(released)
	}
}

// Player возвращает текущее состояние плеера.
func (s *Studio) Player() PlayerSlot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.player
}

// SetSpeed задаёт множитель скорости воспроизведения.
func (s *Studio) SetSpeed(speed float64) error {
	if speed < 0.5 || speed > 2.0 {
		return ErrBadSpeed
	}

	s.mu.Lock()
	s.player.Speed = speed
	s.mu.Unlock()

	return nil
}

// History снимок истории, новые записи впереди.
func (s *Studio) History() []history.Entry {
	return s.history.Entries()
}

// ClearHistory опустошает историю. Аудио текущего плеера переживает
// очистку, пока его не заменит следующий результат.
func (s *Studio) ClearHistory() {
	s.history.Clear()
}

// Artifact отдаёт байты контейнера по идентификатору.
func (s *Studio) Artifact(id string) ([]byte, bool) {
	return s.artifacts.Get(id)
}

// drop освобождает ресурсы студии при вытеснении из реестра.
func (s *Studio) drop() {
	s.ClearHistory()
	s.ResetAccount()

	s.mu.Lock()
	s.gen++ // поздним результатам уже некуда применяться
	s.mu.Unlock()
}

// settleError превращает ошибку перекрытого запроса в ErrSuperseded: после
// отмены наружу не должно уходить ни ошибок, ни результатов.
func (s *Studio) settleError(localGen int64, err error) error {
	if s.superseded(localGen) {
		s.logger.Infow("Superseded request settled with error, discarding", "error", err, "gen", localGen)
		return ErrSuperseded
	}

	return err
}

func (s *Studio) settleDeduction(accountToken string, amount int64) {
	ctx, cancel := context.WithTimeoutCause(context.Background(), s.accountTimeout, errors.New("deduct timeout"))
	defer cancel()

	acc, err := s.accounts.Deduct(ctx, accountToken, amount)
	if err != nil {
		s.logger.Warnw("Deduction failed", "error", err, "amount", amount)
		return
	}

	s.mu.Lock()
	s.account = &acc
	s.mu.Unlock()

	s.notify.Notify(s.sid, push.Event{Type: "account", Account: acc})
}

// currentAccount отдаёт кэш счёта, при его отсутствии спрашивает сервис.
func (s *Studio) currentAccount(ctx context.Context, token string) (session.Account, error) {
	s.mu.Lock()
	cached := s.account
	s.mu.Unlock()

	if cached != nil {
		return *cached, nil
	}

	fetchCtx, cancel := context.WithTimeoutCause(ctx, s.accountTimeout, errors.New("session fetch timeout"))
	defer cancel()

	acc, err := s.accounts.FetchSession(fetchCtx, token)
	if err != nil {
		return session.Account{}, err
	}

	s.mu.Lock()
	s.account = &acc
	s.mu.Unlock()

	return acc, nil
}

func (s *Studio) superseded(localGen int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.gen != localGen
}

func (s *Studio) setPhase(localGen int64, phase Phase) {
	s.mu.Lock()
	if s.gen == localGen {
		s.phase = phase
	}
	s.mu.Unlock()
}

func resolveVoice(id string) (voices.Profile, error) {
	if id == "" {
		return voices.Default(), nil
	}

	profile, ok := voices.ByID(id)
	if !ok {
		return voices.Profile{}, ErrUnknownVoice
	}

	return profile, nil
}
