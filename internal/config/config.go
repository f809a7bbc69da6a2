package config

import (
	"flag"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	DebugMode  bool   `env:"DEBUG_MODE"`  // Режим дебага: dev-логгер; при пустом API-ключе включается заглушка провайдера
	ListenAddr string `env:"LISTEN_ADDR"` // Адрес HTTP-сервера, напр. 127.0.0.1:8080
	StaticDir  string `env:"STATIC_DIR"`  // Папка с собранным клиентским бандлом

	// AccountServiceURL — базовый URL сервиса сессий/кредитов.
	// Пусто — сервис монтируется внутрь процесса, клиент ходит на собственный адрес.
	AccountServiceURL string `env:"ACCOUNT_SERVICE_URL"`

	PreviewText string `env:"PREVIEW_TEXT"` // Фраза для прослушивания голоса из каталога

	// SpeechProvider выбирает реализацию синтеза: gemini | cloud-tts | stub.
	// cloud-tts работает через ADC и озвучивает только текст — режимы с
	// загрузкой аудио на нём недоступны.
	SpeechProvider string `env:"SPEECH_PROVIDER"`

	// Таймауты внешних вызовов. Отмена пользователем реализована поверх счётчика
	// поколений и к этим таймаутам отношения не имеет.
	SynthesisTimeout time.Duration `env:"SYNTHESIS_TIMEOUT"` // Таймаут одного вызова синтеза
	ComposeTimeout   time.Duration `env:"COMPOSE_TIMEOUT"`   // Таймаут транскрипции/перевода
	AccountTimeout   time.Duration `env:"ACCOUNT_TIMEOUT"`   // Таймаут вызовов сервиса кредитов

	// Уборка простаивающих студий из реестра.
	SweepInterval time.Duration `env:"SWEEP_INTERVAL"` // Период прохода уборщика
	StudioTTL     time.Duration `env:"STUDIO_TTL"`     // Срок простоя до вытеснения студии

	Gemini  GeminiConfig
	Account AccountConfig
}

// GeminiConfig параметры провайдера генеративной речи.
type GeminiConfig struct {
	APIKey      string `env:"GEMINI_API_KEY"`      // Ключ API; пусто в DebugMode — работает заглушка
	SpeechModel string `env:"GEMINI_SPEECH_MODEL"` // Модель синтеза речи
	TextModel   string `env:"GEMINI_TEXT_MODEL"`   // Модель транскрипции/перевода
}

// AccountConfig параметры леджера сессий/кредитов.
type AccountConfig struct {
	DefaultCredits int64    `env:"DEFAULT_CREDITS"`                 // Стартовый баланс новой учётки
	PremiumEmails  []string `env:"PREMIUM_EMAILS" envSeparator:";"` // Белый список адресов с безлимитом
	OAuthClientID  string   `env:"GOOGLE_OAUTH_CLIENT_ID"`          // OAuth-клиент для входа через Google
	OAuthSecret    string   `env:"GOOGLE_OAUTH_CLIENT_SECRET"`      //
	OAuthRedirect  string   `env:"GOOGLE_OAUTH_REDIRECT_URL"`       // Напр. http://127.0.0.1:8080/api/auth/callback
}

// Defaults возвращает конфигурацию с предустановленными значениями по умолчанию.
// Эти значения перекрываются .env, переменными окружения и флагами CLI.
func Defaults() *Config {
	return &Config{
		DebugMode:  false,
		ListenAddr: "127.0.0.1:8080",
		StaticDir:  "web/dist",

		AccountServiceURL: "", // по умолчанию — встроенный сервис кредитов

		PreviewText: "Hello! Here is how this voice sounds.",

		SpeechProvider: "gemini",

		SynthesisTimeout: 120 * time.Second,
		ComposeTimeout:   60 * time.Second,
		AccountTimeout:   10 * time.Second,

		SweepInterval: 10 * time.Minute,
		StudioTTL:     24 * time.Hour,

		Gemini: GeminiConfig{
			APIKey:      "", // ключ берём из .env/ENV; пусто + DebugMode = заглушка
			SpeechModel: "gemini-2.5-flash-preview-tts",
			TextModel:   "gemini-2.5-flash",
		},
		Account: AccountConfig{
			DefaultCredits: 20000,
			PremiumEmails:  nil,
		},
	}
}

// NewConfig загружает конфигурацию приложения.
func NewConfig() *Config {
	_ = godotenv.Load()

	// Стартуем с дефолтов, затем перекрываем .env/окружением и флагами
	cfg := Defaults()
	_ = env.Parse(cfg)

	flag.BoolVar(&cfg.DebugMode, "debug-mode", cfg.DebugMode, "включить режим дебага (dev-логгер, заглушка провайдера без ключа)")
	flag.StringVar(&cfg.ListenAddr, "listen-addr", cfg.ListenAddr, "адрес HTTP-сервера, напр. 127.0.0.1:8080")
	flag.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "папка с собранным клиентским бандлом")
	flag.StringVar(&cfg.AccountServiceURL, "account-service-url", cfg.AccountServiceURL, "базовый URL сервиса кредитов; пусто = встроенный")
	flag.StringVar(&cfg.PreviewText, "preview-text", cfg.PreviewText, "фраза для прослушивания голоса")
	flag.StringVar(&cfg.SpeechProvider, "speech-provider", cfg.SpeechProvider, "реализация синтеза: gemini | cloud-tts | stub")
	flag.DurationVar(&cfg.SynthesisTimeout, "synthesis-timeout", cfg.SynthesisTimeout, "таймаут одного вызова синтеза, напр. 120s")
	flag.DurationVar(&cfg.ComposeTimeout, "compose-timeout", cfg.ComposeTimeout, "таймаут транскрипции/перевода, напр. 60s")
	flag.DurationVar(&cfg.AccountTimeout, "account-timeout", cfg.AccountTimeout, "таймаут вызовов сервиса кредитов")
	flag.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "период уборки простаивающих студий")
	flag.DurationVar(&cfg.StudioTTL, "studio-ttl", cfg.StudioTTL, "срок простоя до вытеснения студии")
	// Провайдер
	flag.StringVar(&cfg.Gemini.APIKey, "gemini-api-key", cfg.Gemini.APIKey, "API ключ Gemini (перекрывает ENV)")
	flag.StringVar(&cfg.Gemini.SpeechModel, "gemini-speech-model", cfg.Gemini.SpeechModel, "модель синтеза речи")
	flag.StringVar(&cfg.Gemini.TextModel, "gemini-text-model", cfg.Gemini.TextModel, "модель транскрипции/перевода")
	// Леджер
	flag.Int64Var(&cfg.Account.DefaultCredits, "default-credits", cfg.Account.DefaultCredits, "стартовый баланс новой учётки")
	// Принимаем список адресов одной строкой, разделённой ';'
	var premiumFlag string
	premiumFlag = strings.Join(cfg.Account.PremiumEmails, ";")
	flag.StringVar(&premiumFlag, "premium-emails", premiumFlag, "адреса с безлимитным балансом, разделённые ';'")
	flag.StringVar(&cfg.Account.OAuthClientID, "oauth-client-id", cfg.Account.OAuthClientID, "OAuth client id для входа через Google")
	flag.StringVar(&cfg.Account.OAuthSecret, "oauth-client-secret", cfg.Account.OAuthSecret, "OAuth client secret")
	flag.StringVar(&cfg.Account.OAuthRedirect, "oauth-redirect-url", cfg.Account.OAuthRedirect, "OAuth redirect URL (путь /api/auth/callback)")
	flag.Parse()

	// Разбор списков по общему правилу (trim + убрать пустые)
	cfg.Account.PremiumEmails = parseListFlag(premiumFlag, nil)

	return cfg
}

// parseListFlag разбирает значение флага со списком, разделённым ';'
func parseListFlag(v string, def []string) []string {
	// Пустая строка → дефолт
	if v == "" {
		return def
	}
	parts := strings.Split(v, ";")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return def
	}
	return cleaned
}
