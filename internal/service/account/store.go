package account

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// PremiumCredits сентинель безлимитного баланса.
const PremiumCredits = -1

// SessionCookie имя куки с токеном сессии пользователя.
const SessionCookie = "vl_session"

// Account снимок счёта пользователя.
type Account struct {
	Email     string `json:"email"`
	Credits   int64  `json:"credits"`
	IsPremium bool   `json:"isPremium"`
}

// Store сессии и балансы в памяти. Сервис счетов — единственный источник
// истины по кредитам, клиенты лишь кэшируют его ответы.
type Store struct {
	mu             sync.Mutex
	sessions       map[string]string
	balances       map[string]*Account
	defaultCredits int64
	premium        map[string]struct{}
}

func NewStore(defaultCredits int64, premiumEmails []string) *Store {
	premium := make(map[string]struct{}, len(premiumEmails))
	for _, email := range premiumEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			premium[email] = struct{}{}
		}
	}

	return &Store{
		sessions:       make(map[string]string),
		balances:       make(map[string]*Account),
		defaultCredits: defaultCredits,
		premium:        premium,
	}
}

// Login открывает сессию для email. Незнакомый счёт заводится со стартовым
// балансом, адреса из премиум-списка получают безлимит.
func (s *Store) Login(email string) (string, Account) {
	email = strings.ToLower(strings.TrimSpace(email))
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.ensureLocked(email)
	s.sessions[token] = email

	return token, *acc
}

// Logout закрывает сессию. Счёт остаётся до перезапуска сервиса.
func (s *Store) Logout(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// BySession возвращает счёт по токену сессии.
func (s *Store) BySession(token string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.sessions[token]
	if !ok {
		return Account{}, false
	}

	return *s.ensureLocked(email), true
}

// Deduct списывает amount со счёта сессии. Премиум не тратится, обычный
// баланс не опускается ниже нуля.
func (s *Store) Deduct(token string, amount int64) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email, ok := s.sessions[token]
	if !ok {
		return Account{}, false
	}

	acc := s.ensureLocked(email)
	if !acc.IsPremium {
		acc.Credits -= amount
		if acc.Credits < 0 {
			acc.Credits = 0
		}
	}

	return *acc, true
}

func (s *Store) ensureLocked(email string) *Account {
	if acc, ok := s.balances[email]; ok {
		return acc
	}

	acc := &Account{Email: email, Credits: s.defaultCredits}
	if _, ok := s.premium[email]; ok {
		acc.Credits = PremiumCredits
		acc.IsPremium = true
	}
	s.balances[email] = acc

	return acc
}
