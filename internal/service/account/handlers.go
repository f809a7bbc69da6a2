package account

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"VoiceLab/internal/config"
)

const (
	defaultUserinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	stateTTL           = 10 * time.Minute
)

// loginPage закрывает всплывающее окно и будит открывшую его вкладку.
const loginPage = `<!DOCTYPE html>
<html><body><script>
if (window.opener) { window.opener.postMessage("voicelab:auth", "*"); }
window.close();
</script>Вход выполнен, окно можно закрыть.</body></html>`

// Hooks уведомления для встроенного режима: студия узнаёт о входе и выходе
// без опроса. Оба поля необязательны, получают исходный запрос.
type Hooks struct {
	OnLogin  func(r *http.Request)
	OnLogout func(r *http.Request)
}

// Handler HTTP-поверхность сервиса счетов. Монтируется внутрь основного
// сервера или поднимается отдельно через cmd/accountd.
type Handler struct {
	store       *Store
	oauth       *oauth2.Config
	userinfoURL string
	hooks       Hooks
	logger      *zap.SugaredLogger

	mu     sync.Mutex
	states map[string]time.Time
}

func NewHandler(cfg config.AccountConfig, logger *zap.SugaredLogger, hooks Hooks) *Handler {
	return &Handler{
		store: NewStore(cfg.DefaultCredits, cfg.PremiumEmails),
		oauth: &oauth2.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthSecret,
			RedirectURL:  cfg.OAuthRedirect,
			Scopes:       []string{"openid", "email"},
			Endpoint:     google.Endpoint,
		},
		userinfoURL: defaultUserinfoURL,
		hooks:       hooks,
		logger:      logger,
	}
}

// Register вешает маршруты сервиса на mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/user", h.handleUser)
	mux.HandleFunc("/api/user/deduct", h.handleDeduct)
	mux.HandleFunc("/api/auth/url", h.handleAuthURL)
	mux.HandleFunc("/api/auth/callback", h.handleCallback)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
}

func (h *Handler) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	acc, ok := h.sessionAccount(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}

	writeJSON(w, http.StatusOK, acc)
}

func (h *Handler) handleDeduct(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	defer r.Body.Close()

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Amount < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "amount must be non-negative"})
		return
	}

	c, err := r.Cookie(SessionCookie)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}

	acc, ok := h.store.Deduct(c.Value, req.Amount)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}

	h.logger.Infow("Credits deducted", "email", acc.Email, "amount", req.Amount, "left", acc.Credits)
	writeJSON(w, http.StatusOK, acc)
}

func (h *Handler) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	if h.oauth.ClientID == "" {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "oauth is not configured"})
		return
	}

	state := uuid.NewString()
	h.rememberState(state)

	writeJSON(w, http.StatusOK, map[string]string{"url": h.oauth.AuthCodeURL(state)})
}

func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	q := r.URL.Query()
	code := q.Get("code")
	if code == "" || !h.takeState(q.Get("state")) {
		http.Error(w, "invalid login attempt", http.StatusBadRequest)
		return
	}

	tok, err := h.oauth.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Errorw("OAuth exchange failed", "error", err)
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}

	email, err := h.fetchEmail(r.Context(), tok)
	if err != nil {
		h.logger.Errorw("Userinfo request failed", "error", err)
		http.Error(w, "login failed", http.StatusBadGateway)
		return
	}

	session, acc := h.store.Login(email)
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Infow("User logged in", "email", acc.Email, "premium", acc.IsPremium)

	if h.hooks.OnLogin != nil {
		h.hooks.OnLogin(r)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, loginPage)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if c, err := r.Cookie(SessionCookie); err == nil {
		h.store.Logout(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	if h.hooks.OnLogout != nil {
		h.hooks.OnLogout(r)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) sessionAccount(r *http.Request) (Account, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return Account{}, false
	}

	return h.store.BySession(c.Value)
}

func (h *Handler) fetchEmail(ctx context.Context, tok *oauth2.Token) (string, error) {
	resp, err := h.oauth.Client(ctx, tok).Get(h.userinfoURL)
	if err != nil {
		return "", fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("userinfo status %d: %s", resp.StatusCode, string(body))
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("userinfo decode: %w", err)
	}
	if info.Email == "" {
		return "", fmt.Errorf("userinfo without email")
	}

	return info.Email, nil
}

func (h *Handler) rememberState(state string) {
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.states == nil {
		h.states = make(map[string]time.Time)
	}
	for s, issued := range h.states {
		if now.Sub(issued) > stateTTL {
			delete(h.states, s)
		}
	}
	h.states[state] = now
}

func (h *Handler) takeState(state string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	issued, ok := h.states[state]
	if !ok {
		return false
	}
	delete(h.states, state)

	return time.Since(issued) <= stateTTL
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	http.Error(w, "method not allowed; use "+allow, http.StatusMethodNotAllowed)
}
