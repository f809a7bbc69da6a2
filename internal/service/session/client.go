package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// cookieName кука с токеном сессии, контракт сервиса счетов.
const cookieName = "vl_session"

// ErrUnauthenticated сессии нет либо сервис счетов недоступен. Конвейер
// не различает эти случаи.
var ErrUnauthenticated = errors.New("unauthenticated")

// Account зеркало ответа сервиса счетов.
type Account struct {
	Email     string `json:"email"`
	Credits   int64  `json:"credits"`
	IsPremium bool   `json:"isPremium"`
}

// Client HTTP-клиент сервиса счетов. Во встроенном режиме ходит на сам
// основной сервер, в раздельном — на внешний адрес.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.SugaredLogger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// FetchSession возвращает счёт по токену сессии. Любой сбой (сеть, не-200,
// битый JSON) приводит к ErrUnauthenticated, детали остаются в логе.
func (c *Client) FetchSession(ctx context.Context, token string) (Account, error) {
	if token == "" {
		return Account{}, ErrUnauthenticated
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/api/user", token, nil)
	if err != nil {
		return Account{}, ErrUnauthenticated
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warnw("Session lookup failed", "error", err)
		return Account{}, ErrUnauthenticated
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Account{}, ErrUnauthenticated
	}

	var acc Account
	if err := json.NewDecoder(resp.Body).Decode(&acc); err != nil {
		c.logger.Warnw("Session response is malformed", "error", err)
		return Account{}, ErrUnauthenticated
	}

	return acc, nil
}

// LoginURL запрашивает у сервиса счетов ссылку на вход.
func (c *Client) LoginURL(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/auth/url", "", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("session: login url request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("session: login url status %d: %s", resp.StatusCode, readError(resp.Body))
	}

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("session: login url decode: %w", err)
	}

	return body.URL, nil
}

// Logout закрывает сессию на сервисе счетов. Ошибку вызывающие только логируют.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/logout", token, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("session: logout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("session: logout status %d: %s", resp.StatusCode, readError(resp.Body))
	}

	return nil
}

// Deduct списывает amount кредитов. Вызывается не более одного раза на
// успешный синтез.
func (c *Client) Deduct(ctx context.Context, token string, amount int64) (Account, error) {
	payload, err := json.Marshal(map[string]int64{"amount": amount})
	if err != nil {
		return Account{}, fmt.Errorf("session: marshal deduct: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/user/deduct", token, payload)
	if err != nil {
		return Account{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Account{}, fmt.Errorf("session: deduct request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return Account{}, ErrUnauthenticated
	}
	if resp.StatusCode != http.StatusOK {
		return Account{}, fmt.Errorf("session: deduct status %d: %s", resp.StatusCode, readError(resp.Body))
	}

	var acc Account
	if err := json.NewDecoder(resp.Body).Decode(&acc); err != nil {
		return Account{}, fmt.Errorf("session: deduct decode: %w", err)
	}

	return acc, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("session: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	}

	return req, nil
}

func readError(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 2048))

	return strings.TrimSpace(string(body))
}
