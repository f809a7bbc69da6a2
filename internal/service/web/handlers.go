package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"VoiceLab/internal/ai"
	"VoiceLab/internal/service/account"
	"VoiceLab/internal/service/compose"
	"VoiceLab/internal/service/history"
	"VoiceLab/internal/service/session"
	"VoiceLab/internal/service/studio"
	"VoiceLab/internal/voices"
	"VoiceLab/internal/wav"
)

// maxBodyBytes предел тела запроса: 50 МиБ аудио раздуваются base64 и
// JSON-конвертом примерно на треть.
const maxBodyBytes = 72 << 20

func newStudioID() string { return uuid.NewString() }

type speechRequest struct {
	Mode           string          `json:"mode"`
	Text           string          `json:"text"`
	VoiceID        string          `json:"voiceId"`
	TargetLanguage string          `json:"targetLanguage"`
	Audio          *compose.Upload `json:"audio"`
}

// entryPayload запись истории с готовой ссылкой на аудио.
type entryPayload struct {
	history.Entry
	AudioURL string `json:"audioUrl"`
}

func entryJSON(e history.Entry) entryPayload {
	return entryPayload{Entry: e, AudioURL: "/api/audio/" + e.ArtifactID}
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("request body is too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	mode, err := compose.ParseMode(req.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	st := s.registry.Studio(studioID(r))
	res, err := st.Generate(r.Context(), accountToken(r), studio.GenerateRequest{
		Mode:           mode,
		Text:           req.Text,
		Audio:          req.Audio,
		TargetLanguage: req.TargetLanguage,
		VoiceID:        req.VoiceID,
	})
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "succeeded",
		"entry":   entryJSON(res.Entry),
		"account": res.Account,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	// Отмена без активного запроса — no-op, ответ всегда 200.
	s.registry.Studio(studioID(r)).Cancel()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	defer r.Body.Close()

	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	mode, err := compose.ParseMode(req.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	s.registry.Studio(studioID(r)).SetMode(mode)
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(mode)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	st := s.registry.Studio(studioID(r))

	switch r.Method {
	case http.MethodGet:
		entries := st.History()
		payload := make([]entryPayload, 0, len(entries))
		for _, e := range entries {
			payload = append(payload, entryJSON(e))
		}
		writeJSON(w, http.StatusOK, payload)

	case http.MethodDelete:
		st.ClearHistory()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	default:
		methodNotAllowed(w, "GET, DELETE")
	}
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/audio/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	data, ok := s.registry.Studio(studioID(r)).Artifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="voicelab-`+id+`.wav"`)
	}
	// ServeContent даёт Range-запросы, плеер может перематывать.
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}

func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	st := s.registry.Studio(studioID(r))

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, playerJSON(st.Player()))

	case http.MethodPut:
		defer r.Body.Close()

		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
			return
		}
		if err := st.SetSpeed(req.Speed); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		writeJSON(w, http.StatusOK, playerJSON(st.Player()))

	default:
		methodNotAllowed(w, "GET, PUT")
	}
}

func playerJSON(p studio.PlayerSlot) map[string]any {
	url := ""
	if p.ArtifactID != "" {
		url = "/api/audio/" + p.ArtifactID
	}

	return map[string]any{
		"artifactUrl": url,
		"speed":       p.Speed,
		"autoplay":    p.Autoplay,
	}
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	writeJSON(w, http.StatusOK, voices.Catalog())
}

// handleVoicePreview озвучивает демо-фразу выбранным голосом. Бесплатно и
// доступно без входа, с конвейером генерации не пересекается.
func (s *Server) handleVoicePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/voices/")
	id, tail, ok := strings.Cut(rest, "/")
	if !ok || tail != "preview" {
		http.NotFound(w, r)
		return
	}

	profile, ok := voices.ByID(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	encoded, err := s.previewClip(profile)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(encoded))
}

// previewClip отдаёт пример звучания голоса: параллельные запросы одного
// голоса схлопываются, готовый клип кэшируется на всё время работы.
func (s *Server) previewClip(profile voices.Profile) ([]byte, error) {
	s.previewMu.RLock()
	cached, ok := s.previewCache[profile.ID]
	s.previewMu.RUnlock()

	if ok {
		return cached, nil
	}

	clip, err, _ := s.previews.Do(profile.ID, func() (any, error) {
		// Вызов не привязан к запросу: клип уходит в кэш и не должен
		// пропадать из-за обрыва первого слушателя.
		ctx, cancel := context.WithTimeoutCause(context.Background(), s.cfg.SynthesisTimeout, errors.New("preview timeout"))
		defer cancel()

		pcm, err := s.provider.Synthesize(ctx, s.cfg.PreviewText, profile.Name)
		if err != nil {
			return nil, err
		}

		encoded, err := wav.Encode(pcm, wav.DefaultSampleRate)
		if err != nil {
			return nil, err
		}

		s.previewMu.Lock()
		s.previewCache[profile.ID] = encoded
		s.previewMu.Unlock()

		return encoded, nil
	})
	if err != nil {
		return nil, err
	}

	return clip.([]byte), nil
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	writeJSON(w, http.StatusOK, voices.Languages())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.hub.Subscribe(w, r, studioID(r))
}

// handleStatic раздаёт клиентский бандл, для маршрутов приложения отдаёт
// index.html.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}

	path := filepath.Join(s.cfg.StaticDir, filepath.Clean("/"+r.URL.Path))
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		http.ServeFile(w, r, path)
		return
	}

	http.ServeFile(w, r, filepath.Join(s.cfg.StaticDir, "index.html"))
}

// writePipelineError сводит ошибки конвейера к контракту API. Перекрытый
// запрос — не ошибка: клиент получает статус cancelled.
func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, studio.ErrSuperseded):
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})

	case errors.Is(err, session.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthenticated"))

	case errors.Is(err, studio.ErrInsufficientCredit):
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":   err.Error(),
			"upgrade": true,
		})

	case errors.Is(err, compose.ErrNoSpeech):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))

	case errors.Is(err, ai.ErrQuota):
		writeJSON(w, http.StatusTooManyRequests, errorBody(err.Error()))

	case errors.Is(err, ai.ErrEmptyAudio):
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))

	case errors.Is(err, ai.ErrTextOnly):
		writeJSON(w, http.StatusNotImplemented, errorBody(err.Error()))

	case isValidation(err):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))

	default:
		// Сообщение провайдера уходит пользователю как есть.
		s.logger.Errorw("Pipeline failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	}
}

func isValidation(err error) bool {
	for _, target := range []error{
		compose.ErrBlankText,
		compose.ErrTextTooLong,
		compose.ErrMissingAudio,
		compose.ErrInvalidAudio,
		compose.ErrAudioTooLarge,
		compose.ErrMissingLanguage,
		studio.ErrUnknownVoice,
		studio.ErrBadSpeed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

func studioID(r *http.Request) string {
	if c, err := r.Cookie(StudioCookie); err == nil {
		return c.Value
	}

	return ""
}

func accountToken(r *http.Request) string {
	if c, err := r.Cookie(account.SessionCookie); err == nil {
		return c.Value
	}

	return ""
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
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
