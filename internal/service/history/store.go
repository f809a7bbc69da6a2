package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// previewLimit максимум рун текста, сохраняемых в записи.
const previewLimit = 80

// Entry один результат синтеза в истории сессии.
type Entry struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	VoiceID    string    `json:"voiceId"`
	VoiceName  string    `json:"voiceName"`
	ArtifactID string    `json:"artifactId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store хранит историю одной сессии, новые записи впереди. Каждая запись
// владеет одной ссылкой на своё аудио: release вызывается, когда запись
// покидает историю.
type Store struct {
	mu      sync.Mutex
	entries []Entry
	release func(artifactID string)
}

func NewStore(release func(artifactID string)) *Store {
	if release == nil {
		release = func(string) {}
	}

	return &Store{release: release}
}

// Append кладёт запись в начало истории. Текст обрезается до previewLimit рун.
func (s *Store) Append(text, voiceID, voiceName, artifactID string) Entry {
	e := Entry{
		ID:         uuid.NewString(),
		Text:       truncate(text),
		VoiceID:    voiceID,
		VoiceName:  voiceName,
		ArtifactID: artifactID,
		CreatedAt:  time.Now(),
	}

	s.mu.Lock()
	s.entries = append([]Entry{e}, s.entries...)
	s.mu.Unlock()

	return e
}

// Entries возвращает снимок истории, новые записи впереди.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)

	return out
}

// Clear опустошает историю и отпускает аудио всех записей.
func (s *Store) Clear() {
	s.mu.Lock()
	dropped := s.entries
	s.entries = nil
	s.mu.Unlock()

	for _, e := range dropped {
		s.release(e.ArtifactID)
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}

	return string(runes[:previewLimit]) + "..."
}
