package artifact

import (
	"sync"

	"github.com/google/uuid"
)

// Store держит готовое аудио сессии в памяти со счётчиком ссылок.
// Запись живёт, пока хотя бы один владелец (история, плеер) её держит.
// Данные считаются неизменяемыми после Put.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	data []byte
	refs int
}

func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Put сохраняет данные под новым идентификатором со счётчиком ссылок 1.
func (s *Store) Put(data []byte) string {
	id := uuid.NewString()

	s.mu.Lock()
	s.entries[id] = &entry{data: data, refs: 1}
	s.mu.Unlock()

	return id
}

func (s *Store) Get(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}

	return e.data, true
}

// Retain добавляет владельца. false, если записи уже нет.
func (s *Store) Retain(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.refs++

	return true
}

// Release отпускает одного владельца и удаляет запись на нулевом счётчике.
func (s *Store) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(s.entries, id)
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
