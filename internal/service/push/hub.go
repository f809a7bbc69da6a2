package push

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 5 * time.Second

// Event сообщение для клиента студии: "auth" после входа, "account" после
// списания кредитов.
type Event struct {
	Type    string `json:"type"`
	Account any    `json:"account,omitempty"`
}

// Hub раздаёт события по вебсокету. Соединения сгруппированы по токену
// студийной сессии, у одной сессии может быть несколько вкладок.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]chan []byte
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
		conns:  make(map[string]map[*websocket.Conn]chan []byte),
	}
}

// Subscribe апгрейдит запрос и держит соединение до разрыва.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, session string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnw("Websocket upgrade failed", "error", err)
		return
	}

	out := make(chan []byte, 8)
	h.add(session, conn, out)

	go writeLoop(conn, out)

	// Входящие сообщения не нужны, читаем только ради обнаружения разрыва.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.drop(session, conn)
}

// Notify рассылает событие всем соединениям сессии. Не блокируется:
// соединения с переполненной очередью отключаются.
func (h *Hub) Notify(session string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Errorw("Event marshal failed", "error", err)
		return
	}

	var stale []*websocket.Conn

	h.mu.Lock()
	for conn, out := range h.conns[session] {
		select {
		case out <- payload:
		default:
			stale = append(stale, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range stale {
		h.logger.Warnw("Dropping unresponsive websocket", "session", session)
		h.drop(session, conn)
	}
}

func (h *Hub) add(session string, conn *websocket.Conn, out chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[session]
	if !ok {
		set = make(map[*websocket.Conn]chan []byte)
		h.conns[session] = set
	}
	set[conn] = out
}

// drop идемпотентен: повторный вызов для уже снятого соединения безвреден.
func (h *Hub) drop(session string, conn *websocket.Conn) {
	h.mu.Lock()
	if set, ok := h.conns[session]; ok {
		if out, ok := set[conn]; ok {
			delete(set, conn)
			close(out)
		}
		if len(set) == 0 {
			delete(h.conns, session)
		}
	}
	h.mu.Unlock()

	_ = conn.Close()
}

func writeLoop(conn *websocket.Conn, out <-chan []byte) {
	for msg := range out {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
