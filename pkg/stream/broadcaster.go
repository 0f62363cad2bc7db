package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/evergrid/creditbook/pkg/journal"
	"github.com/evergrid/creditbook/pkg/logging"
)

const writeTimeout = 5 * time.Second

// Broadcaster pushes order events to connected websocket clients so the
// marketplace UI can render fills as they land instead of polling the
// book.
type Broadcaster struct {
	upgrader websocket.Upgrader
	events   <-chan *journal.OrderEvent
	log      *logging.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewBroadcaster(j *journal.Journal, log *logging.Logger) *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		events: j.Subscribe(),
		log:    log,
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// Handle upgrades the request and registers the connection.
func (b *Broadcaster) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn(r.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	b.mu.Lock()
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	// read loop only to detect close; clients never send payloads
	go func() {
		defer b.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Run fans journal events out to every connection until ctx ends.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.closeAll()
			return
		case ev := <-b.events:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			b.send(ctx, payload)
		}
	}
}

func (b *Broadcaster) send(ctx context.Context, payload []byte) {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.log.Debug(ctx, "dropping websocket client", zap.Error(err))
			b.drop(c)
		}
	}
}

func (b *Broadcaster) drop(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
	_ = conn.Close()
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		_ = c.Close()
	}
	b.conns = make(map[*websocket.Conn]struct{})
}
