package ws

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"bbqapp-core/internal/auth"
	"bbqapp-core/internal/geocode"
	"bbqapp-core/internal/location"
)

// Manager fans the location stream and session events out to connected
// websocket clients.
type Manager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger

	stream   *location.Stream
	resolver *geocode.Resolver
	authBus  *auth.Bus
}

func NewManager(ctx context.Context, logger *slog.Logger, stream *location.Stream, resolver *geocode.Resolver, authBus *auth.Bus) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
		stream:     stream,
		resolver:   resolver,
		authBus:    authBus,
	}
}

func (m *Manager) Start() {
	authSub := m.authBus.Subscribe()
	defer authSub.Close()

	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			m.clients[client.ID] = client
			m.mu.Unlock()
			m.logger.Info("client connected", "clientID", client.ID)
		case client := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[client.ID]; ok {
				delete(m.clients, client.ID)
				close(client.send)
				m.logger.Info("client disconnected", "clientID", client.ID)
			}
			m.mu.Unlock()
		case event, ok := <-authSub.Events():
			if !ok {
				return
			}
			m.broadcastAuthEvent(event)
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *Manager) HandleNewConnection(id string, conn *websocket.Conn) {
	client := NewClient(id, conn, m)
	client.Start()
}

// broadcastAuthEvent republishes a session event to every client. Slow
// clients are force-disconnected rather than blocking the loop.
func (m *Manager) broadcastAuthEvent(event auth.Event) {
	payload := struct {
		Kind     auth.Kind     `json:"kind"`
		Provider string        `json:"provider"`
		Session  *auth.Session `json:"session,omitempty"`
		Error    string        `json:"error,omitempty"`
	}{
		Kind:     event.Kind,
		Provider: event.ProviderID,
		Session:  event.Session,
	}
	if event.Err != nil {
		payload.Error = event.Err.Error()
	}

	msg, err := newMessage("auth", payload)
	if err != nil {
		m.logger.Warn("failed to marshal auth event", "error", err)
		return
	}

	m.mu.RLock()
	for _, client := range m.clients {
		select {
		case client.send <- msg:
		default:
			go m.forceDisconnect(client)
		}
	}
	m.mu.RUnlock()
}

func (m *Manager) forceDisconnect(c *Client) {
	c.Close()
}

func (m *Manager) Shutdown() {
	m.cancel()
	m.mu.Lock()
	for _, client := range m.clients {
		client.Close()
	}
	m.mu.Unlock()
}
