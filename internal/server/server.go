package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-dm/internal/auth"
	"github.com/npezzotti/go-dm/internal/stats"
)

// ChatServer owns the live channel: it upgrades connections, runs their
// sessions and fans events out through the registry.
type ChatServer struct {
	log         *log.Logger
	registry    *Registry
	auth        Authenticator
	members     MembershipChecker
	poster      MessagePoster
	stats       stats.StatsProvider
	upgrader    websocket.Upgrader
	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	closed      bool
	sessions    sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewChatServer(
	logger *log.Logger,
	registry *Registry,
	authn Authenticator,
	members MembershipChecker,
	poster MessagePoster,
	su stats.StatsProvider,
	allowedOrigins []string,
) *ChatServer {
	ctx, cancel := context.WithCancel(context.Background())
	cs := &ChatServer{
		log:      logger,
		registry: registry,
		auth:     authn,
		members:  members,
		poster:   poster,
		stats:    su,
		clients:  make(map[*Client]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	cs.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(allowedOrigins, origin)
		},
	}

	return cs
}

// Broadcast sends ev to every live connection in the conversation.
func (cs *ChatServer) Broadcast(conversationId int, ev *Event) int {
	return cs.registry.Broadcast(conversationId, ev)
}

// ServeConversation upgrades r and runs a live session for the
// conversation. It returns when the session ends.
func (cs *ChatServer) ServeConversation(w http.ResponseWriter, r *http.Request, conversationId int) {
	cs.clientsLock.Lock()
	if cs.closed {
		cs.clientsLock.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	cs.sessions.Add(1)
	cs.clientsLock.Unlock()
	defer cs.sessions.Done()

	conn, err := cs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cs.log.Println("error upgrading connection:", err)
		return
	}

	s := &session{
		cs:             cs,
		conn:           conn,
		conversationId: conversationId,
		credential:     auth.LiveCredential(r),
	}
	s.run(cs.ctx)
}

func (cs *ChatServer) addClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	if cs.closed {
		return false
	}
	cs.clients[c] = struct{}{}
	return true
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c)
}

// Shutdown closes every live connection with "going away" and waits for
// their sessions to finish.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("shutting down live connections")

	cs.clientsLock.Lock()
	cs.closed = true
	clients := make([]*Client, 0, len(cs.clients))
	for c := range cs.clients {
		clients = append(clients, c)
	}
	cs.clientsLock.Unlock()

	cs.cancel()
	for _, c := range clients {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		cs.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("live shutdown: %w", ctx.Err())
	}
}
