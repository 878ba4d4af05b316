package server

import (
	"log"
	"sync"

	"github.com/npezzotti/go-dm/internal/stats"
)

// Conn is a registered live connection.
type Conn interface {
	Send(ev *Event) error
}

// Registry tracks the live connections of each conversation room.
type Registry struct {
	log   *log.Logger
	stats stats.StatsProvider
	mu    sync.RWMutex
	rooms map[int]map[Conn]struct{}
}

func NewRegistry(l *log.Logger, su stats.StatsProvider) *Registry {
	return &Registry{
		log:   l,
		stats: su,
		rooms: make(map[int]map[Conn]struct{}),
	}
}

func (r *Registry) Join(roomId int, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomId]
	if !ok {
		room = make(map[Conn]struct{})
		r.rooms[roomId] = room
		r.stats.Incr(stats.ActiveRooms)
	}

	if _, ok := room[c]; ok {
		return
	}
	room[c] = struct{}{}
	r.stats.Incr(stats.ActiveConnections)
}

// Leave removes c from the room. The room is dropped once empty. Leaving a
// room c is not in is a no-op.
func (r *Registry) Leave(roomId int, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomId]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}

	delete(room, c)
	r.stats.Decr(stats.ActiveConnections)

	if len(room) == 0 {
		delete(r.rooms, roomId)
		r.stats.Decr(stats.ActiveRooms)
	}
}

// Broadcast sends ev to every connection in the room and returns how many
// accepted it. The membership is copied before sending, so Join and Leave
// may run concurrently. A connection that fails to accept ev is removed.
func (r *Registry) Broadcast(roomId int, ev *Event) int {
	r.mu.RLock()
	peers := make([]Conn, 0, len(r.rooms[roomId]))
	for c := range r.rooms[roomId] {
		peers = append(peers, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range peers {
		if err := c.Send(ev); err != nil {
			r.log.Printf("broadcast to room %d: %v", roomId, err)
			r.Leave(roomId, c)
			continue
		}
		delivered++
	}

	return delivered
}

// Size returns the number of connections in the room.
func (r *Registry) Size(roomId int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomId])
}
