package app

import (
	"sync"

	"quizroom-service/internal/domain"
)

const subscriberBuffer = 8

// Hub fans room events out to local subscribers. Each room has its own lock, so a
// slow snapshot read for one room never holds up broadcasts to another.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*roomSubscribers
}

type roomSubscribers struct {
	mu   sync.Mutex
	subs map[chan domain.RoomEvent]struct{}
	// detached is set once the entry left Hub.rooms; subscribers must retry on a fresh one.
	detached bool
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*roomSubscribers)}
}

// Subscribe registers a channel for roomID and primes it with the event returned
// by initial. initial runs while broadcasts to roomID are held back, so no event
// committed after the snapshot can be missed. The caller must invoke the returned
// cancel function to avoid leaks.
func (h *Hub) Subscribe(roomID string, initial func() (domain.RoomEvent, error)) (<-chan domain.RoomEvent, func(), error) {
	for {
		rs := h.room(roomID, true)
		rs.mu.Lock()
		if rs.detached {
			rs.mu.Unlock()
			continue
		}
		first, err := initial()
		if err != nil {
			if len(rs.subs) == 0 {
				h.detachLocked(roomID, rs)
			}
			rs.mu.Unlock()
			return nil, nil, err
		}
		ch := make(chan domain.RoomEvent, subscriberBuffer)
		rs.subs[ch] = struct{}{}
		ch <- first
		rs.mu.Unlock()

		cancel := func() {
			rs.mu.Lock()
			defer rs.mu.Unlock()
			if _, ok := rs.subs[ch]; !ok {
				return
			}
			delete(rs.subs, ch)
			close(ch)
			if len(rs.subs) == 0 {
				h.detachLocked(roomID, rs)
			}
		}
		return ch, cancel, nil
	}
}

// Broadcast delivers event to every subscriber of its room. A subscriber that
// fell behind loses its oldest pending event rather than blocking the sender.
func (h *Hub) Broadcast(event domain.RoomEvent) {
	rs := h.room(event.RoomID, false)
	if rs == nil {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for ch := range rs.subs {
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

// CloseRoom closes every subscription of roomID, e.g. after the room was reaped.
func (h *Hub) CloseRoom(roomID string) {
	rs := h.room(roomID, false)
	if rs == nil {
		return
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for ch := range rs.subs {
		close(ch)
		delete(rs.subs, ch)
	}
	h.detachLocked(roomID, rs)
}

// Subscribers returns how many local channels listen to roomID.
func (h *Hub) Subscribers(roomID string) int {
	rs := h.room(roomID, false)
	if rs == nil {
		return 0
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.subs)
}

func (h *Hub) room(roomID string, create bool) *roomSubscribers {
	h.mu.Lock()
	defer h.mu.Unlock()
	rs, ok := h.rooms[roomID]
	if !ok && create {
		rs = &roomSubscribers{subs: make(map[chan domain.RoomEvent]struct{})}
		h.rooms[roomID] = rs
	}
	return rs
}

// detachLocked drops rs from the room map. The caller holds rs.mu; h.mu is always
// taken after a room lock, never before one.
func (h *Hub) detachLocked(roomID string, rs *roomSubscribers) {
	if rs.detached {
		return
	}
	rs.detached = true
	h.mu.Lock()
	if h.rooms[roomID] == rs {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()
}
