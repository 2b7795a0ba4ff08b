// Room Router: the many-to-many index between connections and room names.

package gateway

import (
	"sort"
	"sync"
)

type router struct {
	mu sync.RWMutex
	// room -> conn id -> conn
	members map[string]map[string]*Connection
	// conn id -> rooms
	joined map[string]map[string]struct{}
}

func newRouter() *router {
	return &router{
		members: make(map[string]map[string]*Connection),
		joined:  make(map[string]map[string]struct{}),
	}
}

// join adds c to room. Returns false if c was already a member.
func (r *router) join(c *Connection, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[room]
	if !ok {
		m = make(map[string]*Connection)
		r.members[room] = m
	}
	if _, ok := m[c.id]; ok {
		return false
	}
	m[c.id] = c

	j, ok := r.joined[c.id]
	if !ok {
		j = make(map[string]struct{})
		r.joined[c.id] = j
	}
	j[room] = struct{}{}
	return true
}

// leave removes c from room. Returns false if c was not a member.
func (r *router) leave(c *Connection, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(c.id, room)
}

func (r *router) leaveLocked(connID, room string) bool {
	m, ok := r.members[room]
	if !ok {
		return false
	}
	if _, ok := m[connID]; !ok {
		return false
	}
	delete(m, connID)
	if len(m) == 0 {
		delete(r.members, room)
	}
	if j, ok := r.joined[connID]; ok {
		delete(j, room)
		if len(j) == 0 {
			delete(r.joined, connID)
		}
	}
	return true
}

// leaveAll removes c from every room and returns how many it left.
func (r *router) leaveAll(c *Connection) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := r.joined[c.id]
	n := 0
	for room := range rooms {
		if r.leaveLocked(c.id, room) {
			n++
		}
	}
	return n
}

// snapshot returns the current members of room. The slice is safe to use after the lock is released.
func (r *router) snapshot(room string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m := r.members[room]
	out := make([]*Connection, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

// roomsOf returns the sorted rooms of connID.
func (r *router) roomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.joined[connID]))
	for room := range r.joined[connID] {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

func (r *router) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
