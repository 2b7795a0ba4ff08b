// Connection Registry: which principals have live connections on this instance, and how many.

package gateway

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const registryShards = 32

// registry is sharded by user id. All connections of a principal live in one shard,
// so connect and disconnect of the same principal are serialized by that shard's lock.
type registry struct {
	shards [registryShards]*registryShard
}

type registryShard struct {
	mu    sync.Mutex
	users map[string]map[string]*Connection
}

func newRegistry() *registry {
	r := &registry{}
	for i := range r.shards {
		r.shards[i] = &registryShard{users: make(map[string]map[string]*Connection)}
	}
	return r
}

func (r *registry) shard(userID string) *registryShard {
	return r.shards[xxhash.Sum64String(userID)%registryShards]
}

// add registers c. onFirst runs under the shard lock when c is the principal's first live connection.
// Returns false if c was already registered.
func (r *registry) add(c *Connection, onFirst func()) bool {
	s := r.shard(c.principal.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[c.principal.UserID]
	if !ok {
		conns = make(map[string]*Connection)
		s.users[c.principal.UserID] = conns
	}
	if _, dup := conns[c.id]; dup {
		return false
	}
	conns[c.id] = c
	if len(conns) == 1 && onFirst != nil {
		onFirst()
	}
	return true
}

// remove deregisters c. onLast runs under the shard lock when c was the principal's last live connection.
// Returns false if c was not registered.
func (r *registry) remove(c *Connection, onLast func()) bool {
	s := r.shard(c.principal.UserID)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.users[c.principal.UserID]
	if !ok {
		return false
	}
	if _, ok := conns[c.id]; !ok {
		return false
	}
	delete(conns, c.id)
	if len(conns) == 0 {
		delete(s.users, c.principal.UserID)
		if onLast != nil {
			onLast()
		}
	}
	return true
}

// count returns the number of live connections of userID.
func (r *registry) count(userID string) int {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users[userID])
}

// all returns a snapshot of every live connection.
func (r *registry) all() []*Connection {
	var out []*Connection
	for _, s := range r.shards {
		s.mu.Lock()
		for _, conns := range s.users {
			for _, c := range conns {
				out = append(out, c)
			}
		}
		s.mu.Unlock()
	}
	return out
}

// totals returns the number of live connections and of distinct principals.
func (r *registry) totals() (connections, principals int) {
	for _, s := range r.shards {
		s.mu.Lock()
		principals += len(s.users)
		for _, conns := range s.users {
			connections += len(conns)
		}
		s.mu.Unlock()
	}
	return connections, principals
}
