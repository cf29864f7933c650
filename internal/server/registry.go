// Package server owns the room index through the Registry type: the only
// place room membership is mutated and room broadcasts are enumerated.
package server

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
)

// Member is a connection the registry can deliver payloads to.
type Member interface {
	ID() string
	Send(payload []byte) error
}

// RoomPolicy controls what happens when a connection joins a second room.
type RoomPolicy string

const (
	// RoomPolicySingle keeps one active room per connection; joining a new
	// room leaves the previous one.
	RoomPolicySingle RoomPolicy = "single"
	// RoomPolicyMulti accumulates memberships across joins.
	RoomPolicyMulti RoomPolicy = "multi"
)

// JoinResult describes the membership changes made by Registry.Join.
type JoinResult struct {
	Added bool
	Left  []string
}

// Registry maps room identifiers to member connections. Rooms exist only
// while they have members; empty entries are pruned.
type Registry struct {
	mu          sync.RWMutex
	members     map[string]Member              // connID -> member
	rooms       map[string]map[string]struct{} // roomID -> connIDs
	memberships map[string]map[string]struct{} // connID -> roomIDs
	policy      RoomPolicy
	logger      *slog.Logger
	metrics     *Metrics
}

// NewRegistry creates an empty registry applying policy on joins.
func NewRegistry(policy RoomPolicy, logger *slog.Logger, metrics *Metrics) *Registry {
	if policy != RoomPolicyMulti {
		policy = RoomPolicySingle
	}
	return &Registry{
		members:     make(map[string]Member),
		rooms:       make(map[string]map[string]struct{}),
		memberships: make(map[string]map[string]struct{}),
		policy:      policy,
		logger:      logger.With("component", "registry"),
		metrics:     metrics,
	}
}

// Policy returns the room policy in effect.
func (r *Registry) Policy() RoomPolicy {
	return r.policy
}

// Join adds m to roomID. Joining a room m is already in changes nothing.
func (r *Registry) Join(m Member, roomID string) JoinResult {
	id := m.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	var result JoinResult
	if r.policy == RoomPolicySingle {
		for joined := range r.memberships[id] {
			if joined != roomID {
				r.removeLocked(id, joined)
				result.Left = append(result.Left, joined)
			}
		}
		sort.Strings(result.Left)
	}

	rooms, ok := r.memberships[id]
	if !ok {
		rooms = make(map[string]struct{})
		r.memberships[id] = rooms
	}
	r.members[id] = m

	if _, already := rooms[roomID]; already {
		return result
	}

	rooms[roomID] = struct{}{}
	set, ok := r.rooms[roomID]
	if !ok {
		set = make(map[string]struct{})
		r.rooms[roomID] = set
	}
	set[id] = struct{}{}
	result.Added = true

	r.logger.Debug("room.join", "conn_id", id, "room", roomID, "members", len(set))
	return result
}

// Leave removes connID from roomID and reports whether it was a member.
func (r *Registry) Leave(connID, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.memberships[connID][roomID]; !ok {
		return false
	}
	r.removeLocked(connID, roomID)
	return true
}

// LeaveAll removes connID from every room and returns those rooms sorted.
func (r *Registry) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.memberships[connID]
	left := make([]string, 0, len(joined))
	for roomID := range joined {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		r.removeLocked(connID, roomID)
	}
	delete(r.memberships, connID)
	delete(r.members, connID)

	sort.Strings(left)
	return left
}

// removeLocked drops one membership and prunes whatever became empty.
// Callers must hold the write lock.
func (r *Registry) removeLocked(connID, roomID string) {
	if set, ok := r.rooms[roomID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if rooms, ok := r.memberships[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.memberships, connID)
			delete(r.members, connID)
		}
	}
	r.logger.Debug("room.leave", "conn_id", connID, "room", roomID)
}

// Broadcast delivers payload to every current member of roomID except
// exclude and returns the number of successful deliveries. Recipients are
// snapshotted under the read lock; a member that leaves concurrently may or
// may not receive the payload.
func (r *Registry) Broadcast(roomID string, payload []byte, exclude string) int {
	recipients := r.snapshot(roomID, exclude)
	if len(recipients) == 0 {
		return 0
	}

	delivered := 0
	for _, m := range recipients {
		if err := m.Send(payload); err != nil {
			r.recordFailure(m.ID(), roomID, err)
			continue
		}
		delivered++
	}
	r.metrics.Deliveries.Add(float64(delivered))
	return delivered
}

func (r *Registry) snapshot(roomID, exclude string) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.rooms[roomID]
	recipients := make([]Member, 0, len(set))
	for id := range set {
		if id == exclude {
			continue
		}
		if m, ok := r.members[id]; ok {
			recipients = append(recipients, m)
		}
	}
	return recipients
}

func (r *Registry) recordFailure(connID, roomID string, err error) {
	reason := "other"
	switch {
	case errors.Is(err, ErrConnectionClosed):
		reason = "closed"
	case errors.Is(err, ErrSendBufferFull):
		reason = "buffer_full"
	}
	r.metrics.DeliveryFailures.WithLabelValues(reason).Inc()
	r.logger.Warn("room.delivery_failed", "conn_id", connID, "room", roomID, "err", err)
}

// Members returns the sorted connection ids currently in roomID.
func (r *Registry) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.rooms[roomID]))
	for id := range r.rooms[roomID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rooms returns the sorted rooms connID belongs to.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.memberships[connID]))
	for roomID := range r.memberships[connID] {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// HasRoom reports whether roomID currently has members.
func (r *Registry) HasRoom(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// ConnectionCount returns the number of connections in at least one room.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.memberships)
}
