// Package registry owns per-room participant state. It is the single
// source of truth for who is present in a room and where their cursor is.
package registry

import (
	"sync"
)

// Palette holds the display colors handed out to participants, reused
// round-robin as participants churn.
var Palette = []string{
	"#6C63FF", "#FF6B6B", "#4ECDC4", "#FFD93D",
	"#A6E3A1", "#F38BA8", "#89B4FA", "#FAB387",
}

// Position is a cursor location inside the shared document.
type Position struct {
	Line   int `json:"lineNumber"`
	Column int `json:"column"`
}

// ParticipantState is the per-connection state kept while a participant
// is a member of a room. Cursor stays nil until the first cursor-move
// from that participant; only that participant ever writes it.
type ParticipantState struct {
	DisplayName string    `json:"displayName"`
	AvatarRef   string    `json:"avatarRef"`
	Cursor      *Position `json:"cursor"`
	ColorIndex  int       `json:"colorIndex"`
}

// Color returns the palette color for the participant's index.
func (p ParticipantState) Color() string {
	return Palette[p.ColorIndex%len(Palette)]
}

type room struct {
	mu sync.Mutex

	// closed marks a room that has been removed from the registry.
	// A join racing a leave must not revive the dead room object.
	closed bool

	members map[string]*ParticipantState
}

func (r *room) snapshotLocked() map[string]ParticipantState {
	snap := make(map[string]ParticipantState, len(r.members))
	for id, p := range r.members {
		cp := *p
		if p.Cursor != nil {
			cur := *p.Cursor
			cp.Cursor = &cur
		}
		snap[id] = cp
	}
	return snap
}

// Registry is an in-memory arena of rooms, created lazily on first join
// and destroyed the instant the last participant leaves. All state is
// connection-scoped; nothing survives a process restart.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func New() *Registry {
	return &Registry{
		rooms: make(map[string]*room),
	}
}

func (reg *Registry) get(roomID string) *room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.rooms[roomID]
}

// Join adds connID to roomID, creating the room if absent, and returns
// the participant's state together with the full room snapshot. Joining
// twice with the same connID is idempotent: the existing state, color
// included, is returned unchanged.
func (reg *Registry) Join(roomID, connID, displayName, avatarRef string) (ParticipantState, map[string]ParticipantState) {
	for {
		rm := reg.get(roomID)
		if rm == nil {
			reg.mu.Lock()
			rm = reg.rooms[roomID]
			if rm == nil {
				rm = &room{members: make(map[string]*ParticipantState)}
				reg.rooms[roomID] = rm
			}
			reg.mu.Unlock()
		}

		rm.mu.Lock()
		if rm.closed {
			// Lost the race against the last leave; the room was torn
			// down after we found it. Start over with a fresh room.
			rm.mu.Unlock()
			continue
		}

		if existing, ok := rm.members[connID]; ok {
			state := *existing
			snap := rm.snapshotLocked()
			rm.mu.Unlock()
			return state, snap
		}

		state := &ParticipantState{
			DisplayName: displayName,
			AvatarRef:   avatarRef,
			ColorIndex:  len(rm.members) % len(Palette),
		}
		rm.members[connID] = state

		result := *state
		snap := rm.snapshotLocked()
		rm.mu.Unlock()

		return result, snap
	}
}

// UpdateCursor overwrites the cursor of connID in roomID. Unknown rooms
// or connIDs are a silent no-op: a stale update racing a leave must
// never resurrect a removed participant.
func (reg *Registry) UpdateCursor(roomID, connID string, pos Position) {
	rm := reg.get(roomID)
	if rm == nil {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if p, ok := rm.members[connID]; ok {
		p.Cursor = &pos
	}
}

// Participant returns the current state of connID in roomID.
func (reg *Registry) Participant(roomID, connID string) (ParticipantState, bool) {
	rm := reg.get(roomID)
	if rm == nil {
		return ParticipantState{}, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	p, ok := rm.members[connID]
	if !ok {
		return ParticipantState{}, false
	}

	state := *p
	if p.Cursor != nil {
		cur := *p.Cursor
		state.Cursor = &cur
	}

	return state, true
}

// Leave removes connID from roomID. It reports whether the participant
// was actually a member and whether the room still has members; an
// emptied room is deleted before Leave returns.
func (reg *Registry) Leave(roomID, connID string) (departed, stillHasMembers bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	rm := reg.rooms[roomID]
	if rm == nil {
		return false, false
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, ok := rm.members[connID]; !ok {
		return false, len(rm.members) > 0
	}

	delete(rm.members, connID)

	if len(rm.members) == 0 {
		rm.closed = true
		delete(reg.rooms, roomID)
		return true, false
	}

	return true, true
}

// BroadcastTargets returns the connIDs of every member of roomID except
// the excluded one.
func (reg *Registry) BroadcastTargets(roomID, excluding string) []string {
	rm := reg.get(roomID)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	targets := make([]string, 0, len(rm.members))
	for id := range rm.members {
		if id == excluding {
			continue
		}
		targets = append(targets, id)
	}

	return targets
}

// Snapshot returns a copy of the full participant map of roomID.
func (reg *Registry) Snapshot(roomID string) map[string]ParticipantState {
	rm := reg.get(roomID)
	if rm == nil {
		return nil
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	return rm.snapshotLocked()
}

// Exists reports whether roomID currently has any members.
func (reg *Registry) Exists(roomID string) bool {
	return reg.get(roomID) != nil
}

// MemberCount returns the number of members in roomID, 0 if absent.
func (reg *Registry) MemberCount(roomID string) int {
	rm := reg.get(roomID)
	if rm == nil {
		return 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	return len(rm.members)
}

// RoomCount returns the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return len(reg.rooms)
}
