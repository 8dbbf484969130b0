package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinCreatesRoomAndAssignsColor(t *testing.T) {
	reg := New()

	state, snap := reg.Join("room-1", "conn-a", "Alice", "avatar-a")

	assert.Equal(t, "Alice", state.DisplayName)
	assert.Equal(t, "avatar-a", state.AvatarRef)
	assert.Equal(t, 0, state.ColorIndex)
	assert.Nil(t, state.Cursor)
	assert.Len(t, snap, 1)
	assert.True(t, reg.Exists("room-1"))
}

func TestJoinIsIdempotent(t *testing.T) {
	reg := New()

	first, _ := reg.Join("room-1", "conn-a", "Alice", "")
	reg.Join("room-1", "conn-b", "Bob", "")
	again, snap := reg.Join("room-1", "conn-a", "Alice Renamed", "other")

	assert.Equal(t, first, again, "rejoin must return the original state unchanged")
	assert.Len(t, snap, 2)
	assert.Equal(t, 2, reg.MemberCount("room-1"))
}

func TestColorsAreDistinctWithinPaletteSize(t *testing.T) {
	reg := New()

	seen := make(map[int]bool)
	for i := 0; i < len(Palette); i++ {
		state, _ := reg.Join("room-1", fmt.Sprintf("conn-%d", i), "user", "")
		assert.False(t, seen[state.ColorIndex], "color index %d assigned twice", state.ColorIndex)
		seen[state.ColorIndex] = true
	}

	// The ninth participant wraps around.
	state, _ := reg.Join("room-1", "conn-9", "user", "")
	assert.Equal(t, 0, state.ColorIndex)
}

func TestConcurrentJoinsGetDistinctColors(t *testing.T) {
	reg := New()

	var wg sync.WaitGroup
	states := make([]ParticipantState, len(Palette))
	for i := 0; i < len(Palette); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			states[i], _ = reg.Join("room-1", fmt.Sprintf("conn-%d", i), "user", "")
		}(i)
	}
	wg.Wait()

	seen := make(map[int]bool)
	for _, s := range states {
		assert.False(t, seen[s.ColorIndex])
		seen[s.ColorIndex] = true
	}
}

func TestRoomExistsOnlyWhileOccupied(t *testing.T) {
	reg := New()

	assert.False(t, reg.Exists("room-1"))

	reg.Join("room-1", "conn-a", "Alice", "")
	reg.Join("room-1", "conn-b", "Bob", "")
	assert.True(t, reg.Exists("room-1"))
	assert.Equal(t, 1, reg.RoomCount())

	departed, remaining := reg.Leave("room-1", "conn-a")
	assert.True(t, departed)
	assert.True(t, remaining)
	assert.True(t, reg.Exists("room-1"))

	departed, remaining = reg.Leave("room-1", "conn-b")
	assert.True(t, departed)
	assert.False(t, remaining)
	assert.False(t, reg.Exists("room-1"))
	assert.Equal(t, 0, reg.RoomCount())
}

func TestLeaveUnknownMember(t *testing.T) {
	reg := New()
	reg.Join("room-1", "conn-a", "Alice", "")

	departed, remaining := reg.Leave("room-1", "conn-ghost")
	assert.False(t, departed)
	assert.True(t, remaining)

	departed, remaining = reg.Leave("no-such-room", "conn-a")
	assert.False(t, departed)
	assert.False(t, remaining)
}

func TestCursorUpdateAfterLeaveDoesNotResurrect(t *testing.T) {
	reg := New()

	reg.Join("room-1", "conn-a", "Alice", "")
	reg.Join("room-1", "conn-b", "Bob", "")
	reg.Leave("room-1", "conn-a")

	reg.UpdateCursor("room-1", "conn-a", Position{Line: 3, Column: 7})

	_, ok := reg.Participant("room-1", "conn-a")
	assert.False(t, ok, "stale cursor update must not re-add a departed participant")
	assert.Equal(t, 1, reg.MemberCount("room-1"))
}

func TestCursorStartsNilAndUpdates(t *testing.T) {
	reg := New()
	reg.Join("room-1", "conn-a", "Alice", "")

	state, ok := reg.Participant("room-1", "conn-a")
	require.True(t, ok)
	assert.Nil(t, state.Cursor)

	reg.UpdateCursor("room-1", "conn-a", Position{Line: 10, Column: 4})

	state, ok = reg.Participant("room-1", "conn-a")
	require.True(t, ok)
	require.NotNil(t, state.Cursor)
	assert.Equal(t, 10, state.Cursor.Line)
	assert.Equal(t, 4, state.Cursor.Column)
}

func TestSnapshotIsACopy(t *testing.T) {
	reg := New()
	reg.Join("room-1", "conn-a", "Alice", "")
	reg.UpdateCursor("room-1", "conn-a", Position{Line: 1, Column: 1})

	snap := reg.Snapshot("room-1")
	require.Contains(t, snap, "conn-a")

	entry := snap["conn-a"]
	entry.Cursor.Line = 99
	entry.DisplayName = "Mallory"
	snap["conn-a"] = entry

	state, ok := reg.Participant("room-1", "conn-a")
	require.True(t, ok)
	assert.Equal(t, "Alice", state.DisplayName)
	assert.Equal(t, 1, state.Cursor.Line)
}

func TestRejoinScenario(t *testing.T) {
	reg := New()

	// Three participants hold three palette slots.
	reg.Join("room-1", "conn-a", "Alice", "")
	reg.Join("room-1", "conn-b", "Bob", "")
	reg.Join("room-1", "conn-c", "Carol", "")

	// Bob drops and reconnects under a new connection id. Color
	// assignment follows current occupancy, not history.
	reg.Leave("room-1", "conn-b")
	state, snap := reg.Join("room-1", "conn-b2", "Bob", "")

	assert.Equal(t, 2, state.ColorIndex)
	assert.Len(t, snap, 3)
	_, oldGone := snap["conn-b"]
	assert.False(t, oldGone)
}

func TestBroadcastTargetsExcludesSender(t *testing.T) {
	reg := New()
	reg.Join("room-1", "conn-a", "Alice", "")
	reg.Join("room-1", "conn-b", "Bob", "")
	reg.Join("room-1", "conn-c", "Carol", "")

	targets := reg.BroadcastTargets("room-1", "conn-b")
	assert.ElementsMatch(t, []string{"conn-a", "conn-c"}, targets)

	assert.Nil(t, reg.BroadcastTargets("no-such-room", "conn-a"))
}
