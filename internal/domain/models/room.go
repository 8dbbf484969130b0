package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Room is a persisted collaboration room. Live membership is not
// stored here; it lives in the in-memory registry and dies with the
// last connection.
type Room struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RoomID    string    `json:"roomId" db:"room_id"`
	Name      string    `json:"name" db:"name"`
	Language  string    `json:"language" db:"language"`
	OwnerID   uuid.UUID `json:"ownerId" db:"owner_id"`
	IsActive  bool      `json:"isActive" db:"is_active"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

func NewRoom(ownerID uuid.UUID, name, language string) *Room {
	if language == "" {
		language = "javascript"
	}

	return &Room{
		ID:        uuid.New(),
		RoomID:    shortRoomID(),
		Name:      name,
		Language:  language,
		OwnerID:   ownerID,
		IsActive:  true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
}

// shortRoomID produces the 8-character share code.
func shortRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
