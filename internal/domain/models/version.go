package models

import (
	"time"

	"github.com/google/uuid"
)

// Version is a saved code snapshot for a room.
type Version struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RoomID    string    `json:"roomId" db:"room_id"`
	Code      string    `json:"code" db:"code"`
	Language  string    `json:"language" db:"language"`
	Label     string    `json:"label" db:"label"`
	SavedBy   uuid.UUID `json:"savedBy" db:"saved_by"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

func NewVersion(roomID, code, language, label string, savedBy uuid.UUID) *Version {
	return &Version{
		ID:        uuid.New(),
		RoomID:    roomID,
		Code:      code,
		Language:  language,
		Label:     label,
		SavedBy:   savedBy,
		CreatedAt: time.Now(),
	}
}
