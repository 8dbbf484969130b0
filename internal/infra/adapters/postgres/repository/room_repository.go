package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/solovey/codemesh/internal/domain/models"
)

type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByRoomID(ctx context.Context, roomID string) (*models.Room, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Room, error)
	Deactivate(ctx context.Context, roomID string, ownerID uuid.UUID) error

	AddParticipant(ctx context.Context, roomID uuid.UUID, userID uuid.UUID) error
	Touch(ctx context.Context, roomID string) error
}

type roomRepo struct {
	db *sqlx.DB
}

func NewRoomRepo(db *sqlx.DB) RoomRepository {
	return &roomRepo{db: db}
}

func (r *roomRepo) Create(ctx context.Context, room *models.Room) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO rooms (id, room_id, name, language, owner_id, is_active) VALUES ($1, $2, $3, $4, $5, $6)",
		room.ID,
		room.RoomID,
		room.Name,
		room.Language,
		room.OwnerID,
		room.IsActive,
	)
	if err != nil {
		return err
	}

	return r.AddParticipant(ctx, room.ID, room.OwnerID)
}

func (r *roomRepo) GetByRoomID(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room

	err := r.db.GetContext(ctx, &room, "SELECT * FROM rooms WHERE room_id = $1 AND is_active = true", roomID)
	if err != nil {
		return nil, err
	}

	return &room, nil
}

func (r *roomRepo) GetByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Room, error) {
	var rooms []*models.Room

	query := `
		SELECT r.*
		FROM rooms r
		INNER JOIN room_participants rp ON r.id = rp.room_id
		WHERE rp.user_id = $1 AND r.is_active = true
		ORDER BY r.updated_at DESC
	`

	err := r.db.SelectContext(ctx, &rooms, query, userID)
	if err != nil {
		return nil, err
	}

	return rooms, nil
}

func (r *roomRepo) Deactivate(ctx context.Context, roomID string, ownerID uuid.UUID) error {
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE rooms SET is_active = false, updated_at = $1 WHERE room_id = $2 AND owner_id = $3",
		time.Now(),
		roomID,
		ownerID,
	)

	return err
}

func (r *roomRepo) AddParticipant(ctx context.Context, roomID uuid.UUID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO room_participants (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		roomID,
		userID,
	)

	return err
}

func (r *roomRepo) Touch(ctx context.Context, roomID string) error {
	_, err := r.db.ExecContext(
		ctx,
		"UPDATE rooms SET updated_at = $1 WHERE room_id = $2",
		time.Now(),
		roomID,
	)

	return err
}
