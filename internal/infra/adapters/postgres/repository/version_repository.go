package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/solovey/codemesh/internal/domain/models"
)

type VersionRepository interface {
	Create(ctx context.Context, version *models.Version) error
	GetByRoomID(ctx context.Context, roomID string, limit int) ([]*models.Version, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Version, error)
	Delete(ctx context.Context, id uuid.UUID, savedBy uuid.UUID) error
	CountByRoomID(ctx context.Context, roomID string) (int, error)
}

type versionRepo struct {
	db *sqlx.DB
}

func NewVersionRepo(db *sqlx.DB) VersionRepository {
	return &versionRepo{db: db}
}

func (r *versionRepo) Create(ctx context.Context, version *models.Version) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO versions (id, room_id, code, language, label, saved_by) VALUES ($1, $2, $3, $4, $5, $6)",
		version.ID,
		version.RoomID,
		version.Code,
		version.Language,
		version.Label,
		version.SavedBy,
	)

	return err
}

func (r *versionRepo) GetByRoomID(ctx context.Context, roomID string, limit int) ([]*models.Version, error) {
	var versions []*models.Version

	query := `
		SELECT *
		FROM versions
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	err := r.db.SelectContext(ctx, &versions, query, roomID, limit)
	if err != nil {
		return nil, err
	}

	return versions, nil
}

func (r *versionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Version, error) {
	var version models.Version

	err := r.db.GetContext(ctx, &version, "SELECT * FROM versions WHERE id = $1", id)
	if err != nil {
		return nil, err
	}

	return &version, nil
}

func (r *versionRepo) Delete(ctx context.Context, id uuid.UUID, savedBy uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM versions WHERE id = $1 AND saved_by = $2", id, savedBy)

	return err
}

func (r *versionRepo) CountByRoomID(ctx context.Context, roomID string) (int, error) {
	var count int

	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM versions WHERE room_id = $1", roomID)
	if err != nil {
		return 0, err
	}

	return count, nil
}
