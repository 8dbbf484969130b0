package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/solovey/codemesh/internal/domain/models"
	"github.com/solovey/codemesh/internal/infra/adapters/postgres/repository"
)

const versionListLimit = 50

type VersionUsecase interface {
	SaveVersion(ctx context.Context, roomID, code, language, label string, savedBy uuid.UUID) (*models.Version, error)
	ListVersions(ctx context.Context, roomID string) ([]*models.Version, error)
	GetVersion(ctx context.Context, id uuid.UUID) (*models.Version, error)
	DeleteVersion(ctx context.Context, id uuid.UUID, savedBy uuid.UUID) error
}

type versionUsecase struct {
	roomRepo    repository.RoomRepository
	versionRepo repository.VersionRepository
}

func NewVersionUsecase(roomRepo repository.RoomRepository, versionRepo repository.VersionRepository) VersionUsecase {
	return &versionUsecase{
		roomRepo:    roomRepo,
		versionRepo: versionRepo,
	}
}

func (uc *versionUsecase) SaveVersion(ctx context.Context, roomID, code, language, label string, savedBy uuid.UUID) (*models.Version, error) {
	room, err := uc.roomRepo.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	if language == "" {
		language = room.Language
	}

	if label == "" {
		count, err := uc.versionRepo.CountByRoomID(ctx, roomID)
		if err != nil {
			return nil, fmt.Errorf("count versions: %w", err)
		}
		label = fmt.Sprintf("Version %d", count+1)
	}

	version := models.NewVersion(roomID, code, language, label, savedBy)

	if err := uc.versionRepo.Create(ctx, version); err != nil {
		return nil, fmt.Errorf("save version: %w", err)
	}

	return version, nil
}

func (uc *versionUsecase) ListVersions(ctx context.Context, roomID string) ([]*models.Version, error) {
	return uc.versionRepo.GetByRoomID(ctx, roomID, versionListLimit)
}

func (uc *versionUsecase) GetVersion(ctx context.Context, id uuid.UUID) (*models.Version, error) {
	return uc.versionRepo.GetByID(ctx, id)
}

func (uc *versionUsecase) DeleteVersion(ctx context.Context, id uuid.UUID, savedBy uuid.UUID) error {
	return uc.versionRepo.Delete(ctx, id, savedBy)
}
