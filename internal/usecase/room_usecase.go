package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/solovey/codemesh/internal/domain/models"
	"github.com/solovey/codemesh/internal/infra/adapters/postgres/repository"
)

type RoomUsecase interface {
	CreateRoom(ctx context.Context, ownerID uuid.UUID, name, language string) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	GetRoomsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Room, error)
	DeleteRoom(ctx context.Context, roomID string, ownerID uuid.UUID) error
	JoinRoom(ctx context.Context, roomID string, userID uuid.UUID) (*models.Room, error)
}

type roomUsecase struct {
	roomRepo repository.RoomRepository
}

func NewRoomUsecase(roomRepo repository.RoomRepository) RoomUsecase {
	return &roomUsecase{roomRepo: roomRepo}
}

func (uc *roomUsecase) CreateRoom(ctx context.Context, ownerID uuid.UUID, name, language string) (*models.Room, error) {
	room := models.NewRoom(ownerID, name, language)

	if err := uc.roomRepo.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}

	return room, nil
}

func (uc *roomUsecase) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return uc.roomRepo.GetByRoomID(ctx, roomID)
}

func (uc *roomUsecase) GetRoomsForUser(ctx context.Context, userID uuid.UUID) ([]*models.Room, error) {
	return uc.roomRepo.GetByUserID(ctx, userID)
}

func (uc *roomUsecase) DeleteRoom(ctx context.Context, roomID string, ownerID uuid.UUID) error {
	return uc.roomRepo.Deactivate(ctx, roomID, ownerID)
}

// JoinRoom records membership of userID in the persisted room and
// returns it. Live presence is handled separately by the registry.
func (uc *roomUsecase) JoinRoom(ctx context.Context, roomID string, userID uuid.UUID) (*models.Room, error) {
	room, err := uc.roomRepo.GetByRoomID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}

	if err := uc.roomRepo.AddParticipant(ctx, room.ID, userID); err != nil {
		return nil, fmt.Errorf("add participant: %w", err)
	}

	if err := uc.roomRepo.Touch(ctx, roomID); err != nil {
		return nil, fmt.Errorf("touch room: %w", err)
	}

	return room, nil
}
