package dto

import (
	"github.com/google/uuid"

	"github.com/solovey/codemesh/internal/usecase"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type GetMeResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Avatar   string    `json:"avatar"`
}

type CreateRoomRequest struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

type SaveVersionRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Label    string `json:"label"`
}

type ReviewRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type ChatRequest struct {
	Code     string                `json:"code"`
	Language string                `json:"language"`
	Message  string                `json:"message"`
	History  []usecase.ChatMessage `json:"history"`
}

type ExecuteRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}
