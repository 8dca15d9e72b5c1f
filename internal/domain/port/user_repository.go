package port

import (
	"context"

	"image-similarity/internal/domain/entity"
)

// UserRepository интерфейс хранилища сессий бота
type UserRepository interface {
	// Get возвращает пользователя по ID, создаёт нового если не найден
	Get(ctx context.Context, userID, chatID int64) (*entity.User, error)

	// Save сохраняет состояние пользователя
	Save(ctx context.Context, user *entity.User) error

	// Reset возвращает пользователя в главное меню и удаляет ожидающее фото
	Reset(ctx context.Context, userID int64) error
}
