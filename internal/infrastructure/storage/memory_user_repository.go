package storage

import (
	"context"
	"sync"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
)

// MemoryUserRepository in-memory хранилище сессий бота
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[int64]*entity.User
}

// NewMemoryUserRepository создаёт новое in-memory хранилище
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[int64]*entity.User),
	}
}

// Get возвращает копию пользователя по ID, создаёт нового если не найден
func (r *MemoryUserRepository) Get(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	r.mu.RLock()
	user, exists := r.users[userID]
	r.mu.RUnlock()

	if exists {
		cp := *user
		return &cp, nil
	}

	newUser := entity.NewUser(userID, chatID)

	r.mu.Lock()
	if existing, ok := r.users[userID]; ok {
		newUser = existing
	} else {
		r.users[userID] = newUser
	}
	cp := *newUser
	r.mu.Unlock()

	return &cp, nil
}

// Save сохраняет состояние пользователя
func (r *MemoryUserRepository) Save(ctx context.Context, user *entity.User) error {
	cp := *user
	r.mu.Lock()
	r.users[user.ID] = &cp
	r.mu.Unlock()

	return nil
}

// Reset возвращает пользователя в главное меню и забывает первое фото
func (r *MemoryUserRepository) Reset(ctx context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, exists := r.users[userID]; exists {
		user.Reset()
	}

	return nil
}

// Проверка реализации интерфейса
var _ port.UserRepository = (*MemoryUserRepository)(nil)
