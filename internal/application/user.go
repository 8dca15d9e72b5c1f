package app

import (
	"context"
	"errors"

	"image-similarity/internal/domain/entity"
	"image-similarity/internal/domain/port"
)

// ErrBusy пользователь прислал фото, пока идёт предыдущее сравнение
var ErrBusy = errors.New("comparison is already running")

type UserService struct {
	repo port.UserRepository
}

func NewUserService(repo port.UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) Get(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.repo.Get(ctx, userID, chatID)
}

func (s *UserService) SetState(ctx context.Context, userID, chatID int64, state entity.UserState) (*entity.User, error) {
	user, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	user.SetState(state)
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// BeginCompare начинает новое сравнение и забывает прошлое первое фото
func (s *UserService) BeginCompare(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	user, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	user.Pending = nil
	user.SetState(entity.StateAwaitingFirst)
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// AcceptImage принимает очередное фото. Первое фото запоминается,
// на втором возвращается готовый запрос и пользователь переходит в processing.
func (s *UserService) AcceptImage(ctx context.Context, userID, chatID int64, photo []byte) (*entity.User, *entity.ComparisonRequest, error) {
	user, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, nil, err
	}

	var req *entity.ComparisonRequest
	switch user.State {
	case entity.StateProcessing:
		return user, nil, ErrBusy
	case entity.StateAwaitingSecond:
		req = &entity.ComparisonRequest{
			ImageA:  user.Pending,
			ImageB:  photo,
			Options: user.Options,
		}
		user.Pending = nil
		user.SetState(entity.StateProcessing)
	default:
		// Фото в главном меню тоже начинает сравнение
		user.Pending = photo
		user.SetState(entity.StateAwaitingSecond)
	}

	if err := s.repo.Save(ctx, user); err != nil {
		return nil, nil, err
	}
	return user, req, nil
}

// Finish возвращает пользователя в главное меню после сравнения
func (s *UserService) Finish(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	return s.SetState(ctx, userID, chatID, entity.StateMainMenu)
}

func (s *UserService) Cancel(ctx context.Context, userID, chatID int64) (*entity.User, error) {
	if err := s.repo.Reset(ctx, userID); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, userID, chatID)
}

// UpdateOptions меняет настройки сравнения пользователя
func (s *UserService) UpdateOptions(ctx context.Context, userID, chatID int64, update func(*entity.ComparisonOptions)) (*entity.User, error) {
	user, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	update(&user.Options)
	if err := s.repo.Save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
