package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/flicky/farm-market-api/internal/dto"
	"github.com/flicky/farm-market-api/internal/repository"
)

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

func (s *UserService) Get(ctx context.Context, id int64) (*dto.UserResponse, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	resp := toUserResponse(user)
	return &resp, nil
}

// Update changes profile fields. A non-zero actor may only edit itself.
func (s *UserService) Update(ctx context.Context, id, actor int64, req dto.UpdateUserRequest) (*dto.UserResponse, error) {
	if actor != 0 && actor != id {
		return nil, ErrForbidden
	}
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Email != nil && *req.Email != user.Email {
		other, err := s.userRepo.GetByEmail(ctx, *req.Email)
		if err != nil {
			return nil, fmt.Errorf("check email: %w", err)
		}
		if other != nil {
			return nil, ErrEmailTaken
		}
		user.Email = *req.Email
	}
	if req.Location != nil {
		user.Location = *req.Location
	}
	if req.Phone != nil {
		user.Phone = *req.Phone
	}
	if req.Description != nil {
		user.Description = *req.Description
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	resp := toUserResponse(user)
	return &resp, nil
}
