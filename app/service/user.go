package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/soundvault/ms-go-auth/app/entity"
	"github.com/soundvault/ms-go-auth/app/repository"
	"github.com/soundvault/ms-go-auth/app/security"
	"github.com/soundvault/ms-go-auth/app/storage"
	"github.com/soundvault/ms-go-auth/config"
)

type UpdateUserInput struct {
	Username string
	Password string
	File     *UploadedFile
}

// UserService is the account surface over the credential store: profile
// reads and the owner-or-admin mutations (update, delete).
type UserService struct {
	userRepo *repository.UserRepository
	cfg      *config.Config
	uploader storage.Uploader
}

func NewUserService(userRepo *repository.UserRepository, cfg *config.Config, uploader storage.Uploader) *UserService {
	return &UserService{
		userRepo: userRepo,
		cfg:      cfg,
		uploader: uploader,
	}
}

func (s *UserService) List(ctx context.Context, page, size int) ([]*entity.PublicUser, error) {
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}

	users, err := s.userRepo.List(ctx, page*size, size)
	if err != nil {
		return nil, err
	}

	public := make([]*entity.PublicUser, 0, len(users))
	for _, user := range users {
		public = append(public, user.Public())
	}
	return public, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*entity.PublicUser, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// Update mutates a profile. The existence check runs before the
// authorization check so an unauthorized caller cannot probe for ids.
func (s *UserService) Update(ctx context.Context, actor *security.Claims, id string, in UpdateUserInput) (*entity.PublicUser, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if !security.CanMutate(actor.UserID, actor.Role, user.ID) {
		return nil, ErrUnauthorized
	}

	if in.Username != "" {
		user.Username = in.Username
	}

	if in.Password != "" {
		if err := s.cfg.PasswordPolicy.Validate(in.Password); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
		}
		hash, err := security.HashSecret(in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}

	if in.File != nil {
		if err := s.uploader.Upload(ctx, in.File.Name, in.File.Data, in.File.ContentType); err != nil {
			return nil, err
		}
		user.PhotoName = sql.NullString{String: in.File.Name, Valid: true}
	}

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	return user.Public(), nil
}

func (s *UserService) Delete(ctx context.Context, actor *security.Claims, id string) error {
	user, err := s.userRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}

	if !security.CanMutate(actor.UserID, actor.Role, user.ID) {
		return ErrUnauthorized
	}

	return s.userRepo.Delete(ctx, user.ID)
}
