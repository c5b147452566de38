package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soundvault/ms-go-auth/app/entity"
	"github.com/soundvault/ms-go-auth/app/repository"
	"github.com/soundvault/ms-go-auth/app/security"
	"github.com/soundvault/ms-go-auth/app/storage"
	"github.com/soundvault/ms-go-auth/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	ErrEmailTaken         = errors.New("email already taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrInvalidRole        = errors.New("unknown role")
	ErrMissingProductKey  = errors.New("product key not found")
	ErrInvalidProductKey  = errors.New("product key is not valid")
	ErrStaleRotation      = errors.New("refresh token was rotated concurrently")
	ErrUnauthorized       = errors.New("unauthorized user")
	ErrWeakPassword       = errors.New("password does not meet policy requirements")
)

// TokenPair is a freshly minted access/refresh token pair. The refresh
// token is returned exactly once; only its hash is ever stored.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UploadedFile carries an optional asset attached to signup or profile
// update. Only the name is stored on the user record.
type UploadedFile struct {
	Name        string
	Data        []byte
	ContentType string
}

type SignupInput struct {
	Username   string
	Email      string
	Password   string
	Role       string
	ProductKey string
	File       *UploadedFile
}

// AuthService orchestrates signup, login, refresh rotation, logout and the
// capability-token flows (email confirmation, password reset).
type AuthService struct {
	userRepo     *repository.UserRepository
	cfg          *config.Config
	mailer       Mailer
	uploader     storage.Uploader
	accessCodec  *security.Codec
	refreshCodec *security.Codec
}

func NewAuthService(
	userRepo *repository.UserRepository,
	cfg *config.Config,
	mailer Mailer,
	uploader storage.Uploader,
) *AuthService {
	return &AuthService{
		userRepo:     userRepo,
		cfg:          cfg,
		mailer:       mailer,
		uploader:     uploader,
		accessCodec:  security.NewCodec(cfg.AccessTokenSecret),
		refreshCodec: security.NewCodec(cfg.RefreshTokenSecret),
	}
}

// AccessCodec exposes the access-class codec to the guards.
func (s *AuthService) AccessCodec() *security.Codec { return s.accessCodec }

// RefreshCodec exposes the refresh-class codec to the guards.
func (s *AuthService) RefreshCodec() *security.Codec { return s.refreshCodec }

// Signup registers a new account. The admin product-key gate runs before
// anything is persisted so a failed check never leaves a row behind.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*entity.PublicUser, *TokenPair, error) {
	if !entity.ValidRole(in.Role) {
		return nil, nil, ErrInvalidRole
	}

	email := NormalizeEmail(in.Email)

	_, err := s.userRepo.FindByEmail(ctx, email)
	if err == nil {
		return nil, nil, ErrEmailTaken
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil, err
	}

	if in.Role == entity.RoleAdmin {
		if err := s.verifyProductKey(email, in.Role, in.ProductKey); err != nil {
			return nil, nil, err
		}
	}

	if err := s.cfg.PasswordPolicy.Validate(in.Password); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	passwordHash, err := security.HashSecret(in.Password)
	if err != nil {
		return nil, nil, err
	}

	var photoName sql.NullString
	if in.File != nil {
		if err := s.uploader.Upload(ctx, in.File.Name, in.File.Data, in.File.ContentType); err != nil {
			return nil, nil, err
		}
		photoName = sql.NullString{String: in.File.Name, Valid: true}
	}

	now := time.Now()
	user := &entity.User{
		ID:           uuid.New().String(),
		Username:     in.Username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         in.Role,
		Confirmed:    false,
		PhotoName:    photoName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.issueAndPersistTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	if err := s.sendConfirmationMail(user); err != nil {
		return nil, nil, err
	}

	return user.Public(), pair, nil
}

// Login verifies credentials and rotates in a fresh token pair. Unknown
// email and wrong password are deliberately the same failure.
func (s *AuthService) Login(ctx context.Context, email, password string) (*entity.PublicUser, *TokenPair, error) {
	user, err := s.userRepo.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, nil, err
	}

	if !security.VerifySecret(user.PasswordHash, password) {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issueAndPersistTokens(ctx, user)
	if err != nil {
		return nil, nil, err
	}

	return user.Public(), pair, nil
}

// Refresh verifies the presented refresh token against the stored hash and
// rotates in a new pair. The previous refresh token becomes unusable even
// though it has not expired.
func (s *AuthService) Refresh(ctx context.Context, claims *security.Claims, presentedToken string) (*TokenPair, error) {
	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if !user.RefreshTokenHash.Valid || !security.VerifySecret(user.RefreshTokenHash.String, presentedToken) {
		return nil, ErrInvalidToken
	}

	return s.issueAndPersistTokens(ctx, user)
}

// Logout clears the stored refresh-token hash. Logging out twice is not an
// error.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.userRepo.ClearRefreshTokenHash(ctx, userID)
}

// ConfirmEmail consumes a confirm-purpose capability token. Confirming an
// already confirmed account is safe; an expired token fails regardless.
func (s *AuthService) ConfirmEmail(ctx context.Context, token string) error {
	claims, err := s.decodeCapability(token, security.PurposeConfirm)
	if err != nil {
		return err
	}

	if _, err := s.findUser(ctx, claims.UserID); err != nil {
		return err
	}

	if claims.Expired(time.Now()) {
		return ErrTokenExpired
	}

	return s.userRepo.SetConfirmed(ctx, claims.UserID)
}

// ResendConfirmation mints a fresh confirm token for the caller and mails
// it to the registered address.
func (s *AuthService) ResendConfirmation(ctx context.Context, userID string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.sendConfirmationMail(user)
}

// ForgotPassword mints a reset-purpose capability token and mails it to the
// account's registered address, never to a caller-supplied one.
func (s *AuthService) ForgotPassword(ctx context.Context, userID string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	token, err := s.accessCodec.Sign(user.ID, user.Role, security.PurposeReset, s.cfg.AccessTokenTTL)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/auth/reset-password/%s", s.cfg.PublicBaseURL, token)
	body := fmt.Sprintf("<h1>Reset your password</h1><h4>%s</h4>", link)
	return s.mailer.SendMail(s.cfg.SMTP.From, user.Email, "Reset Password", body)
}

// ResetPassword consumes a reset-purpose capability token and overwrites
// the password hash. The live refresh token is left untouched.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	claims, err := s.decodeCapability(token, security.PurposeReset)
	if err != nil {
		return err
	}

	user, err := s.findUser(ctx, claims.UserID)
	if err != nil {
		return err
	}

	if claims.Expired(time.Now()) {
		return ErrTokenExpired
	}

	if err := s.cfg.PasswordPolicy.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %s", ErrWeakPassword, err.Error())
	}

	passwordHash, err := security.HashSecret(newPassword)
	if err != nil {
		return err
	}

	return s.userRepo.UpdatePasswordHash(ctx, user.ID, passwordHash)
}

// SignProductKey derives the deterministic product key for an email/role
// pair and returns its one-way hash. A prospective administrator presents
// that hash at signup.
func (s *AuthService) SignProductKey(email, role string) (string, error) {
	return ProductKeyHash(s.cfg.ProductKeySecret, email, role)
}

// ProductKeyHash is the offline form of SignProductKey, usable without a
// database connection.
func ProductKeyHash(secret, email, role string) (string, error) {
	if !entity.ValidRole(role) {
		return "", ErrInvalidRole
	}
	return security.HashSecret(productKeyComposite(secret, NormalizeEmail(email), role))
}

func (s *AuthService) verifyProductKey(email, role, suppliedHash string) error {
	if suppliedHash == "" {
		return ErrMissingProductKey
	}
	if !security.VerifySecret(suppliedHash, productKeyComposite(s.cfg.ProductKeySecret, email, role)) {
		return ErrInvalidProductKey
	}
	return nil
}

func productKeyComposite(secret, email, role string) string {
	return fmt.Sprintf("%s-%s-%s", email, role, secret)
}

// issueAndPersistTokens mints an access/refresh pair and overwrites the
// stored refresh hash under the rotation CAS. If persistence fails, the
// minted tokens are not returned.
func (s *AuthService) issueAndPersistTokens(ctx context.Context, user *entity.User) (*TokenPair, error) {
	accessToken, err := s.accessCodec.Sign(user.ID, user.Role, security.PurposeAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.refreshCodec.Sign(user.ID, user.Role, security.PurposeRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	refreshHash, err := security.HashSecret(refreshToken)
	if err != nil {
		return nil, err
	}

	err = s.userRepo.RotateRefreshTokenHash(ctx, user.ID, refreshHash, user.TokenVersion)
	if errors.Is(err, repository.ErrStaleRotation) {
		logrus.WithField("user_id", user.ID).Warn("Refresh rotation lost a concurrent race")
		return nil, ErrStaleRotation
	}
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *AuthService) sendConfirmationMail(user *entity.User) error {
	token, err := s.accessCodec.Sign(user.ID, user.Role, security.PurposeConfirm, s.cfg.AccessTokenTTL)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/auth/confirm-email/%s", s.cfg.PublicBaseURL, token)
	body := fmt.Sprintf("<h1>Please confirm your email</h1><h4>%s</h4>", link)
	return s.mailer.SendMail(s.cfg.SMTP.From, user.Email, "Confirm your email", body)
}

func (s *AuthService) decodeCapability(token, purpose string) (*security.Claims, error) {
	claims, err := s.accessCodec.Decode(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) findUser(ctx context.Context, id string) (*entity.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
