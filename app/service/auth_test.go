package service_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/soundvault/ms-go-auth/app/entity"
	"github.com/soundvault/ms-go-auth/app/repository"
	"github.com/soundvault/ms-go-auth/app/security"
	"github.com/soundvault/ms-go-auth/app/service"
	"github.com/soundvault/ms-go-auth/config"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"
)

const (
	findByEmailQuery    = `(?s)SELECT id, username, email, password_hash, role, confirmed, refresh_token_hash, token_version, photo_name, created_at, updated_at FROM users WHERE email = \?`
	findByIDQuery       = `(?s)SELECT id, username, email, password_hash, role, confirmed, refresh_token_hash, token_version, photo_name, created_at, updated_at FROM users WHERE id = \?`
	insertUserQuery     = `(?s)INSERT INTO users \(id, username, email, password_hash, role, confirmed, photo_name, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?, \?, \?, \?, \?\)`
	rotateRefreshQuery  = `(?s)UPDATE users SET\s+refresh_token_hash = \?,\s+token_version = token_version \+ 1,\s+updated_at = \?\s+WHERE id = \? AND token_version = \?`
	clearRefreshQuery   = `(?s)UPDATE users SET\s+refresh_token_hash = NULL,\s+token_version = token_version \+ 1,\s+updated_at = \?\s+WHERE id = \?`
	setConfirmedQuery   = `(?s)UPDATE users SET confirmed = true, updated_at = \? WHERE id = \?`
	updatePasswordQuery = `(?s)UPDATE users SET password_hash = \?, updated_at = \? WHERE id = \?`
)

var userColumns = []string{
	"id",
	"username",
	"email",
	"password_hash",
	"role",
	"confirmed",
	"refresh_token_hash",
	"token_version",
	"photo_name",
	"created_at",
	"updated_at",
}

type fakeMailer struct {
	sent    int
	from    string
	to      string
	subject string
	body    string
	err     error
}

func (m *fakeMailer) SendMail(from, to, subject, htmlBody string) error {
	if m.err != nil {
		return m.err
	}
	m.sent++
	m.from, m.to, m.subject, m.body = from, to, subject, htmlBody
	return nil
}

type fakeUploader struct {
	uploads []string
	err     error
}

func (u *fakeUploader) Upload(_ context.Context, filename string, _ []byte, _ string) error {
	if u.err != nil {
		return u.err
	}
	u.uploads = append(u.uploads, filename)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		PublicBaseURL:      "http://localhost:8080",
		AccessTokenSecret:  "access-secret",
		RefreshTokenSecret: "refresh-secret",
		ProductKeySecret:   "product-secret",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		PasswordPolicy: config.PasswordPolicy{
			MinLength: 1,
		},
		SMTP: config.SMTPConfig{From: "noreply@example.com"},
	}
}

func newAuthServiceWithMock(t *testing.T) (*service.AuthService, sqlmock.Sqlmock, *fakeMailer, *fakeUploader, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	mailer := &fakeMailer{}
	uploader := &fakeUploader{}
	svc := service.NewAuthService(repository.NewUserRepository(db), testConfig(), mailer, uploader)

	return svc, mock, mailer, uploader, func() { _ = db.Close() }
}

func userRow(id, email, passwordHash, role string, refreshHash sql.NullString, version uint64) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userColumns).AddRow(
		id,
		"alice",
		email,
		passwordHash,
		role,
		true,
		refreshHash,
		version,
		sql.NullString{},
		now,
		now,
	)
}

func TestAuthService_Signup_CreatesUnconfirmedUser(t *testing.T) {
	svc, mock, mailer, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(insertUserQuery).
		WithArgs(sqlmock.AnyArg(), "alice", "alice@example.com", sqlmock.AnyArg(), entity.RoleUser, false, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(rotateRefreshQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, pair, err := svc.Signup(context.Background(), service.SignupInput{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "password",
		Role:     entity.RoleUser,
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if user.Confirmed {
		t.Fatalf("expected new user to be unconfirmed")
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected a full token pair")
	}
	if mailer.sent != 1 || mailer.to != "alice@example.com" {
		t.Fatalf("expected confirmation mail to alice@example.com, got %q", mailer.to)
	}
	if !strings.Contains(mailer.body, "/auth/confirm-email/") {
		t.Fatalf("expected confirmation link in mail body: %q", mailer.body)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Signup_EmailTaken(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("alice@example.com").
		WillReturnRows(userRow("user-1", "alice@example.com", "hash", entity.RoleUser, sql.NullString{}, 0))

	_, _, err := svc.Signup(context.Background(), service.SignupInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password",
		Role:     entity.RoleUser,
	})
	if !errors.Is(err, service.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Signup_AdminWithoutProductKey(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	// No insert expectation: the gate must run before anything is persisted.
	mock.ExpectQuery(findByEmailQuery).
		WithArgs("boss@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, _, err := svc.Signup(context.Background(), service.SignupInput{
		Username: "boss",
		Email:    "boss@example.com",
		Password: "password",
		Role:     entity.RoleAdmin,
	})
	if !errors.Is(err, service.ErrMissingProductKey) {
		t.Fatalf("expected ErrMissingProductKey, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Signup_AdminWithWrongProductKey(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("boss@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	// A key minted for somebody else must not open the gate.
	key, err := svc.SignProductKey("other@example.com", entity.RoleAdmin)
	if err != nil {
		t.Fatalf("sign product key failed: %v", err)
	}

	_, _, err = svc.Signup(context.Background(), service.SignupInput{
		Username:   "boss",
		Email:      "boss@example.com",
		Password:   "password",
		Role:       entity.RoleAdmin,
		ProductKey: key,
	})
	if !errors.Is(err, service.ErrInvalidProductKey) {
		t.Fatalf("expected ErrInvalidProductKey, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Signup_AdminWithProductKey(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	key, err := svc.SignProductKey("boss@example.com", entity.RoleAdmin)
	if err != nil {
		t.Fatalf("sign product key failed: %v", err)
	}

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("boss@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(insertUserQuery).
		WithArgs(sqlmock.AnyArg(), "boss", "boss@example.com", sqlmock.AnyArg(), entity.RoleAdmin, false, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(rotateRefreshQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, _, err := svc.Signup(context.Background(), service.SignupInput{
		Username:   "boss",
		Email:      "boss@example.com",
		Password:   "password",
		Role:       entity.RoleAdmin,
		ProductKey: key,
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if user.Role != entity.RoleAdmin {
		t.Fatalf("expected ADMIN role, got %q", user.Role)
	}
	if user.Confirmed {
		t.Fatalf("expected admin to start unconfirmed")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Signup_UploadsAttachment(t *testing.T) {
	svc, mock, _, uploader, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(insertUserQuery).
		WithArgs(sqlmock.AnyArg(), "alice", "alice@example.com", sqlmock.AnyArg(), entity.RoleUser, false, sql.NullString{String: "avatar.png", Valid: true}, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(rotateRefreshQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, _, err := svc.Signup(context.Background(), service.SignupInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password",
		Role:     entity.RoleUser,
		File: &service.UploadedFile{
			Name:        "avatar.png",
			Data:        []byte("png"),
			ContentType: "image/png",
		},
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if len(uploader.uploads) != 1 || uploader.uploads[0] != "avatar.png" {
		t.Fatalf("expected avatar.png upload, got %v", uploader.uploads)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Signup_MailFailureSurfaces(t *testing.T) {
	svc, mock, mailer, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mailer.err = errors.New("smtp connection refused")

	// The row and the refresh hash are persisted before the send, so the
	// failure surfaces after both writes.
	mock.ExpectQuery(findByEmailQuery).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(insertUserQuery).
		WithArgs(sqlmock.AnyArg(), "alice", "alice@example.com", sqlmock.AnyArg(), entity.RoleUser, false, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(rotateRefreshQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), uint64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, _, err := svc.Signup(context.Background(), service.SignupInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password",
		Role:     entity.RoleUser,
	})
	if !errors.Is(err, mailer.err) {
		t.Fatalf("expected mail failure to surface, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Signup_UploadFailureLeavesNoRow(t *testing.T) {
	svc, mock, _, uploader, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	uploader.err = errors.New("object store unreachable")

	// The upload runs before the insert: no insert expectation here.
	mock.ExpectQuery(findByEmailQuery).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, _, err := svc.Signup(context.Background(), service.SignupInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "password",
		Role:     entity.RoleUser,
		File: &service.UploadedFile{
			Name:        "avatar.png",
			Data:        []byte("png"),
			ContentType: "image/png",
		},
	})
	if !errors.Is(err, uploader.err) {
		t.Fatalf("expected upload failure to surface, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_ForgotPassword_MailFailureSurfaces(t *testing.T) {
	svc, mock, mailer, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mailer.err = errors.New("smtp connection refused")

	mock.ExpectQuery(findByIDQuery).
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "alice@example.com", "pw-hash", entity.RoleUser, sql.NullString{}, 0))

	if err := svc.ForgotPassword(context.Background(), "user-1"); !errors.Is(err, mailer.err) {
		t.Fatalf("expected mail failure to surface, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Login_UnknownEmail(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, _, err := svc.Login(context.Background(), "nobody@example.com", "password")
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	hash, err := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("alice@example.com").
		WillReturnRows(userRow("user-1", "alice@example.com", string(hash), entity.RoleUser, sql.NullString{}, 0))

	// Wrong password and unknown email must be the same failure.
	_, _, err = svc.Login(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, service.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Login_RotatesRefreshHash(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	mock.ExpectQuery(findByEmailQuery).
		WithArgs("alice@example.com").
		WillReturnRows(userRow("user-1", "alice@example.com", string(hash), entity.RoleUser, sql.NullString{String: "old-hash", Valid: true}, 4))
	mock.ExpectExec(rotateRefreshQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "user-1", uint64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	user, pair, err := svc.Login(context.Background(), "alice@example.com", "password")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if user.ID != "user-1" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected a full token pair")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Refresh_RotatesPair(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	presented := "presented-refresh-token"
	storedHash, err := bcrypt.GenerateFromPassword([]byte(presented), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	mock.ExpectQuery(findByIDQuery).
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "alice@example.com", "pw-hash", entity.RoleUser, sql.NullString{String: string(storedHash), Valid: true}, 2))
	mock.ExpectExec(rotateRefreshQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "user-1", uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claims := &security.Claims{UserID: "user-1", Role: entity.RoleUser, Purpose: security.PurposeRefresh}
	pair, err := svc.Refresh(context.Background(), claims, presented)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if pair.RefreshToken == presented {
		t.Fatalf("expected a new refresh token")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Refresh_RejectsSupersededToken(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	currentHash, err := bcrypt.GenerateFromPassword([]byte("current-token"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	mock.ExpectQuery(findByIDQuery).
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "alice@example.com", "pw-hash", entity.RoleUser, sql.NullString{String: string(currentHash), Valid: true}, 3))

	claims := &security.Claims{UserID: "user-1", Role: entity.RoleUser, Purpose: security.PurposeRefresh}
	_, err = svc.Refresh(context.Background(), claims, "previous-token")
	if !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Refresh_RejectsClearedSession(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByIDQuery).
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "alice@example.com", "pw-hash", entity.RoleUser, sql.NullString{}, 5))

	claims := &security.Claims{UserID: "user-1", Role: entity.RoleUser, Purpose: security.PurposeRefresh}
	_, err := svc.Refresh(context.Background(), claims, "any-token")
	if !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Refresh_StaleRotation(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	presented := "presented-refresh-token"
	storedHash, err := bcrypt.GenerateFromPassword([]byte(presented), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}

	mock.ExpectQuery(findByIDQuery).
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "alice@example.com", "pw-hash", entity.RoleUser, sql.NullString{String: string(storedHash), Valid: true}, 2))
	mock.ExpectExec(rotateRefreshQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "user-1", uint64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claims := &security.Claims{UserID: "user-1", Role: entity.RoleUser, Purpose: security.PurposeRefresh}
	_, err = svc.Refresh(context.Background(), claims, presented)
	if !errors.Is(err, service.ErrStaleRotation) {
		t.Fatalf("expected ErrStaleRotation, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_Logout_ClearsSession(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectExec(clearRefreshQuery).
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.Logout(context.Background(), "user-1"); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_ConfirmEmail(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	token, err := security.NewCodec("access-secret").Sign("user-1", entity.RoleUser, security.PurposeConfirm, time.Hour)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	mock.ExpectQuery(findByIDQuery).
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "alice@example.com", "pw-hash", entity.RoleUser, sql.NullString{}, 0))
	mock.ExpectExec(setConfirmedQuery).
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.ConfirmEmail(context.Background(), token); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_ConfirmEmail_RejectsAccessToken(t *testing.T) {
	svc, _, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	// An access token signed with the same secret must not confirm an
	// account.
	token, err := security.NewCodec("access-secret").Sign("user-1", entity.RoleUser, security.PurposeAccess, time.Hour)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	if err := svc.ConfirmEmail(context.Background(), token); !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthService_ConfirmEmail_Expired(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	token, err := security.NewCodec("access-secret").Sign("user-1", entity.RoleUser, security.PurposeConfirm, -time.Minute)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	mock.ExpectQuery(findByIDQuery).
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "alice@example.com", "pw-hash", entity.RoleUser, sql.NullString{}, 0))

	if err := svc.ConfirmEmail(context.Background(), token); !errors.Is(err, service.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_ForgotPassword_MailsRegisteredAddress(t *testing.T) {
	svc, mock, mailer, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	mock.ExpectQuery(findByIDQuery).
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "alice@example.com", "pw-hash", entity.RoleUser, sql.NullString{}, 0))

	if err := svc.ForgotPassword(context.Background(), "user-1"); err != nil {
		t.Fatalf("forgot password failed: %v", err)
	}
	if mailer.to != "alice@example.com" {
		t.Fatalf("expected mail to registered address, got %q", mailer.to)
	}
	if !strings.Contains(mailer.body, "/auth/reset-password/") {
		t.Fatalf("expected reset link in mail body: %q", mailer.body)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_ResetPassword_KeepsRefreshSession(t *testing.T) {
	svc, mock, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	token, err := security.NewCodec("access-secret").Sign("user-1", entity.RoleUser, security.PurposeReset, time.Hour)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	// Only the password hash changes: no refresh-clear statement expected.
	mock.ExpectQuery(findByIDQuery).
		WithArgs("user-1").
		WillReturnRows(userRow("user-1", "alice@example.com", "pw-hash", entity.RoleUser, sql.NullString{String: "live-session", Valid: true}, 2))
	mock.ExpectExec(updatePasswordQuery).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := svc.ResetPassword(context.Background(), token, "new-password"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuthService_ResetPassword_RejectsConfirmToken(t *testing.T) {
	svc, _, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	token, err := security.NewCodec("access-secret").Sign("user-1", entity.RoleUser, security.PurposeConfirm, time.Hour)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	err = svc.ResetPassword(context.Background(), token, "new-password")
	if !errors.Is(err, service.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAuthService_SignProductKey_VerifiableComposite(t *testing.T) {
	svc, _, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	key, err := svc.SignProductKey("Boss@Example.com", entity.RoleAdmin)
	if err != nil {
		t.Fatalf("sign product key failed: %v", err)
	}

	composite := fmt.Sprintf("%s-%s-%s", "boss@example.com", entity.RoleAdmin, "product-secret")
	if bcrypt.CompareHashAndPassword([]byte(key), []byte(composite)) != nil {
		t.Fatalf("product key does not verify against its composite")
	}
}

func TestAuthService_SignProductKey_UnknownRole(t *testing.T) {
	svc, _, _, _, cleanup := newAuthServiceWithMock(t)
	defer cleanup()

	if _, err := svc.SignProductKey("boss@example.com", "OWNER"); !errors.Is(err, service.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}
