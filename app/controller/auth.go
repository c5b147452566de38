package controller

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/soundvault/ms-go-auth/app/dto"
	"github.com/soundvault/ms-go-auth/app/middleware"
	"github.com/soundvault/ms-go-auth/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type AuthController struct {
	authService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{authService: authService}
}

func (c *AuthController) Signup(ctx echo.Context) error {
	in := service.SignupInput{
		Username:   ctx.FormValue("username"),
		Email:      ctx.FormValue("email"),
		Password:   ctx.FormValue("password"),
		Role:       strings.ToUpper(ctx.Param("role")),
		ProductKey: ctx.FormValue("productKey"),
	}

	if in.Username == "" || in.Email == "" || in.Password == "" {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "username, email and password are required"})
	}

	file, err := formFile(ctx, "file")
	if err != nil {
		logrus.WithError(err).Debug("Failed to read signup attachment")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid file upload"})
	}
	in.File = file

	logrus.WithFields(logrus.Fields{
		"email": in.Email,
		"role":  in.Role,
	}).Info("Signup request received")

	user, pair, err := c.authService.Signup(ctx.Request().Context(), in)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRole) {
			logrus.WithField("role", in.Role).Warn("Signup failed: unknown role")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown role"})
		}
		if errors.Is(err, service.ErrEmailTaken) {
			logrus.WithField("email", in.Email).Warn("Signup failed: email already taken")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "email already taken"})
		}
		if errors.Is(err, service.ErrMissingProductKey) {
			logrus.WithField("email", in.Email).Warn("Signup failed: product key missing")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "product key not found"})
		}
		if errors.Is(err, service.ErrInvalidProductKey) {
			logrus.WithField("email", in.Email).Warn("Signup failed: product key invalid")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "product key is not valid"})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			logrus.WithField("email", in.Email).Warn("Signup failed: weak password")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		}
		if errors.Is(err, service.ErrStaleRotation) {
			logrus.WithField("email", in.Email).Warn("Signup failed: token rotation lost a race")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "invalid token"})
		}
		logrus.WithError(err).WithField("email", in.Email).Error("Signup failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	setTokenCookies(ctx, pair)
	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("User registered")
	return ctx.JSON(http.StatusCreated, user)
}

func (c *AuthController) Login(ctx echo.Context) error {
	var req dto.LoginRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind login request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if req.Email == "" || req.Password == "" {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "email and password are required"})
	}

	logrus.WithField("email", req.Email).Info("Login request received")
	user, pair, err := c.authService.Login(ctx.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			logrus.WithField("email", req.Email).Warn("Login failed: invalid credentials")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "invalid credentials"})
		}
		if errors.Is(err, service.ErrStaleRotation) {
			logrus.WithField("email", req.Email).Warn("Login failed: token rotation lost a race")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "invalid token"})
		}
		logrus.WithError(err).WithField("email", req.Email).Error("Login failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	setTokenCookies(ctx, pair)
	logrus.WithField("user_id", user.ID).Info("Login successful")
	return ctx.JSON(http.StatusOK, user)
}

func (c *AuthController) RefreshToken(ctx echo.Context) error {
	claims := middleware.ClaimsFrom(ctx)
	if claims == nil {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	cookie, err := ctx.Cookie(middleware.RefreshCookie)
	if err != nil {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "missing token"})
	}

	pair, err := c.authService.Refresh(ctx.Request().Context(), claims, cookie.Value)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			logrus.WithField("user_id", claims.UserID).Warn("Refresh failed: user not found")
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		if errors.Is(err, service.ErrInvalidToken) || errors.Is(err, service.ErrStaleRotation) {
			logrus.WithField("user_id", claims.UserID).Warn("Refresh failed: token no longer valid")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "invalid token"})
		}
		logrus.WithError(err).WithField("user_id", claims.UserID).Error("Refresh failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	setTokenCookies(ctx, pair)
	logrus.WithField("user_id", claims.UserID).Info("Refresh token rotated")
	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "tokens refreshed"})
}

func (c *AuthController) Logout(ctx echo.Context) error {
	claims := middleware.ClaimsFrom(ctx)
	if claims == nil {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	if err := c.authService.Logout(ctx.Request().Context(), claims.UserID); err != nil {
		logrus.WithError(err).WithField("user_id", claims.UserID).Error("Logout failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	clearTokenCookies(ctx)
	logrus.WithField("user_id", claims.UserID).Info("Logout successful")
	return ctx.NoContent(http.StatusNoContent)
}

func (c *AuthController) ConfirmEmail(ctx echo.Context) error {
	token := ctx.Param("token")
	if token == "" {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "token is required"})
	}

	err := c.authService.ConfirmEmail(ctx.Request().Context(), token)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			logrus.Warn("Confirm email failed: user not found")
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		if errors.Is(err, service.ErrInvalidToken) {
			logrus.Warn("Confirm email failed: invalid token")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "invalid token"})
		}
		if errors.Is(err, service.ErrTokenExpired) {
			logrus.Warn("Confirm email failed: token expired")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "token has expired"})
		}
		logrus.WithError(err).Error("Confirm email failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.Info("Email confirmed")
	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "email confirmed successfully"})
}

func (c *AuthController) ResendConfirmationEmail(ctx echo.Context) error {
	claims := middleware.ClaimsFrom(ctx)
	if claims == nil {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	err := c.authService.ResendConfirmation(ctx.Request().Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			logrus.WithField("user_id", claims.UserID).Warn("Resend confirmation failed: user not found")
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		logrus.WithError(err).WithField("user_id", claims.UserID).Error("Resend confirmation failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("user_id", claims.UserID).Info("Confirmation email resent")
	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "confirmation email sent"})
}

func (c *AuthController) ForgotPassword(ctx echo.Context) error {
	claims := middleware.ClaimsFrom(ctx)
	if claims == nil {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	err := c.authService.ForgotPassword(ctx.Request().Context(), claims.UserID)
	if err != nil && !errors.Is(err, service.ErrUserNotFound) {
		logrus.WithError(err).WithField("user_id", claims.UserID).Error("Forgot password failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("user_id", claims.UserID).Info("Password reset email requested")
	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "if the account exists, a reset email has been sent"})
}

func (c *AuthController) ResetPassword(ctx echo.Context) error {
	token := ctx.Param("token")
	if token == "" {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "token is required"})
	}

	var req dto.ResetPasswordRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind reset password request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if req.Password == "" {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "password is required"})
	}

	err := c.authService.ResetPassword(ctx.Request().Context(), token, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			logrus.Warn("Reset password failed: user not found")
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		if errors.Is(err, service.ErrInvalidToken) {
			logrus.Warn("Reset password failed: invalid token")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "invalid token"})
		}
		if errors.Is(err, service.ErrTokenExpired) {
			logrus.Warn("Reset password failed: token expired")
			return ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "token has expired"})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			logrus.Warn("Reset password failed: weak password")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).Error("Reset password failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.Info("Password reset successful")
	return ctx.JSON(http.StatusOK, dto.MessageResponse{Message: "password reset successfully"})
}

func (c *AuthController) ProductKey(ctx echo.Context) error {
	var req dto.ProductKeyRequest
	if err := ctx.Bind(&req); err != nil {
		logrus.WithError(err).Debug("Failed to bind product key request")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
	}

	if req.Email == "" || req.Role == "" {
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "email and role are required"})
	}

	key, err := c.authService.SignProductKey(req.Email, strings.ToUpper(req.Role))
	if err != nil {
		if errors.Is(err, service.ErrInvalidRole) {
			logrus.WithField("role", req.Role).Warn("Product key failed: unknown role")
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "unknown role"})
		}
		logrus.WithError(err).Error("Product key generation failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithFields(logrus.Fields{
		"email": req.Email,
		"role":  req.Role,
	}).Info("Product key generated")
	return ctx.JSON(http.StatusOK, dto.ProductKeyResponse{ProductKey: key})
}

// setTokenCookies writes the pair as httpOnly cookies so browser scripts
// never see raw tokens.
func setTokenCookies(ctx echo.Context, pair *service.TokenPair) {
	ctx.SetCookie(tokenCookie(middleware.AccessCookie, pair.AccessToken, 0))
	ctx.SetCookie(tokenCookie(middleware.RefreshCookie, pair.RefreshToken, 0))
}

func clearTokenCookies(ctx echo.Context) {
	ctx.SetCookie(tokenCookie(middleware.AccessCookie, "", -1))
	ctx.SetCookie(tokenCookie(middleware.RefreshCookie, "", -1))
}

func tokenCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

// formFile reads an optional multipart attachment. A missing part is not an
// error.
func formFile(ctx echo.Context, name string) (*service.UploadedFile, error) {
	header, err := ctx.FormFile(name)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}

	src, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}

	return &service.UploadedFile{
		Name:        header.Filename,
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
	}, nil
}
