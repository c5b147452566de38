package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/soundvault/ms-go-auth/app/dto"
	"github.com/soundvault/ms-go-auth/app/middleware"
	"github.com/soundvault/ms-go-auth/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

type UserController struct {
	userService *service.UserService
}

func NewUserController(userService *service.UserService) *UserController {
	return &UserController{userService: userService}
}

func (c *UserController) List(ctx echo.Context) error {
	page, _ := strconv.Atoi(ctx.QueryParam("page"))
	size, _ := strconv.Atoi(ctx.QueryParam("size"))

	users, err := c.userService.List(ctx.Request().Context(), page, size)
	if err != nil {
		logrus.WithError(err).Error("List users failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, users)
}

func (c *UserController) Get(ctx echo.Context) error {
	id := ctx.Param("id")

	user, err := c.userService.Get(ctx.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		logrus.WithError(err).WithField("user_id", id).Error("Get user failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	return ctx.JSON(http.StatusOK, user)
}

func (c *UserController) Update(ctx echo.Context) error {
	claims := middleware.ClaimsFrom(ctx)
	if claims == nil {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	id := ctx.Param("id")
	in := service.UpdateUserInput{
		Username: ctx.FormValue("username"),
		Password: ctx.FormValue("password"),
	}

	file, err := formFile(ctx, "file")
	if err != nil {
		logrus.WithError(err).Debug("Failed to read profile attachment")
		return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid file upload"})
	}
	in.File = file

	user, err := c.userService.Update(ctx.Request().Context(), claims, id, in)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		if errors.Is(err, service.ErrUnauthorized) {
			logrus.WithFields(logrus.Fields{
				"actor_id": claims.UserID,
				"user_id":  id,
			}).Warn("Update user rejected: not owner or admin")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized user"})
		}
		if errors.Is(err, service.ErrWeakPassword) {
			return ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		}
		logrus.WithError(err).WithField("user_id", id).Error("Update user failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("user_id", id).Info("User updated")
	return ctx.JSON(http.StatusOK, user)
}

func (c *UserController) Delete(ctx echo.Context) error {
	claims := middleware.ClaimsFrom(ctx)
	if claims == nil {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	}

	id := ctx.Param("id")
	err := c.userService.Delete(ctx.Request().Context(), claims, id)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "user not found"})
		}
		if errors.Is(err, service.ErrUnauthorized) {
			logrus.WithFields(logrus.Fields{
				"actor_id": claims.UserID,
				"user_id":  id,
			}).Warn("Delete user rejected: not owner or admin")
			return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized user"})
		}
		logrus.WithError(err).WithField("user_id", id).Error("Delete user failed")
		return ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}

	logrus.WithField("user_id", id).Info("User deleted")
	return ctx.NoContent(http.StatusNoContent)
}
