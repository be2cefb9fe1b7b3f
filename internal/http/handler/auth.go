package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"mediagate/internal/service"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type userAuthResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type adminAuthResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Token    string `json:"token"`
}

// Signup godoc
// @Summary Register a viewer account
// @Tags auth
// @Accept json
// @Produce json
// @Param body body service.SignupInput true "credentials"
// @Success 201 {object} userAuthResponse
// @Failure 400 {object} errorPayload
// @Failure 409 {object} errorPayload
// @Router /auth/signup [post]
func Signup(svc service.AccountService, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var in service.SignupInput
		if err := c.BodyParser(&in); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		sess, err := svc.Signup(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(userAuthResponse{
			ID:    sess.User.ID,
			Email: sess.User.Email,
			Token: sess.Token,
		})
	}
}

// Login godoc
// @Summary Log in as a viewer
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} userAuthResponse
// @Failure 401 {object} errorPayload
// @Router /auth/login [post]
func Login(svc service.AccountService, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req credentialsRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		sess, err := svc.Login(c.UserContext(), req.Email, req.Password)
		if err != nil {
			return writeServiceError(c, log, err)
		}
		return c.JSON(userAuthResponse{
			ID:    sess.User.ID,
			Email: sess.User.Email,
			Token: sess.Token,
		})
	}
}

// AdminLogin godoc
// @Summary Log in as an admin
// @Tags admin
// @Accept json
// @Produce json
// @Success 200 {object} adminAuthResponse
// @Failure 401 {object} errorPayload
// @Router /admin/login [post]
func AdminLogin(svc service.AccountService, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req credentialsRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		sess, err := svc.AdminLogin(c.UserContext(), req.Username, req.Password)
		if err != nil {
			return writeServiceError(c, log, err)
		}
		return c.JSON(adminAuthResponse{
			ID:       sess.Admin.ID,
			Username: sess.Admin.Username,
			Role:     string(sess.Admin.Role),
			Token:    sess.Token,
		})
	}
}
