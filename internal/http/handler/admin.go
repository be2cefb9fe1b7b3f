package handler

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"mediagate/internal/http/middleware"
	"mediagate/internal/model"
	"mediagate/internal/service"
)

type mediaResponse struct {
	Message string       `json:"message"`
	Media   *model.Media `json:"media"`
}

// updatedMedia is the summary returned after an edit, plus the uploader.
type updatedMedia struct {
	model.MediaSummary
	UploadedBy string `json:"uploaded_by"`
}

type updateMediaResponse struct {
	Message string       `json:"message"`
	Media   updatedMedia `json:"media"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type updateMediaRequest struct {
	OriginalName *string `json:"originalName"`
	Password     *string `json:"password"`
}

// UploadMedia godoc
// @Summary Upload a password-protected media file
// @Tags admin
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "media file"
// @Param password formData string true "access password"
// @Success 201 {object} mediaResponse
// @Failure 400 {object} errorPayload
// @Failure 413 {object} errorPayload
// @Failure 415 {object} errorPayload
// @Router /admin/upload [post]
func UploadMedia(svc service.MediaService, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "no file uploaded")
		}
		password := c.FormValue("password")
		if password == "" {
			return writeError(c, fiber.StatusBadRequest, "PASSWORD_REQUIRED", "password is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		m, err := svc.Ingest(c.UserContext(), service.IngestInput{
			Reader:       f,
			Size:         fh.Size,
			DeclaredType: fh.Header.Get(fiber.HeaderContentType),
			OriginalName: fh.Filename,
			Password:     password,
			OwnerID:      middleware.Subject(c),
		})
		if err != nil {
			return writeServiceError(c, log, err)
		}
		return c.Status(fiber.StatusCreated).JSON(mediaResponse{
			Message: "File uploaded successfully",
			Media:   m,
		})
	}
}

// ListAdminMedia godoc
// @Summary List all media with storage details
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.MediaListResult
// @Router /admin/media [get]
func ListAdminMedia(svc service.MediaService, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, offset, ok := pagination(c)
		if !ok {
			return nil
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeServiceError(c, log, err)
		}
		return c.JSON(res)
	}
}

// UpdateMedia godoc
// @Summary Rename a media item or rotate its password
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "media id"
// @Success 200 {object} updateMediaResponse
// @Failure 400 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /admin/media/{id} [put]
func UpdateMedia(svc service.MediaService, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := mediaID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var req updateMediaRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		m, err := svc.Update(c.UserContext(), id, service.UpdateInput{
			OriginalName: req.OriginalName,
			Password:     req.Password,
		})
		if err != nil {
			return writeServiceError(c, log, err)
		}
		return c.JSON(updateMediaResponse{
			Message: "Media updated successfully",
			Media:   updatedMedia{MediaSummary: m.Summary(), UploadedBy: m.UploadedBy},
		})
	}
}

// DeleteMedia godoc
// @Summary Delete a media item and its file
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "media id"
// @Success 200 {object} messageResponse
// @Failure 404 {object} errorPayload
// @Router /admin/media/{id} [delete]
func DeleteMedia(svc service.MediaService, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := mediaID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, log, err)
		}
		return c.JSON(messageResponse{Message: "Media deleted successfully"})
	}
}
