package handler

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"mediagate/internal/http/middleware"
	"mediagate/internal/model"
	"mediagate/internal/service"
)

// GrantHeader carries a per-media stream grant.
const GrantHeader = "X-Media-Grant"

// GrantIssuer signs per-media stream grants.
type GrantIssuer interface {
	IssueGrant(subject, mediaID string) (string, error)
}

// GrantValidator checks per-media stream grants.
type GrantValidator interface {
	ValidateGrant(token, subject, mediaID string) error
}

// StreamObserver records bytes handed to the transport.
type StreamObserver interface {
	ObserveStream(status int, n int64)
}

// StreamOptions configures StreamMedia. Grants is required when
// RequireGrant is set; Metrics may be nil.
type StreamOptions struct {
	RequireGrant bool
	Grants       GrantValidator
	Metrics      StreamObserver
}

type verifyRequest struct {
	Password string `json:"password"`
}

type verifyResponse struct {
	Message string             `json:"message"`
	Media   model.MediaSummary `json:"media"`
	Grant   string             `json:"grant"`
}

// mediaID returns the :id param when it is a UUID.
func mediaID(c *fiber.Ctx) (string, bool) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// pagination parses limit and offset. On bad input it writes a 400 and
// reports false.
func pagination(c *fiber.Ctx) (limit, offset int, ok bool) {
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil {
		_ = writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		return 0, 0, false
	}
	offset, err = strconv.Atoi(c.Query("offset", "0"))
	if err != nil {
		_ = writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		return 0, 0, false
	}
	return limit, offset, true
}

// ListCatalog godoc
// @Summary List media available to viewers
// @Tags media
// @Produce json
// @Security BearerAuth
// @Param limit query int false "page size" default(20)
// @Param offset query int false "page offset" default(0)
// @Success 200 {object} service.CatalogResult
// @Router /media [get]
func ListCatalog(svc service.MediaService, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, offset, ok := pagination(c)
		if !ok {
			return nil
		}

		res, err := svc.Catalog(c.UserContext(), limit, offset)
		if err != nil {
			return writeServiceError(c, log, err)
		}
		return c.JSON(res)
	}
}

// VerifyMedia godoc
// @Summary Check a media access password
// @Description On success returns the disclosable media fields and a short-lived stream grant.
// @Tags media
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "media id"
// @Success 200 {object} verifyResponse
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Failure 404 {object} errorPayload
// @Router /media/{id}/verify [post]
func VerifyMedia(svc service.MediaService, grants GrantIssuer, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := mediaID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var req verifyRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}

		access, err := svc.Verify(c.UserContext(), id, req.Password)
		if err != nil {
			return writeServiceError(c, log, err)
		}

		grant, err := grants.IssueGrant(middleware.Subject(c), id)
		if err != nil {
			return writeServiceError(c, log, err)
		}
		return c.JSON(verifyResponse{
			Message: "Password verified",
			Media:   access.Media,
			Grant:   grant,
		})
	}
}

// StreamMedia godoc
// @Summary Stream media bytes
// @Description Honors a single "Range: bytes=" header. The body is streamed, never buffered.
// @Tags media
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "media id"
// @Param Range header string false "byte range"
// @Success 200 {file} binary
// @Success 206 {file} binary
// @Failure 404 {object} errorPayload
// @Failure 416 {object} errorPayload
// @Router /media/{id}/stream [get]
func StreamMedia(svc service.MediaService, opts StreamOptions, log *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := mediaID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		if opts.RequireGrant {
			grant := c.Get(GrantHeader)
			if grant == "" {
				grant = c.Query("grant")
			}
			if grant == "" {
				return writeError(c, fiber.StatusUnauthorized, "GRANT_REQUIRED", "media access grant required")
			}
			if err := opts.Grants.ValidateGrant(grant, middleware.Subject(c), id); err != nil {
				return writeError(c, fiber.StatusUnauthorized, "INVALID_GRANT", "invalid or expired media grant")
			}
		}

		res, err := svc.Stream(c.UserContext(), id, c.Get(fiber.HeaderRange))
		if err != nil {
			return writeServiceError(c, log, err)
		}

		status := fiber.StatusOK
		if res.Plan.Partial {
			status = fiber.StatusPartialContent
			c.Set(fiber.HeaderContentRange, res.Plan.ContentRange())
		}
		c.Set(fiber.HeaderAcceptRanges, "bytes")
		c.Set(fiber.HeaderContentType, res.MIMEType)
		c.Status(status)

		if opts.Metrics != nil {
			opts.Metrics.ObserveStream(status, res.Plan.Length())
		}
		// fasthttp sets Content-Length from the size and closes the body
		// once the response is written or the client goes away.
		c.Context().SetBodyStream(res.Body, int(res.Plan.Length()))
		return nil
	}
}
