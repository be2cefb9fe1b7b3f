package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"mediagate/internal/auth"
	"mediagate/internal/http/middleware"
	"mediagate/internal/logging"
	"mediagate/internal/model"
	repoMocks "mediagate/internal/repository/mocks"
	"mediagate/internal/service"
	serviceMocks "mediagate/internal/service/mocks"
	"mediagate/internal/storage"
	"mediagate/internal/stream"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService(auth.TokenConfig{Secret: testSecret})
	require.NoError(t, err)
	return tokens
}

// asSubject stands in for Authenticate in handler-level tests.
func asSubject(subject string, role model.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.SubjectLocalKey, subject)
		c.Locals(middleware.RoleLocalKey, role)
		return c.Next()
	}
}

func decodeError(t *testing.T, r io.Reader) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	return body
}

func jsonRequest(method, target string, v any) *http.Request {
	b, _ := json.Marshal(v)
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp.Body).Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListCatalog(t *testing.T) {
	mockSvc := new(serviceMocks.MockMediaService)
	app := newTestApp()
	app.Get("/media", ListCatalog(mockSvc, logging.Discard()))

	t.Run("success", func(t *testing.T) {
		expected := &service.CatalogResult{
			Items: []model.MediaSummary{{ID: uuid.NewString(), Name: "clip.mp4", Category: model.CategoryVideo}},
			Total: 1,
		}
		mockSvc.On("Catalog", mock.Anything, 10, 0).Return(expected, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/media?limit=10&offset=0", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var raw map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
		assert.Contains(t, raw, "data")
		assert.NotContains(t, string(raw["data"]), "password")
		assert.NotContains(t, string(raw["data"]), "storage")
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/media?limit=abc", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_LIMIT", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("Catalog", mock.Anything, 20, 0).Return(nil, errors.New("db error")).Once()

		req := httptest.NewRequest(http.MethodGet, "/media", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeError(t, resp.Body)
		assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
		assert.NotContains(t, body.Error.Message, "db error")
		mockSvc.AssertExpectations(t)
	})
}

func TestVerifyMedia(t *testing.T) {
	mockSvc := new(serviceMocks.MockMediaService)
	tokens := newTestTokens(t)
	app := newTestApp()
	app.Post("/media/:id/verify", asSubject("user-1", model.RoleUser), VerifyMedia(mockSvc, tokens, logging.Discard()))

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		summary := model.MediaSummary{ID: id, Name: "clip.mp4", Category: model.CategoryVideo, MIMEType: "video/mp4", Size: 10}
		mockSvc.On("Verify", mock.Anything, id, "s3cret").
			Return(&model.AccessGrant{Match: true, Media: summary}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/media/"+id+"/verify", verifyRequest{Password: "s3cret"}))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body verifyResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "Password verified", body.Message)
		assert.Equal(t, summary, body.Media)
		assert.NoError(t, tokens.ValidateGrant(body.Grant, "user-1", id))
		mockSvc.AssertExpectations(t)
	})

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"incorrect password", service.ErrIncorrectPassword, http.StatusUnauthorized, "INCORRECT_PASSWORD"},
		{"missing password", service.ErrPasswordRequired, http.StatusBadRequest, "PASSWORD_REQUIRED"},
		{"not found", service.ErrMediaNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"internal", errors.New("bcrypt exploded"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := uuid.NewString()
			mockSvc.On("Verify", mock.Anything, id, mock.Anything).Return(nil, tt.err).Once()

			resp, _ := app.Test(jsonRequest(http.MethodPost, "/media/"+id+"/verify", verifyRequest{Password: "x"}))
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeError(t, resp.Body).Error.Code)
		})
	}

	t.Run("invalid id", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPost, "/media/not-a-uuid/verify", verifyRequest{Password: "x"}))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp.Body).Error.Code)
	})
}

func streamResult(content, mimeType string, plan stream.Plan) *service.StreamResult {
	return &service.StreamResult{
		MIMEType: mimeType,
		Plan:     plan,
		Body:     io.NopCloser(strings.NewReader(content[plan.Start : plan.End+1])),
	}
}

type recordingObserver struct {
	status int
	n      int64
}

func (r *recordingObserver) ObserveStream(status int, n int64) {
	r.status, r.n = status, n
}

func TestStreamMedia(t *testing.T) {
	const content = "0123456789"
	mockSvc := new(serviceMocks.MockMediaService)
	metrics := &recordingObserver{}
	app := newTestApp()
	app.Get("/media/:id/stream", asSubject("user-1", model.RoleUser),
		StreamMedia(mockSvc, StreamOptions{Metrics: metrics}, logging.Discard()))

	t.Run("full content", func(t *testing.T) {
		id := uuid.NewString()
		plan, err := stream.Resolve("", 10)
		require.NoError(t, err)
		mockSvc.On("Stream", mock.Anything, id, "").Return(streamResult(content, "video/mp4", plan), nil).Once()

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/media/"+id+"/stream", nil))
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
		assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
		assert.Equal(t, "10", resp.Header.Get("Content-Length"))
		assert.Empty(t, resp.Header.Get("Content-Range"))
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, content, string(body))
		assert.Equal(t, http.StatusOK, metrics.status)
		assert.Equal(t, int64(10), metrics.n)
	})

	t.Run("partial content", func(t *testing.T) {
		id := uuid.NewString()
		plan, err := stream.Resolve("bytes=2-5", 10)
		require.NoError(t, err)
		mockSvc.On("Stream", mock.Anything, id, "bytes=2-5").Return(streamResult(content, "audio/mpeg", plan), nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/media/"+id+"/stream", nil)
		req.Header.Set("Range", "bytes=2-5")
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
		assert.Equal(t, "bytes 2-5/10", resp.Header.Get("Content-Range"))
		assert.Equal(t, "4", resp.Header.Get("Content-Length"))
		assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "2345", string(body))
	})

	t.Run("range not satisfiable", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Stream", mock.Anything, id, "bytes=10-").Return(nil, &service.RangeError{Size: 10}).Once()

		req := httptest.NewRequest(http.MethodGet, "/media/"+id+"/stream", nil)
		req.Header.Set("Range", "bytes=10-")
		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
		assert.Equal(t, "bytes */10", resp.Header.Get("Content-Range"))
		assert.Equal(t, "RANGE_NOT_SATISFIABLE", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("file missing", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Stream", mock.Anything, id, "").Return(nil, service.ErrFileMissing).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/media/"+id+"/stream", nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "FILE_NOT_FOUND", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("storage fault is generic", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Stream", mock.Anything, id, "").
			Return(nil, errors.Join(service.ErrStorage, errors.New("open /srv/uploads/media/x.mp4: permission denied"))).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/media/"+id+"/stream", nil))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		body := decodeError(t, resp.Body)
		assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
		assert.NotContains(t, body.Error.Message, "/srv/uploads")
	})

	mockSvc.AssertExpectations(t)
}

func TestStreamMedia_RequireGrant(t *testing.T) {
	const content = "0123456789"
	mockSvc := new(serviceMocks.MockMediaService)
	tokens := newTestTokens(t)
	app := newTestApp()
	app.Get("/media/:id/stream", asSubject("user-1", model.RoleUser),
		StreamMedia(mockSvc, StreamOptions{RequireGrant: true, Grants: tokens}, logging.Discard()))

	id := uuid.NewString()
	plan, err := stream.Resolve("", 10)
	require.NoError(t, err)

	t.Run("missing grant", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/media/"+id+"/stream", nil))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "GRANT_REQUIRED", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("grant for another media", func(t *testing.T) {
		grant, err := tokens.IssueGrant("user-1", uuid.NewString())
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/media/"+id+"/stream", nil)
		req.Header.Set(GrantHeader, grant)

		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "INVALID_GRANT", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("grant in query", func(t *testing.T) {
		grant, err := tokens.IssueGrant("user-1", id)
		require.NoError(t, err)
		mockSvc.On("Stream", mock.Anything, id, "").Return(streamResult(content, "video/mp4", plan), nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/media/"+id+"/stream?grant="+grant, nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func multipartUpload(t *testing.T, filename, contentType, content, password string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := writer.CreatePart(h)
		require.NoError(t, err)
		part.Write([]byte(content))
	}
	if password != "" {
		require.NoError(t, writer.WriteField("password", password))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUploadMedia(t *testing.T) {
	mockSvc := new(serviceMocks.MockMediaService)
	app := newTestApp()
	app.Post("/admin/upload", asSubject("admin-1", model.RoleAdmin), UploadMedia(mockSvc, logging.Discard()))

	upload := func(filename, contentType, content, password string) *http.Response {
		body, ct := multipartUpload(t, filename, contentType, content, password)
		req := httptest.NewRequest(http.MethodPost, "/admin/upload", body)
		req.Header.Set("Content-Type", ct)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	t.Run("success", func(t *testing.T) {
		expected := &model.Media{ID: uuid.NewString(), OriginalName: "clip.mp4", PasswordHash: "secret-hash", StoragePath: "media/x.mp4"}
		mockSvc.On("Ingest", mock.Anything, mock.MatchedBy(func(in service.IngestInput) bool {
			return in.OriginalName == "clip.mp4" && in.DeclaredType == "video/mp4" &&
				in.Password == "s3cret" && in.OwnerID == "admin-1" && in.Size == 11 && in.Reader != nil
		})).Return(expected, nil).Once()

		resp := upload("clip.mp4", "video/mp4", "hello world", "s3cret")
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		raw, _ := io.ReadAll(resp.Body)
		assert.NotContains(t, string(raw), "secret-hash")
		var result mediaResponse
		require.NoError(t, json.Unmarshal(raw, &result))
		assert.Equal(t, "File uploaded successfully", result.Message)
		assert.Equal(t, expected.ID, result.Media.ID)
		mockSvc.AssertExpectations(t)
	})

	t.Run("no file", func(t *testing.T) {
		resp := upload("", "", "", "s3cret")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "FILE_REQUIRED", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("no password", func(t *testing.T) {
		resp := upload("clip.mp4", "video/mp4", "hello", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "PASSWORD_REQUIRED", decodeError(t, resp.Body).Error.Code)
	})

	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"short password", service.ErrPasswordTooShort, http.StatusBadRequest, "PASSWORD_TOO_SHORT"},
		{"unsupported type", service.ErrUnsupportedType, http.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE"},
		{"storage fault", service.ErrStorage, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc.On("Ingest", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			resp := upload("setup.exe", "application/x-msdownload", "MZ", "abc")
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeError(t, resp.Body).Error.Code)
		})
	}
}

func TestUpdateMedia(t *testing.T) {
	mockSvc := new(serviceMocks.MockMediaService)
	app := newTestApp()
	app.Put("/admin/media/:id", UpdateMedia(mockSvc, logging.Discard()))

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Update", mock.Anything, id, mock.MatchedBy(func(in service.UpdateInput) bool {
			return in.OriginalName != nil && *in.OriginalName == "renamed.mp4" && in.Password == nil
		})).Return(&model.Media{
			ID:           id,
			OriginalName: "renamed.mp4",
			StoragePath:  "media/secret-key.mp4",
			PasswordHash: "secret-hash",
			UploadedBy:   "admin-1",
		}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPut, "/admin/media/"+id, map[string]string{"originalName": "renamed.mp4"}))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		raw, _ := io.ReadAll(resp.Body)
		assert.NotContains(t, string(raw), "storage_path")
		assert.NotContains(t, string(raw), "secret-key")
		assert.NotContains(t, string(raw), "secret-hash")

		var result updateMediaResponse
		require.NoError(t, json.Unmarshal(raw, &result))
		assert.Equal(t, "Media updated successfully", result.Message)
		assert.Equal(t, id, result.Media.ID)
		assert.Equal(t, "renamed.mp4", result.Media.Name)
		assert.Equal(t, "admin-1", result.Media.UploadedBy)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Update", mock.Anything, id, mock.Anything).Return(nil, service.ErrMediaNotFound).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPut, "/admin/media/"+id, map[string]string{"password": "n3w-pass"}))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		resp, _ := app.Test(jsonRequest(http.MethodPut, "/admin/media/invalid-uuid", map[string]string{}))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp.Body).Error.Code)
	})
}

func TestDeleteMedia(t *testing.T) {
	mockSvc := new(serviceMocks.MockMediaService)
	app := newTestApp()
	app.Delete("/admin/media/:id", DeleteMedia(mockSvc, logging.Discard()))

	t.Run("success", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Delete", mock.Anything, id).Return(nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/admin/media/"+id, nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result messageResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, "Media deleted successfully", result.Message)
		mockSvc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Delete", mock.Anything, id).Return(service.ErrMediaNotFound).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/admin/media/"+id, nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp.Body).Error.Code)
		mockSvc.AssertExpectations(t)
	})

	t.Run("service error", func(t *testing.T) {
		id := uuid.NewString()
		mockSvc.On("Delete", mock.Anything, id).Return(errors.New("delete error")).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodDelete, "/admin/media/"+id, nil))
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})
}

func TestAuthHandlers(t *testing.T) {
	mockSvc := new(serviceMocks.MockAccountService)
	app := newTestApp()
	app.Post("/auth/signup", Signup(mockSvc, logging.Discard()))
	app.Post("/auth/login", Login(mockSvc, logging.Discard()))
	app.Post("/admin/login", AdminLogin(mockSvc, logging.Discard()))

	t.Run("signup success", func(t *testing.T) {
		in := service.SignupInput{Email: "viewer@example.com", Password: "longenough"}
		mockSvc.On("Signup", mock.Anything, in).
			Return(&service.UserSession{User: &model.User{ID: "u1", Email: in.Email}, Token: "tok"}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/auth/signup", in))
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var body userAuthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, userAuthResponse{ID: "u1", Email: in.Email, Token: "tok"}, body)
	})

	t.Run("signup validation", func(t *testing.T) {
		mockSvc.On("Signup", mock.Anything, mock.Anything).
			Return(nil, &service.ValidationError{Fields: map[string]string{"password": "min=8"}}).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/auth/signup", service.SignupInput{Email: "a@b.co", Password: "x"}))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeError(t, resp.Body)
		assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
		assert.Equal(t, "min=8", body.Error.Details["password"])
	})

	t.Run("signup conflict", func(t *testing.T) {
		mockSvc.On("Signup", mock.Anything, mock.Anything).Return(nil, service.ErrEmailTaken).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/auth/signup", service.SignupInput{Email: "a@b.co", Password: "longenough"}))
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "EMAIL_TAKEN", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("login invalid credentials", func(t *testing.T) {
		mockSvc.On("Login", mock.Anything, "a@b.co", "wrong").Return(nil, service.ErrInvalidCredentials).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/auth/login", credentialsRequest{Email: "a@b.co", Password: "wrong"}))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "INVALID_CREDENTIALS", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("admin login", func(t *testing.T) {
		mockSvc.On("AdminLogin", mock.Anything, "root", "admin-pass").Return(&service.AdminSession{
			Admin: &model.Admin{ID: "a1", Username: "root", Role: model.RoleAdmin},
			Token: "tok",
		}, nil).Once()

		resp, _ := app.Test(jsonRequest(http.MethodPost, "/admin/login", credentialsRequest{Username: "root", Password: "admin-pass"}))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body adminAuthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, adminAuthResponse{ID: "a1", Username: "root", Role: "admin", Token: "tok"}, body)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp.Body).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestRouting(t *testing.T) {
	app := newTestApp()
	tokens := newTestTokens(t)
	mediaSvc := new(serviceMocks.MockMediaService)

	RegisterRoutes(app, Deps{
		Media:    mediaSvc,
		Accounts: new(serviceMocks.MockAccountService),
		Tokens:   tokens,
		Log:      logging.Discard(),
	})

	userTok, err := tokens.IssueSession("user-1", model.RoleUser)
	require.NoError(t, err)
	adminTok, err := tokens.IssueSession("admin-1", model.RoleAdmin)
	require.NoError(t, err)

	t.Run("not found route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/non-existent", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("media requires token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/media", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("admin routes reject users", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/media", nil)
		req.Header.Set("Authorization", "Bearer "+userTok)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "FORBIDDEN", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("admin can list media", func(t *testing.T) {
		mediaSvc.On("List", mock.Anything, 20, 0).Return(&service.MediaListResult{}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/admin/media", nil)
		req.Header.Set("Authorization", "Bearer "+adminTok)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mediaSvc.AssertExpectations(t)
	})
}

func TestIsStreamRoute(t *testing.T) {
	assert.True(t, IsStreamRoute("/media/"+uuid.NewString()+"/stream"))
	assert.False(t, IsStreamRoute("/media/"+uuid.NewString()+"/verify"))
	assert.False(t, IsStreamRoute("/admin/media"))
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"fiber 413", fiber.ErrRequestEntityTooLarge, fiber.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{"fiber 403", fiber.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN"},
		{"fiber 502", fiber.ErrBadGateway, fiber.StatusInternalServerError, "INTERNAL_ERROR"},
		{"wrapped not found", fmt.Errorf("lookup: %w", service.ErrMediaNotFound), fiber.StatusNotFound, "NOT_FOUND"},
		{"file missing", service.ErrFileMissing, fiber.StatusNotFound, "FILE_NOT_FOUND"},
		{"short password", service.ErrPasswordTooShort, fiber.StatusBadRequest, "PASSWORD_TOO_SHORT"},
		{"unsupported", service.ErrUnsupportedType, fiber.StatusUnsupportedMediaType, "UNSUPPORTED_MEDIA_TYPE"},
		{"storage fault", fmt.Errorf("%w: open: boom", service.ErrStorage), fiber.StatusInternalServerError, "INTERNAL_ERROR"},
		{"validation", &service.ValidationError{Fields: map[string]string{"email": "email"}}, fiber.StatusBadRequest, "VALIDATION_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp()
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body := decodeError(t, resp.Body)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotContains(t, body.Error.Message, "boom")
		})
	}

	t.Run("range error advertises size", func(t *testing.T) {
		app := newTestApp()
		app.Get("/", func(c *fiber.Ctx) error { return &service.RangeError{Size: 42} })

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
		assert.Equal(t, "bytes */42", resp.Header.Get(fiber.HeaderContentRange))
	})
}

// The real media service rejects over-long access passwords before any
// bytes reach storage.
func TestAdminHandlers_PasswordOverBcryptLimit(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFilesystem(dir)
	require.NoError(t, err)
	mRepo := new(repoMocks.MockMediaRepository)
	svc := service.NewMediaService(store, mRepo, logging.Discard())

	app := newTestApp()
	app.Post("/admin/upload", asSubject("admin-1", model.RoleAdmin), UploadMedia(svc, logging.Discard()))
	app.Put("/admin/media/:id", UpdateMedia(svc, logging.Discard()))

	long := strings.Repeat("p", 100)

	t.Run("upload", func(t *testing.T) {
		body, ct := multipartUpload(t, "clip.mp4", "video/mp4", "hello world", long)
		req := httptest.NewRequest(http.MethodPost, "/admin/upload", body)
		req.Header.Set("Content-Type", ct)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "PASSWORD_TOO_LONG", decodeError(t, resp.Body).Error.Code)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		for _, e := range entries {
			if e.IsDir() {
				nested, err := os.ReadDir(filepath.Join(dir, e.Name()))
				require.NoError(t, err)
				assert.Empty(t, nested)
				continue
			}
			t.Errorf("unexpected file %s", e.Name())
		}
		mRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("update", func(t *testing.T) {
		id := uuid.NewString()
		mRepo.On("FindByID", mock.Anything, id).Return(&model.Media{ID: id}, nil).Once()

		resp, err := app.Test(jsonRequest(http.MethodPut, "/admin/media/"+id, map[string]string{"password": long}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "PASSWORD_TOO_LONG", decodeError(t, resp.Body).Error.Code)
		mRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	})
}

// countingBody is a stream body that records how much was read and how
// often it was closed.
type countingBody struct {
	r      io.Reader
	read   atomic.Int64
	closed atomic.Int32
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.read.Add(int64(n))
	return n, err
}

func (b *countingBody) Close() error {
	b.closed.Add(1)
	return nil
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestStreamMedia_ReleasesBody(t *testing.T) {
	const content = "0123456789"

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		t.Run(method, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockMediaService)
			app := newTestApp()
			app.Get("/media/:id/stream", asSubject("user-1", model.RoleUser),
				StreamMedia(mockSvc, StreamOptions{}, logging.Discard()))

			id := uuid.NewString()
			plan, err := stream.Resolve("bytes=2-5", int64(len(content)))
			require.NoError(t, err)
			body := &countingBody{r: strings.NewReader(content[plan.Start : plan.End+1])}
			mockSvc.On("Stream", mock.Anything, id, "bytes=2-5").
				Return(&service.StreamResult{MIMEType: "video/mp4", Plan: plan, Body: body}, nil).Once()

			req := httptest.NewRequest(method, "/media/"+id+"/stream", nil)
			req.Header.Set("Range", "bytes=2-5")
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
			got, _ := io.ReadAll(resp.Body)
			if method == http.MethodGet {
				assert.Equal(t, "2345", string(got))
			}

			require.Eventually(t, func() bool { return body.closed.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
			assert.Equal(t, int32(1), body.closed.Load())
		})
	}
}

func TestStreamMedia_ClientDisconnectReleasesBody(t *testing.T) {
	const size = 256 << 20

	mockSvc := new(serviceMocks.MockMediaService)
	app := fiber.New(fiber.Config{
		ErrorHandler:          ErrorHandler(logging.Discard()),
		DisableStartupMessage: true,
	})
	app.Get("/media/:id/stream", asSubject("user-1", model.RoleUser),
		StreamMedia(mockSvc, StreamOptions{}, logging.Discard()))

	id := uuid.NewString()
	plan, err := stream.Resolve("", size)
	require.NoError(t, err)
	body := &countingBody{r: io.LimitReader(zeros{}, size)}
	mockSvc.On("Stream", mock.Anything, id, "").
		Return(&service.StreamResult{MIMEType: "video/mp4", Plan: plan, Body: body}, nil).Once()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	_, err = fmt.Fprintf(conn, "GET /media/%s/stream HTTP/1.1\r\nHost: test\r\n\r\n", id)
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 4<<10)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(buf), "HTTP/1.1 200"))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return body.closed.Load() == 1 }, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, int32(1), body.closed.Load())
	assert.Less(t, body.read.Load(), int64(size/2), "body should be streamed, not buffered")
}
