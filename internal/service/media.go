package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mediagate/internal/auth"
	"mediagate/internal/model"
	"mediagate/internal/repository"
	"mediagate/internal/storage"
	"mediagate/internal/stream"
)

// MinAccessPasswordLen is the shortest accepted per-media password, in characters.
const MinAccessPasswordLen = 4

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	sniffLen         = 3072
	storagePrefix    = "media"
)

var tracer = otel.Tracer("mediagate/internal/service")

// IngestInput is everything the upload pipeline needs for one file.
// Size is the exact byte count if known, otherwise -1.
type IngestInput struct {
	Reader       io.Reader
	Size         int64
	DeclaredType string
	OriginalName string
	Password     string
	OwnerID      string
}

// UpdateInput holds optional metadata changes. Nil or empty means unchanged.
type UpdateInput struct {
	OriginalName *string
	Password     *string
}

// StreamResult is a resolved stream response. Body is owned by the
// caller, who must hand it to the transport or Close it.
type StreamResult struct {
	MIMEType string
	Plan     stream.Plan
	Body     io.ReadCloser
}

// CatalogResult is the user-facing media listing.
type CatalogResult struct {
	Items []model.MediaSummary `json:"data"`
	Total int                  `json:"total"`
}

// MediaListResult is the admin media listing.
type MediaListResult struct {
	Items []model.Media `json:"data"`
	Total int         `json:"total"`
}

// MediaService defines the media use cases.
type MediaService interface {
	// Catalog lists disclosable summaries for users.
	Catalog(ctx context.Context, limit, offset int) (*CatalogResult, error)

	// List lists full records (minus the password hash) for admins.
	List(ctx context.Context, limit, offset int) (*MediaListResult, error)

	// Verify checks a plaintext access password against the stored hash.
	// It has no side effects.
	Verify(ctx context.Context, id, password string) (*model.AccessGrant, error)

	// Stream opens the backing object and resolves rangeHeader against its live size.
	Stream(ctx context.Context, id, rangeHeader string) (*StreamResult, error)

	// Ingest validates and stores a new file and its record. A failure
	// after the bytes are written deletes them again.
	Ingest(ctx context.Context, in IngestInput) (*model.Media, error)

	// Update renames a media item and/or rotates its access password.
	Update(ctx context.Context, id string, in UpdateInput) (*model.Media, error)

	// Delete removes the backing object and the record. Object removal
	// failures are logged and do not stop the record delete.
	Delete(ctx context.Context, id string) error
}

type mediaService struct {
	store storage.Storage
	repo  repository.MediaRepository
	log   *slog.Logger

	hash  func(string) (string, error)
	check func(password, hash string) (bool, error)
	now   func() time.Time
}

// NewMediaService constructs a new MediaService.
func NewMediaService(store storage.Storage, repo repository.MediaRepository, log *slog.Logger) MediaService {
	return &mediaService{
		store: store,
		repo:  repo,
		log:   log.With(slog.String("component", "media_service")),
		hash:  auth.HashPassword,
		check: auth.CheckPassword,
		now:   time.Now,
	}
}

func (s *mediaService) find(ctx context.Context, id string) (*model.Media, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	m, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMediaNotFound
		}
		return nil, fmt.Errorf("find media %s: %w", id, err)
	}
	return m, nil
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *mediaService) Catalog(ctx context.Context, limit, offset int) (*CatalogResult, error) {
	limit, offset = pageBounds(limit, offset)
	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	items := make([]model.MediaSummary, 0, len(res.Items))
	for i := range res.Items {
		items = append(items, res.Items[i].Summary())
	}
	return &CatalogResult{Items: items, Total: res.Total}, nil
}

func (s *mediaService) List(ctx context.Context, limit, offset int) (*MediaListResult, error) {
	limit, offset = pageBounds(limit, offset)
	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &MediaListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *mediaService) Verify(ctx context.Context, id, password string) (*model.AccessGrant, error) {
	m, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	ok, err := s.check(password, m.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("compare access password for %s: %w", id, err)
	}
	if !ok {
		return nil, ErrIncorrectPassword
	}
	return &model.AccessGrant{Match: true, Media: m.Summary()}, nil
}

func (s *mediaService) Stream(ctx context.Context, id, rangeHeader string) (*StreamResult, error) {
	ctx, span := tracer.Start(ctx, "MediaService.Stream", trace.WithAttributes(
		attribute.String("media.id", id),
		attribute.Bool("http.range", rangeHeader != ""),
	))
	defer span.End()

	m, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	obj, info, err := s.store.Open(ctx, m.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.log.WarnContext(ctx, "media_file_missing", slog.String("media_id", m.ID))
			return nil, ErrFileMissing
		}
		span.SetStatus(codes.Error, "open object")
		return nil, fmt.Errorf("%w: open object for %s: %w", ErrStorage, m.ID, err)
	}
	// Released here unless ownership moves to the returned body.
	defer func() {
		if obj != nil {
			_ = obj.Close()
		}
	}()

	if info.Size != m.Size {
		s.log.WarnContext(ctx, "media_size_mismatch",
			slog.String("media_id", m.ID),
			slog.Int64("stored_size", m.Size),
			slog.Int64("live_size", info.Size),
		)
	}

	plan, err := stream.Resolve(rangeHeader, info.Size)
	if err != nil {
		if errors.Is(err, stream.ErrUnsatisfiable) {
			return nil, &RangeError{Size: info.Size}
		}
		return nil, fmt.Errorf("%w: resolve range for %s: %w", ErrStorage, m.ID, err)
	}

	body, err := stream.Section(obj, plan.Start, plan.Length())
	if err != nil {
		span.SetStatus(codes.Error, "seek object")
		return nil, fmt.Errorf("%w: position object for %s: %w", ErrStorage, m.ID, err)
	}
	obj = nil

	span.SetAttributes(
		attribute.Int64("media.size", plan.Size),
		attribute.Int64("stream.length", plan.Length()),
		attribute.Bool("stream.partial", plan.Partial),
	)
	return &StreamResult{MIMEType: m.MIMEType, Plan: plan, Body: body}, nil
}

func (s *mediaService) Ingest(ctx context.Context, in IngestInput) (*model.Media, error) {
	ctx, span := tracer.Start(ctx, "MediaService.Ingest")
	defer span.End()

	if in.Reader == nil {
		return nil, ErrReaderNil
	}

	r := in.Reader
	mimeType := model.NormalizeMIME(in.DeclaredType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		var err error
		mimeType, r, err = sniff(r)
		if err != nil {
			return nil, fmt.Errorf("%w: read upload: %w", ErrStorage, err)
		}
	}

	category, ok := model.Classify(mimeType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	if err := checkAccessPassword(in.Password); err != nil {
		return nil, err
	}
	if in.OwnerID == "" {
		return nil, ErrOwnerRequired
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash access password: %w", err)
	}

	originalName := filepath.Base(strings.TrimSpace(in.OriginalName))
	if originalName == "." || originalName == string(filepath.Separator) {
		originalName = "untitled"
	}
	genName := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	key := storagePrefix + "/" + genName

	span.SetAttributes(attribute.String("media.category", string(category)), attribute.String("storage.key", key))

	info, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        in.Size,
		ContentType: mimeType,
		Metadata: map[string]string{
			"original-filename": originalName,
		},
	})
	if err != nil {
		span.SetStatus(codes.Error, "store object")
		return nil, fmt.Errorf("%w: upload to storage: %w", ErrStorage, err)
	}

	m := &model.Media{
		ID:           uuid.NewString(),
		Filename:     genName,
		OriginalName: originalName,
		StoragePath:  info.Key,
		Category:     category,
		MIMEType:     mimeType,
		Size:         info.Size,
		PasswordHash: hash,
		UploadedBy:   in.OwnerID,
		CreatedAt:    s.now().UTC(),
	}
	stored, err := s.repo.Create(ctx, m)
	if err != nil {
		span.SetStatus(codes.Error, "save record")
		// Compensate: the object must not outlive a failed record insert.
		if delErr := s.store.Delete(ctx, info.Key); delErr != nil {
			s.log.ErrorContext(ctx, "media_rollback_failed",
				slog.String("storage_key", info.Key),
				slog.String("error", delErr.Error()),
			)
			return nil, fmt.Errorf("db save failed: %w; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}

	s.log.InfoContext(ctx, "media_ingested",
		slog.String("media_id", stored.ID),
		slog.String("category", string(stored.Category)),
		slog.Int64("size", stored.Size),
	)
	return stored, nil
}

// checkAccessPassword enforces the per-media password bounds: at least
// MinAccessPasswordLen characters and no more bytes than bcrypt hashes.
func checkAccessPassword(p string) error {
	if utf8.RuneCountInString(p) < MinAccessPasswordLen {
		return ErrPasswordTooShort
	}
	if len(p) > auth.MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// sniff detects the content type from the first bytes of r and returns
// a reader that still yields the full content.
func sniff(r io.Reader) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, err
	}
	head = head[:n]
	detected := model.NormalizeMIME(mimetype.Detect(head).String())
	return detected, io.MultiReader(bytes.NewReader(head), r), nil
}

func (s *mediaService) Update(ctx context.Context, id string, in UpdateInput) (*model.Media, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}

	var u repository.MediaUpdate
	if in.OriginalName != nil {
		if name := strings.TrimSpace(*in.OriginalName); name != "" {
			u.OriginalName = &name
		}
	}
	if in.Password != nil && *in.Password != "" {
		if err := checkAccessPassword(*in.Password); err != nil {
			return nil, err
		}
		hash, err := s.hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash access password: %w", err)
		}
		u.PasswordHash = &hash
	}

	m, err := s.repo.Update(ctx, id, u)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMediaNotFound
		}
		return nil, fmt.Errorf("update media %s: %w", id, err)
	}
	return m, nil
}

func (s *mediaService) Delete(ctx context.Context, id string) error {
	m, err := s.find(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, m.StoragePath); err != nil {
		s.log.WarnContext(ctx, "media_file_cleanup_failed",
			slog.String("media_id", m.ID),
			slog.Bool("already_missing", errors.Is(err, storage.ErrObjectNotFound)),
			slog.String("error", err.Error()),
		)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete media record %s: %w", id, err)
	}
	return nil
}
