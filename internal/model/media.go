package model

import (
	"mime"
	"strings"
	"time"
)

// Category is the closed set of media kinds the platform accepts.
type Category string

const (
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
)

var allowedTypes = map[string]Category{
	"video/mp4":       CategoryVideo,
	"video/webm":      CategoryVideo,
	"video/ogg":       CategoryVideo,
	"video/avi":       CategoryVideo,
	"video/quicktime": CategoryVideo,

	"audio/mpeg": CategoryAudio,
	"audio/mp3":  CategoryAudio,
	"audio/wav":  CategoryAudio,
	"audio/ogg":  CategoryAudio,
	"audio/aac":  CategoryAudio,

	"image/jpeg":    CategoryImage,
	"image/jpg":     CategoryImage,
	"image/png":     CategoryImage,
	"image/gif":     CategoryImage,
	"image/webp":    CategoryImage,
	"image/svg+xml": CategoryImage,

	"application/pdf": CategoryDocument,
}

// NormalizeMIME lower-cases a media type and strips any parameters.
// Unparseable input is returned trimmed and lower-cased.
func NormalizeMIME(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(s); err == nil {
		return mt
	}
	return strings.ToLower(s)
}

// Classify maps a MIME type to its category. The second result is false
// for anything outside the upload allow-list.
func Classify(mimeType string) (Category, bool) {
	c, ok := allowedTypes[NormalizeMIME(mimeType)]
	return c, ok
}

// Media is a stored file together with its access password hash.
// PasswordHash and StoragePath must never reach a user-facing response.
type Media struct {
	ID           string    `json:"id"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"original_name"`
	StoragePath  string    `json:"storage_path"`
	Category     Category  `json:"type"`
	MIMEType     string    `json:"mimetype"`
	Size         int64     `json:"size"`
	PasswordHash string    `json:"-"`
	UploadedBy   string    `json:"uploaded_by"`
	// UploaderName is filled only by admin listings.
	UploaderName string    `json:"uploaded_by_username,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MediaSummary is the subset of Media that may be disclosed to users.
type MediaSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  Category  `json:"type"`
	MIMEType  string    `json:"mimetype"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary returns the disclosable view of m.
func (m *Media) Summary() MediaSummary {
	return MediaSummary{
		ID:        m.ID,
		Name:      m.OriginalName,
		Category:  m.Category,
		MIMEType:  m.MIMEType,
		Size:      m.Size,
		CreatedAt: m.CreatedAt,
	}
}

// AccessGrant is the outcome of a successful password check.
// It is never persisted.
type AccessGrant struct {
	Match bool         `json:"match"`
	Media MediaSummary `json:"media"`
}
