package repository

import (
	"context"

	"mediagate/internal/model"
)

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (postgres). No business logic here.

// MediaRepository persists media records.
type MediaRepository interface {
	// Create inserts a new media record and returns the stored row.
	Create(ctx context.Context, m *model.Media) (*model.Media, error)

	// FindByID returns a media record by its ID, or sql.ErrNoRows.
	FindByID(ctx context.Context, id string) (*model.Media, error)

	// List returns a page of media ordered newest first, plus the total count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.Media], error)

	// Update applies the non-nil fields of u and returns the updated row,
	// or sql.ErrNoRows if the record does not exist.
	Update(ctx context.Context, id string, u MediaUpdate) (*model.Media, error)

	// Delete removes a media record by ID. It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error
}

// MediaUpdate lists the mutable media columns. Nil means unchanged.
type MediaUpdate struct {
	OriginalName *string
	PasswordHash *string
}

// AccountRepository persists admin and user credentials.
type AccountRepository interface {
	CreateUser(ctx context.Context, u *model.User) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)

	CreateAdmin(ctx context.Context, a *model.Admin) (*model.Admin, error)
	FindAdminByUsername(ctx context.Context, username string) (*model.Admin, error)
	CountAdmins(ctx context.Context) (int, error)
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
