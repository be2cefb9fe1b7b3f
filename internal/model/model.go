// Package model contains domain models shared across layers.
// Models carry no persistence tags or business logic beyond pure helpers.
package model

// Role identifies which side of the platform an account belongs to.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)
