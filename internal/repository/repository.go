// Package repository contains the metadata registry abstractions.
// Implementations live in subpackages (postgres) inside this directory.
package repository

import "errors"

var (
	// ErrNotFound is returned when no row matches the identifier.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional update's precondition no longer holds.
	ErrConflict = errors.New("record changed concurrently")
)

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
