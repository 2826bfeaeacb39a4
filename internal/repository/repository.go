// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.
package repository

import (
	"context"
	"errors"

	"credserver/internal/model"
)

// ErrAuditDisabled is returned by reads when no audit database is configured.
var ErrAuditDisabled = errors.New("refresh audit log is disabled")

// RefreshEventRepository persists refresh attempts using SQL queries only.
// No business logic here, persistence only.
type RefreshEventRepository interface {
	// Create inserts a new event. The caller provides ID and CreatedAt.
	Create(ctx context.Context, ev *model.RefreshEvent) error

	// List returns a page of events, newest first, and the total row count.
	List(ctx context.Context, pq PageQuery) (*PageResult[model.RefreshEvent], error)
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

// NopRefreshEventRepository discards writes and refuses reads.
type NopRefreshEventRepository struct{}

var _ RefreshEventRepository = NopRefreshEventRepository{}

func (NopRefreshEventRepository) Create(context.Context, *model.RefreshEvent) error {
	return nil
}

func (NopRefreshEventRepository) List(context.Context, PageQuery) (*PageResult[model.RefreshEvent], error) {
	return nil, ErrAuditDisabled
}
