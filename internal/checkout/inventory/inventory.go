package inventory

import (
	"context"

	"github.com/google/uuid"
)

type Line struct {
	ArticleID int64
	VariantID int64
	Quantity  int
}

// Service reserves stock ahead of order creation. Reserve is called before
// the conversion transaction, Commit after it succeeds, Release after it
// fails so held stock is returned.
type Service interface {
	Reserve(ctx context.Context, lines []Line) (string, error)
	Commit(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
}

// AlwaysAvailable is the default implementation for deployments without a
// stock backend. Every reservation succeeds.
type AlwaysAvailable struct{}

func (AlwaysAvailable) Reserve(_ context.Context, _ []Line) (string, error) {
	return uuid.NewString(), nil
}

func (AlwaysAvailable) Commit(_ context.Context, _ string) error { return nil }

func (AlwaysAvailable) Release(_ context.Context, _ string) error { return nil }
