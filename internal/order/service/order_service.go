package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fjod/print_shop/internal/order/domain"
	"github.com/fjod/print_shop/internal/order/repository"
	"github.com/google/uuid"
)

var (
	ErrInvalidStatus = errors.New("unknown order status")
	// ErrInvalidTransition carries the current and attempted status in its
	// wrapping message so the client can see what was rejected.
	ErrInvalidTransition = errors.New("invalid order status transition")
)

type Page struct {
	Orders        []*domain.Order
	CurrentPage   int
	TotalPages    int
	TotalElements int64
	Size          int
}

type Service struct {
	repo repository.OrderRepository
}

func NewService(repo repository.OrderRepository) *Service {
	return &Service{repo: repo}
}

// Get returns the order only if it belongs to the user. Orders of other
// users are indistinguishable from missing ones.
func (s *Service) Get(ctx context.Context, userID int64, orderID uuid.UUID) (*domain.Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) List(ctx context.Context, userID int64, page, size int) (*Page, error) {
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	orders, total, err := s.repo.ListByUserID(ctx, userID, page, size)
	if err != nil {
		return nil, err
	}
	totalPages := int((total + int64(size) - 1) / int64(size))
	return &Page{
		Orders:        orders,
		CurrentPage:   page,
		TotalPages:    totalPages,
		TotalElements: total,
		Size:          size,
	}, nil
}

// UpdateStatus moves the order along the state machine. Only the documented
// edges are accepted; everything else fails with ErrInvalidTransition.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus domain.OrderStatus) (*domain.Order, error) {
	if !newStatus.IsValid() {
		return nil, fmt.Errorf("%q: %w", newStatus, ErrInvalidStatus)
	}

	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransitionTo(o.Status, newStatus) {
		return nil, fmt.Errorf("cannot transition order from %s to %s: %w", o.Status, newStatus, ErrInvalidTransition)
	}

	if err := s.repo.UpdateStatus(ctx, orderID, o.Status, newStatus); err != nil {
		return nil, err
	}
	slog.Info("order status updated", "orderId", orderID, "from", o.Status, "to", newStatus)

	return s.repo.GetByID(ctx, orderID)
}
