package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// allowedTransitions is the complete edge set of the order state machine.
// Anything not listed here is rejected.
var allowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

func (s OrderStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0 && s.IsValid()
}

func CanTransitionTo(from, to OrderStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}

type Address struct {
	Street1    string
	Street2    *string
	City       string
	State      string
	PostalCode string
	Country    string
}

type Order struct {
	ID              uuid.UUID
	OrderNumber     string
	UserID          int64
	CustomerEmail   string
	CustomerFirst   string
	CustomerLast    string
	CustomerPhone   *string
	ShippingAddress Address
	BillingAddress  *Address
	Subtotal        int64
	TaxAmount       int64
	ShippingAmount  int64
	TotalAmount     int64
	Status          OrderStatus
	CartID          int64
	Notes           *string
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem is copied from the cart line at conversion time, never a live
// reference. All fields are immutable after creation.
type OrderItem struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	ArticleID        int64
	VariantID        int64
	Quantity         int
	PricePerItem     int64
	TotalPrice       int64
	GeneratedImageID *int64
	PromptID         *int64
	CustomData       map[string]any
	CreatedAt        time.Time
}
