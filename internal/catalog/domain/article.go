package domain

import "time"

type Article struct {
	ID          int64
	Name        string
	Description string
	GrossPrice  int64 // minor currency units
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Variant struct {
	ID        int64
	ArticleID int64
	Name      string
	SKU       string
	Active    bool
	CreatedAt time.Time
}
