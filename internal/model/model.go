package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleFarmer   Role = "farmer"
	RoleProducer Role = "producer"
)

func (r Role) IsValid() bool {
	return r == RoleFarmer || r == RoleProducer
}

type User struct {
	ID       int64
	Username string
	Email    string
	// PasswordHash is nil for accounts created through an external identity.
	PasswordHash *string
	FullName     string
	Role         Role
	Location     string
	Phone        string
	Description  string
	GoogleID     *string
	CreatedAt    time.Time
}

type Category struct {
	ID          int64
	Name        string
	Description string
}

type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	Quantity    int
	Unit        string
	SellerID    int64
	CategoryID  int64
	ImageURL    string
	HarvestDate *time.Time
	Location    string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Joined on read, never written.
	SellerName     string
	SellerLocation string
	SellerPhone    string
	CategoryName   string
}

type Order struct {
	ID           int64
	ProductID    int64
	SellerID     int64
	BuyerID      int64
	Quantity     int
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
	Status       OrderStatus
	Notes        string
	DeliveryDate *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Joined on read, never written.
	ProductName string
	SellerName  string
	BuyerName   string
}

// Snapshot fixes the order's prices at the given unit price. The order keeps
// these values regardless of later product price changes.
func (o *Order) Snapshot(unitPrice decimal.Decimal) {
	o.UnitPrice = unitPrice
	o.TotalPrice = unitPrice.Mul(decimal.NewFromInt(int64(o.Quantity)))
}

// ProductFilter narrows catalog listings. Nil/empty fields are ignored; the
// rest are ANDed. Only active listings are ever returned.
type ProductFilter struct {
	CategoryID *int64
	SellerID   *int64
	Search     string
}

type OrderFilter struct {
	BuyerID  *int64
	SellerID *int64
	Status   *OrderStatus
}

// Notification is the job published for the mail worker.
type Notification struct {
	ID       uuid.UUID         `json:"id"`
	To       string            `json:"to"`
	Template string            `json:"template"`
	Data     map[string]string `json:"data"`
}

// ProductPatch carries the fields of a partial product update. Nil fields are
// left untouched in storage so a concurrent stock decrement is never
// overwritten by a stale read.
type ProductPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Quantity    *int
	Unit        *string
	Location    *string
	HarvestDate *time.Time
}

func (p ProductPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Price == nil && p.Quantity == nil &&
		p.Unit == nil && p.Location == nil && p.HarvestDate == nil
}
