package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/flicky/farm-market-api/internal/model"
)

// --- Users ---

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role" binding:"required"`
	Location string `json:"location"`
	Phone    string `json:"phone"`
}

// LoginRequest accepts either the username or the email in Username.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type GoogleLoginRequest struct {
	GoogleID string `json:"google_id" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role"`
}

type UpdateUserRequest struct {
	FullName    *string `json:"full_name"`
	Email       *string `json:"email"`
	Location    *string `json:"location"`
	Phone       *string `json:"phone"`
	Description *string `json:"description"`
}

type UserResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FullName    string `json:"full_name"`
	Role        string `json:"role"`
	Location    string `json:"location"`
	Phone       string `json:"phone"`
	Description string `json:"description"`
}

type AuthResponse struct {
	UserResponse
	Token   string `json:"token"`
	Message string `json:"message,omitempty"`
}

// --- Categories ---

type CreateCategoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type CategoryResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// --- Products ---

// CreateProductRequest is bound from a multipart form, so numbers arrive as
// text and are parsed by the service.
type CreateProductRequest struct {
	Name        string `form:"name" binding:"required"`
	Description string `form:"description"`
	Price       string `form:"price" binding:"required"`
	Quantity    string `form:"quantity" binding:"required"`
	Unit        string `form:"unit"`
	SellerID    int64  `form:"seller_id"`
	CategoryID  int64  `form:"category_id"`
	Location    string `form:"location"`
	HarvestDate string `form:"harvest_date"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    *int             `json:"quantity"`
	Unit        *string          `json:"unit"`
	Location    *string          `json:"location"`
	HarvestDate *string          `json:"harvest_date"`
}

type ListProductsQuery struct {
	CategoryID *int64 `form:"category_id"`
	SellerID   *int64 `form:"seller_id"`
	Search     string `form:"search"`
}

type ProductResponse struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	Quantity       int             `json:"quantity"`
	Unit           string          `json:"unit"`
	SellerID       int64           `json:"seller_id"`
	SellerName     string          `json:"seller_name"`
	SellerLocation string          `json:"seller_location,omitempty"`
	SellerPhone    string          `json:"seller_phone,omitempty"`
	CategoryID     int64           `json:"category_id"`
	CategoryName   string          `json:"category_name"`
	ImageURL       string          `json:"image_url"`
	HarvestDate    *time.Time      `json:"harvest_date"`
	Location       string          `json:"location"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// --- Orders ---

// CreateOrderRequest leaves validation to the ledger so rejections come
// back in a fixed order: quantity, product, stock.
type CreateOrderRequest struct {
	ProductID int64  `json:"product_id"`
	SellerID  int64  `json:"seller_id"`
	BuyerID   int64  `json:"buyer_id"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes"`
}

type UpdateOrderRequest struct {
	Status       *string `json:"status"`
	DeliveryDate *string `json:"delivery_date"`
	Notes        *string `json:"notes"`
}

type ListOrdersQuery struct {
	BuyerID  *int64 `form:"buyer_id"`
	SellerID *int64 `form:"seller_id"`
	Status   string `form:"status"`
}

type OrderResponse struct {
	ID           int64             `json:"id"`
	ProductID    int64             `json:"product_id"`
	ProductName  string            `json:"product_name"`
	SellerID     int64             `json:"seller_id"`
	SellerName   string            `json:"seller_name"`
	BuyerID      int64             `json:"buyer_id"`
	BuyerName    string            `json:"buyer_name"`
	Quantity     int               `json:"quantity"`
	UnitPrice    decimal.Decimal   `json:"unit_price"`
	TotalPrice   decimal.Decimal   `json:"total_price"`
	Status       model.OrderStatus `json:"status"`
	Notes        string            `json:"notes"`
	DeliveryDate *time.Time        `json:"delivery_date"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type OrderUpdateResponse struct {
	Message string            `json:"message"`
	Status  model.OrderStatus `json:"status"`
	Order   OrderResponse     `json:"order"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
