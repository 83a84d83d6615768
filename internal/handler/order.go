package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/farm-market-api/internal/dto"
	"github.com/flicky/farm-market-api/internal/middleware"
	"github.com/flicky/farm-market-api/internal/model"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, actor int64, req dto.CreateOrderRequest) (*model.Order, error)
	UpdateOrder(ctx context.Context, id, actor int64, req dto.UpdateOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	ListOrders(ctx context.Context, q dto.ListOrdersQuery) ([]model.Order, error)
}

type OrderHandler struct {
	orderService OrderService
}

func NewOrderHandler(orderService OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Missing required fields")
		return
	}

	order, err := h.orderService.PlaceOrder(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(order))
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	var q dto.ListOrdersQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}

	orders, err := h.orderService.ListOrders(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]dto.OrderResponse, 0, len(orders))
	for _, o := range orders {
		items = append(items, toOrderResponse(&o))
	}
	c.JSON(http.StatusOK, items)
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "order")
	if !ok {
		return
	}
	order, err := h.orderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	id, ok := pathID(c, "order")
	if !ok {
		return
	}
	var req dto.UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	order, err := h.orderService.UpdateOrder(c.Request.Context(), id, middleware.GetUserID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OrderUpdateResponse{
		Message: "Order updated successfully",
		Status:  order.Status,
		Order:   toOrderResponse(order),
	})
}

func toOrderResponse(order *model.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:           order.ID,
		ProductID:    order.ProductID,
		ProductName:  order.ProductName,
		SellerID:     order.SellerID,
		SellerName:   order.SellerName,
		BuyerID:      order.BuyerID,
		BuyerName:    order.BuyerName,
		Quantity:     order.Quantity,
		UnitPrice:    order.UnitPrice,
		TotalPrice:   order.TotalPrice,
		Status:       order.Status,
		Notes:        order.Notes,
		DeliveryDate: order.DeliveryDate,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
}
