package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/flicky/farm-market-api/internal/dto"
	"github.com/flicky/farm-market-api/internal/mail"
	"github.com/flicky/farm-market-api/internal/metrics"
	"github.com/flicky/farm-market-api/internal/model"
	"github.com/flicky/farm-market-api/internal/repository"
)

type OrderService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	userRepo    repository.UserRepository
	notifier    Notifier
	cache       productCache
	metrics     *metrics.Metrics
	log         *slog.Logger
}

func NewOrderService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	userRepo repository.UserRepository,
	notifier Notifier,
	redisClient *redis.Client,
	m *metrics.Metrics,
	log *slog.Logger,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		userRepo:    userRepo,
		notifier:    orNop(notifier),
		cache:       productCache{client: redisClient},
		metrics:     m,
		log:         log,
	}
}

// PlaceOrder checks the request, then reserves stock and records the order
// atomically at the product's current price. Checks run in a fixed order:
// quantity, product, stock. The stock check here only gives a fast answer;
// the repository's conditional decrement is what prevents overselling.
func (s *OrderService) PlaceOrder(ctx context.Context, actor int64, req dto.CreateOrderRequest) (*model.Order, error) {
	order, product, err := s.preparePlacement(ctx, actor, req)
	if err != nil {
		s.metrics.OrderRejected(rejectReason(err))
		return nil, err
	}

	if err := s.orderRepo.Place(ctx, order); err != nil {
		err = placeError(err)
		s.metrics.OrderRejected(rejectReason(err))
		return nil, err
	}
	s.metrics.OrderPlaced()
	s.cache.evict(ctx, order.ProductID)

	order.ProductName = product.Name
	order.SellerName = product.SellerName
	s.notifySeller(ctx, order, product)
	return order, nil
}

func (s *OrderService) preparePlacement(ctx context.Context, actor int64, req dto.CreateOrderRequest) (*model.Order, *model.Product, error) {
	if req.Quantity <= 0 {
		return nil, nil, validationf("quantity must be a positive integer")
	}
	if req.ProductID <= 0 || req.BuyerID <= 0 {
		return nil, nil, validationf("Missing required fields")
	}

	product, err := s.productRepo.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil || !product.IsActive {
		return nil, nil, ErrProductNotFound
	}
	if product.Quantity < req.Quantity {
		return nil, nil, ErrInsufficientStock
	}

	if req.SellerID != 0 && req.SellerID != product.SellerID {
		return nil, nil, validationf("seller_id does not match the product's seller")
	}
	if actor != 0 && actor != req.BuyerID {
		return nil, nil, ErrForbidden
	}

	order := &model.Order{
		ProductID: product.ID,
		SellerID:  product.SellerID,
		BuyerID:   req.BuyerID,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
	}
	return order, product, nil
}

func placeError(err error) error {
	switch {
	case errors.Is(err, repository.ErrInsufficientStock):
		return ErrInsufficientStock
	case errors.Is(err, repository.ErrNotFound):
		return ErrProductNotFound
	case errors.Is(err, repository.ErrForeignKey):
		return ErrBuyerNotFound
	}
	return fmt.Errorf("place order: %w", err)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrBuyerNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	}
	return "error"
}

// UpdateOrder moves the order along its lifecycle and/or records delivery
// date and notes. Re-sending the current status is accepted and changes
// nothing. A non-zero actor must be the order's seller or buyer.
func (s *OrderService) UpdateOrder(ctx context.Context, id, actor int64, req dto.UpdateOrderRequest) (*model.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor != 0 && actor != order.SellerID && actor != order.BuyerID {
		return nil, ErrForbidden
	}
	if req.Status == nil && req.DeliveryDate == nil && req.Notes == nil {
		return order, nil
	}

	prev := order.Status
	if req.Status != nil {
		next, err := model.ParseOrderStatus(*req.Status)
		if err != nil {
			return nil, validationf("%v", err)
		}
		if next != prev && !prev.CanTransitionTo(next) {
			return nil, fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidTransition, prev, next)
		}
		order.Status = next
	}
	if req.DeliveryDate != nil {
		if *req.DeliveryDate == "" {
			order.DeliveryDate = nil
		} else {
			d, err := parseDate("delivery_date", *req.DeliveryDate)
			if err != nil {
				return nil, err
			}
			order.DeliveryDate = &d
		}
	}
	if req.Notes != nil {
		order.Notes = *req.Notes
	}

	if err := s.orderRepo.Update(ctx, order, prev); err != nil {
		if !errors.Is(err, repository.ErrStaleStatus) {
			return nil, fmt.Errorf("update order: %w", err)
		}
		// Someone else moved the order between our read and write.
		current, gerr := s.orderRepo.GetByID(ctx, id)
		if gerr != nil {
			return nil, fmt.Errorf("get order: %w", gerr)
		}
		if current == nil {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("%w: order is already %s", ErrInvalidTransition, current.Status)
	}

	if order.Status != prev {
		s.metrics.OrderTransition(order.Status.String())
		s.notifyBuyer(ctx, order)
	}
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, q dto.ListOrdersQuery) ([]model.Order, error) {
	filter := model.OrderFilter{BuyerID: idFilter(q.BuyerID), SellerID: idFilter(q.SellerID)}
	if q.Status != "" {
		status, err := model.ParseOrderStatus(q.Status)
		if err != nil {
			return nil, validationf("%v", err)
		}
		filter.Status = &status
	}
	orders, err := s.orderRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) notifySeller(ctx context.Context, order *model.Order, product *model.Product) {
	seller, err := s.userRepo.GetByID(ctx, order.SellerID)
	if err != nil || seller == nil {
		s.log.Warn("order placed notification skipped", "order_id", order.ID, "error", err)
		return
	}
	s.notifier.Notify(ctx, seller.Email, mail.TemplateOrderPlaced, map[string]string{
		"full_name":    seller.FullName,
		"order_id":     strconv.FormatInt(order.ID, 10),
		"product_name": product.Name,
		"quantity":     strconv.Itoa(order.Quantity),
		"unit":         product.Unit,
		"total_price":  order.TotalPrice.StringFixed(2),
		"notes":        order.Notes,
	})
}

func (s *OrderService) notifyBuyer(ctx context.Context, order *model.Order) {
	buyer, err := s.userRepo.GetByID(ctx, order.BuyerID)
	if err != nil || buyer == nil {
		s.log.Warn("status change notification skipped", "order_id", order.ID, "error", err)
		return
	}
	data := map[string]string{
		"full_name":    buyer.FullName,
		"order_id":     strconv.FormatInt(order.ID, 10),
		"product_name": order.ProductName,
		"status":       order.Status.String(),
	}
	if order.DeliveryDate != nil {
		data["delivery_date"] = order.DeliveryDate.Format("02.01.2006")
	}
	s.notifier.Notify(ctx, buyer.Email, mail.TemplateOrderStatusChanged, data)
}
