package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/flicky/farm-market-api/internal/dto"
	"github.com/flicky/farm-market-api/internal/model"
	"github.com/flicky/farm-market-api/internal/repository"
	"github.com/flicky/farm-market-api/internal/storage"
)

const defaultUnit = "kg"

// maxPrice is the first value a NUMERIC(12,2) price column cannot hold.
var maxPrice = decimal.New(1, 10)

// Upload is an optional image attached to a new listing.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

type ProductService struct {
	productRepo  repository.ProductRepository
	userRepo     repository.UserRepository
	categoryRepo repository.CategoryRepository
	store        storage.BlobStore
	cache        productCache
	log          *slog.Logger
}

func NewProductService(
	productRepo repository.ProductRepository,
	userRepo repository.UserRepository,
	categoryRepo repository.CategoryRepository,
	store storage.BlobStore,
	redisClient *redis.Client,
	log *slog.Logger,
) *ProductService {
	return &ProductService{
		productRepo:  productRepo,
		userRepo:     userRepo,
		categoryRepo: categoryRepo,
		store:        store,
		cache:        productCache{client: redisClient},
		log:          log,
	}
}

// Create lists a product. A non-zero actor lists on its own behalf: an empty
// seller_id defaults to it and any other seller is refused.
func (s *ProductService) Create(ctx context.Context, actor int64, req dto.CreateProductRequest, image *Upload) (*dto.ProductResponse, error) {
	if actor != 0 {
		if req.SellerID == 0 {
			req.SellerID = actor
		} else if req.SellerID != actor {
			return nil, ErrForbidden
		}
	}
	product, err := s.newProduct(ctx, req)
	if err != nil {
		return nil, err
	}

	if image != nil && image.Filename != "" && s.store != nil {
		url, err := s.store.Store(ctx, image.Filename, image.Body, image.Size)
		switch {
		case errors.Is(err, storage.ErrUnsupportedType), errors.Is(err, storage.ErrTooLarge):
			// Listing is still created, just without a picture.
			s.log.Warn("product image ignored", "filename", image.Filename, "error", err)
		case err != nil:
			return nil, fmt.Errorf("store image: %w", err)
		default:
			product.ImageURL = url
		}
	}

	if err := s.productRepo.Create(ctx, product); err != nil {
		switch {
		case errors.Is(err, repository.ErrForeignKey):
			return nil, ErrCategoryNotFound
		case errors.Is(err, repository.ErrCheckViolation):
			return nil, validationf("product values out of range")
		}
		return nil, fmt.Errorf("create product: %w", err)
	}
	resp := toProductResponse(product)
	return &resp, nil
}

func (s *ProductService) newProduct(ctx context.Context, req dto.CreateProductRequest) (*model.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validationf("Missing required fields")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil {
		return nil, validationf("price must be a positive number")
	}
	if err := checkPrice(price); err != nil {
		return nil, err
	}
	quantity, err := strconv.Atoi(strings.TrimSpace(req.Quantity))
	if err != nil || quantity < 0 {
		return nil, validationf("quantity must be a non-negative integer")
	}
	if req.SellerID <= 0 || req.CategoryID <= 0 {
		return nil, validationf("Missing required fields")
	}

	product := &model.Product{
		Name: name, Description: req.Description, Price: price, Quantity: quantity,
		Unit: req.Unit, SellerID: req.SellerID, CategoryID: req.CategoryID, Location: req.Location,
	}
	if product.Unit == "" {
		product.Unit = defaultUnit
	}
	if req.HarvestDate != "" {
		harvest, err := parseDate("harvest_date", req.HarvestDate)
		if err != nil {
			return nil, err
		}
		product.HarvestDate = &harvest
	}

	seller, err := s.userRepo.GetByID(ctx, req.SellerID)
	if err != nil {
		return nil, fmt.Errorf("get seller: %w", err)
	}
	if seller == nil {
		return nil, ErrUserNotFound
	}
	category, err := s.categoryRepo.GetByID(ctx, req.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	if category == nil {
		return nil, ErrCategoryNotFound
	}
	product.SellerName = seller.FullName
	product.CategoryName = category.Name
	return product, nil
}

// GetByID returns a listing, withdrawn ones included, served from the cache
// when possible.
func (s *ProductService) GetByID(ctx context.Context, id int64) (*dto.ProductResponse, error) {
	if resp, ok := s.cache.get(ctx, id); ok {
		return resp, nil
	}

	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	resp := toProductResponse(product)
	s.cache.set(ctx, resp)
	return &resp, nil
}

func (s *ProductService) List(ctx context.Context, q dto.ListProductsQuery) ([]dto.ProductResponse, error) {
	products, err := s.productRepo.List(ctx, model.ProductFilter{
		CategoryID: idFilter(q.CategoryID), SellerID: idFilter(q.SellerID), Search: strings.TrimSpace(q.Search),
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	items := make([]dto.ProductResponse, 0, len(products))
	for _, p := range products {
		items = append(items, toProductResponse(&p))
	}
	return items, nil
}

// idFilter drops an id filter that is empty or zero, so "?category_id=" means
// no filter rather than a match on id 0.
func idFilter(id *int64) *int64 {
	if id == nil || *id == 0 {
		return nil
	}
	return id
}

// Update applies a partial edit. Quantity here is a restock and overwrites
// the current level; every other column not named in req is left alone.
func (s *ProductService) Update(ctx context.Context, id, actor int64, req dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	if err := s.authorize(ctx, id, actor); err != nil {
		return nil, err
	}

	patch := model.ProductPatch{
		Name: req.Name, Description: req.Description, Price: req.Price,
		Quantity: req.Quantity, Unit: req.Unit, Location: req.Location,
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, validationf("name must not be empty")
	}
	if patch.Price != nil {
		if err := checkPrice(*patch.Price); err != nil {
			return nil, err
		}
	}
	if patch.Quantity != nil && *patch.Quantity < 0 {
		return nil, validationf("quantity must be a non-negative integer")
	}
	if req.HarvestDate != nil {
		harvest, err := parseDate("harvest_date", *req.HarvestDate)
		if err != nil {
			return nil, err
		}
		patch.HarvestDate = &harvest
	}

	if !patch.IsEmpty() {
		if err := s.productRepo.Update(ctx, id, patch); err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return nil, ErrProductNotFound
			case errors.Is(err, repository.ErrCheckViolation):
				return nil, validationf("product values out of range")
			}
			return nil, fmt.Errorf("update product: %w", err)
		}
		s.cache.evict(ctx, id)
	}
	return s.GetByID(ctx, id)
}

// Delete withdraws a listing. Existing orders keep referencing it.
func (s *ProductService) Delete(ctx context.Context, id, actor int64) error {
	if err := s.authorize(ctx, id, actor); err != nil {
		return err
	}
	if err := s.productRepo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProductNotFound
		}
		return fmt.Errorf("delete product: %w", err)
	}
	s.cache.evict(ctx, id)
	return nil
}

// checkPrice accepts what the price column stores exactly: positive, at most
// two decimal places, below maxPrice.
func checkPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return validationf("price must be a positive number")
	}
	if !price.Equal(price.Truncate(2)) {
		return validationf("price must have at most 2 decimal places")
	}
	if price.GreaterThanOrEqual(maxPrice) {
		return validationf("price must be less than %s", maxPrice.String())
	}
	return nil
}

// authorize checks the listing exists and, for a non-zero actor, that the
// actor is its seller.
func (s *ProductService) authorize(ctx context.Context, id, actor int64) error {
	product, err := s.productRepo.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get product: %w", err)
	}
	if product == nil {
		return ErrProductNotFound
	}
	if actor != 0 && product.SellerID != actor {
		return ErrForbidden
	}
	return nil
}

func toProductResponse(p *model.Product) dto.ProductResponse {
	return dto.ProductResponse{
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price,
		Quantity:       p.Quantity,
		Unit:           p.Unit,
		SellerID:       p.SellerID,
		SellerName:     p.SellerName,
		SellerLocation: p.SellerLocation,
		SellerPhone:    p.SellerPhone,
		CategoryID:     p.CategoryID,
		CategoryName:   p.CategoryName,
		ImageURL:       p.ImageURL,
		HarvestDate:    p.HarvestDate,
		Location:       p.Location,
		IsActive:       p.IsActive,
		CreatedAt:      p.CreatedAt,
	}
}
