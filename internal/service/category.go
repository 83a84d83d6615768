package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/flicky/farm-market-api/internal/dto"
	"github.com/flicky/farm-market-api/internal/model"
	"github.com/flicky/farm-market-api/internal/repository"
)

var defaultCategories = []model.Category{
	{Name: "Grain", Description: "Wheat, barley, rye"},
	{Name: "Vegetables", Description: "Tomato, pepper, cucumber"},
	{Name: "Fruit", Description: "Apple, pear, grape"},
	{Name: "Animal Products", Description: "Milk, eggs, meat"},
	{Name: "Oilseeds", Description: "Sunflower, canola"},
	{Name: "Other", Description: "Other farm produce"},
}

type CategoryService struct {
	categoryRepo repository.CategoryRepository
}

func NewCategoryService(categoryRepo repository.CategoryRepository) *CategoryService {
	return &CategoryService{categoryRepo: categoryRepo}
}

func (s *CategoryService) List(ctx context.Context) ([]dto.CategoryResponse, error) {
	categories, err := s.categoryRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	items := make([]dto.CategoryResponse, 0, len(categories))
	for _, c := range categories {
		items = append(items, toCategoryResponse(&c))
	}
	return items, nil
}

func (s *CategoryService) Create(ctx context.Context, req dto.CreateCategoryRequest) (*dto.CategoryResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, validationf("Missing name")
	}
	category := &model.Category{Name: name, Description: req.Description}
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrCategoryExists
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	resp := toCategoryResponse(category)
	return &resp, nil
}

// SeedDefaults installs the default taxonomy into an empty table. It reports
// how many categories were created.
func (s *CategoryService) SeedDefaults(ctx context.Context) (int, error) {
	n, err := s.categoryRepo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	if n > 0 {
		return 0, nil
	}
	for _, c := range defaultCategories {
		if err := s.categoryRepo.Create(ctx, &c); err != nil {
			return 0, fmt.Errorf("seed category %s: %w", c.Name, err)
		}
	}
	return len(defaultCategories), nil
}

func toCategoryResponse(c *model.Category) dto.CategoryResponse {
	return dto.CategoryResponse{ID: c.ID, Name: c.Name, Description: c.Description}
}
