package service

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/farm-market-api/internal/dto"
	"github.com/flicky/farm-market-api/internal/model"
	"github.com/flicky/farm-market-api/internal/repository"
	"github.com/flicky/farm-market-api/internal/storage"
)

type catalogFixture struct {
	svc        *ProductService
	products   *mockProductRepo
	users      *mockUserRepo
	seller     *model.User
	categoryID int64
}

func newCatalogFixture(t *testing.T) catalogFixture {
	t.Helper()
	users := newMockUserRepo()
	seller := users.add("ali", "Ali Farmer", model.RoleFarmer)
	categories := newMockCategoryRepo()
	grain := &model.Category{Name: "Grain"}
	require.NoError(t, categories.Create(context.Background(), grain))

	store, err := storage.NewLocalStore(t.TempDir(), "/api/uploads", 1024)
	require.NoError(t, err)

	products := newMockProductRepo()
	svc := NewProductService(products, users, categories, store, nil, quietLogger())
	return catalogFixture{svc: svc, products: products, users: users, seller: seller, categoryID: grain.ID}
}

func (f catalogFixture) request(name, price, qty string) dto.CreateProductRequest {
	return dto.CreateProductRequest{
		Name: name, Price: price, Quantity: qty, SellerID: f.seller.ID, CategoryID: f.categoryID,
	}
}

func TestProductService_Create(t *testing.T) {
	f := newCatalogFixture(t)
	req := f.request("Wheat", "2.50", "100")
	req.HarvestDate = "2024-06-01"

	resp, err := f.svc.Create(context.Background(), 0, req, nil)
	require.NoError(t, err)
	assert.Equal(t, "kg", resp.Unit)
	assert.True(t, resp.Price.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, 100, resp.Quantity)
	assert.Equal(t, "Ali Farmer", resp.SellerName)
	assert.Equal(t, "Grain", resp.CategoryName)
	require.NotNil(t, resp.HarvestDate)
	assert.Equal(t, 2024, resp.HarvestDate.Year())
}

func TestProductService_Create_Validation(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	for name, req := range map[string]dto.CreateProductRequest{
		"zero price":        f.request("Wheat", "0", "1"),
		"bad price":         f.request("Wheat", "cheap", "1"),
		"negative quantity": f.request("Wheat", "1", "-1"),
		"fractional qty":    f.request("Wheat", "1", "1.5"),
		"blank name":        f.request(" ", "1", "1"),
		"sub-cent price":    f.request("Wheat", "0.001", "1"),
		"three decimals":    f.request("Wheat", "2.555", "1"),
		"price too large":   f.request("Wheat", "10000000000", "1"),
	} {
		_, err := f.svc.Create(ctx, 0, req, nil)
		assert.ErrorIs(t, err, ErrValidation, name)
	}

	req := f.request("Wheat", "1", "0")
	req.CategoryID = 99
	_, err := f.svc.Create(ctx, 0, req, nil)
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	req = f.request("Wheat", "1", "0")
	req.SellerID = 99
	_, err = f.svc.Create(ctx, 0, req, nil)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestProductService_Create_PriceLimits(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	for _, price := range []string{"0.01", "2.50", "2.5000", "9999999999.99"} {
		resp, err := f.svc.Create(ctx, 0, f.request("Wheat", price, "1"), nil)
		require.NoError(t, err, price)
		assert.True(t, resp.Price.Equal(decimal.RequireFromString(price)), price)
	}

	_, err := f.svc.Create(ctx, 0, f.request("Wheat", "2.555", "1"), nil)
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "at most 2 decimal places")
}

// checkRejectingProductRepo fails writes the way Postgres does when a CHECK
// constraint rejects the row.
type checkRejectingProductRepo struct {
	*mockProductRepo
}

func (r checkRejectingProductRepo) Create(context.Context, *model.Product) error {
	return &repository.ConstraintError{Kind: repository.ErrCheckViolation, Constraint: "products_price_check"}
}

func (r checkRejectingProductRepo) Update(context.Context, int64, model.ProductPatch) error {
	return &repository.ConstraintError{Kind: repository.ErrCheckViolation, Constraint: "products_quantity_check"}
}

func TestProductService_CheckViolationIsValidation(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	existing, err := f.svc.Create(ctx, 0, f.request("Wheat", "2.50", "10"), nil)
	require.NoError(t, err)

	f.svc.productRepo = checkRejectingProductRepo{f.products}

	_, err = f.svc.Create(ctx, 0, f.request("Barley", "2.50", "10"), nil)
	assert.ErrorIs(t, err, ErrValidation)

	restock := 5
	_, err = f.svc.Update(ctx, existing.ID, 0, dto.UpdateProductRequest{Quantity: &restock})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestProductService_Create_ImageHandling(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()

	ok, err := f.svc.Create(ctx, 0, f.request("Apple", "1", "1"), &Upload{
		Filename: "apple.PNG", Size: 3, Body: strings.NewReader("png"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ok.ImageURL, "/api/uploads/"))
	assert.True(t, strings.HasSuffix(ok.ImageURL, "_apple.PNG"))

	exe, err := f.svc.Create(ctx, 0, f.request("Pear", "1", "1"), &Upload{
		Filename: "virus.exe", Size: 3, Body: strings.NewReader("exe"),
	})
	require.NoError(t, err, "a rejected image must not block the listing")
	assert.Empty(t, exe.ImageURL)

	big, err := f.svc.Create(ctx, 0, f.request("Plum", "1", "1"), &Upload{
		Filename: "plum.jpg", Size: 4096, Body: strings.NewReader(strings.Repeat("x", 4096)),
	})
	require.NoError(t, err)
	assert.Empty(t, big.ImageURL)
}

func TestProductService_Create_ActorIsSeller(t *testing.T) {
	f := newCatalogFixture(t)
	req := f.request("Wheat", "1", "1")
	req.SellerID = 0

	resp, err := f.svc.Create(context.Background(), f.seller.ID, req, nil)
	require.NoError(t, err)
	assert.Equal(t, f.seller.ID, resp.SellerID)

	req.SellerID = f.seller.ID
	_, err = f.svc.Create(context.Background(), f.seller.ID+1, req, nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestProductService_ListAndDelete(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	tomato, err := f.svc.Create(ctx, 0, f.request("Cherry Tomato", "5", "10"), nil)
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, 0, f.request("Wheat", "2.5", "100"), nil)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, dto.ListProductsQuery{Search: "TOMATO", CategoryID: &f.categoryID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, tomato.ID, list[0].ID)

	var empty int64
	list, err = f.svc.List(ctx, dto.ListProductsQuery{CategoryID: &empty, SellerID: &empty})
	require.NoError(t, err)
	assert.Len(t, list, 2, "zero ids mean no filter")

	require.NoError(t, f.svc.Delete(ctx, tomato.ID, 0))
	list, err = f.svc.List(ctx, dto.ListProductsQuery{Search: "tomato"})
	require.NoError(t, err)
	assert.Empty(t, list)

	detail, err := f.svc.GetByID(ctx, tomato.ID)
	require.NoError(t, err, "withdrawn listings stay readable by id")
	assert.False(t, detail.IsActive)

	assert.ErrorIs(t, f.svc.Delete(ctx, 999, 0), ErrProductNotFound)
}

func TestProductService_Update(t *testing.T) {
	f := newCatalogFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, 0, f.request("Wheat", "2.5", "100"), nil)
	require.NoError(t, err)

	restock := 150
	price := decimal.RequireFromString("3.10")
	resp, err := f.svc.Update(ctx, p.ID, 0, dto.UpdateProductRequest{Quantity: &restock, Price: &price})
	require.NoError(t, err)
	assert.Equal(t, 150, resp.Quantity)
	assert.True(t, resp.Price.Equal(price))
	assert.Equal(t, "Wheat", resp.Name)

	for _, bad := range []string{"0", "0.001", "2.555", "10000000000"} {
		price := decimal.RequireFromString(bad)
		_, err = f.svc.Update(ctx, p.ID, 0, dto.UpdateProductRequest{Price: &price})
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
	stored, err := f.products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.Price.Equal(decimal.RequireFromString("3.10")))

	negative := -1
	_, err = f.svc.Update(ctx, p.ID, 0, dto.UpdateProductRequest{Quantity: &negative})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Update(ctx, p.ID, f.seller.ID+1, dto.UpdateProductRequest{Quantity: &restock})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Update(ctx, 999, 0, dto.UpdateProductRequest{Quantity: &restock})
	assert.ErrorIs(t, err, ErrProductNotFound)
}
