package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/farm-market-api/internal/dto"
	"github.com/flicky/farm-market-api/internal/model"
	"github.com/flicky/farm-market-api/internal/service"
	"github.com/flicky/farm-market-api/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
	decimal.MarshalJSONWithoutQuotes = true
}

func perform(r http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func performJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	return perform(r, method, path, strings.NewReader(body), "application/json")
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestWriteError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		msg    string
	}{
		{fmt.Errorf("%w: quantity must be a positive integer", service.ErrValidation), 400, "quantity must be a positive integer"},
		{service.ErrInsufficientStock, 400, "Insufficient quantity"},
		{fmt.Errorf("%w: cannot move order from pending to shipped", service.ErrInvalidTransition), 400, "invalid status transition: cannot move order from pending to shipped"},
		{service.ErrUsernameTaken, 400, "Username already exists"},
		{service.ErrEmailTaken, 400, "Email already exists"},
		{service.ErrProductNotFound, 404, "Product not found"},
		{service.ErrOrderNotFound, 404, "Order not found"},
		{service.ErrBuyerNotFound, 404, "Buyer not found"},
		{service.ErrInvalidCredentials, 401, "Invalid username/email or password"},
		{service.ErrForbidden, 403, "forbidden"},
		{errors.New("connection reset"), 500, "internal server error"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeError(c, tt.err)
		assert.Equal(t, tt.status, w.Code, tt.err.Error())
		assert.Equal(t, tt.msg, decode(t, w)["error"])
	}
}

type fakeOrderService struct {
	placeErr  error
	lastActor int64
	lastQuery dto.ListOrdersQuery
}

func (f *fakeOrderService) PlaceOrder(_ context.Context, actor int64, req dto.CreateOrderRequest) (*model.Order, error) {
	f.lastActor = actor
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	o := &model.Order{ID: 7, ProductID: req.ProductID, SellerID: 1, BuyerID: req.BuyerID, Quantity: req.Quantity, Status: model.OrderStatusPending}
	o.Snapshot(decimal.RequireFromString("2.50"))
	return o, nil
}

func (f *fakeOrderService) UpdateOrder(_ context.Context, id, _ int64, req dto.UpdateOrderRequest) (*model.Order, error) {
	if id != 7 {
		return nil, service.ErrOrderNotFound
	}
	return &model.Order{ID: id, Status: model.OrderStatus(*req.Status)}, nil
}

func (f *fakeOrderService) GetOrder(_ context.Context, id int64) (*model.Order, error) {
	if id != 7 {
		return nil, service.ErrOrderNotFound
	}
	return &model.Order{ID: 7, ProductName: "Wheat", BuyerName: "Ayse", Status: model.OrderStatusPending, CreatedAt: time.Now()}, nil
}

func (f *fakeOrderService) ListOrders(_ context.Context, q dto.ListOrdersQuery) ([]model.Order, error) {
	f.lastQuery = q
	return []model.Order{{ID: 7, Status: model.OrderStatusPending}}, nil
}

func orderRouter(svc OrderService) *gin.Engine {
	h := NewOrderHandler(svc)
	r := gin.New()
	r.POST("/api/orders", h.CreateOrder)
	r.GET("/api/orders", h.ListOrders)
	r.GET("/api/orders/:id", h.GetOrder)
	r.PUT("/api/orders/:id", h.UpdateOrder)
	return r
}

func TestOrderHandler_Create(t *testing.T) {
	r := orderRouter(&fakeOrderService{})
	w := performJSON(r, http.MethodPost, "/api/orders", `{"product_id":3,"seller_id":1,"buyer_id":2,"quantity":20}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, 2.5, body["unit_price"])
	assert.Equal(t, 50.0, body["total_price"])
	assert.Equal(t, "pending", body["status"])
}

func TestOrderHandler_CreateErrors(t *testing.T) {
	w := performJSON(orderRouter(&fakeOrderService{placeErr: service.ErrInsufficientStock}), http.MethodPost, "/api/orders", `{"product_id":3,"buyer_id":2,"quantity":20}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Insufficient quantity", decode(t, w)["error"])

	w = performJSON(orderRouter(&fakeOrderService{}), http.MethodPost, "/api/orders", `{"quantity":"lots"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrderHandler_UpdateAndGet(t *testing.T) {
	r := orderRouter(&fakeOrderService{})

	w := performJSON(r, http.MethodPut, "/api/orders/7", `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Order updated successfully", body["message"])
	assert.Equal(t, "confirmed", body["status"])
	assert.Equal(t, "confirmed", body["order"].(map[string]any)["status"])

	w = performJSON(r, http.MethodPut, "/api/orders/8", `{"status":"confirmed"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(r, http.MethodGet, "/api/orders/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(r, http.MethodGet, "/api/orders/7", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Wheat", decode(t, w)["product_name"])
}

func TestOrderHandler_ListBindsFilters(t *testing.T) {
	svc := &fakeOrderService{}
	w := perform(orderRouter(svc), http.MethodGet, "/api/orders?buyer_id=2&status=pending", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.lastQuery.BuyerID)
	assert.Equal(t, int64(2), *svc.lastQuery.BuyerID)
	assert.Nil(t, svc.lastQuery.SellerID)
	assert.Equal(t, "pending", svc.lastQuery.Status)

	w = perform(orderRouter(svc), http.MethodGet, "/api/orders?buyer_id=x", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type fakeProductService struct {
	created *dto.CreateProductRequest
	image   string
}

func (f *fakeProductService) Create(_ context.Context, _ int64, req dto.CreateProductRequest, image *service.Upload) (*dto.ProductResponse, error) {
	f.created = &req
	if image != nil {
		data, _ := io.ReadAll(image.Body)
		f.image = image.Filename + ":" + string(data)
	}
	return &dto.ProductResponse{ID: 1, Name: req.Name}, nil
}

func (f *fakeProductService) GetByID(_ context.Context, id int64) (*dto.ProductResponse, error) {
	return nil, service.ErrProductNotFound
}

func (f *fakeProductService) List(context.Context, dto.ListProductsQuery) ([]dto.ProductResponse, error) {
	return []dto.ProductResponse{}, nil
}

func (f *fakeProductService) Update(context.Context, int64, int64, dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	return nil, service.ErrForbidden
}

func (f *fakeProductService) Delete(context.Context, int64, int64) error { return nil }

func TestProductHandler_CreateMultipart(t *testing.T) {
	svc := &fakeProductService{}
	h := NewProductHandler(svc)
	r := gin.New()
	r.POST("/api/products", h.Create)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{"name": "Wheat", "price": "2.50", "quantity": "100", "seller_id": "1", "category_id": "1"} {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("image", "wheat.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("img"))
	require.NoError(t, mw.Close())

	w := perform(r, http.MethodPost, "/api/products", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, svc.created)
	assert.Equal(t, "2.50", svc.created.Price)
	assert.Equal(t, int64(1), svc.created.SellerID)
	assert.Equal(t, "wheat.png:img", svc.image)

	var missing bytes.Buffer
	mw = multipart.NewWriter(&missing)
	require.NoError(t, mw.WriteField("name", "Wheat"))
	require.NoError(t, mw.Close())
	w = perform(r, http.MethodPost, "/api/products", &missing, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing required fields", decode(t, w)["error"])
}

func TestProductHandler_Errors(t *testing.T) {
	h := NewProductHandler(&fakeProductService{})
	r := gin.New()
	r.GET("/api/products/:id", h.GetByID)
	r.PUT("/api/products/:id", h.Update)
	r.DELETE("/api/products/:id", h.Delete)

	assert.Equal(t, http.StatusNotFound, perform(r, http.MethodGet, "/api/products/5", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, performJSON(r, http.MethodPut, "/api/products/5", `{"quantity":3}`).Code)

	w := perform(r, http.MethodDelete, "/api/products/5", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Product deleted successfully", decode(t, w)["message"])
}

type fakeAuthService struct{}

func (fakeAuthService) Register(context.Context, dto.RegisterRequest) (*dto.AuthResponse, error) {
	return nil, service.ErrUsernameTaken
}

func (fakeAuthService) Login(context.Context, dto.LoginRequest) (*dto.AuthResponse, error) {
	return nil, service.ErrInvalidCredentials
}

func (fakeAuthService) GoogleLogin(_ context.Context, req dto.GoogleLoginRequest) (*dto.AuthResponse, bool, error) {
	return &dto.AuthResponse{UserResponse: dto.UserResponse{ID: 1, Email: req.Email}, Token: "t"}, req.GoogleID == "new", nil
}

func TestUserHandler_StatusCodes(t *testing.T) {
	h := NewUserHandler(fakeAuthService{}, nil)
	r := gin.New()
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)
	r.POST("/google", h.GoogleLogin)

	w := performJSON(r, http.MethodPost, "/register", `{"username":"a","email":"a@b.co","password":"p","full_name":"A","role":"farmer"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Username already exists", decode(t, w)["error"])

	w = performJSON(r, http.MethodPost, "/register", `{"username":"a"}`)
	assert.Equal(t, "Missing required fields", decode(t, w)["error"])

	w = performJSON(r, http.MethodPost, "/login", `{"username":"a","password":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = performJSON(r, http.MethodPost, "/login", `{"username":"a"}`)
	assert.Equal(t, "Missing username or password", decode(t, w)["error"])

	w = performJSON(r, http.MethodPost, "/google", `{"google_id":"new","email":"a@b.co","full_name":"A"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "t", decode(t, w)["token"])

	w = performJSON(r, http.MethodPost, "/google", `{"google_id":"old","email":"a@b.co","full_name":"A"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadHandler_Serve(t *testing.T) {
	store, err := storage.NewLocalStore(t.TempDir(), "/api/uploads", 1024)
	require.NoError(t, err)
	url, err := store.Store(context.Background(), "wheat.png", strings.NewReader("png-bytes"), 9)
	require.NoError(t, err)

	h := NewUploadHandler(store)
	r := gin.New()
	r.GET("/api/uploads/:filename", h.Serve)

	w := perform(r, http.MethodGet, url, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png-bytes", w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = perform(r, http.MethodGet, "/api/uploads/missing.png", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthHandler(t *testing.T) {
	h := &HealthHandler{checks: []dependencyCheck{
		{"postgres", func(context.Context) error { return nil }},
		{"redis", func(context.Context) error { return errors.New("down") }},
	}}
	r := gin.New()
	r.GET("/api/health", h.Health)
	r.GET("/readyz", h.Readyz)

	w := perform(r, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Backend is running", decode(t, w)["message"])

	w = perform(r, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", decode(t, w)["redis"])
}
