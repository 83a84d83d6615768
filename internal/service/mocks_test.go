package service

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/flicky/farm-market-api/internal/model"
	"github.com/flicky/farm-market-api/internal/repository"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

type mockUserRepo struct {
	byID   map[int64]*model.User
	nextID int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{byID: make(map[int64]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	for _, u := range m.byID {
		if u.Username == user.Username {
			return &repository.ConstraintError{Kind: repository.ErrDuplicate, Constraint: "users_username_key"}
		}
		if u.Email == user.Email {
			return &repository.ConstraintError{Kind: repository.ErrDuplicate, Constraint: "users_email_key"}
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	m.byID[user.ID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id int64) (*model.User, error) {
	return m.byID[id], nil
}

func (m *mockUserRepo) find(match func(*model.User) bool) *model.User {
	for _, u := range m.byID {
		if match(u) {
			return u
		}
	}
	return nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Username == username }), nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email }), nil
}

func (m *mockUserRepo) GetByGoogleID(_ context.Context, googleID string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.GoogleID != nil && *u.GoogleID == googleID }), nil
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	if _, ok := m.byID[user.ID]; !ok {
		return repository.ErrNotFound
	}
	m.byID[user.ID] = user
	return nil
}

func (m *mockUserRepo) LinkGoogleID(_ context.Context, id int64, googleID string) error {
	if u, ok := m.byID[id]; ok && u.GoogleID == nil {
		u.GoogleID = &googleID
	}
	return nil
}

func (m *mockUserRepo) add(username, fullName string, role model.Role) *model.User {
	u := &model.User{Username: username, Email: username + "@example.com", FullName: fullName, Role: role}
	_ = m.Create(context.Background(), u)
	return u
}

type mockCategoryRepo struct {
	byID   map[int64]*model.Category
	nextID int64
}

func newMockCategoryRepo() *mockCategoryRepo {
	return &mockCategoryRepo{byID: make(map[int64]*model.Category)}
}

func (m *mockCategoryRepo) Create(_ context.Context, c *model.Category) error {
	for _, existing := range m.byID {
		if existing.Name == c.Name {
			return &repository.ConstraintError{Kind: repository.ErrDuplicate, Constraint: "categories_name_key"}
		}
	}
	m.nextID++
	c.ID = m.nextID
	m.byID[c.ID] = c
	return nil
}

func (m *mockCategoryRepo) GetByID(_ context.Context, id int64) (*model.Category, error) {
	return m.byID[id], nil
}

func (m *mockCategoryRepo) List(_ context.Context) ([]model.Category, error) {
	out := make([]model.Category, 0, len(m.byID))
	for id := int64(1); id <= m.nextID; id++ {
		if c, ok := m.byID[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *mockCategoryRepo) Count(_ context.Context) (int, error) {
	return len(m.byID), nil
}

// mockProductRepo shares its lock with mockOrderRepo so Place behaves like
// the transactional decrement.
type mockProductRepo struct {
	mu       *sync.Mutex
	products map[int64]*model.Product
	nextID   int64
}

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{mu: &sync.Mutex{}, products: make(map[int64]*model.Product)}
}

func (m *mockProductRepo) Create(_ context.Context, p *model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	p.IsActive = true
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	m.products[p.ID] = p
	return nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id int64) (*model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *mockProductRepo) List(_ context.Context, filter model.ProductFilter) ([]model.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Product
	for id := int64(1); id <= m.nextID; id++ {
		p, ok := m.products[id]
		if !ok || !p.IsActive {
			continue
		}
		if filter.CategoryID != nil && p.CategoryID != *filter.CategoryID {
			continue
		}
		if filter.SellerID != nil && p.SellerID != *filter.SellerID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *mockProductRepo) Update(_ context.Context, id int64, patch model.ProductPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Quantity != nil {
		p.Quantity = *patch.Quantity
	}
	if patch.Unit != nil {
		p.Unit = *patch.Unit
	}
	if patch.Location != nil {
		p.Location = *patch.Location
	}
	if patch.HarvestDate != nil {
		p.HarvestDate = patch.HarvestDate
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (m *mockProductRepo) Deactivate(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.IsActive = false
	return nil
}

type mockOrderRepo struct {
	products *mockProductRepo
	users    *mockUserRepo
	orders   map[int64]*model.Order
	nextID   int64
	// staleOnce makes the next Update lose the compare-and-set.
	staleOnce func(*model.Order)
}

func newMockOrderRepo(products *mockProductRepo, users *mockUserRepo) *mockOrderRepo {
	return &mockOrderRepo{products: products, users: users, orders: make(map[int64]*model.Order)}
}

func (m *mockOrderRepo) Place(_ context.Context, order *model.Order) error {
	m.products.mu.Lock()
	defer m.products.mu.Unlock()

	p, ok := m.products.products[order.ProductID]
	if !ok || !p.IsActive {
		return repository.ErrNotFound
	}
	if p.Quantity < order.Quantity {
		return repository.ErrInsufficientStock
	}
	if m.users != nil {
		if _, ok := m.users.byID[order.BuyerID]; !ok {
			return &repository.ConstraintError{Kind: repository.ErrForeignKey, Constraint: "orders_buyer_id_fkey"}
		}
	}
	p.Quantity -= order.Quantity
	order.Snapshot(p.Price)
	order.Status = model.OrderStatusPending
	m.nextID++
	order.ID = m.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	stored := *order
	m.orders[order.ID] = &stored
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id int64) (*model.Order, error) {
	m.products.mu.Lock()
	defer m.products.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context, filter model.OrderFilter) ([]model.Order, error) {
	m.products.mu.Lock()
	defer m.products.mu.Unlock()
	var out []model.Order
	for id := m.nextID; id >= 1; id-- {
		o, ok := m.orders[id]
		if !ok {
			continue
		}
		if filter.BuyerID != nil && o.BuyerID != *filter.BuyerID {
			continue
		}
		if filter.SellerID != nil && o.SellerID != *filter.SellerID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, nil
}

func (m *mockOrderRepo) Update(_ context.Context, order *model.Order, prev model.OrderStatus) error {
	m.products.mu.Lock()
	defer m.products.mu.Unlock()
	stored, ok := m.orders[order.ID]
	if ok && m.staleOnce != nil {
		m.staleOnce(stored)
		m.staleOnce = nil
	}
	if !ok || stored.Status != prev {
		return repository.ErrStaleStatus
	}
	order.UpdatedAt = time.Now()
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

type sentNotification struct {
	to       string
	template string
	data     map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (r *recordingNotifier) Notify(_ context.Context, to, template string, data map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentNotification{to: to, template: template, data: data})
}

func (r *recordingNotifier) templates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.template)
	}
	return out
}
