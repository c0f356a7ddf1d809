// Package memory implements store.Store on mutex-guarded maps. It backs the
// unit tests and the STORE=memory dev mode; the serialization rules are the
// same ones the PostgreSQL store gets from single-statement upserts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mercadinho/api/internal/store"
)

type Store struct {
	mu         sync.RWMutex
	categories map[int64]store.Category
	products   map[int64]store.Product
	sales      map[int64]store.Sale
	nextCatID  int64
	nextProdID int64
	nextSaleID int64
}

func New() *Store {
	return &Store{
		categories: make(map[int64]store.Category),
		products:   make(map[int64]store.Product),
		sales:      make(map[int64]store.Sale),
		nextCatID:  1,
		nextProdID: 1,
		nextSaleID: 1,
	}
}

// --- Categories ---

func (s *Store) GetCategory(_ context.Context, id int64) (store.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return store.Category{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetCategoryByName(_ context.Context, name string) (store.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.Name == name {
			return c, nil
		}
	}
	return store.Category{}, store.ErrNotFound
}

func (s *Store) ListCategories(_ context.Context) ([]store.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, c store.Category) (store.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categoryNameTaken(c.Name, 0) {
		return store.Category{}, store.ErrConflict
	}
	c.ID = s.nextCatID
	s.nextCatID++
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) UpsertCategory(_ context.Context, c store.Category) (store.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.categoryNameTaken(c.Name, c.ID) {
		return store.Category{}, store.ErrConflict
	}
	s.categories[c.ID] = c
	s.bumpCatID(c.ID)
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, c store.Category) (store.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[c.ID]; !ok {
		return store.Category{}, store.ErrNotFound
	}
	if s.categoryNameTaken(c.Name, c.ID) {
		return store.Category{}, store.ErrConflict
	}
	s.categories[c.ID] = c
	return c, nil
}

// categoryNameTaken reports whether another category already carries the
// name, mirroring the UNIQUE constraint of the SQL schema. Callers must hold
// the lock.
func (s *Store) categoryNameTaken(name string, selfID int64) bool {
	for _, existing := range s.categories {
		if existing.Name == name && existing.ID != selfID {
			return true
		}
	}
	return false
}

func (s *Store) EnsureCategory(_ context.Context, id int64) (store.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.categories[id]; ok {
		return c, nil
	}
	c := store.SentinelCategory(id)
	if s.categoryNameTaken(c.Name, id) {
		return store.Category{}, store.ErrConflict
	}
	s.categories[id] = c
	s.bumpCatID(id)
	return c, nil
}

// bumpCatID keeps generated ids ahead of explicitly supplied ones.
// Callers must hold the write lock.
func (s *Store) bumpCatID(id int64) {
	if id >= s.nextCatID {
		s.nextCatID = id + 1
	}
}

// --- Products ---

func (s *Store) GetProduct(_ context.Context, id int64) (store.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return store.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetProductByName(_ context.Context, name string) (store.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.Name == name {
			return p, nil
		}
	}
	return store.Product{}, store.ErrNotFound
}

func (s *Store) ListProducts(_ context.Context, f store.ProductFilter) ([]store.Product, int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]store.Product, 0, len(s.products))
	for _, p := range s.products {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	search := strings.ToLower(strings.TrimSpace(f.Search))
	filtered := make([]store.Product, 0, len(all))
	for _, p := range all {
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		if f.CategoryID != 0 && p.CategoryID != f.CategoryID {
			continue
		}
		filtered = append(filtered, p)
	}

	return pageSlice(filtered, f.Page, f.PageSize), len(filtered), len(all), nil
}

func (s *Store) CreateProduct(_ context.Context, p store.Product) (store.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[p.CategoryID]; !ok {
		return store.Product{}, store.ErrReference
	}
	p.ID = s.nextProdID
	s.nextProdID++
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) UpsertProduct(_ context.Context, p store.Product) (store.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[p.CategoryID]; !ok {
		return store.Product{}, store.ErrReference
	}
	s.products[p.ID] = p
	if p.ID >= s.nextProdID {
		s.nextProdID = p.ID + 1
	}
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, p store.Product) (store.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		return store.Product{}, store.ErrNotFound
	}
	if _, ok := s.categories[p.CategoryID]; !ok {
		return store.Product{}, store.ErrReference
	}
	s.products[p.ID] = p
	return p, nil
}

// --- Sales ---

func (s *Store) GetSale(_ context.Context, id int64) (store.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[id]
	if !ok {
		return store.Sale{}, store.ErrNotFound
	}
	return sale, nil
}

func (s *Store) ListSales(_ context.Context, f store.SaleFilter) ([]store.Sale, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]store.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		all = append(all, sale)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return pageSlice(all, f.Page, f.PageSize), len(all), nil
}

func (s *Store) CreateSale(_ context.Context, sale store.Sale) (store.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[sale.ProductID]; !ok {
		return store.Sale{}, store.ErrReference
	}
	sale.ID = s.nextSaleID
	s.nextSaleID++
	s.sales[sale.ID] = sale
	return sale, nil
}

func (s *Store) UpsertSale(_ context.Context, sale store.Sale) (store.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[sale.ProductID]; !ok {
		return store.Sale{}, store.ErrReference
	}
	s.sales[sale.ID] = sale
	if sale.ID >= s.nextSaleID {
		s.nextSaleID = sale.ID + 1
	}
	return sale, nil
}

func (s *Store) UpdateSale(_ context.Context, sale store.Sale) (store.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sales[sale.ID]; !ok {
		return store.Sale{}, store.ErrNotFound
	}
	if _, ok := s.products[sale.ProductID]; !ok {
		return store.Sale{}, store.ErrReference
	}
	s.sales[sale.ID] = sale
	return sale, nil
}

// --- Aggregates ---

func (s *Store) CountProducts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products), nil
}

func (s *Store) SalesTotals(_ context.Context) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value := decimal.Zero
	profit := decimal.Zero
	for _, sale := range s.sales {
		value = value.Add(sale.TotalPrice)
		profit = profit.Add(sale.Profit)
	}
	return value, profit, nil
}

func (s *Store) SalesSeries(_ context.Context, g store.Granularity) ([]store.SeriesPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layout := "2006-01-02"
	if g == store.GranularityMonthly {
		layout = "2006-01"
	}

	buckets := make(map[string]*store.SeriesPoint)
	for _, sale := range s.sales {
		key := sale.Date.Format(layout)
		pt, ok := buckets[key]
		if !ok {
			pt = &store.SeriesPoint{Date: key, TotalSales: decimal.Zero, Profit: decimal.Zero}
			buckets[key] = pt
		}
		pt.TotalSales = pt.TotalSales.Add(sale.TotalPrice)
		pt.Profit = pt.Profit.Add(sale.Profit)
	}

	out := make([]store.SeriesPoint, 0, len(buckets))
	for _, pt := range buckets {
		out = append(out, *pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// pageSlice windows items to the requested 1-based page. Pages past the end
// yield an empty, non-nil slice.
func pageSlice[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
