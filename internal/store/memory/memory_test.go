package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mercadinho/api/internal/store"
	"github.com/mercadinho/api/internal/store/memory"
)

func mustCategory(t *testing.T, s *memory.Store, name string) store.Category {
	t.Helper()
	c, err := s.CreateCategory(context.Background(), store.Category{Name: name})
	if err != nil {
		t.Fatalf("create category %q: %v", name, err)
	}
	return c
}

func mustProduct(t *testing.T, s *memory.Store, name, price string, categoryID int64) store.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), store.Product{
		Name:       name,
		Price:      decimal.RequireFromString(price),
		CategoryID: categoryID,
	})
	if err != nil {
		t.Fatalf("create product %q: %v", name, err)
	}
	return p
}

func mustSale(t *testing.T, s *memory.Store, productID int64, qty int, total, profit string, date time.Time) store.Sale {
	t.Helper()
	sale, err := s.CreateSale(context.Background(), store.Sale{
		ProductID:  productID,
		Quantity:   qty,
		TotalPrice: decimal.RequireFromString(total),
		Profit:     decimal.RequireFromString(profit),
		Date:       date,
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	return sale
}

// --- Categories ---

func TestCreateCategory_RejectsDuplicateName(t *testing.T) {
	s := memory.New()
	mustCategory(t, s, "Bebidas")

	_, err := s.CreateCategory(context.Background(), store.Category{Name: "Bebidas"})
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestEnsureCategory_CreatesSentinel(t *testing.T) {
	s := memory.New()

	c, err := s.EnsureCategory(context.Background(), 7)
	if err != nil {
		t.Fatalf("ensure category: %v", err)
	}
	if c.Name != "7" {
		t.Errorf("sentinel name: got %q, want %q", c.Name, "7")
	}
	if !c.DiscountPercentage.IsZero() {
		t.Errorf("sentinel discount: got %s, want 0", c.DiscountPercentage)
	}
	if !c.IsSentinel() {
		t.Error("expected IsSentinel to be true")
	}
}

func TestEnsureCategory_KeepsExisting(t *testing.T) {
	s := memory.New()
	created := mustCategory(t, s, "Limpeza")

	c, err := s.EnsureCategory(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("ensure category: %v", err)
	}
	if c.Name != "Limpeza" {
		t.Errorf("ensure overwrote existing category: got name %q", c.Name)
	}
}

func TestCreateCategory_IDsAdvancePastUpsertedIDs(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if _, err := s.UpsertCategory(ctx, store.Category{ID: 10, Name: "Eletrônicos"}); err != nil {
		t.Fatalf("upsert category: %v", err)
	}
	created := mustCategory(t, s, "Livros")
	if created.ID <= 10 {
		t.Errorf("generated id %d collides with upserted id space", created.ID)
	}
}

// The SQL schema declares category names UNIQUE; the map-backed store must
// reject the same writes so import reports do not depend on the backend.
func TestUpsertCategory_DuplicateNameConflicts(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	created := mustCategory(t, s, "Bebidas")

	_, err := s.UpsertCategory(ctx, store.Category{ID: created.ID + 1, Name: "Bebidas"})
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	// Rewriting the same record under its own id is not a conflict.
	updated, err := s.UpsertCategory(ctx, store.Category{
		ID:                 created.ID,
		Name:               "Bebidas",
		DiscountPercentage: decimal.NewFromInt(5),
	})
	if err != nil {
		t.Fatalf("self upsert: %v", err)
	}
	if got := updated.DiscountPercentage.StringFixed(2); got != "5.00" {
		t.Errorf("discount: got %s, want 5.00", got)
	}
}

func TestUpdateCategory_DuplicateNameConflicts(t *testing.T) {
	s := memory.New()
	mustCategory(t, s, "Bebidas")
	other := mustCategory(t, s, "Doces")

	other.Name = "Bebidas"
	_, err := s.UpdateCategory(context.Background(), other)
	if !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

// --- Products ---

func TestCreateProduct_ValidatesCategoryReference(t *testing.T) {
	s := memory.New()

	_, err := s.CreateProduct(context.Background(), store.Product{
		Name:       "Teclado",
		Price:      decimal.RequireFromString("150.00"),
		CategoryID: 99,
	})
	if !errors.Is(err, store.ErrReference) {
		t.Errorf("expected ErrReference, got %v", err)
	}
}

func TestListProducts_FilterBySearchAndCategory(t *testing.T) {
	s := memory.New()
	eletro := mustCategory(t, s, "Eletrônicos")
	moveis := mustCategory(t, s, "Móveis")

	mustProduct(t, s, "Notebook Dell", "3500.00", eletro.ID)
	mustProduct(t, s, "Notebook Lenovo", "2800.00", eletro.ID)
	mustProduct(t, s, "Mesa de Escritório", "700.00", moveis.ID)

	items, totalFiltered, totalAll, err := s.ListProducts(context.Background(), store.ProductFilter{
		Search:     "notebook",
		CategoryID: eletro.ID,
	})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if totalAll != 3 {
		t.Errorf("totalAll: got %d, want 3", totalAll)
	}
	if totalFiltered != 2 {
		t.Errorf("totalFiltered: got %d, want 2", totalFiltered)
	}
	if len(items) != 2 {
		t.Fatalf("items: got %d, want 2", len(items))
	}
	// Case-insensitive substring match.
	if items[0].Name != "Notebook Dell" || items[1].Name != "Notebook Lenovo" {
		t.Errorf("unexpected items: %v", items)
	}
}

func TestListProducts_SearchMatchesWildcardsLiterally(t *testing.T) {
	s := memory.New()
	cat := mustCategory(t, s, "Doces")
	mustProduct(t, s, "100% Cacau", "12.00", cat.ID)
	mustProduct(t, s, "Cacau em Pó", "9.00", cat.ID)

	items, totalFiltered, _, err := s.ListProducts(context.Background(), store.ProductFilter{
		Search: "100%",
	})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if totalFiltered != 1 || len(items) != 1 {
		t.Fatalf("expected a single literal match, got %d", totalFiltered)
	}
	if items[0].Name != "100% Cacau" {
		t.Errorf("unexpected match: %q", items[0].Name)
	}
}

func TestListProducts_PagesReassembleFilteredSet(t *testing.T) {
	s := memory.New()
	cat := mustCategory(t, s, "Diversos")
	for i := 0; i < 23; i++ {
		mustProduct(t, s, fmt.Sprintf("Produto %02d", i), "10.00", cat.ID)
	}

	for _, pageSize := range []int{1, 4, 7, 23, 50} {
		seen := map[int64]bool{}
		collected := 0
		for page := 1; ; page++ {
			items, totalFiltered, _, err := s.ListProducts(context.Background(), store.ProductFilter{
				Page:     page,
				PageSize: pageSize,
			})
			if err != nil {
				t.Fatalf("page %d size %d: %v", page, pageSize, err)
			}
			if totalFiltered != 23 {
				t.Fatalf("totalFiltered: got %d, want 23", totalFiltered)
			}
			if len(items) == 0 {
				break
			}
			for _, p := range items {
				if seen[p.ID] {
					t.Fatalf("pageSize %d: product %d appeared twice", pageSize, p.ID)
				}
				seen[p.ID] = true
			}
			collected += len(items)
		}
		if collected != 23 {
			t.Errorf("pageSize %d: collected %d products, want 23", pageSize, collected)
		}
	}
}

func TestListProducts_PageBeyondEndIsEmpty(t *testing.T) {
	s := memory.New()
	cat := mustCategory(t, s, "Diversos")
	mustProduct(t, s, "Produto Único", "10.00", cat.ID)

	items, totalFiltered, _, err := s.ListProducts(context.Background(), store.ProductFilter{
		Page:     5,
		PageSize: 10,
	})
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty page, got %d items", len(items))
	}
	if totalFiltered != 1 {
		t.Errorf("totalFiltered: got %d, want 1", totalFiltered)
	}
}

// --- Sales & aggregates ---

func TestSalesTotals_EmptyLedgerIsZero(t *testing.T) {
	s := memory.New()

	value, profit, err := s.SalesTotals(context.Background())
	if err != nil {
		t.Fatalf("sales totals: %v", err)
	}
	if !value.IsZero() || !profit.IsZero() {
		t.Errorf("expected zeros, got value=%s profit=%s", value, profit)
	}
}

func TestSalesTotals_SumsAllSales(t *testing.T) {
	s := memory.New()
	cat := mustCategory(t, s, "Eletrônicos")
	p := mustProduct(t, s, "Mouse", "50.00", cat.ID)

	mustSale(t, s, p.ID, 1, "50.00", "15.00", time.Now())
	mustSale(t, s, p.ID, 2, "100.00", "30.00", time.Now())

	value, profit, err := s.SalesTotals(context.Background())
	if err != nil {
		t.Fatalf("sales totals: %v", err)
	}
	if got := value.StringFixed(2); got != "150.00" {
		t.Errorf("value: got %s, want 150.00", got)
	}
	if got := profit.StringFixed(2); got != "45.00" {
		t.Errorf("profit: got %s, want 45.00", got)
	}
}

func TestSalesSeries_DailyBucketsAscendingAndSparse(t *testing.T) {
	s := memory.New()
	cat := mustCategory(t, s, "Eletrônicos")
	p := mustProduct(t, s, "Mouse", "50.00", cat.ID)

	day := func(d string) time.Time {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			t.Fatalf("parse day: %v", err)
		}
		return parsed
	}

	// Out of insertion order, with a gap on 2024-03-02.
	mustSale(t, s, p.ID, 1, "50.00", "15.00", day("2024-03-03"))
	mustSale(t, s, p.ID, 1, "50.00", "15.00", day("2024-03-01"))
	mustSale(t, s, p.ID, 2, "100.00", "30.00", day("2024-03-01"))

	series, err := s.SalesSeries(context.Background(), store.GranularityDaily)
	if err != nil {
		t.Fatalf("sales series: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 buckets (empty day omitted), got %d", len(series))
	}
	if series[0].Date != "2024-03-01" || series[1].Date != "2024-03-03" {
		t.Errorf("buckets out of order: %v", series)
	}
	if got := series[0].TotalSales.StringFixed(2); got != "150.00" {
		t.Errorf("bucket total: got %s, want 150.00", got)
	}
	if got := series[0].Profit.StringFixed(2); got != "45.00" {
		t.Errorf("bucket profit: got %s, want 45.00", got)
	}
}

func TestSalesSeries_MonthlyGranularity(t *testing.T) {
	s := memory.New()
	cat := mustCategory(t, s, "Eletrônicos")
	p := mustProduct(t, s, "Mouse", "50.00", cat.ID)

	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	alsoJan := time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	mustSale(t, s, p.ID, 1, "50.00", "15.00", jan)
	mustSale(t, s, p.ID, 1, "50.00", "15.00", alsoJan)
	mustSale(t, s, p.ID, 1, "50.00", "15.00", mar)

	series, err := s.SalesSeries(context.Background(), store.GranularityMonthly)
	if err != nil {
		t.Fatalf("sales series: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("expected 2 month buckets, got %d", len(series))
	}
	if series[0].Date != "2024-01" || series[1].Date != "2024-03" {
		t.Errorf("unexpected buckets: %v", series)
	}
	if got := series[0].TotalSales.StringFixed(2); got != "100.00" {
		t.Errorf("january total: got %s, want 100.00", got)
	}
}

func TestCreateSale_ValidatesProductReference(t *testing.T) {
	s := memory.New()

	_, err := s.CreateSale(context.Background(), store.Sale{
		ProductID:  404,
		Quantity:   1,
		TotalPrice: decimal.RequireFromString("10.00"),
		Profit:     decimal.RequireFromString("3.00"),
		Date:       time.Now(),
	})
	if !errors.Is(err, store.ErrReference) {
		t.Errorf("expected ErrReference, got %v", err)
	}
}

// Concurrent upserts of the same id must never corrupt the map or produce a
// half-applied record.
func TestUpsertCategory_ConcurrentWritersLastWriteWins(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.UpsertCategory(ctx, store.Category{
				ID:                 1,
				Name:               fmt.Sprintf("Categoria %d", i),
				DiscountPercentage: decimal.NewFromInt(int64(i % 100)),
			})
			if err != nil {
				t.Errorf("upsert: %v", err)
			}
		}(i)
	}
	wg.Wait()

	c, err := s.GetCategory(ctx, 1)
	if err != nil {
		t.Fatalf("get category after concurrent upserts: %v", err)
	}
	if c.Name == "" {
		t.Error("category name empty after concurrent upserts")
	}
}
