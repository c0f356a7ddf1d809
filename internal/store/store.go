// Package store defines the logical schema of the catalog and the contract
// every storage backend must satisfy. Two implementations exist: an
// in-memory store (dev/tests) and a PostgreSQL store.
package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write collides with a uniqueness rule,
	// e.g. creating a category whose name is already taken.
	ErrConflict = errors.New("conflict")
	// ErrReference is returned when a write points at a missing entity
	// (product -> category, sale -> product).
	ErrReference = errors.New("referenced entity not found")
)

// Granularity selects the calendar bucket used by the sales series.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityMonthly Granularity = "monthly"
)

// ParseGranularity validates a user-supplied granularity string.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityDaily, GranularityMonthly:
		return Granularity(s), nil
	}
	return "", errors.New("granularity must be daily or monthly")
}

// Category groups products and carries an informational discount percentage.
type Category struct {
	ID                 int64
	Name               string
	DiscountPercentage decimal.Decimal
}

// IsSentinel reports whether the category was auto-created during import and
// still awaits its real name. Sentinels have their numeric id as name.
func (c Category) IsSentinel() bool {
	return c.Name == strconv.FormatInt(c.ID, 10)
}

// SentinelCategory builds the placeholder record created when a product or
// sale references a category id before its metadata arrives.
func SentinelCategory(id int64) Category {
	return Category{ID: id, Name: strconv.FormatInt(id, 10)}
}

type Product struct {
	ID         int64
	Name       string
	Price      decimal.Decimal
	CategoryID int64
}

type Sale struct {
	ID         int64
	ProductID  int64
	Quantity   int
	TotalPrice decimal.Decimal
	Profit     decimal.Decimal
	Date       time.Time
}

// ProductFilter narrows and pages a product listing. Filtering is applied
// before pagination. CategoryID 0 means "all categories"; Search "" matches
// everything. PageSize <= 0 disables pagination and returns the whole
// filtered set.
type ProductFilter struct {
	Search     string
	CategoryID int64
	Page       int
	PageSize   int
}

// SaleFilter pages a sales listing. PageSize <= 0 returns everything.
type SaleFilter struct {
	Page     int
	PageSize int
}

// SeriesPoint is one calendar bucket of the dashboard time series. Date is
// "2006-01-02" for daily buckets and "2006-01" for monthly ones.
type SeriesPoint struct {
	Date       string
	TotalSales decimal.Decimal
	Profit     decimal.Decimal
}

// Store is the single writer of durable state. Every method is an atomic
// check-and-write: concurrent calls may interleave between rows but never
// observe a half-applied write. Listings are ordered by id ascending so
// pagination is stable.
type Store interface {
	GetCategory(ctx context.Context, id int64) (Category, error)
	GetCategoryByName(ctx context.Context, name string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	// CreateCategory assigns a fresh id. Duplicate names are rejected with
	// ErrConflict.
	CreateCategory(ctx context.Context, c Category) (Category, error)
	// UpsertCategory creates or replaces the category with c.ID.
	UpsertCategory(ctx context.Context, c Category) (Category, error)
	UpdateCategory(ctx context.Context, c Category) (Category, error)
	// EnsureCategory creates a sentinel category for id if none exists and
	// returns whichever record ends up stored. Used by the import engine to
	// tolerate out-of-order reference data.
	EnsureCategory(ctx context.Context, id int64) (Category, error)

	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductByName(ctx context.Context, name string) (Product, error)
	// ListProducts returns the requested page, the filtered total and the
	// unfiltered total.
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, int, int, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpsertProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)

	GetSale(ctx context.Context, id int64) (Sale, error)
	ListSales(ctx context.Context, f SaleFilter) ([]Sale, int, error)
	CreateSale(ctx context.Context, s Sale) (Sale, error)
	UpsertSale(ctx context.Context, s Sale) (Sale, error)
	UpdateSale(ctx context.Context, s Sale) (Sale, error)

	CountProducts(ctx context.Context) (int, error)
	// SalesTotals sums total_price and profit over all sales. An empty
	// ledger yields two zeros, not an error.
	SalesTotals(ctx context.Context) (decimal.Decimal, decimal.Decimal, error)
	// SalesSeries groups sales into calendar buckets, ascending. Buckets
	// without sales are omitted.
	SalesSeries(ctx context.Context, g Granularity) ([]SeriesPoint, error)
}
