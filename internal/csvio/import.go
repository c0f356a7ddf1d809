// Package csvio holds the CSV reconciliation engine (import) and its inverse
// (export). Import applies a file as a sequence of independent row
// operations: a malformed row is recorded and skipped, never aborting the
// batch, while structural problems (unreadable file, missing header) fail the
// whole call before anything is applied.
package csvio

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercadinho/api/internal/pricing"
	"github.com/mercadinho/api/internal/store"
)

// Kind selects which entity set a CSV payload describes.
type Kind string

const (
	KindCategories Kind = "categories"
	KindProducts   Kind = "products"
	KindSales      Kind = "sales"
)

// ParseKind validates a user-supplied kind string.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCategories, KindProducts, KindSales:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown import kind %q", s)
}

// Report is the tagged outcome of one import call. Errors are ordered by row
// and keyed "row N: ..." with N 1-based over data rows (header excluded).
type Report struct {
	Kind    Kind      `json:"kind"`
	BatchID uuid.UUID `json:"batch_id"`
	Added   int       `json:"added_count"`
	Errors  []string  `json:"errors"`
}

// Importer reconciles CSV payloads against the entity store. It holds no
// state between calls.
type Importer struct {
	store store.Store
	now   func() time.Time
}

func NewImporter(st store.Store) *Importer {
	return &Importer{store: st, now: time.Now}
}

// Header aliases accepted on import. Export always writes the canonical
// name (the map value).
var headerAliases = map[string]string{
	"id":                  "id",
	"name":                "name",
	"discount_percentage": "discount_percentage",
	"discount":            "discount_percentage",
	"price":               "price",
	"category_id":         "category_id",
	"category":            "category_id",
	"product_id":          "product_id",
	"product":             "product_id",
	"quantity":            "quantity",
	"qty":                 "quantity",
	"total_price":         "total_price",
	"total":               "total_price",
	"profit":              "profit",
	"date":                "date",
}

var requiredColumns = map[Kind][]string{
	KindCategories: {"name"},
	KindProducts:   {"name", "price", "category_id"},
	KindSales:      {"product_id", "quantity"},
}

// Import parses the payload and applies each data row in file order. Later
// rows may depend on entities earlier rows created (e.g. sentinel
// categories), so rows are never reordered or parallelized.
func (im *Importer) Import(ctx context.Context, kind Kind, r io.Reader) (Report, error) {
	report := Report{Kind: kind, BatchID: uuid.New(), Errors: []string{}}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return report, errors.New("file is empty")
		}
		return report, fmt.Errorf("read header: %w", err)
	}

	columns, err := mapColumns(kind, header)
	if err != nil {
		return report, err
	}

	for rowNum := 1; ; rowNum++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Malformed record (field count, bad quoting): soft failure,
			// the reader recovers on the next line.
			report.Errors = append(report.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}

		var rowErr error
		switch kind {
		case KindCategories:
			rowErr = im.applyCategoryRow(ctx, columns, record)
		case KindProducts:
			rowErr = im.applyProductRow(ctx, columns, record)
		case KindSales:
			rowErr = im.applySaleRow(ctx, columns, record)
		}
		if rowErr != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("row %d: %v", rowNum, rowErr))
			continue
		}
		report.Added++
	}

	return report, nil
}

// mapColumns resolves the header row to canonical column indexes. A missing
// required column is a structural failure for the whole batch.
func mapColumns(kind Kind, header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\uFEFF")))
		if canonical, ok := headerAliases[name]; ok {
			columns[canonical] = i
		}
	}
	for _, required := range requiredColumns[kind] {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}
	return columns, nil
}

func (im *Importer) applyCategoryRow(ctx context.Context, columns map[string]int, record []string) error {
	name := cell(columns, record, "name")
	if name == "" {
		return errors.New("name is required")
	}

	discount := decimal.Zero
	if raw := cell(columns, record, "discount_percentage"); raw != "" {
		var err error
		discount, err = decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("invalid discount_percentage %q", raw)
		}
		if discount.IsNegative() || discount.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("discount_percentage %s out of range 0-100", discount)
		}
	}

	// With an explicit id the row either backfills an existing record
	// (sentinel or not) or creates it under that id. Without one, the row
	// matches by name like the manual path.
	if raw := cell(columns, record, "id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", raw)
		}
		_, err = im.store.UpsertCategory(ctx, store.Category{ID: id, Name: name, DiscountPercentage: discount})
		return err
	}

	existing, err := im.store.GetCategoryByName(ctx, name)
	switch {
	case err == nil:
		existing.DiscountPercentage = discount
		_, err = im.store.UpdateCategory(ctx, existing)
		return err
	case errors.Is(err, store.ErrNotFound):
		_, err = im.store.CreateCategory(ctx, store.Category{Name: name, DiscountPercentage: discount})
		return err
	default:
		return err
	}
}

func (im *Importer) applyProductRow(ctx context.Context, columns map[string]int, record []string) error {
	name := cell(columns, record, "name")
	if name == "" {
		return errors.New("name is required")
	}

	priceRaw := cell(columns, record, "price")
	price, err := decimal.NewFromString(priceRaw)
	if err != nil {
		return fmt.Errorf("invalid price %q", priceRaw)
	}
	if price.IsNegative() {
		return fmt.Errorf("price %s must not be negative", price)
	}

	categoryRaw := cell(columns, record, "category_id")
	categoryID, err := strconv.ParseInt(categoryRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid category_id %q", categoryRaw)
	}

	// Products may arrive before their category metadata: a reference to an
	// unknown category creates a sentinel instead of failing the row.
	if _, err := im.store.EnsureCategory(ctx, categoryID); err != nil {
		return fmt.Errorf("ensure category %d: %w", categoryID, err)
	}

	product := store.Product{Name: name, Price: price, CategoryID: categoryID}

	if raw := cell(columns, record, "id"); raw != "" {
		product.ID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", raw)
		}
		_, err = im.store.UpsertProduct(ctx, product)
		return err
	}

	existing, err := im.store.GetProductByName(ctx, name)
	switch {
	case err == nil:
		product.ID = existing.ID
		_, err = im.store.UpdateProduct(ctx, product)
		return err
	case errors.Is(err, store.ErrNotFound):
		_, err = im.store.CreateProduct(ctx, product)
		return err
	default:
		return err
	}
}

func (im *Importer) applySaleRow(ctx context.Context, columns map[string]int, record []string) error {
	productRaw := cell(columns, record, "product_id")
	productID, err := strconv.ParseInt(productRaw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid product_id %q", productRaw)
	}

	quantityRaw := cell(columns, record, "quantity")
	quantity, err := strconv.Atoi(quantityRaw)
	if err != nil {
		return fmt.Errorf("invalid quantity %q", quantityRaw)
	}
	if quantity <= 0 {
		return fmt.Errorf("quantity %d must be positive", quantity)
	}

	// Sales never fabricate products.
	product, err := im.store.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("product %d not found", productID)
	}
	if err != nil {
		return err
	}

	date := im.now()
	if raw := cell(columns, record, "date"); raw != "" {
		date, err = parseDate(raw)
		if err != nil {
			return err
		}
	}

	sale := store.Sale{ProductID: productID, Quantity: quantity, Date: date}

	// Explicit derived values override the calculator only when the row
	// supplies both; anything less is recomputed.
	totalRaw := cell(columns, record, "total_price")
	profitRaw := cell(columns, record, "profit")
	if totalRaw != "" && profitRaw != "" {
		if sale.TotalPrice, err = decimal.NewFromString(totalRaw); err != nil {
			return fmt.Errorf("invalid total_price %q", totalRaw)
		}
		if sale.TotalPrice.IsNegative() {
			return fmt.Errorf("total_price %s must not be negative", sale.TotalPrice)
		}
		if sale.Profit, err = decimal.NewFromString(profitRaw); err != nil {
			return fmt.Errorf("invalid profit %q", profitRaw)
		}
	} else {
		sale.TotalPrice, sale.Profit = pricing.ComputeSaleValues(product.Price, quantity)
	}

	if raw := cell(columns, record, "id"); raw != "" {
		sale.ID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", raw)
		}
		_, err = im.store.UpsertSale(ctx, sale)
		return err
	}
	_, err = im.store.CreateSale(ctx, sale)
	return err
}

func cell(columns map[string]int, record []string, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", raw)
}
