package csvio

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/mercadinho/api/internal/store"
)

// Export column orders are fixed and match what Import accepts, so a file
// exported here can be re-imported unchanged.
var exportHeaders = map[Kind][]string{
	KindCategories: {"id", "name", "discount_percentage"},
	KindProducts:   {"id", "name", "price", "category_id"},
	KindSales:      {"id", "product_id", "quantity", "total_price", "profit", "date"},
}

// Exporter serializes the current entity sets back to CSV.
type Exporter struct {
	store store.Store
}

func NewExporter(st store.Store) *Exporter {
	return &Exporter{store: st}
}

// Export writes one header row plus one row per current entity of the given
// kind.
func (ex *Exporter) Export(ctx context.Context, kind Kind, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders[kind]); err != nil {
		return err
	}

	switch kind {
	case KindCategories:
		categories, err := ex.store.ListCategories(ctx)
		if err != nil {
			return err
		}
		for _, c := range categories {
			if err := cw.Write([]string{
				strconv.FormatInt(c.ID, 10),
				c.Name,
				c.DiscountPercentage.StringFixed(2),
			}); err != nil {
				return err
			}
		}
	case KindProducts:
		products, _, _, err := ex.store.ListProducts(ctx, store.ProductFilter{})
		if err != nil {
			return err
		}
		for _, p := range products {
			if err := cw.Write([]string{
				strconv.FormatInt(p.ID, 10),
				p.Name,
				p.Price.StringFixed(2),
				strconv.FormatInt(p.CategoryID, 10),
			}); err != nil {
				return err
			}
		}
	case KindSales:
		sales, _, err := ex.store.ListSales(ctx, store.SaleFilter{})
		if err != nil {
			return err
		}
		for _, s := range sales {
			if err := cw.Write([]string{
				strconv.FormatInt(s.ID, 10),
				strconv.FormatInt(s.ProductID, 10),
				strconv.Itoa(s.Quantity),
				s.TotalPrice.StringFixed(2),
				s.Profit.StringFixed(2),
				s.Date.Format(time.RFC3339),
			}); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown export kind %q", kind)
	}

	cw.Flush()
	return cw.Error()
}
