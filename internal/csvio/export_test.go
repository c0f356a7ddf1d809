package csvio_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/mercadinho/api/internal/csvio"
	"github.com/mercadinho/api/internal/store/memory"
)

func exportCSV(t *testing.T, st *memory.Store, kind csvio.Kind) string {
	t.Helper()
	var buf bytes.Buffer
	if err := csvio.NewExporter(st).Export(context.Background(), kind, &buf); err != nil {
		t.Fatalf("export %s: %v", kind, err)
	}
	return buf.String()
}

func TestExportCategories_HeaderOnlyWhenEmpty(t *testing.T) {
	st := memory.New()

	out := exportCSV(t, st, csvio.KindCategories)
	if out != "id,name,discount_percentage\n" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestExportProducts_WritesCanonicalColumns(t *testing.T) {
	st := memory.New()
	importCSV(t, st, csvio.KindProducts,
		"id,name,price,category_id\n1,Notebook,3500.00,3\n2,Mouse,49.90,3\n")

	records, err := csv.NewReader(strings.NewReader(exportCSV(t, st, csvio.KindProducts))).ReadAll()
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}
	want := []string{"id", "name", "price", "category_id"}
	for i, col := range want {
		if records[0][i] != col {
			t.Errorf("header[%d]: got %q, want %q", i, records[0][i], col)
		}
	}
	if records[2][1] != "Mouse" || records[2][2] != "49.90" {
		t.Errorf("unexpected second row: %v", records[2])
	}
}

func TestExportSales_MoneyAndDateFormats(t *testing.T) {
	st := memory.New()
	seedProduct(t, st, "100.00")
	importCSV(t, st, csvio.KindSales, "product_id,quantity,date\n1,3,2024-06-10\n")

	records, err := csv.NewReader(strings.NewReader(exportCSV(t, st, csvio.KindSales))).ReadAll()
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header + 1 row, got %d records", len(records))
	}
	row := records[1]
	if row[3] != "300.00" || row[4] != "90.00" {
		t.Errorf("money columns: got total=%q profit=%q", row[3], row[4])
	}
	if _, err := time.Parse(time.RFC3339, row[5]); err != nil {
		t.Errorf("date %q is not RFC3339: %v", row[5], err)
	}
}

// An exported file must re-import cleanly and reproduce the same entity set.
func TestExport_RoundTripsThroughImport(t *testing.T) {
	st := memory.New()
	importCSV(t, st, csvio.KindCategories,
		"id,name,discount_percentage\n1,Eletrônicos,10\n2,Bebidas,5\n")
	importCSV(t, st, csvio.KindProducts,
		"id,name,price,category_id\n1,Notebook,3500.00,1\n2,Suco,8.50,2\n")
	importCSV(t, st, csvio.KindSales,
		"id,product_id,quantity,date\n1,1,1,2024-06-10\n2,2,4,2024-06-11\n")

	exports := map[csvio.Kind]string{}
	for _, kind := range []csvio.Kind{csvio.KindCategories, csvio.KindProducts, csvio.KindSales} {
		exports[kind] = exportCSV(t, st, kind)
	}

	fresh := memory.New()
	for _, kind := range []csvio.Kind{csvio.KindCategories, csvio.KindProducts, csvio.KindSales} {
		report := importCSV(t, fresh, kind, exports[kind])
		if len(report.Errors) != 0 {
			t.Fatalf("re-import %s: %v", kind, report.Errors)
		}
		if report.Added != 2 {
			t.Errorf("re-import %s: added %d, want 2", kind, report.Added)
		}
	}

	for _, kind := range []csvio.Kind{csvio.KindCategories, csvio.KindProducts, csvio.KindSales} {
		if got := exportCSV(t, fresh, kind); got != exports[kind] {
			t.Errorf("%s export diverged after round trip:\n got: %q\nwant: %q", kind, got, exports[kind])
		}
	}

	value, profit, err := fresh.SalesTotals(context.Background())
	if err != nil {
		t.Fatalf("sales totals: %v", err)
	}
	if got := value.StringFixed(2); got != "3534.00" {
		t.Errorf("total value after round trip: got %s, want 3534.00", got)
	}
	if got := profit.StringFixed(2); got != "1060.20" {
		t.Errorf("total profit after round trip: got %s, want 1060.20", got)
	}
}

func TestExport_UnknownKind(t *testing.T) {
	st := memory.New()
	var buf bytes.Buffer
	if err := csvio.NewExporter(st).Export(context.Background(), csvio.Kind("inventory"), &buf); err == nil {
		t.Error("expected error for unknown kind")
	}
}
