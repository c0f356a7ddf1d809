// Package postgres implements store.Store on a pgx connection pool. All
// writes are single statements (INSERT .. ON CONFLICT for upserts), so each
// row operation is atomic and concurrent imports cannot observe partial
// writes.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mercadinho/api/internal/store"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// --- Categories ---

const categoryColumns = "id, name, discount_percentage"

func (s *Store) GetCategory(ctx context.Context, id int64) (store.Category, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	return scanCategory(row)
}

func (s *Store) GetCategoryByName(ctx context.Context, name string) (store.Category, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE name = $1`, name)
	return scanCategory(row)
}

func (s *Store) ListCategories(ctx context.Context) ([]store.Category, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+categoryColumns+` FROM categories ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.Category, 0, 32)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CreateCategory(ctx context.Context, c store.Category) (store.Category, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO categories (name, discount_percentage)
		VALUES ($1, $2)
		RETURNING `+categoryColumns,
		c.Name, decimalToNumeric(c.DiscountPercentage))
	created, err := scanCategory(row)
	if err != nil {
		return store.Category{}, mapPgError(err)
	}
	return created, nil
}

func (s *Store) UpsertCategory(ctx context.Context, c store.Category) (store.Category, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO categories (id, name, discount_percentage)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, discount_percentage = EXCLUDED.discount_percentage
		RETURNING `+categoryColumns,
		c.ID, c.Name, decimalToNumeric(c.DiscountPercentage))
	upserted, err := scanCategory(row)
	if err != nil {
		return store.Category{}, mapPgError(err)
	}
	s.syncSequence(ctx, "categories")
	return upserted, nil
}

func (s *Store) UpdateCategory(ctx context.Context, c store.Category) (store.Category, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE categories
		SET name = $2, discount_percentage = $3
		WHERE id = $1
		RETURNING `+categoryColumns,
		c.ID, c.Name, decimalToNumeric(c.DiscountPercentage))
	updated, err := scanCategory(row)
	if err != nil {
		return store.Category{}, mapPgError(err)
	}
	return updated, nil
}

func (s *Store) EnsureCategory(ctx context.Context, id int64) (store.Category, error) {
	sentinel := store.SentinelCategory(id)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO categories (id, name, discount_percentage)
		VALUES ($1, $2, 0)
		ON CONFLICT (id) DO NOTHING`,
		sentinel.ID, sentinel.Name)
	if err != nil {
		return store.Category{}, mapPgError(err)
	}
	s.syncSequence(ctx, "categories")
	return s.GetCategory(ctx, id)
}

// --- Products ---

const productColumns = "id, name, price, category_id"

func (s *Store) GetProduct(ctx context.Context, id int64) (store.Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	return scanProduct(row)
}

func (s *Store) GetProductByName(ctx context.Context, name string) (store.Product, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE name = $1 ORDER BY id ASC LIMIT 1`, name)
	return scanProduct(row)
}

func (s *Store) ListProducts(ctx context.Context, f store.ProductFilter) ([]store.Product, int, int, error) {
	var totalAll int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&totalAll); err != nil {
		return nil, 0, 0, err
	}

	where := `WHERE ($1 = '' OR name ILIKE '%' || $1 || '%')
		AND ($2 = 0 OR category_id = $2)`
	args := []any{escapeLike(f.Search), f.CategoryID}

	var totalFiltered int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products `+where, args...).Scan(&totalFiltered); err != nil {
		return nil, 0, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products ` + where + ` ORDER BY id ASC`
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += ` LIMIT $3 OFFSET $4`
		args = append(args, f.PageSize, (page-1)*f.PageSize)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	items := make([]store.Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, 0, err
		}
		items = append(items, p)
	}
	return items, totalFiltered, totalAll, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, p store.Product) (store.Product, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO products (name, price, category_id)
		VALUES ($1, $2, $3)
		RETURNING `+productColumns,
		p.Name, decimalToNumeric(p.Price), p.CategoryID)
	created, err := scanProduct(row)
	if err != nil {
		return store.Product{}, mapPgError(err)
	}
	return created, nil
}

func (s *Store) UpsertProduct(ctx context.Context, p store.Product) (store.Product, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO products (id, name, price, category_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, price = EXCLUDED.price, category_id = EXCLUDED.category_id
		RETURNING `+productColumns,
		p.ID, p.Name, decimalToNumeric(p.Price), p.CategoryID)
	upserted, err := scanProduct(row)
	if err != nil {
		return store.Product{}, mapPgError(err)
	}
	s.syncSequence(ctx, "products")
	return upserted, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p store.Product) (store.Product, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE products
		SET name = $2, price = $3, category_id = $4
		WHERE id = $1
		RETURNING `+productColumns,
		p.ID, p.Name, decimalToNumeric(p.Price), p.CategoryID)
	updated, err := scanProduct(row)
	if err != nil {
		return store.Product{}, mapPgError(err)
	}
	return updated, nil
}

// --- Sales ---

const saleColumns = "id, product_id, quantity, total_price, profit, date"

func (s *Store) GetSale(ctx context.Context, id int64) (store.Sale, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	return scanSale(row)
}

func (s *Store) ListSales(ctx context.Context, f store.SaleFilter) ([]store.Sale, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + saleColumns + ` FROM sales ORDER BY id ASC`
	args := []any{}
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, f.PageSize, (page-1)*f.PageSize)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := make([]store.Sale, 0, 16)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, sale)
	}
	return items, total, rows.Err()
}

func (s *Store) CreateSale(ctx context.Context, sale store.Sale) (store.Sale, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sales (product_id, quantity, total_price, profit, date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+saleColumns,
		sale.ProductID, sale.Quantity,
		decimalToNumeric(sale.TotalPrice), decimalToNumeric(sale.Profit), sale.Date)
	created, err := scanSale(row)
	if err != nil {
		return store.Sale{}, mapPgError(err)
	}
	return created, nil
}

func (s *Store) UpsertSale(ctx context.Context, sale store.Sale) (store.Sale, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sales (id, product_id, quantity, total_price, profit, date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET product_id = EXCLUDED.product_id, quantity = EXCLUDED.quantity,
		    total_price = EXCLUDED.total_price, profit = EXCLUDED.profit,
		    date = EXCLUDED.date
		RETURNING `+saleColumns,
		sale.ID, sale.ProductID, sale.Quantity,
		decimalToNumeric(sale.TotalPrice), decimalToNumeric(sale.Profit), sale.Date)
	upserted, err := scanSale(row)
	if err != nil {
		return store.Sale{}, mapPgError(err)
	}
	s.syncSequence(ctx, "sales")
	return upserted, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale store.Sale) (store.Sale, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE sales
		SET product_id = $2, quantity = $3, total_price = $4, profit = $5, date = $6
		WHERE id = $1
		RETURNING `+saleColumns,
		sale.ID, sale.ProductID, sale.Quantity,
		decimalToNumeric(sale.TotalPrice), decimalToNumeric(sale.Profit), sale.Date)
	updated, err := scanSale(row)
	if err != nil {
		return store.Sale{}, mapPgError(err)
	}
	return updated, nil
}

// --- Aggregates ---

func (s *Store) CountProducts(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&n)
	return n, err
}

func (s *Store) SalesTotals(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	var value, profit pgtype.Numeric
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_price), 0), COALESCE(SUM(profit), 0)
		FROM sales`).Scan(&value, &profit)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	v, err := numericToDecimal(value)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	p, err := numericToDecimal(profit)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return v, p, nil
}

func (s *Store) SalesSeries(ctx context.Context, g store.Granularity) ([]store.SeriesPoint, error) {
	format := "YYYY-MM-DD"
	if g == store.GranularityMonthly {
		format = "YYYY-MM"
	}

	rows, err := s.pool.Query(ctx, `
		SELECT to_char(date, $1) AS bucket, SUM(total_price), SUM(profit)
		FROM sales
		GROUP BY bucket
		ORDER BY bucket ASC`, format)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.SeriesPoint, 0, 32)
	for rows.Next() {
		var pt store.SeriesPoint
		var sales, profit pgtype.Numeric
		if err := rows.Scan(&pt.Date, &sales, &profit); err != nil {
			return nil, err
		}
		if pt.TotalSales, err = numericToDecimal(sales); err != nil {
			return nil, err
		}
		if pt.Profit, err = numericToDecimal(profit); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters in user-supplied search terms so
// the search matches them literally, like the in-memory store does.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// syncSequence keeps the id sequence ahead of explicitly supplied ids so
// later inserts without an id do not collide. Best effort: a failure here
// does not undo the committed row.
func (s *Store) syncSequence(ctx context.Context, table string) {
	_, _ = s.pool.Exec(ctx, fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence('%s', 'id'),
			GREATEST((SELECT COALESCE(MAX(id), 1) FROM %s), 1))`, table, table))
}

// --- Scanning & conversion helpers ---

func scanCategory(row pgx.Row) (store.Category, error) {
	var c store.Category
	var discount pgtype.Numeric
	if err := row.Scan(&c.ID, &c.Name, &discount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Category{}, store.ErrNotFound
		}
		return store.Category{}, err
	}
	var err error
	if c.DiscountPercentage, err = numericToDecimal(discount); err != nil {
		return store.Category{}, err
	}
	return c, nil
}

func scanProduct(row pgx.Row) (store.Product, error) {
	var p store.Product
	var price pgtype.Numeric
	if err := row.Scan(&p.ID, &p.Name, &price, &p.CategoryID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Product{}, store.ErrNotFound
		}
		return store.Product{}, err
	}
	var err error
	if p.Price, err = numericToDecimal(price); err != nil {
		return store.Product{}, err
	}
	return p, nil
}

func scanSale(row pgx.Row) (store.Sale, error) {
	var s store.Sale
	var total, profit pgtype.Numeric
	if err := row.Scan(&s.ID, &s.ProductID, &s.Quantity, &total, &profit, &s.Date); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Sale{}, store.ErrNotFound
		}
		return store.Sale{}, err
	}
	var err error
	if s.TotalPrice, err = numericToDecimal(total); err != nil {
		return store.Sale{}, err
	}
	if s.Profit, err = numericToDecimal(profit); err != nil {
		return store.Sale{}, err
	}
	return s, nil
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}

func numericToDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Zero, nil
	}
	val, err := n.Value()
	if err != nil {
		return decimal.Zero, err
	}
	s, ok := val.(string)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected numeric driver value %T", val)
	}
	return decimal.NewFromString(s)
}

// mapPgError translates PostgreSQL constraint violations into the store's
// error taxonomy.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23503": // foreign_key_violation
			return store.ErrReference
		case "23505": // unique_violation
			return store.ErrConflict
		}
	}
	return err
}
