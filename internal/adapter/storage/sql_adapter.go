package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLAdapter implements port.DatabaseRepository on MySQL or SQLite. All
// statements use the common subset of both dialects except the stock
// re-reads, which lock the row on MySQL.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect}
}

var _ port.DatabaseRepository = (*SQLAdapter)(nil)

func (m *SQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	return m.inTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &sqlTx{tx: tx, dialect: m.dialect})
	})
}

func (m *SQLAdapter) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const productColumns = `p.id, p.name, p.barcode, p.color, p.size, p.category, p.price, p.quantity, p.created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner, p *domain.Product) error {
	var category string
	if err := row.Scan(&p.ID, &p.Name, &p.Barcode, &p.Color, &p.Size, &category, &p.Price, &p.Quantity, &p.CreatedAt); err != nil {
		return err
	}
	p.Category = domain.Category(category)
	return nil
}

func (m *SQLAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, barcode, color, size, category, price, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Barcode, p.Color, p.Size, string(p.Category), p.Price, p.Quantity, p.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateBarcode, p.Barcode)
	}
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (m *SQLAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := scanProduct(m.db.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products p WHERE p.id = ?`, productID), &p)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (m *SQLAdapter) UpdateProduct(ctx context.Context, p domain.Product) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, barcode = ?, color = ?, size = ?, category = ?, price = ?
		WHERE id = ?`,
		p.Name, p.Barcode, p.Color, p.Size, string(p.Category), p.Price, p.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateBarcode, p.Barcode)
	}
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("product %s: %w", p.ID, domain.ErrNotFound)
	}
	return nil
}

func (m *SQLAdapter) DeleteProduct(ctx context.Context, productID string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, productID)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("product %s: %w", productID, domain.ErrProductInUse)
	}
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	return nil
}

func (m *SQLAdapter) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		conds = append(conds, "p.category = ?")
		args = append(args, string(filter.Category))
	}
	if filter.Size != "" {
		conds = append(conds, "p.size = ?")
		args = append(args, filter.Size)
	}

	query := `SELECT ` + productColumns + ` FROM products p`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY p.name, p.id"

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// Restock adds amount units as long as the result stays within
// domain.MaxStock.
func (m *SQLAdapter) Restock(ctx context.Context, productID string, amount int) (int, error) {
	if amount <= 0 || amount > domain.MaxStock {
		return 0, fmt.Errorf("%w: restock amount out of range", domain.ErrInvalidArgument)
	}

	var quantity int
	err := m.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = quantity + ? WHERE id = ? AND quantity <= ?`,
			amount, productID, domain.MaxStock-amount,
		)
		if err != nil {
			return fmt.Errorf("update stock: %w", err)
		}

		rows, _ := result.RowsAffected()
		quantity, err = productStock(ctx, tx, m.dialect, productID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: restock would exceed %d units", domain.ErrInvalidArgument, domain.MaxStock)
		}
		return nil
	})
	return quantity, err
}

// stockQuery reads a product's quantity. On MySQL it is a locking read so
// it sees the latest committed row rather than the transaction snapshot.
func stockQuery(dialect Dialect) string {
	if dialect == DialectMySQL {
		return `SELECT quantity FROM products WHERE id = ? FOR SHARE`
	}
	return `SELECT quantity FROM products WHERE id = ?`
}

// productStock reads the current quantity of a product.
func productStock(ctx context.Context, q queryer, dialect Dialect, productID string) (int, error) {
	var quantity int
	err := q.QueryRowContext(ctx, stockQuery(dialect), productID).Scan(&quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("query stock: %w", err)
	}
	return quantity, nil
}

func (m *SQLAdapter) MergeCartLine(ctx context.Context, line domain.CartLine) error {
	return m.inTx(ctx, func(tx *sql.Tx) error {
		// the share lock holds stock steady for the rest of the merge
		stock, err := productStock(ctx, tx, m.dialect, line.ProductID)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE cart_lines
			SET quantity = quantity + ?
			WHERE user_id = ? AND product_id = ?
			  AND quantity + ? <= (SELECT p.quantity FROM products p WHERE p.id = ?)`,
			line.Quantity, line.UserID, line.ProductID, line.Quantity, line.ProductID,
		)
		if err != nil {
			return fmt.Errorf("merge cart line: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 1 {
			return nil
		}

		var existing int
		err = tx.QueryRowContext(ctx, `
			SELECT quantity FROM cart_lines WHERE user_id = ? AND product_id = ?`,
			line.UserID, line.ProductID,
		).Scan(&existing)
		switch {
		case err == nil:
			return domain.NewInsufficientStock(line.ProductID, stock)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("query cart line: %w", err)
		}

		if line.Quantity > stock {
			return domain.NewInsufficientStock(line.ProductID, stock)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO cart_lines (id, user_id, product_id, quantity, added_at)
			VALUES (?, ?, ?, ?, ?)`,
			line.ID, line.UserID, line.ProductID, line.Quantity, line.AddedAt,
		)
		if isUniqueViolation(err) {
			return fmt.Errorf("insert cart line: %w", domain.ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("insert cart line: %w", err)
		}
		return nil
	})
}

func (m *SQLAdapter) SetCartLineQuantity(ctx context.Context, lineID string, quantity int) error {
	return m.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE cart_lines
			SET quantity = ?
			WHERE id = ?
			  AND ? <= (SELECT p.quantity FROM products p WHERE p.id = cart_lines.product_id)`,
			quantity, lineID, quantity,
		)
		if err != nil {
			return fmt.Errorf("update cart line: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows == 1 {
			return nil
		}

		var productID string
		err = tx.QueryRowContext(ctx, `SELECT product_id FROM cart_lines WHERE id = ?`, lineID).Scan(&productID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("query cart line: %w", err)
		}

		stock, err := productStock(ctx, tx, m.dialect, productID)
		if err != nil {
			return err
		}

		if quantity > stock {
			return domain.NewInsufficientStock(productID, stock)
		}
		// row matched but the driver reported it unchanged
		return nil
	})
}

func (m *SQLAdapter) DeleteCartLine(ctx context.Context, lineID string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = ?`, lineID)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
	}
	return nil
}

func (m *SQLAdapter) GetCartLine(ctx context.Context, lineID string) (*domain.CartLine, error) {
	var line domain.CartLine
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, product_id, quantity, added_at
		FROM cart_lines WHERE id = ?`, lineID,
	).Scan(&line.ID, &line.UserID, &line.ProductID, &line.Quantity, &line.AddedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cart line %s: %w", lineID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query cart line: %w", err)
	}
	return &line, nil
}

func (m *SQLAdapter) ListCartItems(ctx context.Context, userID string) ([]domain.CartItem, error) {
	return listCartItems(ctx, m.db, userID)
}

func listCartItems(ctx context.Context, q queryer, userID string) ([]domain.CartItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.id, c.user_id, c.product_id, c.quantity, c.added_at, `+productColumns+`
		FROM cart_lines c JOIN products p ON p.id = c.product_id
		WHERE c.user_id = ?
		ORDER BY c.added_at, c.id`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	items := []domain.CartItem{}
	for rows.Next() {
		var (
			item     domain.CartItem
			category string
		)
		p := &item.Product
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.ProductID, &item.Quantity, &item.AddedAt,
			&p.ID, &p.Name, &p.Barcode, &p.Color, &p.Size, &category, &p.Price, &p.Quantity, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		p.Category = domain.Category(category)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (m *SQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_amount, created_at FROM orders WHERE id = ?`, orderID,
	).Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, unit_price, quantity
		FROM order_lines WHERE order_id = ?
		ORDER BY product_name, product_id`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	order.Lines = []domain.OrderLine{}
	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.OrderID, &l.ProductID, &l.ProductName, &l.UnitPrice, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		order.Lines = append(order.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &order, nil
}

func (m *SQLAdapter) ListOrdersByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, user_id, total_amount, created_at
		FROM orders WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalAmount, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (m *SQLAdapter) ListLedgerEntries(ctx context.Context, limit int) (*domain.Ledger, error) {
	ledger := &domain.Ledger{Entries: []domain.LedgerEntry{}}

	// SQLite stores amounts as TEXT, so SUM would go through floating point
	switch m.dialect {
	case DialectMySQL:
		var balance decimal.Decimal
		if err := m.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries`).Scan(&balance); err != nil {
			return nil, fmt.Errorf("query ledger balance: %w", err)
		}
		ledger.Balance = balance
	default:
		balance, err := m.sumLedgerAmounts(ctx)
		if err != nil {
			return nil, err
		}
		ledger.Balance = balance
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, order_id, amount, description, created_at
		FROM ledger_entries
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Amount, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		ledger.Entries = append(ledger.Entries, e)
	}
	return ledger, rows.Err()
}

// sumLedgerAmounts adds amounts as decimals, reading only the amount column.
func (m *SQLAdapter) sumLedgerAmounts(ctx context.Context) (decimal.Decimal, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT amount FROM ledger_entries`)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query ledger balance: %w", err)
	}
	defer rows.Close()

	balance := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("scan ledger amount: %w", err)
		}
		balance = balance.Add(amount)
	}
	return balance, rows.Err()
}

func (m *SQLAdapter) ListPendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, event_type, aggregate_id, payload, created_at
		FROM outbox_events
		WHERE sent_at IS NULL
		ORDER BY created_at, id
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	var events []domain.OutboxEvent
	for rows.Next() {
		var (
			e       domain.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.AggregateID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	return events, rows.Err()
}

func (m *SQLAdapter) MarkEventSent(ctx context.Context, eventID string, sentAt time.Time) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE outbox_events SET sent_at = ? WHERE id = ? AND sent_at IS NULL`,
		sentAt, eventID,
	)
	if err != nil {
		return fmt.Errorf("mark event sent: %w", err)
	}
	return nil
}

// sqlTx implements port.Tx on an open transaction.
type sqlTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *sqlTx) ListCartItems(ctx context.Context, userID string) ([]domain.CartItem, error) {
	return listCartItems(ctx, t.tx, userID)
}

func (t *sqlTx) InsertOrder(ctx context.Context, order domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, created_at)
		VALUES (?, ?, ?, ?)`,
		order.ID, order.UserID, order.TotalAmount, order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, l := range order.Lines {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, product_name, unit_price, quantity)
			VALUES (?, ?, ?, ?, ?)`,
			order.ID, l.ProductID, l.ProductName, l.UnitPrice, l.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (t *sqlTx) DecrementStock(ctx context.Context, productID string, amount int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - ?
		WHERE id = ? AND quantity >= ?`,
		amount, productID, amount,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 1 {
		return nil
	}

	stock, err := productStock(ctx, t.tx, t.dialect, productID)
	if err != nil {
		return err
	}
	return domain.NewInsufficientStock(productID, stock)
}

func (t *sqlTx) InsertLedgerEntry(ctx context.Context, entry domain.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, order_id, amount, description, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.OrderID, entry.Amount, entry.Description, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteCartLines(ctx context.Context, lines []domain.CartLine) error {
	for _, line := range lines {
		result, err := t.tx.ExecContext(ctx, `
			DELETE FROM cart_lines WHERE id = ? AND user_id = ? AND quantity = ?`,
			line.ID, line.UserID, line.Quantity,
		)
		if err != nil {
			return fmt.Errorf("delete cart line: %w", err)
		}

		rows, _ := result.RowsAffected()
		if rows != 1 {
			return fmt.Errorf("cart line %s: %w", line.ID, domain.ErrConflict)
		}
	}
	return nil
}

func (t *sqlTx) InsertOutboxEvent(ctx context.Context, event domain.OutboxEvent) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_events (id, event_type, aggregate_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		event.ID, event.Type, event.AggregateID, string(event.Payload), event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
			strings.Contains(liteErr.Error(), "UNIQUE")
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1451
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
			return true
		}
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT &&
			strings.Contains(liteErr.Error(), "FOREIGN KEY")
	}
	return false
}
