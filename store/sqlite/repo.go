package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/console-buyback/core"
)

// repo implements every collection against a querier. Store binds it to the
// *sql.DB, txStore to a *sql.Tx.
type repo struct {
	q querier
}

// =============================================================================
// ROW PLUMBING
// =============================================================================

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode row: %w", err)
	}
	return string(b), nil
}

func decode(data string, v any) error {
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to decode row: %w", err)
	}
	return nil
}

// nanos stores zero times as 0 so they sort first.
func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// putVersioned inserts the row when version is 0, otherwise updates it only
// if the stored version still equals version. cols/vals exclude the key and
// the version column.
func (r repo) putVersioned(ctx context.Context, table, keyCol string, key any, version int64, cols []string, vals []any) error {
	if version == 0 {
		names := append([]string{keyCol}, cols...)
		names = append(names, "version")
		args := append([]any{key}, vals...)
		args = append(args, 1)
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), marks)
		if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
			if isUniqueConstraintError(err, "") {
				return core.ErrConcurrentModification
			}
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
		return nil
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + " = ?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s, version = version + 1 WHERE %s = ? AND version = ?",
		table, strings.Join(sets, ", "), keyCol)
	args := append(append([]any{}, vals...), key, version)

	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", table, err)
	}
	if n == 0 {
		return core.ErrConcurrentModification
	}
	return nil
}

// getDoc loads the data column of one row plus its version.
func (r repo) getDoc(ctx context.Context, table, keyCol string, key any, dst any) (int64, bool, error) {
	var data string
	var version int64
	err := r.q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT data, version FROM %s WHERE %s = ?", table, keyCol), key,
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query %s: %w", table, err)
	}
	return version, true, decode(data, dst)
}

// listDocs runs query (selecting data, version) and decodes each row.
func listDocs[T any](ctx context.Context, q querier, query string, setVersion func(*T, int64), args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		var version int64
		if err := rows.Scan(&data, &version); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var v T
		if err := decode(data, &v); err != nil {
			return nil, err
		}
		if setVersion != nil {
			setVersion(&v, version)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// =============================================================================
// CATALOG STORE
// =============================================================================

func (r repo) GetProduct(ctx context.Context, id core.ProductID) (core.Product, error) {
	var p core.Product
	version, ok, err := r.getDoc(ctx, "products", "id", id, &p)
	if err != nil {
		return core.Product{}, err
	}
	if !ok {
		return core.Product{}, core.NotFound("product", id)
	}
	p.Version = version
	return p, nil
}

func (r repo) ListProducts(ctx context.Context) ([]core.Product, error) {
	return listDocs(ctx, r.q, "SELECT data, version FROM products ORDER BY id",
		func(p *core.Product, v int64) { p.Version = v })
}

func (r repo) PutProduct(ctx context.Context, p *core.Product) error {
	doc := *p
	doc.Version = p.Version + 1
	data, err := encode(doc)
	if err != nil {
		return err
	}
	if err := r.putVersioned(ctx, "products", "id", p.ID, p.Version,
		[]string{"code", "data"}, []any{p.Code, data}); err != nil {
		return err
	}
	p.Version++
	return nil
}

func (r repo) GetCounterparty(ctx context.Context, id core.CounterpartyID) (core.Counterparty, error) {
	var c core.Counterparty
	version, ok, err := r.getDoc(ctx, "counterparties", "id", id, &c)
	if err != nil {
		return core.Counterparty{}, err
	}
	if !ok {
		return core.Counterparty{}, core.NotFound("counterparty", id)
	}
	c.Version = version
	return c, nil
}

func (r repo) ListCounterparties(ctx context.Context) ([]core.Counterparty, error) {
	return listDocs(ctx, r.q, "SELECT data, version FROM counterparties ORDER BY id",
		func(c *core.Counterparty, v int64) { c.Version = v })
}

func (r repo) PutCounterparty(ctx context.Context, c *core.Counterparty) error {
	doc := *c
	doc.Version = c.Version + 1
	data, err := encode(doc)
	if err != nil {
		return err
	}
	if err := r.putVersioned(ctx, "counterparties", "id", c.ID, c.Version,
		[]string{"kind", "data"}, []any{c.Kind, data}); err != nil {
		return err
	}
	c.Version++
	return nil
}

// =============================================================================
// PRICE STORE
// =============================================================================

func (r repo) GetPrice(ctx context.Context, dir core.PriceDirection, code string, rank core.Rank) (core.Money, bool, error) {
	var price int64
	err := r.q.QueryRowContext(ctx,
		"SELECT price FROM price_entries WHERE direction = ? AND product_code = ? AND rank = ?",
		dir, code, rank,
	).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query price: %w", err)
	}
	return core.Money(price), true, nil
}

func (r repo) ListPrices(ctx context.Context, dir core.PriceDirection) ([]core.PriceEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT product_code, rank, price, updated_at
		FROM price_entries
		WHERE direction = ?
		ORDER BY product_code, rank
	`, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var out []core.PriceEntry
	for rows.Next() {
		e := core.PriceEntry{Direction: dir}
		var updated int64
		if err := rows.Scan(&e.ProductCode, &e.Rank, &e.Price, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if updated != 0 {
			e.UpdatedAt = time.Unix(0, updated).UTC()
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r repo) PutPrice(ctx context.Context, e core.PriceEntry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO price_entries (direction, product_code, rank, price, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(direction, product_code, rank) DO UPDATE SET
			price = excluded.price,
			updated_at = excluded.updated_at
	`, e.Direction, e.ProductCode, e.Rank, e.Price, nanos(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to put price: %w", err)
	}
	return nil
}

func (r repo) GetAdjustment(ctx context.Context, cp core.CounterpartyID, code string) (*core.PriceAdjustment, error) {
	var data string
	err := r.q.QueryRowContext(ctx,
		"SELECT data FROM price_adjustments WHERE counterparty_id = ? AND product_code = ?", cp, code,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query adjustment: %w", err)
	}
	var adj core.PriceAdjustment
	if err := decode(data, &adj); err != nil {
		return nil, err
	}
	return &adj, nil
}

func (r repo) ListAdjustments(ctx context.Context, cp core.CounterpartyID) ([]core.PriceAdjustment, error) {
	// listDocs wants a version column; adjustments are unversioned.
	return listDocs[core.PriceAdjustment](ctx, r.q, `
		SELECT data, 0 FROM price_adjustments
		WHERE ? = '' OR counterparty_id = ?
		ORDER BY counterparty_id, product_code
	`, nil, cp, cp)
}

func (r repo) PutAdjustment(ctx context.Context, adj core.PriceAdjustment) error {
	data, err := encode(adj)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO price_adjustments (counterparty_id, product_code, data)
		VALUES (?, ?, ?)
		ON CONFLICT(counterparty_id, product_code) DO UPDATE SET data = excluded.data
	`, adj.CounterpartyID, adj.ProductCode, data)
	if err != nil {
		return fmt.Errorf("failed to put adjustment: %w", err)
	}
	return nil
}

func (r repo) DeleteAdjustment(ctx context.Context, cp core.CounterpartyID, code string) error {
	_, err := r.q.ExecContext(ctx,
		"DELETE FROM price_adjustments WHERE counterparty_id = ? AND product_code = ?", cp, code)
	if err != nil {
		return fmt.Errorf("failed to delete adjustment: %w", err)
	}
	return nil
}

// =============================================================================
// LOT STORE
// =============================================================================

func (r repo) GetLot(ctx context.Context, id core.LotID) (core.InventoryLot, error) {
	var lot core.InventoryLot
	version, ok, err := r.getDoc(ctx, "inventory_lots", "id", id, &lot)
	if err != nil {
		return core.InventoryLot{}, err
	}
	if !ok {
		return core.InventoryLot{}, core.NotFound("lot", id)
	}
	lot.Version = version
	return lot, nil
}

func (r repo) ListLots(ctx context.Context, f core.LotFilter) ([]core.InventoryLot, error) {
	return listDocs(ctx, r.q, `
		SELECT data, version FROM inventory_lots
		WHERE (? = '' OR product_id = ?) AND (? OR quantity > 0)
		ORDER BY created_at, id
	`, func(l *core.InventoryLot, v int64) { l.Version = v },
		f.ProductID, f.ProductID, f.IncludeDepleted)
}

func (r repo) PutLot(ctx context.Context, lot *core.InventoryLot) error {
	doc := lot.Clone()
	doc.Version = lot.Version + 1
	data, err := encode(doc)
	if err != nil {
		return err
	}
	if err := r.putVersioned(ctx, "inventory_lots", "id", lot.ID, lot.Version,
		[]string{"product_id", "quantity", "created_at", "data"},
		[]any{lot.ProductID, lot.Quantity, nanos(lot.CreatedAt), data}); err != nil {
		return err
	}
	lot.Version++
	return nil
}

func (r repo) AppendHistory(ctx context.Context, e core.HistoryEntry) error {
	data, err := encode(e)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
		INSERT INTO inventory_history (id, lot_id, idempotency_key, data)
		VALUES (?, ?, ?, ?)
	`, e.ID, e.LotID, nullString(e.IdempotencyKey), data)
	if err != nil {
		if isUniqueConstraintError(err, "idempotency_key") {
			return core.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (r repo) LotHistory(ctx context.Context, id core.LotID) ([]core.HistoryEntry, error) {
	return listDocs[core.HistoryEntry](ctx, r.q,
		"SELECT data, seq FROM inventory_history WHERE lot_id = ? ORDER BY seq", nil, id)
}

func (r repo) ListHistory(ctx context.Context) ([]core.HistoryEntry, error) {
	return listDocs[core.HistoryEntry](ctx, r.q,
		"SELECT data, seq FROM inventory_history ORDER BY seq", nil)
}

// =============================================================================
// BUYBACK STORE
// =============================================================================

func (r repo) GetApplication(ctx context.Context, n core.ApplicationNumber) (core.BuybackApplication, error) {
	var app core.BuybackApplication
	version, ok, err := r.getDoc(ctx, "buyback_applications", "number", n, &app)
	if err != nil {
		return core.BuybackApplication{}, err
	}
	if !ok {
		return core.BuybackApplication{}, core.NotFound("buyback application", n)
	}
	app.Version = version
	return app, nil
}

func (r repo) ListApplications(ctx context.Context, f core.BuybackFilter) ([]core.BuybackApplication, error) {
	return listDocs(ctx, r.q, `
		SELECT data, version FROM buyback_applications
		WHERE (? = '' OR status = ?) AND (? = '' OR customer_id = ?)
		ORDER BY number
	`, func(a *core.BuybackApplication, v int64) { a.Version = v },
		f.Status, f.Status, f.CustomerID, f.CustomerID)
}

func (r repo) PutApplication(ctx context.Context, a *core.BuybackApplication) error {
	doc := a.Clone()
	doc.Version = a.Version + 1
	data, err := encode(doc)
	if err != nil {
		return err
	}
	if err := r.putVersioned(ctx, "buyback_applications", "number", a.Number, a.Version,
		[]string{"status", "customer_id", "data"},
		[]any{a.Status, a.CustomerID, data}); err != nil {
		return err
	}
	a.Version++
	return nil
}

// =============================================================================
// SALES STORE
// =============================================================================

func (r repo) GetSalesRequest(ctx context.Context, n core.RequestNumber) (core.SalesRequest, error) {
	var req core.SalesRequest
	version, ok, err := r.getDoc(ctx, "sales_requests", "number", n, &req)
	if err != nil {
		return core.SalesRequest{}, err
	}
	if !ok {
		return core.SalesRequest{}, core.NotFound("sales request", n)
	}
	req.Version = version
	return req, nil
}

func (r repo) ListSalesRequests(ctx context.Context, f core.SalesFilter) ([]core.SalesRequest, error) {
	return listDocs(ctx, r.q, `
		SELECT data, version FROM sales_requests
		WHERE (? = '' OR status = ?) AND (? = '' OR counterparty_id = ?)
		ORDER BY number
	`, func(s *core.SalesRequest, v int64) { s.Version = v },
		f.Status, f.Status, f.CounterpartyID, f.CounterpartyID)
}

func (r repo) PutSalesRequest(ctx context.Context, req *core.SalesRequest) error {
	doc := req.Clone()
	doc.Version = req.Version + 1
	data, err := encode(doc)
	if err != nil {
		return err
	}
	if err := r.putVersioned(ctx, "sales_requests", "number", req.Number, req.Version,
		[]string{"status", "counterparty_id", "data"},
		[]any{req.Status, req.CounterpartyID, data}); err != nil {
		return err
	}
	req.Version++
	return nil
}

// =============================================================================
// SEQUENCE STORE
// =============================================================================

func (r repo) NextSequence(ctx context.Context, scope string, n int) (int64, error) {
	if n < 1 {
		n = 1
	}
	var last int64
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO sequences (scope, value) VALUES (?, ?)
		ON CONFLICT(scope) DO UPDATE SET value = value + excluded.value
		RETURNING value
	`, scope, n).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", scope, err)
	}
	return last - int64(n) + 1, nil
}
