package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/ledgerline/ledgerline/internal/shared"
)

// Publisher is the publish side of the change stream.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Postgres is the backing implementation of the remote data service. A
// tenant-bound Store handle is obtained through Tenant; the cross-tenant
// operations (sweep, storefront, authentication) stay on the root.
type Postgres struct {
	pool      *pgxpool.Pool
	publisher Publisher
	logger    *slog.Logger
}

// NewPostgres constructs the service root.
func NewPostgres(pool *pgxpool.Pool, publisher Publisher, logger *slog.Logger) *Postgres {
	return &Postgres{pool: pool, publisher: publisher, logger: logger}
}

// Tenant returns a Store handle scoped to one tenant. Every read and write
// issued through the handle carries the owner check.
func (p *Postgres) Tenant(tenantID string) Store {
	return &tenantStore{root: p, tenant: tenantID}
}

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("remote: invalid identifier %q", name)
	}
	return nil
}

type tenantStore struct {
	root   *Postgres
	tenant string
}

func (s *tenantStore) Select(ctx context.Context, req SelectRequest) ([]Row, error) {
	if err := checkIdent(req.Table); err != nil {
		return nil, shared.NewRemoteError("select "+req.Table, err)
	}
	var sb strings.Builder
	args := []any{s.tenant}
	sb.WriteString("SELECT * FROM " + req.Table + " WHERE owner_id = $1")
	for col, val := range req.Filter {
		if err := checkIdent(col); err != nil {
			return nil, shared.NewRemoteError("select "+req.Table, err)
		}
		if val == nil {
			sb.WriteString(" AND " + col + " IS NULL")
			continue
		}
		args = append(args, val)
		sb.WriteString(fmt.Sprintf(" AND %s = $%d", col, len(args)))
	}
	if req.OrderBy != "" {
		if err := checkIdent(req.OrderBy); err != nil {
			return nil, shared.NewRemoteError("select "+req.Table, err)
		}
		sb.WriteString(" ORDER BY " + req.OrderBy)
		if req.Desc {
			sb.WriteString(" DESC")
		}
	}
	if req.Limit > 0 {
		args = append(args, req.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if req.Offset > 0 {
		args = append(args, req.Offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}

	rows, err := s.root.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, shared.NewRemoteError("select "+req.Table, pgMessage(err))
	}
	defer rows.Close()
	return collectRows(rows)
}

func (s *tenantStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, shared.NewRemoteError("insert "+table, err)
	}
	if _, ok := row["id"]; !ok {
		row["id"] = uuid.NewString()
	}
	// The owner column is never caller-controlled.
	row["owner_id"] = s.tenant

	cols := make([]string, 0, len(row))
	placeholders := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	for col, val := range row {
		if err := checkIdent(col); err != nil {
			return nil, shared.NewRemoteError("insert "+table, err)
		}
		cols = append(cols, col)
		args = append(args, val)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	rows, err := s.root.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.NewRemoteError("insert "+table, pgMessage(err))
	}
	defer rows.Close()
	inserted, err := collectOne(rows)
	if err != nil {
		return nil, shared.NewRemoteError("insert "+table, err)
	}
	s.publish(ctx, EventInsert, table, inserted)
	return inserted, nil
}

func (s *tenantStore) Update(ctx context.Context, table string, id string, patch Row) (Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, shared.NewRemoteError("update "+table, err)
	}
	if len(patch) == 0 {
		return nil, shared.NewRemoteError("update "+table, errors.New("empty patch"))
	}
	sets := make([]string, 0, len(patch)+1)
	args := []any{id, s.tenant}
	for col, val := range patch {
		if err := checkIdent(col); err != nil {
			return nil, shared.NewRemoteError("update "+table, err)
		}
		if col == "id" || col == "owner_id" {
			return nil, shared.NewRemoteError("update "+table, fmt.Errorf("column %s is immutable", col))
		}
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	sets = append(sets, "updated_at = now()")
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1 AND owner_id = $2 RETURNING *",
		table, strings.Join(sets, ", "))

	rows, err := s.root.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.NewRemoteError("update "+table, pgMessage(err))
	}
	defer rows.Close()
	updated, err := collectOne(rows)
	if err != nil {
		return nil, shared.NewRemoteError("update "+table, err)
	}
	s.publish(ctx, EventUpdate, table, updated)
	return updated, nil
}

func (s *tenantStore) publish(ctx context.Context, kind EventKind, table string, row Row) {
	if s.root.publisher == nil {
		return
	}
	raw, err := json.Marshal(row)
	if err == nil {
		err = s.root.publisher.Publish(ctx, Event{Kind: kind, Table: table, Tenant: s.tenant, Row: raw})
	}
	if err != nil && s.root.logger != nil {
		s.root.logger.Warn("publish change event",
			slog.String("table", table), slog.Any("error", err))
	}
}

// Call dispatches a named aggregate procedure. Results are computed with
// full-table scans server-side and consumed as-is by the financial engine.
func (s *tenantStore) Call(ctx context.Context, proc string, args Row) (json.RawMessage, error) {
	var (
		out any
		err error
	)
	switch proc {
	case "customer_stats":
		out, err = s.customerStats(ctx, args)
	case "financial_summary":
		out, err = s.financialSummary(ctx, args)
	case "receivable_aging":
		out, err = s.receivableAging(ctx, args)
	case "inventory_movements":
		out, err = s.inventoryMovements(ctx, args)
	case "product_profitability":
		out, err = s.productProfitability(ctx, args)
	default:
		return nil, shared.NewRemoteError("rpc "+proc, errors.New("unknown procedure"))
	}
	if err != nil {
		return nil, shared.NewRemoteError("rpc "+proc, pgMessage(err))
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, shared.NewRemoteError("rpc "+proc, err)
	}
	return raw, nil
}

func (s *tenantStore) customerStats(ctx context.Context, args Row) (Row, error) {
	customerID, _ := args["customer_id"].(string)
	if customerID == "" {
		return nil, errors.New("customer_id required")
	}
	stats := Row{}
	var (
		outstanding, totalPurchased float64
		purchaseCount               int64
		lastPurchase                *time.Time
	)
	err := s.root.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(i.amount), 0)
		FROM installments i
		JOIN sales sa ON sa.id = i.sale_id
		WHERE i.owner_id = $1 AND sa.customer_id = $2 AND i.status IN ('pending', 'late')`,
		s.tenant, customerID).Scan(&outstanding)
	if err != nil {
		return nil, err
	}
	err = s.root.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total), 0), MAX(created_at)
		FROM sales
		WHERE owner_id = $1 AND customer_id = $2`,
		s.tenant, customerID).Scan(&purchaseCount, &totalPurchased, &lastPurchase)
	if err != nil {
		return nil, err
	}
	stats["outstanding"] = outstanding
	stats["purchase_count"] = purchaseCount
	stats["total_purchased"] = totalPurchased
	stats["last_purchase_at"] = lastPurchase
	return stats, nil
}

func (s *tenantStore) financialSummary(ctx context.Context, args Row) (Row, error) {
	from, to, err := dateRange(args)
	if err != nil {
		return nil, err
	}
	summary := Row{}
	var cashRevenue, creditRevenue float64
	err = s.root.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(total) FILTER (WHERE payment_type = 'cash'), 0),
			COALESCE(SUM(total) FILTER (WHERE payment_type = 'credit'), 0)
		FROM sales
		WHERE owner_id = $1 AND created_at >= $2 AND created_at < $3`,
		s.tenant, from, to).Scan(&cashRevenue, &creditRevenue)
	if err != nil {
		return nil, err
	}
	var received, outstanding float64
	err = s.root.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE status = 'paid' AND paid_at >= $2 AND paid_at < $3), 0),
			COALESCE(SUM(amount) FILTER (WHERE status IN ('pending', 'late')), 0)
		FROM installments
		WHERE owner_id = $1`,
		s.tenant, from, to).Scan(&received, &outstanding)
	if err != nil {
		return nil, err
	}
	summary["cash_revenue"] = cashRevenue
	summary["credit_revenue"] = creditRevenue
	summary["received"] = received + cashRevenue
	summary["outstanding"] = outstanding
	return summary, nil
}

func (s *tenantStore) receivableAging(ctx context.Context, args Row) (Row, error) {
	asOf := time.Now().UTC()
	if v, ok := args["as_of"].(time.Time); ok {
		asOf = v
	}
	buckets := Row{}
	var current, b30, b60, b90, b90plus float64
	err := s.root.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE $2::date - due_date <= 0), 0),
			COALESCE(SUM(amount) FILTER (WHERE $2::date - due_date BETWEEN 1 AND 30), 0),
			COALESCE(SUM(amount) FILTER (WHERE $2::date - due_date BETWEEN 31 AND 60), 0),
			COALESCE(SUM(amount) FILTER (WHERE $2::date - due_date BETWEEN 61 AND 90), 0),
			COALESCE(SUM(amount) FILTER (WHERE $2::date - due_date > 90), 0)
		FROM installments
		WHERE owner_id = $1 AND status IN ('pending', 'late')`,
		s.tenant, asOf).Scan(&current, &b30, &b60, &b90, &b90plus)
	if err != nil {
		return nil, err
	}
	buckets["current"] = current
	buckets["overdue_1_30"] = b30
	buckets["overdue_31_60"] = b60
	buckets["overdue_61_90"] = b90
	buckets["overdue_90_plus"] = b90plus
	return buckets, nil
}

func (s *tenantStore) inventoryMovements(ctx context.Context, args Row) ([]Row, error) {
	from, to, err := dateRange(args)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT m.id, m.product_id, p.name AS product_name, m.kind, m.quantity, m.unit_cost, m.created_at
		FROM inventory_movements m
		JOIN products p ON p.id = m.product_id
		WHERE m.owner_id = $1 AND m.created_at >= $2 AND m.created_at < $3`
	queryArgs := []any{s.tenant, from, to}
	if productID, ok := args["product_id"].(string); ok && productID != "" {
		queryArgs = append(queryArgs, productID)
		query += fmt.Sprintf(" AND m.product_id = $%d", len(queryArgs))
	}
	query += " ORDER BY m.created_at DESC"
	rows, err := s.root.pool.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

func (s *tenantStore) productProfitability(ctx context.Context, args Row) ([]Row, error) {
	from, to, err := dateRange(args)
	if err != nil {
		return nil, err
	}
	rows, err := s.root.pool.Query(ctx, `
		SELECT
			it.product_id,
			p.name AS product_name,
			SUM(it.quantity * it.unit_price) AS revenue,
			SUM(it.quantity * it.unit_cost) AS cost,
			SUM(it.quantity * (it.unit_price - it.unit_cost)) AS margin
		FROM sale_items it
		JOIN sales sa ON sa.id = it.sale_id
		JOIN products p ON p.id = it.product_id
		WHERE it.owner_id = $1 AND sa.created_at >= $2 AND sa.created_at < $3
		GROUP BY it.product_id, p.name
		ORDER BY margin DESC`,
		s.tenant, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

func dateRange(args Row) (time.Time, time.Time, error) {
	from, okFrom := args["from"].(time.Time)
	to, okTo := args["to"].(time.Time)
	if !okFrom || !okTo || !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("valid from/to range required")
	}
	return from, to, nil
}

// SweepLateInstallments flips overdue pending installments to late across all
// tenants and publishes the resulting update events. Runs from the worker.
func (p *Postgres) SweepLateInstallments(ctx context.Context) (int64, error) {
	rows, err := p.pool.Query(ctx, `
		UPDATE installments
		SET status = 'late', updated_at = now()
		WHERE status = 'pending' AND due_date < CURRENT_DATE
		RETURNING *`)
	if err != nil {
		return 0, fmt.Errorf("remote: sweep installments: %w", err)
	}
	defer rows.Close()
	flipped, err := collectRows(rows)
	if err != nil {
		return 0, fmt.Errorf("remote: sweep installments: %w", err)
	}
	for _, row := range flipped {
		tenant, _ := row["owner_id"].(string)
		store := &tenantStore{root: p, tenant: tenant}
		store.publish(ctx, EventUpdate, "installments", row)
	}
	return int64(len(flipped)), nil
}

// StorefrontProducts lists a tenant's active products by public slug.
func (p *Postgres) StorefrontProducts(ctx context.Context, slug string) ([]Row, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT pr.id, pr.name, pr.sku, pr.price, pr.stock, pr.image_url, c.name AS category_name
		FROM products pr
		JOIN tenants t ON t.id = pr.owner_id
		LEFT JOIN categories c ON c.id = pr.category_id
		WHERE t.slug = $1 AND pr.is_active
		ORDER BY lower(pr.name)`, slug)
	if err != nil {
		return nil, shared.NewRemoteError("storefront "+slug, pgMessage(err))
	}
	defer rows.Close()
	return collectRows(rows)
}

// Authenticate verifies a tenant API key and returns the tenant id.
func (p *Postgres) Authenticate(ctx context.Context, slug, apiKey string) (string, error) {
	var id, hash string
	err := p.pool.QueryRow(ctx,
		`SELECT id, api_key_hash FROM tenants WHERE slug = $1`, slug).Scan(&id, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrInvalidCredentials
		}
		return "", shared.NewRemoteError("authenticate", pgMessage(err))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey)); err != nil {
		return "", shared.ErrInvalidCredentials
	}
	return id, nil
}

func collectRows(rows pgx.Rows) ([]Row, error) {
	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(Row, len(fields))
		for i, field := range fields {
			row[field.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func collectOne(rows pgx.Rows) (Row, error) {
	out, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, shared.ErrNotFound
	}
	return out[0], nil
}

func pgMessage(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (%s)", pgErr.Message, pgErr.Code)
	}
	return err
}
