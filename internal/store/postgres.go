package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// Postgres is the SQL backing store.
type Postgres struct {
	db *sqlx.DB
}

var _ Backend = (*Postgres)(nil)

// NewPostgres connects to databaseURL and applies the schema.
func NewPostgres(databaseURL string) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Postgres{db: db}, nil
}

// Ping checks the connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

// SeedIfEmpty loads seed when the stores table has no rows.
func (p *Postgres) SeedIfEmpty(ctx context.Context, seed Seed) error {
	var count int
	if err := p.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM stores"); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range seed.Stores {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO stores (id, store_code, name, member_count) VALUES (:id, :store_code, :name, :member_count)`, s); err != nil {
			return fmt.Errorf("seed store %s: %w", s.ID, err)
		}
	}
	for _, m := range seed.Members {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO members (id, name, email, store_id, store_name, password, created_at)
			 VALUES (:id, :name, :email, :store_id, :store_name, :password, :created_at)`, m); err != nil {
			return fmt.Errorf("seed member %s: %w", m.ID, err)
		}
	}
	for _, pr := range seed.Products {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO products (id, name, description, price, category, image, stock)
			 VALUES (:id, :name, :description, :price, :category, :image, :stock)`, pr); err != nil {
			return fmt.Errorf("seed product %s: %w", pr.ID, err)
		}
	}
	for _, o := range seed.Orders {
		if err := insertOrder(ctx, tx, o); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (p *Postgres) GetStores(ctx context.Context) ([]models.Store, error) {
	stores := []models.Store{}
	err := p.db.SelectContext(ctx, &stores, "SELECT * FROM stores ORDER BY id")
	return stores, err
}

func (p *Postgres) AddStore(ctx context.Context, in models.StoreInput) (models.Store, error) {
	if err := in.Validate(); err != nil {
		return models.Store{}, err
	}
	s := models.Store{ID: uuid.NewString(), StoreID: in.StoreID, Name: in.Name, MemberCount: in.MemberCount}
	_, err := p.db.NamedExecContext(ctx,
		`INSERT INTO stores (id, store_code, name, member_count) VALUES (:id, :store_code, :name, :member_count)`, s)
	if err != nil {
		return models.Store{}, fmt.Errorf("failed to insert store: %w", err)
	}
	return s, nil
}

// UpdateStore applies patch under a row lock
func (p *Postgres) UpdateStore(ctx context.Context, id string, patch models.StorePatch) (models.Store, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Store{}, err
	}
	defer tx.Rollback()

	var current models.Store
	err = tx.GetContext(ctx, &current, "SELECT * FROM stores WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Store{}, fmt.Errorf("store %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Store{}, err
	}

	updated, err := patch.Apply(current)
	if err != nil {
		return models.Store{}, err
	}

	if _, err := tx.NamedExecContext(ctx,
		`UPDATE stores SET store_code = :store_code, name = :name, member_count = :member_count WHERE id = :id`, updated); err != nil {
		return models.Store{}, fmt.Errorf("failed to update store: %w", err)
	}

	return updated, tx.Commit()
}

func (p *Postgres) DeleteStore(ctx context.Context, id string) error {
	return p.deleteByID(ctx, "stores", id)
}

func (p *Postgres) GetMembers(ctx context.Context) ([]models.Member, error) {
	members := []models.Member{}
	err := p.db.SelectContext(ctx, &members, "SELECT * FROM members ORDER BY created_at")
	return members, err
}

func (p *Postgres) AddMember(ctx context.Context, in models.MemberInput) (models.Member, error) {
	if err := in.Validate(); err != nil {
		return models.Member{}, err
	}
	m := models.Member{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		StoreID:   in.StoreID,
		StoreName: in.StoreName,
		Password:  in.Password,
	}
	query := `
		INSERT INTO members (id, name, email, store_id, store_name, password)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	if err := p.db.GetContext(ctx, &m.CreatedAt, query,
		m.ID, m.Name, m.Email, m.StoreID, m.StoreName, m.Password); err != nil {
		return models.Member{}, fmt.Errorf("failed to insert member: %w", err)
	}
	return m, nil
}

func (p *Postgres) UpdateMember(ctx context.Context, id string, patch models.MemberPatch) (models.Member, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Member{}, err
	}
	defer tx.Rollback()

	var current models.Member
	err = tx.GetContext(ctx, &current, "SELECT * FROM members WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Member{}, fmt.Errorf("member %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Member{}, err
	}

	updated, err := patch.Apply(current)
	if err != nil {
		return models.Member{}, err
	}

	if _, err := tx.NamedExecContext(ctx,
		`UPDATE members SET name = :name, email = :email, store_id = :store_id,
		 store_name = :store_name, password = :password WHERE id = :id`, updated); err != nil {
		return models.Member{}, fmt.Errorf("failed to update member: %w", err)
	}

	return updated, tx.Commit()
}

func (p *Postgres) DeleteMember(ctx context.Context, id string) error {
	return p.deleteByID(ctx, "members", id)
}

func (p *Postgres) GetProducts(ctx context.Context) ([]models.Product, error) {
	products := []models.Product{}
	err := p.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

type orderItemRow struct {
	OrderID  string `db:"order_id"`
	Position int    `db:"position"`
	models.OrderItem
}

// GetOrders loads orders newest first with their items
func (p *Postgres) GetOrders(ctx context.Context) ([]models.Order, error) {
	orders := []models.Order{}
	if err := p.db.SelectContext(ctx, &orders,
		"SELECT id, member_id, member_name, store_id, store_name, total, status, created_at FROM orders ORDER BY created_at DESC"); err != nil {
		return nil, err
	}

	var rows []orderItemRow
	if err := p.db.SelectContext(ctx, &rows,
		"SELECT * FROM order_items ORDER BY order_id, position"); err != nil {
		return nil, err
	}

	byOrder := make(map[string][]models.OrderItem, len(orders))
	for _, r := range rows {
		byOrder[r.OrderID] = append(byOrder[r.OrderID], r.OrderItem)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
	}
	return orders, nil
}

func (p *Postgres) AddOrder(ctx context.Context, in models.OrderInput) (models.Order, error) {
	if err := in.Validate(); err != nil {
		return models.Order{}, err
	}

	o := models.Order{
		ID:         "order-" + uuid.NewString(),
		MemberID:   in.MemberID,
		MemberName: in.MemberName,
		StoreID:    in.StoreID,
		StoreName:  in.StoreName,
		Items:      in.Items,
		Total:      in.Total,
		Status:     models.OrderStatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Order{}, err
	}
	defer tx.Rollback()

	if err := insertOrder(ctx, tx, o); err != nil {
		return models.Order{}, err
	}
	return o, tx.Commit()
}

// UpdateOrderStatus locks the order row and applies the transition rules
func (p *Postgres) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (models.Order, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Order{}, err
	}
	defer tx.Rollback()

	var current models.Order
	err = tx.GetContext(ctx, &current,
		"SELECT id, member_id, member_name, store_id, store_name, total, status, created_at FROM orders WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Order{}, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Order{}, err
	}

	updated, err := current.Transition(status)
	if err != nil {
		return models.Order{}, err
	}

	if _, err := tx.ExecContext(ctx, "UPDATE orders SET status = $1 WHERE id = $2", updated.Status, id); err != nil {
		return models.Order{}, fmt.Errorf("failed to update order status: %w", err)
	}

	var rows []orderItemRow
	if err := tx.SelectContext(ctx, &rows,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY position", id); err != nil {
		return models.Order{}, err
	}
	for _, r := range rows {
		updated.Items = append(updated.Items, r.OrderItem)
	}

	return updated, tx.Commit()
}

func insertOrder(ctx context.Context, tx *sqlx.Tx, o models.Order) error {
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO orders (id, member_id, member_name, store_id, store_name, total, status, created_at)
		 VALUES (:id, :member_id, :member_name, :store_id, :store_name, :total, :status, :created_at)`, o); err != nil {
		return fmt.Errorf("failed to insert order %s: %w", o.ID, err)
	}
	for i, item := range o.Items {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO order_items (order_id, position, product_id, product_name, quantity, price)
			 VALUES (:order_id, :position, :product_id, :product_name, :quantity, :price)`,
			orderItemRow{OrderID: o.ID, Position: i, OrderItem: item}); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}
	return nil
}

func (p *Postgres) deleteByID(ctx context.Context, table, id string) error {
	res, err := p.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
	}
	return nil
}
