package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/ordertrack/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS order_status (
    order_id                TEXT PRIMARY KEY,
    status                  TEXT NOT NULL,
    updated_at              TIMESTAMPTZ NOT NULL,
    estimated_delivery_time TIMESTAMPTZ,
    delivery_partner        JSONB,
    restaurant_location     JSONB,
    customer_location       JSONB,
    metadata                JSONB
)`

// NewPostgresPool connects to Postgres and ensures the schema exists.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(connectCtx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(connectCtx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return pool, nil
}

// PostgresStore persists records in a single order_status table. Nested
// structures go into jsonb columns; the hot fields stay relational.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Save(ctx context.Context, record *domain.OrderStatusRecord) error {
	partner, err := marshalNullable(record.DeliveryPartner)
	if err != nil {
		return err
	}
	restaurant, err := marshalNullable(record.RestaurantLocation)
	if err != nil {
		return err
	}
	customer, err := marshalNullable(record.CustomerLocation)
	if err != nil {
		return err
	}
	var metadata []byte
	if len(record.Metadata) > 0 {
		metadata, err = json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO order_status (
  order_id, status, updated_at, estimated_delivery_time,
  delivery_partner, restaurant_location, customer_location, metadata
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (order_id)
DO UPDATE SET
  status = EXCLUDED.status,
  updated_at = EXCLUDED.updated_at,
  estimated_delivery_time = EXCLUDED.estimated_delivery_time,
  delivery_partner = EXCLUDED.delivery_partner,
  restaurant_location = EXCLUDED.restaurant_location,
  customer_location = EXCLUDED.customer_location,
  metadata = EXCLUDED.metadata
`, record.OrderID, string(record.Status), record.UpdatedAt, record.EstimatedDeliveryTime,
		partner, restaurant, customer, metadata)
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", record.OrderID, err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, orderID string) (*domain.OrderStatusRecord, error) {
	row := s.pool.QueryRow(ctx, `
SELECT order_id, status, updated_at, estimated_delivery_time,
       delivery_partner, restaurant_location, customer_location, metadata
FROM order_status
WHERE order_id = $1
`, orderID)

	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", orderID, err)
	}
	return record, nil
}

func (s *PostgresStore) LoadAll(ctx context.Context) ([]*domain.OrderStatusRecord, error) {
	rows, err := s.pool.Query(ctx, `
SELECT order_id, status, updated_at, estimated_delivery_time,
       delivery_partner, restaurant_location, customer_location, metadata
FROM order_status
`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.OrderStatusRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		out = append(out, record)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("failed to read orders: %w", rows.Err())
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*domain.OrderStatusRecord, error) {
	var (
		record     domain.OrderStatusRecord
		status     string
		partner    []byte
		restaurant []byte
		customer   []byte
		metadata   []byte
	)
	err := row.Scan(&record.OrderID, &status, &record.UpdatedAt, &record.EstimatedDeliveryTime,
		&partner, &restaurant, &customer, &metadata)
	if err != nil {
		return nil, err
	}
	record.Status = domain.Status(status)

	if err := unmarshalNullable(partner, &record.DeliveryPartner); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(restaurant, &record.RestaurantLocation); err != nil {
		return nil, err
	}
	if err := unmarshalNullable(customer, &record.CustomerLocation); err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return nil, err
		}
	}
	return &record, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *domain.DeliveryPartner:
		if t == nil {
			return nil, nil
		}
	case *domain.Location:
		if t == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal column: %w", err)
	}
	return data, nil
}

func unmarshalNullable[T any](data []byte, target **T) error {
	if len(data) == 0 {
		return nil
	}
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*target = &value
	return nil
}
