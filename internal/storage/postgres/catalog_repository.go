package postgres

import (
	"context"
	"fmt"

	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepository persists the read-mostly catalog: events, subevents,
// products and variations. Nothing here is contended; the reservation engine
// only reads it.
type CatalogRepository struct {
	db
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: db{pool: pool}}
}

func (r *CatalogRepository) CreateEvent(ctx context.Context, event domain.Event) error {
	const stmt = `
INSERT INTO events (id, organizer, slug, name, starts_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt, event.ID, event.Organizer, event.Slug, event.Name, event.StartsAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// GetEventBySlug resolves an event by organizer and slug (the public URL
// coordinates).
func (r *CatalogRepository) GetEventBySlug(ctx context.Context, organizer, slug string) (domain.Event, error) {
	const query = `
SELECT id, organizer, slug, name, starts_at
FROM events
WHERE organizer = $1 AND slug = $2`

	var e domain.Event
	err := r.queryRow(ctx, query, organizer, slug).
		Scan(&e.ID, &e.Organizer, &e.Slug, &e.Name, &e.StartsAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

func (r *CatalogRepository) CreateSubEvent(ctx context.Context, se domain.SubEvent) error {
	const stmt = `
INSERT INTO subevents (id, event_id, name, starts_at)
VALUES ($1, $2, $3, $4)`

	_, err := r.exec(ctx, stmt, se.ID, se.EventID, se.Name, se.StartsAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("create subevent: %w", err)
	}
	return nil
}

func (r *CatalogRepository) CreateProduct(ctx context.Context, p domain.Product) error {
	const stmt = `
INSERT INTO products (id, event_id, name, default_price, active)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt, p.ID, p.EventID, p.Name, p.DefaultPrice, p.Active)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// GetProduct reads a product within its event.
func (r *CatalogRepository) GetProduct(ctx context.Context, eventID, productID string) (domain.Product, error) {
	const query = `
SELECT id, event_id, name, default_price, active
FROM products
WHERE id = $1 AND event_id = $2`

	var p domain.Product
	err := r.queryRow(ctx, query, productID, eventID).
		Scan(&p.ID, &p.EventID, &p.Name, &p.DefaultPrice, &p.Active)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Product{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *CatalogRepository) CreateVariation(ctx context.Context, v domain.Variation) error {
	const stmt = `
INSERT INTO variations (id, product_id, name, price)
VALUES ($1, $2, $3, $4)`

	_, err := r.exec(ctx, stmt, v.ID, v.ProductID, v.Name, v.Price)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrProductNotFound
		}
		return fmt.Errorf("create variation: %w", err)
	}
	return nil
}

// GetVariation reads a variation of a product.
func (r *CatalogRepository) GetVariation(ctx context.Context, productID, variationID string) (domain.Variation, error) {
	const query = `
SELECT id, product_id, name, price
FROM variations
WHERE id = $1 AND product_id = $2`

	var v domain.Variation
	err := r.queryRow(ctx, query, variationID, productID).
		Scan(&v.ID, &v.ProductID, &v.Name, &v.Price)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Variation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Variation{}, domain.ErrProductNotFound
		}
		return domain.Variation{}, fmt.Errorf("get variation: %w", err)
	}
	return v, nil
}
