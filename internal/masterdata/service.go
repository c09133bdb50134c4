package masterdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/cache"
)

// Directory is the cached read side of masterdata. Lookups go through the
// JSON cache and concurrent misses for the same key share one load.
type Directory struct {
	repo   *Repository
	cache  *cache.JSONCache
	group  singleflight.Group
	logger *slog.Logger
}

// NewDirectory wires a directory. A nil cache reads straight from the repository.
func NewDirectory(repo *Repository, c *cache.JSONCache, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{repo: repo, cache: c, logger: logger}
}

func lookup[T any](ctx context.Context, d *Directory, load func(context.Context) (T, error), parts ...string) (T, error) {
	var zero T
	key, err := d.cache.Key(ctx, parts...)
	if err != nil {
		d.logger.Warn("masterdata cache key", slog.String("key", strings.Join(parts, ":")), slog.Any("error", err))
		return load(ctx)
	}
	v, err, _ := d.group.Do(key, func() (any, error) {
		var (
			value   T
			loadErr error
		)
		err := d.cache.Fetch(ctx, key, &value, func(ctx context.Context) (any, error) {
			loaded, err := load(ctx)
			loadErr = err
			return loaded, err
		})
		if err != nil && loadErr == nil {
			d.logger.Warn("masterdata cache unavailable", slog.String("key", key), slog.Any("error", err))
			return load(ctx)
		}
		return value, err
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Branch resolves a branch.
func (d *Directory) Branch(ctx context.Context, id string) (Branch, error) {
	return lookup(ctx, d, func(ctx context.Context) (Branch, error) { return d.repo.Branch(ctx, id) }, "branch", id)
}

// Branches lists branches.
func (d *Directory) Branches(ctx context.Context) ([]Branch, error) {
	return lookup(ctx, d, d.repo.Branches, "branches")
}

// BranchNumber returns the raw number stored on the branch.
func (d *Directory) BranchNumber(ctx context.Context, branchID string) (string, error) {
	b, err := d.Branch(ctx, branchID)
	if err != nil {
		return "", err
	}
	return b.Number, nil
}

// Warehouse resolves a warehouse.
func (d *Directory) Warehouse(ctx context.Context, id string) (Warehouse, error) {
	return lookup(ctx, d, func(ctx context.Context) (Warehouse, error) { return d.repo.Warehouse(ctx, id) }, "warehouse", id)
}

// WarehousesForBranch lists warehouses linked to a branch.
func (d *Directory) WarehousesForBranch(ctx context.Context, branchID string) ([]Warehouse, error) {
	return lookup(ctx, d, func(ctx context.Context) ([]Warehouse, error) {
		return d.repo.WarehousesForBranch(ctx, branchID)
	}, "branch", branchID, "warehouses")
}

// LinkedWarehouse returns the warehouse linked to branchID when exactly one
// exists.
func (d *Directory) LinkedWarehouse(ctx context.Context, branchID string) (Warehouse, bool, error) {
	list, err := d.WarehousesForBranch(ctx, branchID)
	if err != nil {
		return Warehouse{}, false, err
	}
	if len(list) != 1 {
		return Warehouse{}, false, nil
	}
	return list[0], true, nil
}

// Item resolves a catalog item for display. The result may be as old as the
// cache TTL.
func (d *Directory) Item(ctx context.Context, id string) (Item, error) {
	return lookup(ctx, d, func(ctx context.Context) (Item, error) { return d.repo.Item(ctx, id) }, "item", id)
}

// CurrentItem reads a catalog item from storage, skipping the cache. Sale
// gates use it so suspension and negative stock flags apply immediately.
func (d *Directory) CurrentItem(ctx context.Context, id string) (Item, error) {
	return d.repo.Item(ctx, id)
}

// TaxRate returns the company wide tax percent. No company document means 0.
func (d *Directory) TaxRate(ctx context.Context) (float64, error) {
	c, err := lookup(ctx, d, d.repo.Company, "company")
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return c.TaxRate, nil
}

// Customer resolves a customer.
func (d *Directory) Customer(ctx context.Context, id string) (Customer, error) {
	return lookup(ctx, d, func(ctx context.Context) (Customer, error) { return d.repo.Customer(ctx, id) }, "customer", id)
}

// PaymentMethods lists configured payment method names.
func (d *Directory) PaymentMethods(ctx context.Context) ([]string, error) {
	return lookup(ctx, d, d.repo.PaymentMethods, "payment-methods")
}

// CashBoxes lists cash boxes.
func (d *Directory) CashBoxes(ctx context.Context) ([]CashBox, error) {
	return lookup(ctx, d, d.repo.CashBoxes, "cash-boxes")
}

// CashBox resolves one cash box by id.
func (d *Directory) CashBox(ctx context.Context, id string) (CashBox, error) {
	list, err := d.CashBoxes(ctx)
	if err != nil {
		return CashBox{}, err
	}
	for _, cb := range list {
		if cb.ID == id {
			return cb, nil
		}
	}
	return CashBox{}, fmt.Errorf("cash box %s: %w", id, ErrNotFound)
}

// Banks lists banks.
func (d *Directory) Banks(ctx context.Context) ([]Bank, error) {
	return lookup(ctx, d, d.repo.Banks, "banks")
}

// Delegates lists sales representatives.
func (d *Directory) Delegates(ctx context.Context) ([]Delegate, error) {
	return lookup(ctx, d, d.repo.Delegates, "delegates")
}

// Invalidate drops every cached lookup.
func (d *Directory) Invalidate(ctx context.Context) error {
	_, err := d.cache.Bump(ctx)
	return err
}
