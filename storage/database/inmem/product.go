package inmemdb

import (
	"context"
	"strings"

	"github.com/trezcool/tapir/core/product"
)

type productRepository struct {
	db *DB
}

var _ product.Repository = (*productRepository)(nil)

func NewProductRepository(db *DB) product.Repository {
	return &productRepository{db: db}
}

// Growing Periods

func (repo *productRepository) CreatePeriod(_ context.Context, p product.GrowingPeriod) (product.GrowingPeriod, error) {
	p.ID = newID()
	repo.db.periods.insert(p.ID, p)
	return p, nil
}

func (repo *productRepository) QueryPeriods(context.Context) ([]product.GrowingPeriod, error) {
	periods := repo.db.periods.filter(nil)
	sortStable(periods, func(a, b product.GrowingPeriod) bool { return a.StartDate.Before(b.StartDate) })
	return periods, nil
}

func (repo *productRepository) GetPeriod(_ context.Context, id string) (product.GrowingPeriod, error) {
	if p, ok := repo.db.periods.get(id); ok {
		return p, nil
	}
	return product.GrowingPeriod{}, product.ErrNotFound
}

func (repo *productRepository) DeletePeriod(_ context.Context, id string) error {
	if !repo.db.periods.delete(id) {
		return product.ErrNotFound
	}
	for _, c := range repo.db.capacities.filter(func(c product.Capacity) bool { return c.PeriodID == id }) {
		repo.db.capacities.delete(c.ID)
	}
	return nil
}

// Product Types

func (repo *productRepository) CreateProductType(_ context.Context, pt product.ProductType) (product.ProductType, error) {
	pt.ID = newID()
	repo.db.productTypes.insert(pt.ID, pt)
	return pt, nil
}

func (repo *productRepository) UpdateProductType(_ context.Context, pt product.ProductType) (product.ProductType, error) {
	if !repo.db.productTypes.update(pt.ID, pt) {
		return product.ProductType{}, product.ErrNotFound
	}
	return pt, nil
}

func (repo *productRepository) QueryProductTypes(context.Context) ([]product.ProductType, error) {
	types := repo.db.productTypes.filter(nil)
	sortStable(types, func(a, b product.ProductType) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) })
	return types, nil
}

func (repo *productRepository) GetProductType(_ context.Context, id string) (product.ProductType, error) {
	if pt, ok := repo.db.productTypes.get(id); ok {
		return pt, nil
	}
	return product.ProductType{}, product.ErrNotFound
}

func (repo *productRepository) SaveCapacity(_ context.Context, c product.Capacity) (product.Capacity, error) {
	existing, ok := repo.db.capacities.find(func(ec product.Capacity) bool {
		return ec.PeriodID == c.PeriodID && ec.ProductTypeID == c.ProductTypeID
	})
	if ok {
		c.ID = existing.ID
	} else {
		c.ID = newID()
	}
	repo.db.capacities.insert(c.ID, c)
	return c, nil
}

func (repo *productRepository) QueryCapacities(_ context.Context, periodID string) ([]product.Capacity, error) {
	return repo.db.capacities.filter(func(c product.Capacity) bool { return c.PeriodID == periodID }), nil
}

func (repo *productRepository) CreateTaxRate(_ context.Context, tr product.TaxRate) (product.TaxRate, error) {
	tr.ID = newID()
	repo.db.taxRates.insert(tr.ID, tr)
	return tr, nil
}

func (repo *productRepository) UpdateTaxRate(_ context.Context, tr product.TaxRate) (product.TaxRate, error) {
	if !repo.db.taxRates.update(tr.ID, tr) {
		return product.TaxRate{}, product.ErrNotFound
	}
	return tr, nil
}

func (repo *productRepository) QueryTaxRates(_ context.Context, productTypeID string) ([]product.TaxRate, error) {
	rates := repo.db.taxRates.filter(func(tr product.TaxRate) bool { return tr.ProductTypeID == productTypeID })
	sortStable(rates, func(a, b product.TaxRate) bool { return a.ValidFrom.Before(b.ValidFrom) })
	return rates, nil
}

// Products

func (repo *productRepository) CreateProduct(_ context.Context, p product.Product) (product.Product, error) {
	p.ID = newID()
	repo.db.products.insert(p.ID, p)
	return p, nil
}

func (repo *productRepository) UpdateProduct(_ context.Context, p product.Product) (product.Product, error) {
	if !repo.db.products.update(p.ID, p) {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

func (repo *productRepository) GetProduct(_ context.Context, id string) (product.Product, error) {
	if p, ok := repo.db.products.get(id); ok {
		return p, nil
	}
	return product.Product{}, product.ErrNotFound
}

func (repo *productRepository) QueryProducts(_ context.Context, filter *product.QueryFilter) ([]product.Product, error) {
	prods := repo.db.products.filter(filter.Match)
	sortStable(prods, func(a, b product.Product) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) })
	return prods, nil
}

func (repo *productRepository) SavePrice(_ context.Context, pr product.Price) (product.Price, error) {
	existing, ok := repo.db.prices.find(func(ep product.Price) bool {
		return ep.ProductID == pr.ProductID && ep.ValidFrom.Equal(pr.ValidFrom)
	})
	if ok {
		pr.ID = existing.ID
	} else {
		pr.ID = newID()
	}
	repo.db.prices.insert(pr.ID, pr)
	return pr, nil
}

func (repo *productRepository) QueryPrices(_ context.Context, productIDs ...string) ([]product.Price, error) {
	ids := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		ids[id] = true
	}
	prices := repo.db.prices.filter(func(pr product.Price) bool { return len(ids) == 0 || ids[pr.ProductID] })
	sortStable(prices, func(a, b product.Price) bool { return a.ValidFrom.Before(b.ValidFrom) })
	return prices, nil
}

// Pickup Locations

func copyPickupLocation(pl product.PickupLocation) product.PickupLocation {
	pl.ProductTypeIDs = copyStrings(pl.ProductTypeIDs)
	return pl
}

func (repo *productRepository) CreatePickupLocation(_ context.Context, pl product.PickupLocation) (product.PickupLocation, error) {
	pl.ID = newID()
	pl = copyPickupLocation(pl)
	repo.db.pickupLocations.insert(pl.ID, pl)
	return copyPickupLocation(pl), nil
}

func (repo *productRepository) UpdatePickupLocation(_ context.Context, pl product.PickupLocation) (product.PickupLocation, error) {
	pl = copyPickupLocation(pl)
	if !repo.db.pickupLocations.update(pl.ID, pl) {
		return product.PickupLocation{}, product.ErrNotFound
	}
	return copyPickupLocation(pl), nil
}

func (repo *productRepository) GetPickupLocation(_ context.Context, id string) (product.PickupLocation, error) {
	if pl, ok := repo.db.pickupLocations.get(id); ok {
		return copyPickupLocation(pl), nil
	}
	return product.PickupLocation{}, product.ErrNotFound
}

func (repo *productRepository) QueryPickupLocations(context.Context) ([]product.PickupLocation, error) {
	locs := repo.db.pickupLocations.filter(nil)
	sortStable(locs, func(a, b product.PickupLocation) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) })
	for i := range locs {
		locs[i] = copyPickupLocation(locs[i])
	}
	return locs, nil
}

func (repo *productRepository) DeletePickupLocation(_ context.Context, id string) error {
	if !repo.db.pickupLocations.delete(id) {
		return product.ErrNotFound
	}
	return nil
}
