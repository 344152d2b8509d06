package product

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
)

var (
	// errors
	ErrNotFound = errors.New("not found")
	ErrNoPeriod = errors.New("no growing period")
	ErrNoPrice  = errors.New("product has no price")
)

type (
	Repository interface {
		CreatePeriod(ctx context.Context, p GrowingPeriod) (GrowingPeriod, error)
		// QueryPeriods returns all growing periods ordered by start date.
		QueryPeriods(ctx context.Context) ([]GrowingPeriod, error)
		GetPeriod(ctx context.Context, id string) (GrowingPeriod, error)
		DeletePeriod(ctx context.Context, id string) error

		CreateProductType(ctx context.Context, pt ProductType) (ProductType, error)
		UpdateProductType(ctx context.Context, pt ProductType) (ProductType, error)
		QueryProductTypes(ctx context.Context) ([]ProductType, error)
		GetProductType(ctx context.Context, id string) (ProductType, error)

		// SaveCapacity creates or replaces the capacity of (PeriodID, ProductTypeID).
		SaveCapacity(ctx context.Context, c Capacity) (Capacity, error)
		QueryCapacities(ctx context.Context, periodID string) ([]Capacity, error)

		CreateTaxRate(ctx context.Context, tr TaxRate) (TaxRate, error)
		UpdateTaxRate(ctx context.Context, tr TaxRate) (TaxRate, error)
		// QueryTaxRates returns the tax rates of a product type ordered by ValidFrom.
		QueryTaxRates(ctx context.Context, productTypeID string) ([]TaxRate, error)

		CreateProduct(ctx context.Context, p Product) (Product, error)
		UpdateProduct(ctx context.Context, p Product) (Product, error)
		GetProduct(ctx context.Context, id string) (Product, error)
		QueryProducts(ctx context.Context, filter *QueryFilter) ([]Product, error)

		// SavePrice creates or replaces the price of (ProductID, ValidFrom).
		SavePrice(ctx context.Context, pr Price) (Price, error)
		// QueryPrices returns the price history of given products, or of all products if none is given.
		QueryPrices(ctx context.Context, productIDs ...string) ([]Price, error)

		CreatePickupLocation(ctx context.Context, pl PickupLocation) (PickupLocation, error)
		UpdatePickupLocation(ctx context.Context, pl PickupLocation) (PickupLocation, error)
		GetPickupLocation(ctx context.Context, id string) (PickupLocation, error)
		QueryPickupLocations(ctx context.Context) ([]PickupLocation, error)
		DeletePickupLocation(ctx context.Context, id string) error
	}

	Service struct {
		repo Repository
		txor core.Transactor
	}
)

func NewService(repo Repository, txor core.Transactor) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(txor, "txor"),
	).CheckAndPanic()
	return &Service{repo: repo, txor: txor}
}

// Growing Periods

func (svc *Service) Periods(ctx context.Context) ([]GrowingPeriod, error) {
	return svc.repo.QueryPeriods(ctx)
}

func (svc *Service) GetPeriod(ctx context.Context, id string) (GrowingPeriod, error) {
	return svc.repo.GetPeriod(ctx, id)
}

// PeriodDefaults suggests the dates of a new growing period: the day after the end of period `afterID`
// (or of the latest period) for one year. With no period at all, it starts tomorrow and ends in one year.
func (svc *Service) PeriodDefaults(ctx context.Context, today time.Time, afterID string) (start, end time.Time, err error) {
	var (
		prev  GrowingPeriod
		found bool
	)
	if afterID != "" {
		if prev, err = svc.repo.GetPeriod(ctx, afterID); err != nil {
			return start, end, err
		}
		found = true
	} else {
		prev, err = svc.LastPeriod(ctx)
		if err != nil && errors.Cause(err) != ErrNoPeriod {
			return start, end, err
		}
		found = err == nil
	}

	if !found {
		return today.AddDate(0, 0, 1), today.AddDate(1, 0, 0), nil
	}
	start = prev.EndDate.AddDate(0, 0, 1)
	return start, start.AddDate(1, 0, -1), nil
}

func (svc *Service) CreatePeriod(ctx context.Context, np NewPeriod) (GrowingPeriod, error) {
	var period GrowingPeriod
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := svc.repo.QueryPeriods(ctx)
		if err != nil {
			return errors.Wrap(err, "querying periods")
		}
		if err = np.Validate(existing); err != nil {
			return err
		}
		period, err = svc.repo.CreatePeriod(ctx, GrowingPeriod{StartDate: np.StartDate.Time, EndDate: np.EndDate.Time})
		return err
	})
	return period, err
}

func (svc *Service) DeletePeriod(ctx context.Context, id string) error {
	return svc.repo.DeletePeriod(ctx, id)
}

// PeriodAt returns the growing period containing `d`.
func (svc *Service) PeriodAt(ctx context.Context, d time.Time) (GrowingPeriod, error) {
	periods, err := svc.repo.QueryPeriods(ctx)
	if err != nil {
		return GrowingPeriod{}, err
	}
	for _, p := range periods {
		if p.Contains(d) {
			return p, nil
		}
	}
	return GrowingPeriod{}, ErrNoPeriod
}

// NextPeriod returns the first growing period starting after `d`.
func (svc *Service) NextPeriod(ctx context.Context, d time.Time) (GrowingPeriod, error) {
	periods, err := svc.repo.QueryPeriods(ctx)
	if err != nil {
		return GrowingPeriod{}, err
	}
	for _, p := range periods {
		if p.StartDate.After(d) {
			return p, nil
		}
	}
	return GrowingPeriod{}, ErrNoPeriod
}

// LastPeriod returns the growing period ending last.
func (svc *Service) LastPeriod(ctx context.Context) (GrowingPeriod, error) {
	periods, err := svc.repo.QueryPeriods(ctx)
	if err != nil {
		return GrowingPeriod{}, err
	}
	if len(periods) == 0 {
		return GrowingPeriod{}, ErrNoPeriod
	}
	last := periods[0]
	for _, p := range periods[1:] {
		if p.EndDate.After(last.EndDate) {
			last = p
		}
	}
	return last, nil
}

// Product Types

func (svc *Service) ProductTypes(ctx context.Context) ([]ProductType, error) {
	return svc.repo.QueryProductTypes(ctx)
}

func (svc *Service) GetProductType(ctx context.Context, id string) (ProductType, error) {
	return svc.repo.GetProductType(ctx, id)
}

func (svc *Service) SaveProductType(ctx context.Context, spt SaveProductType) (ProductType, error) {
	var pt ProductType
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.repo.GetPeriod(ctx, spt.PeriodID); err != nil {
			if errors.Cause(err) == ErrNotFound {
				return core.NewFieldError("period_id", "unknown growing period")
			}
			return err
		}

		var err error
		if spt.ID == "" {
			pt, err = svc.repo.CreateProductType(ctx, ProductType{Name: spt.Name, DeliveryCycle: spt.DeliveryCycle})
		} else {
			if pt, err = svc.repo.GetProductType(ctx, spt.ID); err != nil {
				return err
			}
			pt.Name = spt.Name
			pt.DeliveryCycle = spt.DeliveryCycle
			pt, err = svc.repo.UpdateProductType(ctx, pt)
		}
		if err != nil {
			return errors.Wrap(err, "saving product type")
		}

		if _, err = svc.repo.SaveCapacity(ctx, Capacity{PeriodID: spt.PeriodID, ProductTypeID: pt.ID, Capacity: spt.Capacity}); err != nil {
			return errors.Wrap(err, "saving capacity")
		}
		if err = svc.setTaxRate(ctx, pt.ID, spt.TaxRate, core.Today(nil)); err != nil {
			return errors.Wrap(err, "saving tax rate")
		}
		return svc.setPickupLocations(ctx, pt.ID, spt.PickupLocationIDs)
	})
	return pt, err
}

// setTaxRate closes the open tax rate of the product type and opens a new one if the rate changed.
func (svc *Service) setTaxRate(ctx context.Context, productTypeID string, rate decimal.Decimal, today time.Time) error {
	rates, err := svc.repo.QueryTaxRates(ctx, productTypeID)
	if err != nil {
		return err
	}
	for _, tr := range rates {
		if tr.ValidTo != nil {
			continue
		}
		if tr.TaxRate.Equal(rate) {
			return nil
		}
		if tr.ValidFrom.Equal(today) {
			tr.TaxRate = rate
			_, err = svc.repo.UpdateTaxRate(ctx, tr)
			return err
		}
		yesterday := today.AddDate(0, 0, -1)
		tr.ValidTo = &yesterday
		if _, err = svc.repo.UpdateTaxRate(ctx, tr); err != nil {
			return err
		}
	}
	_, err = svc.repo.CreateTaxRate(ctx, TaxRate{ProductTypeID: productTypeID, TaxRate: rate, ValidFrom: today})
	return err
}

func (svc *Service) setPickupLocations(ctx context.Context, productTypeID string, locationIDs []string) error {
	wanted := make(map[string]bool, len(locationIDs))
	for _, id := range locationIDs {
		wanted[id] = true
	}
	locations, err := svc.repo.QueryPickupLocations(ctx)
	if err != nil {
		return err
	}
	for _, loc := range locations {
		serves := loc.Serves(productTypeID)
		if serves == wanted[loc.ID] {
			continue
		}
		if serves {
			ids := make([]string, 0, len(loc.ProductTypeIDs))
			for _, id := range loc.ProductTypeIDs {
				if id != productTypeID {
					ids = append(ids, id)
				}
			}
			loc.ProductTypeIDs = ids
		} else {
			loc.ProductTypeIDs = append(append([]string(nil), loc.ProductTypeIDs...), productTypeID)
		}
		if _, err = svc.repo.UpdatePickupLocation(ctx, loc); err != nil {
			return errors.Wrap(err, "updating pickup location")
		}
	}
	return nil
}

// TaxRateAt returns the tax rate of a product type valid at `d`, DefaultTaxRate if none.
func (svc *Service) TaxRateAt(ctx context.Context, productTypeID string, d time.Time) (decimal.Decimal, error) {
	rates, err := svc.repo.QueryTaxRates(ctx, productTypeID)
	if err != nil {
		return decimal.Zero, err
	}
	for _, tr := range rates {
		if tr.ValidAt(d) {
			return tr.TaxRate, nil
		}
	}
	return DefaultTaxRate, nil
}

// Capacities returns the capacities of all product types in a growing period: {product type ID: capacity}.
func (svc *Service) Capacities(ctx context.Context, periodID string) (map[string]decimal.Decimal, error) {
	caps, err := svc.repo.QueryCapacities(ctx, periodID)
	if err != nil {
		return nil, err
	}
	res := make(map[string]decimal.Decimal, len(caps))
	for _, c := range caps {
		res[c.ProductTypeID] = c.Capacity
	}
	return res, nil
}

// Products

func (svc *Service) Products(ctx context.Context, filter *QueryFilter) ([]Product, error) {
	return svc.repo.QueryProducts(ctx, filter)
}

func (svc *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	return svc.repo.GetProduct(ctx, id)
}

func (svc *Service) CreateProduct(ctx context.Context, np NewProduct) (Product, error) {
	var prod Product
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.repo.GetProductType(ctx, np.TypeID); err != nil {
			if errors.Cause(err) == ErrNotFound {
				return core.NewFieldError("type_id", "unknown product type")
			}
			return err
		}
		var err error
		if prod, err = svc.repo.CreateProduct(ctx, Product{TypeID: np.TypeID, Name: np.Name}); err != nil {
			return errors.Wrap(err, "creating product")
		}
		_, err = svc.repo.SavePrice(ctx, Price{ProductID: prod.ID, Price: np.Price, ValidFrom: core.Today(nil)})
		return errors.Wrap(err, "saving price")
	})
	return prod, err
}

func (svc *Service) UpdateProduct(ctx context.Context, prod Product, up UpdateProduct) (Product, error) {
	err := svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if up.Name != "" && up.Name != prod.Name {
			prod.Name = up.Name
			if prod, err = svc.repo.UpdateProduct(ctx, prod); err != nil {
				return errors.Wrap(err, "updating product")
			}
		}
		if up.Price != nil {
			validFrom := up.ValidFrom.Time
			if validFrom.IsZero() {
				validFrom = core.Today(nil)
			}
			_, err = svc.repo.SavePrice(ctx, Price{ProductID: prod.ID, Price: *up.Price, ValidFrom: validFrom})
			return errors.Wrap(err, "saving price")
		}
		return nil
	})
	return prod, err
}

// DeleteProduct only flags the product: subscriptions keep referencing it.
func (svc *Service) DeleteProduct(ctx context.Context, prod Product) error {
	prod.Deleted = true
	_, err := svc.repo.UpdateProduct(ctx, prod)
	return err
}

func (svc *Service) PriceList(ctx context.Context, productIDs ...string) (PriceList, error) {
	prices, err := svc.repo.QueryPrices(ctx, productIDs...)
	if err != nil {
		return nil, errors.Wrap(err, "querying prices")
	}
	return NewPriceList(prices), nil
}

func (svc *Service) PriceAt(ctx context.Context, productID string, d time.Time) (decimal.Decimal, error) {
	pl, err := svc.PriceList(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := pl.At(productID, d)
	if !ok {
		return decimal.Zero, errors.Wrap(ErrNoPrice, productID)
	}
	return price, nil
}

// Pickup Locations

func (svc *Service) PickupLocations(ctx context.Context) ([]PickupLocation, error) {
	return svc.repo.QueryPickupLocations(ctx)
}

func (svc *Service) GetPickupLocation(ctx context.Context, id string) (PickupLocation, error) {
	return svc.repo.GetPickupLocation(ctx, id)
}

func (svc *Service) CreatePickupLocation(ctx context.Context, spl SavePickupLocation) (PickupLocation, error) {
	return svc.repo.CreatePickupLocation(ctx, PickupLocation{
		Name:           spl.Name,
		Street:         spl.Street,
		Postcode:       spl.Postcode,
		City:           spl.City,
		Info:           spl.Info,
		ProductTypeIDs: spl.ProductTypeIDs,
	})
}

func (svc *Service) UpdatePickupLocation(ctx context.Context, pl PickupLocation, spl SavePickupLocation) (PickupLocation, error) {
	pl.Name = spl.Name
	pl.Street = spl.Street
	pl.Postcode = spl.Postcode
	pl.City = spl.City
	pl.Info = spl.Info
	if spl.ProductTypeIDs != nil {
		pl.ProductTypeIDs = spl.ProductTypeIDs
	}
	return svc.repo.UpdatePickupLocation(ctx, pl)
}

func (svc *Service) DeletePickupLocation(ctx context.Context, id string) error {
	return svc.repo.DeletePickupLocation(ctx, id)
}
