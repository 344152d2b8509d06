package product

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
)

// delivery cycles
const (
	NoDelivery = "no_delivery"
	Weekly     = "weekly"
	OddWeeks   = "odd_weeks"
	EvenWeeks  = "even_weeks"
	Monthly    = "monthly"
)

var (
	DeliveryCycles = []string{NoDelivery, Weekly, OddWeeks, EvenWeeks, Monthly}

	// DefaultTaxRate applies to product types without any tax rate.
	DefaultTaxRate = decimal.RequireFromString("0.19")
)

// DeliversOn reports whether a product type with `cycle` is delivered on the delivery day `d`.
func DeliversOn(cycle string, d time.Time) bool {
	_, week := d.ISOWeek()
	switch cycle {
	case Weekly:
		return true
	case OddWeeks:
		return week%2 == 1
	case EvenWeeks:
		return week%2 == 0
	case Monthly:
		return d.Day() <= 7 // first delivery day of the month
	}
	return false
}

type GrowingPeriod struct {
	ID        string    `json:"id"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Contains reports whether `d` is within the period (bounds included).
func (p GrowingPeriod) Contains(d time.Time) bool {
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

func (p GrowingPeriod) Overlaps(start, end time.Time) bool {
	return !start.After(p.EndDate) && !end.Before(p.StartDate)
}

type NewPeriod struct {
	StartDate core.Day `json:"start_date"`
	EndDate   core.Day `json:"end_date"`
}

func (np NewPeriod) Validate(existing []GrowingPeriod) error {
	if np.StartDate.IsZero() {
		return core.NewFieldError("start_date", "this field is required")
	}
	if np.EndDate.IsZero() {
		return core.NewFieldError("end_date", "this field is required")
	}
	if !np.StartDate.Before(np.EndDate.Time) {
		return core.NewFieldError("start_date", "the start date must be before the end date")
	}
	for _, p := range existing {
		if p.Overlaps(np.StartDate.Time, np.EndDate.Time) {
			return core.NewFieldError("start_date", "the period overlaps with an existing growing period")
		}
	}
	return nil
}

type ProductType struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DeliveryCycle string `json:"delivery_cycle"`
}

// Capacity is the max monthly subscription value (€) of a product type within a growing period.
type Capacity struct {
	ID            string          `json:"id"`
	PeriodID      string          `json:"period_id"`
	ProductTypeID string          `json:"product_type_id"`
	Capacity      decimal.Decimal `json:"capacity"`
}

type TaxRate struct {
	ID            string          `json:"id"`
	ProductTypeID string          `json:"product_type_id"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	ValidFrom     time.Time       `json:"valid_from"`
	ValidTo       *time.Time      `json:"valid_to"`
}

func (tr TaxRate) ValidAt(d time.Time) bool {
	return !d.Before(tr.ValidFrom) && (tr.ValidTo == nil || !d.After(*tr.ValidTo))
}

// SaveProductType creates or updates a product type together with its capacity in a period,
// its current tax rate and the pickup locations able to deliver it.
type SaveProductType struct {
	ID                string          `json:"id"`
	PeriodID          string          `json:"period_id" validate:"required"`
	Name              string          `json:"name" validate:"required,max=128"`
	DeliveryCycle     string          `json:"delivery_cycle" validate:"required,oneof=no_delivery weekly odd_weeks even_weeks monthly"`
	Capacity          decimal.Decimal `json:"capacity"`
	TaxRate           decimal.Decimal `json:"tax_rate"`
	PickupLocationIDs []string        `json:"pickup_location_ids"`
}

func (spt *SaveProductType) Validate(validate *validator.Validate) error {
	spt.Name = core.CleanString(spt.Name)
	if err := validate.Struct(spt); err != nil {
		return err
	}
	if spt.Capacity.IsNegative() {
		return core.NewFieldError("capacity", "must not be negative")
	}
	if spt.TaxRate.IsNegative() || spt.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return core.NewFieldError("tax_rate", "must be between 0 and 1")
	}
	return nil
}

type Product struct {
	ID      string `json:"id"`
	TypeID  string `json:"type_id"`
	Name    string `json:"name"`
	Deleted bool   `json:"deleted"`
}

type Price struct {
	ID        string          `json:"id"`
	ProductID string          `json:"product_id"`
	Price     decimal.Decimal `json:"price"`
	ValidFrom time.Time       `json:"valid_from"`
}

type NewProduct struct {
	TypeID string          `json:"type_id" validate:"required"`
	Name   string          `json:"name" validate:"required,max=128"`
	Price  decimal.Decimal `json:"price"`
}

func (np *NewProduct) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	if err := validate.Struct(np); err != nil {
		return err
	}
	if !np.Price.IsPositive() {
		return core.NewFieldError("price", "must be greater than 0")
	}
	return nil
}

// UpdateProduct renames a product and/or sets a new price valid from `ValidFrom` (today by default).
type UpdateProduct struct {
	Name      string           `json:"name" validate:"omitempty,max=128"`
	Price     *decimal.Decimal `json:"price"`
	ValidFrom core.Day         `json:"valid_from"`
}

func (up *UpdateProduct) Validate(validate *validator.Validate) error {
	up.Name = core.CleanString(up.Name)
	if err := validate.Struct(up); err != nil {
		return err
	}
	if up.Price != nil && !up.Price.IsPositive() {
		return core.NewFieldError("price", "must be greater than 0")
	}
	return nil
}

type QueryFilter struct {
	TypeID         string `query:"type"`
	IncludeDeleted bool   `query:"include_deleted"`
}

func (qf *QueryFilter) Match(p Product) bool {
	if qf == nil {
		return !p.Deleted
	}
	if qf.TypeID != "" && p.TypeID != qf.TypeID {
		return false
	}
	return qf.IncludeDeleted || !p.Deleted
}

// PriceList holds the price history of products, each sorted by ValidFrom.
type PriceList map[string][]Price

func NewPriceList(prices []Price) PriceList {
	pl := make(PriceList)
	for _, pr := range prices {
		pl[pr.ProductID] = append(pl[pr.ProductID], pr)
	}
	for _, history := range pl {
		sort.Slice(history, func(i, j int) bool { return history[i].ValidFrom.Before(history[j].ValidFrom) })
	}
	return pl
}

// At returns the price of a product valid at `d`: the latest one not valid after `d`.
func (pl PriceList) At(productID string, d time.Time) (decimal.Decimal, bool) {
	history := pl[productID]
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].ValidFrom.After(d) {
			return history[i].Price, true
		}
	}
	return decimal.Zero, false
}

type PickupLocation struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Street         string   `json:"street"`
	Postcode       string   `json:"postcode"`
	City           string   `json:"city"`
	Info           string   `json:"info"`
	ProductTypeIDs []string `json:"product_type_ids"`
}

func (pl PickupLocation) Serves(productTypeID string) bool {
	for _, id := range pl.ProductTypeIDs {
		if id == productTypeID {
			return true
		}
	}
	return false
}

type SavePickupLocation struct {
	Name           string   `json:"name" validate:"required,max=150"`
	Street         string   `json:"street" validate:"max=150"`
	Postcode       string   `json:"postcode" validate:"max=32"`
	City           string   `json:"city" validate:"max=50"`
	Info           string   `json:"info"`
	ProductTypeIDs []string `json:"product_type_ids"`
}

func (spl *SavePickupLocation) Validate(validate *validator.Validate) error {
	spl.Name = core.CleanString(spl.Name)
	spl.Street = core.CleanString(spl.Street)
	spl.Postcode = core.CleanString(spl.Postcode)
	spl.City = core.CleanString(spl.City)
	return validate.Struct(spl)
}
