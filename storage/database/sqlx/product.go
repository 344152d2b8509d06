package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tapir/core/product"
)

type periodRow struct {
	ID        string    `db:"id"`
	StartDate time.Time `db:"start_date"`
	EndDate   time.Time `db:"end_date"`
}

func (r periodRow) toPeriod() product.GrowingPeriod {
	return product.GrowingPeriod{ID: r.ID, StartDate: r.StartDate.UTC(), EndDate: r.EndDate.UTC()}
}

type productTypeRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	DeliveryCycle string `db:"delivery_cycle"`
}

func (r productTypeRow) toProductType() product.ProductType {
	return product.ProductType{ID: r.ID, Name: r.Name, DeliveryCycle: r.DeliveryCycle}
}

type capacityRow struct {
	ID            string          `db:"id"`
	PeriodID      string          `db:"period_id"`
	ProductTypeID string          `db:"product_type_id"`
	Capacity      decimal.Decimal `db:"capacity"`
}

func (r capacityRow) toCapacity() product.Capacity {
	return product.Capacity{ID: r.ID, PeriodID: r.PeriodID, ProductTypeID: r.ProductTypeID, Capacity: r.Capacity}
}

type taxRateRow struct {
	ID            string          `db:"id"`
	ProductTypeID string          `db:"product_type_id"`
	TaxRate       decimal.Decimal `db:"tax_rate"`
	ValidFrom     time.Time       `db:"valid_from"`
	ValidTo       null.Time       `db:"valid_to"`
}

func toTaxRateRow(tr product.TaxRate) taxRateRow {
	return taxRateRow{
		ID:            tr.ID,
		ProductTypeID: tr.ProductTypeID,
		TaxRate:       tr.TaxRate,
		ValidFrom:     tr.ValidFrom.UTC(),
		ValidTo:       nullTimeFromPtr(tr.ValidTo),
	}
}

func (r taxRateRow) toTaxRate() product.TaxRate {
	return product.TaxRate{
		ID:            r.ID,
		ProductTypeID: r.ProductTypeID,
		TaxRate:       r.TaxRate,
		ValidFrom:     r.ValidFrom.UTC(),
		ValidTo:       timePtr(r.ValidTo),
	}
}

type productRow struct {
	ID      string `db:"id"`
	TypeID  string `db:"type_id"`
	Name    string `db:"name"`
	Deleted bool   `db:"deleted"`
}

func (r productRow) toProduct() product.Product {
	return product.Product{ID: r.ID, TypeID: r.TypeID, Name: r.Name, Deleted: r.Deleted}
}

type priceRow struct {
	ID        string          `db:"id"`
	ProductID string          `db:"product_id"`
	Price     decimal.Decimal `db:"price"`
	ValidFrom time.Time       `db:"valid_from"`
}

func (r priceRow) toPrice() product.Price {
	return product.Price{ID: r.ID, ProductID: r.ProductID, Price: r.Price, ValidFrom: r.ValidFrom.UTC()}
}

type pickupLocationRow struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Street         string         `db:"street"`
	Postcode       string         `db:"postcode"`
	City           string         `db:"city"`
	Info           string         `db:"info"`
	ProductTypeIDs pq.StringArray `db:"product_type_ids"`
}

func (r pickupLocationRow) toPickupLocation() product.PickupLocation {
	ids := []string(r.ProductTypeIDs)
	if ids == nil {
		ids = []string{}
	}
	return product.PickupLocation{
		ID:             r.ID,
		Name:           r.Name,
		Street:         r.Street,
		Postcode:       r.Postcode,
		City:           r.City,
		Info:           r.Info,
		ProductTypeIDs: ids,
	}
}

type productRepository struct {
	repository
}

var _ product.Repository = (*productRepository)(nil)

func NewProductRepository(db *sqlx.DB) product.Repository {
	return &productRepository{repository{db: db}}
}

// Growing Periods

func (repo *productRepository) CreatePeriod(ctx context.Context, p product.GrowingPeriod) (product.GrowingPeriod, error) {
	p.ID = newID()
	_, err := repo.exec(ctx).ExecContext(ctx,
		"INSERT INTO growing_periods (id, start_date, end_date) VALUES ($1, $2, $3)",
		p.ID, p.StartDate.UTC(), p.EndDate.UTC(),
	)
	if err != nil {
		return product.GrowingPeriod{}, errors.Wrap(err, "inserting growing period")
	}
	return p, nil
}

func (repo *productRepository) QueryPeriods(ctx context.Context) ([]product.GrowingPeriod, error) {
	var rows []periodRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		"SELECT id, start_date, end_date FROM growing_periods ORDER BY start_date"); err != nil {
		return nil, errors.Wrap(err, "querying growing periods")
	}
	periods := make([]product.GrowingPeriod, 0, len(rows))
	for _, r := range rows {
		periods = append(periods, r.toPeriod())
	}
	return periods, nil
}

func (repo *productRepository) GetPeriod(ctx context.Context, id string) (product.GrowingPeriod, error) {
	var row periodRow
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &row,
		"SELECT id, start_date, end_date FROM growing_periods WHERE id = $1", id); err != nil {
		return product.GrowingPeriod{}, trapNoRowsErr(err, product.ErrNotFound)
	}
	return row.toPeriod(), nil
}

func (repo *productRepository) DeletePeriod(ctx context.Context, id string) error {
	res, err := repo.exec(ctx).ExecContext(ctx, "DELETE FROM growing_periods WHERE id = $1", id)
	return affected(res, err, product.ErrNotFound)
}

// Product Types

func (repo *productRepository) CreateProductType(ctx context.Context, pt product.ProductType) (product.ProductType, error) {
	pt.ID = newID()
	_, err := repo.exec(ctx).ExecContext(ctx,
		"INSERT INTO product_types (id, name, delivery_cycle) VALUES ($1, $2, $3)",
		pt.ID, pt.Name, pt.DeliveryCycle,
	)
	if err != nil {
		return product.ProductType{}, errors.Wrap(err, "inserting product type")
	}
	return pt, nil
}

func (repo *productRepository) UpdateProductType(ctx context.Context, pt product.ProductType) (product.ProductType, error) {
	res, err := repo.exec(ctx).ExecContext(ctx,
		"UPDATE product_types SET name = $2, delivery_cycle = $3 WHERE id = $1",
		pt.ID, pt.Name, pt.DeliveryCycle,
	)
	if err = affected(res, err, product.ErrNotFound); err != nil {
		return product.ProductType{}, err
	}
	return pt, nil
}

func (repo *productRepository) QueryProductTypes(ctx context.Context) ([]product.ProductType, error) {
	var rows []productTypeRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		"SELECT id, name, delivery_cycle FROM product_types ORDER BY lower(name)"); err != nil {
		return nil, errors.Wrap(err, "querying product types")
	}
	types := make([]product.ProductType, 0, len(rows))
	for _, r := range rows {
		types = append(types, r.toProductType())
	}
	return types, nil
}

func (repo *productRepository) GetProductType(ctx context.Context, id string) (product.ProductType, error) {
	var row productTypeRow
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &row,
		"SELECT id, name, delivery_cycle FROM product_types WHERE id = $1", id); err != nil {
		return product.ProductType{}, trapNoRowsErr(err, product.ErrNotFound)
	}
	return row.toProductType(), nil
}

func (repo *productRepository) SaveCapacity(ctx context.Context, c product.Capacity) (product.Capacity, error) {
	var row capacityRow
	err := sqlx.GetContext(ctx, repo.exec(ctx), &row, `
		INSERT INTO product_capacities (id, period_id, product_type_id, capacity) VALUES ($1, $2, $3, $4)
		ON CONFLICT (period_id, product_type_id) DO UPDATE SET capacity = excluded.capacity
		RETURNING id, period_id, product_type_id, capacity`,
		newID(), c.PeriodID, c.ProductTypeID, c.Capacity,
	)
	if err != nil {
		return product.Capacity{}, errors.Wrap(err, "saving capacity")
	}
	return row.toCapacity(), nil
}

func (repo *productRepository) QueryCapacities(ctx context.Context, periodID string) ([]product.Capacity, error) {
	var rows []capacityRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		"SELECT id, period_id, product_type_id, capacity FROM product_capacities WHERE period_id = $1", periodID); err != nil {
		return nil, errors.Wrap(err, "querying capacities")
	}
	caps := make([]product.Capacity, 0, len(rows))
	for _, r := range rows {
		caps = append(caps, r.toCapacity())
	}
	return caps, nil
}

func (repo *productRepository) CreateTaxRate(ctx context.Context, tr product.TaxRate) (product.TaxRate, error) {
	tr.ID = newID()
	row := toTaxRateRow(tr)
	_, err := sqlx.NamedExecContext(ctx, repo.exec(ctx), `
		INSERT INTO tax_rates (id, product_type_id, tax_rate, valid_from, valid_to)
		VALUES (:id, :product_type_id, :tax_rate, :valid_from, :valid_to)`,
		row,
	)
	if err != nil {
		return product.TaxRate{}, errors.Wrap(err, "inserting tax rate")
	}
	return row.toTaxRate(), nil
}

func (repo *productRepository) UpdateTaxRate(ctx context.Context, tr product.TaxRate) (product.TaxRate, error) {
	row := toTaxRateRow(tr)
	res, err := sqlx.NamedExecContext(ctx, repo.exec(ctx),
		"UPDATE tax_rates SET tax_rate = :tax_rate, valid_from = :valid_from, valid_to = :valid_to WHERE id = :id",
		row,
	)
	if err = affected(res, err, product.ErrNotFound); err != nil {
		return product.TaxRate{}, err
	}
	return row.toTaxRate(), nil
}

func (repo *productRepository) QueryTaxRates(ctx context.Context, productTypeID string) ([]product.TaxRate, error) {
	var rows []taxRateRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows, `
		SELECT id, product_type_id, tax_rate, valid_from, valid_to FROM tax_rates
		WHERE product_type_id = $1 ORDER BY valid_from`,
		productTypeID,
	); err != nil {
		return nil, errors.Wrap(err, "querying tax rates")
	}
	rates := make([]product.TaxRate, 0, len(rows))
	for _, r := range rows {
		rates = append(rates, r.toTaxRate())
	}
	return rates, nil
}

// Products

func (repo *productRepository) CreateProduct(ctx context.Context, p product.Product) (product.Product, error) {
	p.ID = newID()
	_, err := repo.exec(ctx).ExecContext(ctx,
		"INSERT INTO products (id, type_id, name, deleted) VALUES ($1, $2, $3, $4)",
		p.ID, p.TypeID, p.Name, p.Deleted,
	)
	if err != nil {
		return product.Product{}, errors.Wrap(err, "inserting product")
	}
	return p, nil
}

func (repo *productRepository) UpdateProduct(ctx context.Context, p product.Product) (product.Product, error) {
	res, err := repo.exec(ctx).ExecContext(ctx,
		"UPDATE products SET type_id = $2, name = $3, deleted = $4 WHERE id = $1",
		p.ID, p.TypeID, p.Name, p.Deleted,
	)
	if err = affected(res, err, product.ErrNotFound); err != nil {
		return product.Product{}, err
	}
	return p, nil
}

func (repo *productRepository) GetProduct(ctx context.Context, id string) (product.Product, error) {
	var row productRow
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &row,
		"SELECT id, type_id, name, deleted FROM products WHERE id = $1", id); err != nil {
		return product.Product{}, trapNoRowsErr(err, product.ErrNotFound)
	}
	return row.toProduct(), nil
}

func (repo *productRepository) QueryProducts(ctx context.Context, filter *product.QueryFilter) ([]product.Product, error) {
	w := new(where)
	if filter == nil || !filter.IncludeDeleted {
		w.add("NOT deleted")
	}
	if filter != nil && filter.TypeID != "" {
		w.add("type_id = ?", filter.TypeID)
	}

	var rows []productRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		w.query("SELECT id, type_id, name, deleted FROM products", " ORDER BY lower(name)"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying products")
	}
	prods := make([]product.Product, 0, len(rows))
	for _, r := range rows {
		prods = append(prods, r.toProduct())
	}
	return prods, nil
}

func (repo *productRepository) SavePrice(ctx context.Context, pr product.Price) (product.Price, error) {
	var row priceRow
	err := sqlx.GetContext(ctx, repo.exec(ctx), &row, `
		INSERT INTO product_prices (id, product_id, price, valid_from) VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, valid_from) DO UPDATE SET price = excluded.price
		RETURNING id, product_id, price, valid_from`,
		newID(), pr.ProductID, pr.Price, pr.ValidFrom.UTC(),
	)
	if err != nil {
		return product.Price{}, errors.Wrap(err, "saving price")
	}
	return row.toPrice(), nil
}

func (repo *productRepository) QueryPrices(ctx context.Context, productIDs ...string) ([]product.Price, error) {
	w := new(where)
	if len(productIDs) > 0 {
		w.add("product_id = ANY (?)", stringArray(productIDs))
	}

	var rows []priceRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows,
		w.query("SELECT id, product_id, price, valid_from FROM product_prices", " ORDER BY valid_from"), w.args...); err != nil {
		return nil, errors.Wrap(err, "querying prices")
	}
	prices := make([]product.Price, 0, len(rows))
	for _, r := range rows {
		prices = append(prices, r.toPrice())
	}
	return prices, nil
}

// Pickup Locations

const pickupLocationQuery = `
	SELECT pl.id, pl.name, pl.street, pl.postcode, pl.city, pl.info,
		array_remove(array_agg(c.product_type_id::text), NULL) AS product_type_ids
	FROM pickup_locations pl
	LEFT JOIN pickup_location_capabilities c ON c.pickup_location_id = pl.id`

func (repo *productRepository) setCapabilities(ctx context.Context, pl product.PickupLocation) error {
	exec := repo.exec(ctx)
	if _, err := exec.ExecContext(ctx, "DELETE FROM pickup_location_capabilities WHERE pickup_location_id = $1", pl.ID); err != nil {
		return errors.Wrap(err, "deleting pickup location capabilities")
	}
	if len(pl.ProductTypeIDs) == 0 {
		return nil
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO pickup_location_capabilities (pickup_location_id, product_type_id)
		SELECT $1, unnest($2::uuid[])`,
		pl.ID, stringArray(pl.ProductTypeIDs),
	)
	return errors.Wrap(err, "inserting pickup location capabilities")
}

func (repo *productRepository) CreatePickupLocation(ctx context.Context, pl product.PickupLocation) (product.PickupLocation, error) {
	pl.ID = newID()
	_, err := repo.exec(ctx).ExecContext(ctx, `
		INSERT INTO pickup_locations (id, name, street, postcode, city, info) VALUES ($1, $2, $3, $4, $5, $6)`,
		pl.ID, pl.Name, pl.Street, pl.Postcode, pl.City, pl.Info,
	)
	if err != nil {
		return product.PickupLocation{}, errors.Wrap(err, "inserting pickup location")
	}
	if err = repo.setCapabilities(ctx, pl); err != nil {
		return product.PickupLocation{}, err
	}
	return pl, nil
}

func (repo *productRepository) UpdatePickupLocation(ctx context.Context, pl product.PickupLocation) (product.PickupLocation, error) {
	res, err := repo.exec(ctx).ExecContext(ctx, `
		UPDATE pickup_locations SET name = $2, street = $3, postcode = $4, city = $5, info = $6 WHERE id = $1`,
		pl.ID, pl.Name, pl.Street, pl.Postcode, pl.City, pl.Info,
	)
	if err = affected(res, err, product.ErrNotFound); err != nil {
		return product.PickupLocation{}, err
	}
	if err = repo.setCapabilities(ctx, pl); err != nil {
		return product.PickupLocation{}, err
	}
	return pl, nil
}

func (repo *productRepository) GetPickupLocation(ctx context.Context, id string) (product.PickupLocation, error) {
	var row pickupLocationRow
	if err := sqlx.GetContext(ctx, repo.exec(ctx), &row, pickupLocationQuery+" WHERE pl.id = $1 GROUP BY pl.id", id); err != nil {
		return product.PickupLocation{}, trapNoRowsErr(err, product.ErrNotFound)
	}
	return row.toPickupLocation(), nil
}

func (repo *productRepository) QueryPickupLocations(ctx context.Context) ([]product.PickupLocation, error) {
	var rows []pickupLocationRow
	if err := sqlx.SelectContext(ctx, repo.exec(ctx), &rows, pickupLocationQuery+" GROUP BY pl.id ORDER BY lower(pl.name)"); err != nil {
		return nil, errors.Wrap(err, "querying pickup locations")
	}
	locs := make([]product.PickupLocation, 0, len(rows))
	for _, r := range rows {
		locs = append(locs, r.toPickupLocation())
	}
	return locs, nil
}

func (repo *productRepository) DeletePickupLocation(ctx context.Context, id string) error {
	res, err := repo.exec(ctx).ExecContext(ctx, "DELETE FROM pickup_locations WHERE id = $1", id)
	return affected(res, err, product.ErrNotFound)
}
