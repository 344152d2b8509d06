package echoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/tapir/apps/api/echo"
	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/user"
	testutil "github.com/trezcool/tapir/tests"
)

func Test_productApi_periods(t *testing.T) {
	app, srv := setup(t)
	testutil.FreezeTime(t, core.Date(2023, time.March, 6))
	manager := staffToken(t, app, "manager", user.RoleProductsManage)
	viewer := staffToken(t, app, "viewer", user.RoleProductsView)

	// defaults without any period: from tomorrow, for one year
	rec := do(srv, http.MethodGet, "/v1/periods/defaults", viewer)
	checkCodeAndData(t, httpTest{wantData: marshallObj(t, echoapi.PeriodDefaultsResponse{
		StartDate: core.NewDay(core.Date(2023, time.March, 7)),
		EndDate:   core.NewDay(core.Date(2024, time.March, 6)),
	})}, rec)

	np := product.NewPeriod{
		StartDate: core.NewDay(core.Date(2023, time.January, 1)),
		EndDate:   core.NewDay(core.Date(2023, time.December, 31)),
	}
	rec = do(srv, http.MethodPost, "/v1/periods", viewer, marshallObj(t, np))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(srv, http.MethodPost, "/v1/periods", manager, marshallObj(t, np))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var period product.GrowingPeriod
	unmarshall(t, rec, &period)

	runHTTPTests(t, srv, []httpTest{
		{
			name: "overlapping", method: http.MethodPost, path: "/v1/periods", token: manager,
			body: marshallObj(t, product.NewPeriod{
				StartDate: core.NewDay(core.Date(2023, time.December, 1)),
				EndDate:   core.NewDay(core.Date(2024, time.November, 30)),
			}),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"start_date": "the period overlaps with an existing growing period"}),
		},
		{
			name: "missing end date", method: http.MethodPost, path: "/v1/periods", token: manager,
			body:     []byte(`{"start_date": "2025-01-01"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"end_date": "this field is required"}),
		},
		{name: "list", path: "/v1/periods", token: viewer, wantData: marshallList(t, period)},
		{
			name: "defaults after the last period", path: "/v1/periods/defaults", token: viewer,
			wantData: marshallObj(t, echoapi.PeriodDefaultsResponse{
				StartDate: core.NewDay(core.Date(2024, time.January, 1)),
				EndDate:   core.NewDay(core.Date(2024, time.December, 31)),
			}),
		},
		{name: "unknown period", path: "/v1/periods/defaults?after=nope", token: viewer, wantCode: http.StatusNotFound},
	})
}

func Test_productApi_products(t *testing.T) {
	app, srv := setup(t)
	testutil.FreezeTime(t, core.Date(2023, time.March, 6))
	manager := staffToken(t, app, "manager", user.RoleProductsManage)
	period := app.CreatePeriod(t, core.Date(2023, time.January, 1), core.Date(2023, time.December, 31))

	// product type
	rec := do(srv, http.MethodPost, "/v1/product-types", manager, marshallObj(t, product.SaveProductType{
		PeriodID:      period.ID,
		Name:          "Ernteanteile",
		DeliveryCycle: "weekly",
		Capacity:      decimal.NewFromInt(1000),
		TaxRate:       decimal.RequireFromString("0.07"),
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var pt product.ProductType
	unmarshall(t, rec, &pt)
	assert.Equal(t, "Ernteanteile", pt.Name)

	rec = do(srv, http.MethodGet, "/v1/product-types/"+pt.ID+"/tax-rate", manager)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rate echoapi.TaxRateResponse
	unmarshall(t, rec, &rate)
	assert.True(t, rate.TaxRate.Equal(decimal.RequireFromString("0.07")), rate.TaxRate.String())

	rec = do(srv, http.MethodGet, "/v1/periods/"+period.ID+"/capacities", manager)
	require.Equal(t, http.StatusOK, rec.Code)
	var caps map[string]decimal.Decimal
	unmarshall(t, rec, &caps)
	assert.True(t, caps[pt.ID].Equal(decimal.NewFromInt(1000)))

	// rename through PUT
	rec = do(srv, http.MethodPut, "/v1/product-types/"+pt.ID, manager, marshallObj(t, product.SaveProductType{
		PeriodID:      period.ID,
		Name:          "Harvest shares",
		DeliveryCycle: "weekly",
		Capacity:      decimal.NewFromInt(1000),
		TaxRate:       decimal.RequireFromString("0.07"),
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshall(t, rec, &pt)
	assert.Equal(t, "Harvest shares", pt.Name)

	// product & price
	rec = do(srv, http.MethodPost, "/v1/products", manager, marshallObj(t, product.NewProduct{
		TypeID: pt.ID, Name: "S", Price: decimal.NewFromInt(60),
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var prod product.Product
	unmarshall(t, rec, &prod)

	newPrice := decimal.NewFromInt(65)
	rec = do(srv, http.MethodPut, "/v1/products/"+prod.ID, manager, marshallObj(t, product.UpdateProduct{
		Price: &newPrice, ValidFrom: core.NewDay(core.Date(2023, time.May, 1)),
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	price := func(date string) decimal.Decimal {
		rec := do(srv, http.MethodGet, "/v1/products/"+prod.ID+"/price?date="+date, manager)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp echoapi.PriceResponse
		unmarshall(t, rec, &resp)
		return resp.Price
	}
	assert.True(t, price("2023-04-30").Equal(decimal.NewFromInt(60)))
	assert.True(t, price("2023-05-01").Equal(decimal.NewFromInt(65)))

	runHTTPTests(t, srv, []httpTest{
		{
			name: "invalid price", method: http.MethodPost, path: "/v1/products", token: manager,
			body:     marshallObj(t, product.NewProduct{TypeID: pt.ID, Name: "M", Price: decimal.Zero}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"price": "must be greater than 0"}),
		},
		{
			name: "unknown type", method: http.MethodPost, path: "/v1/products", token: manager,
			body:     marshallObj(t, product.NewProduct{TypeID: "nope", Name: "M", Price: decimal.NewFromInt(1)}),
			wantCode: http.StatusBadRequest, wantData: marshallObj(t, map[string]string{"type_id": "unknown product type"}),
		},
		{
			name: "bad date", path: "/v1/products/" + prod.ID + "/price?date=01.05.2023", token: manager,
			wantCode: http.StatusBadRequest,
		},
		{name: "unknown product", path: "/v1/products/nope", token: manager, wantCode: http.StatusNotFound},
		{name: "delete", method: http.MethodDelete, path: "/v1/products/" + prod.ID, token: manager, wantCode: http.StatusNoContent},
		{name: "deleted products are hidden", path: "/v1/products", token: manager, wantData: marshallList(t)},
	})

	rec = do(srv, http.MethodGet, "/v1/products?include_deleted=true", manager)
	var prods []product.Product
	unmarshall(t, rec, &prods)
	if assert.Len(t, prods, 1) {
		assert.True(t, prods[0].Deleted)
	}
}

func Test_productApi_pickupLocations(t *testing.T) {
	app, srv := setup(t)
	manager := staffToken(t, app, "manager", user.RoleCoopManage)
	viewer := staffToken(t, app, "viewer", user.RoleCoopView)

	spl := product.SavePickupLocation{Name: "Hofladen", Street: "Feldweg 3", Postcode: "14467", City: "Potsdam"}
	rec := do(srv, http.MethodPost, "/v1/pickup-locations", viewer, marshallObj(t, spl))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(srv, http.MethodPost, "/v1/pickup-locations", manager, marshallObj(t, spl))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var loc product.PickupLocation
	unmarshall(t, rec, &loc)

	spl.Info = "Mo-Fr 9-18 Uhr"
	rec = do(srv, http.MethodPut, "/v1/pickup-locations/"+loc.ID, manager, marshallObj(t, spl))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshall(t, rec, &loc)
	assert.Equal(t, "Mo-Fr 9-18 Uhr", loc.Info)

	runHTTPTests(t, srv, []httpTest{
		{name: "list", path: "/v1/pickup-locations", token: viewer, wantData: marshallList(t, loc)},
		{name: "retrieve", path: "/v1/pickup-locations/" + loc.ID, token: viewer, wantData: marshallObj(t, loc)},
		{name: "delete", method: http.MethodDelete, path: "/v1/pickup-locations/" + loc.ID, token: manager, wantCode: http.StatusNoContent},
		{name: "deleted", path: "/v1/pickup-locations/" + loc.ID, token: viewer, wantCode: http.StatusNotFound},
	})
}
