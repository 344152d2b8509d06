// Package testutil wires the services over the in-memory repositories for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/delivery"
	"github.com/trezcool/tapir/core/export"
	"github.com/trezcool/tapir/core/logentry"
	"github.com/trezcool/tapir/core/mandate"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/parameter"
	"github.com/trezcool/tapir/core/payment"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/shift"
	"github.com/trezcool/tapir/core/subscription"
	"github.com/trezcool/tapir/core/user"
	appfs "github.com/trezcool/tapir/fs"
	emailsvc "github.com/trezcool/tapir/services/email"
	logsvc "github.com/trezcool/tapir/services/logger"
	pdfsvc "github.com/trezcool/tapir/services/pdf"
	inmemdb "github.com/trezcool/tapir/storage/database/inmem"
)

// App holds every service of the application, backed by a fresh in-memory database.
type App struct {
	Conf       *core.Config
	DB         *inmemdb.DB
	Logger     core.Logger
	Mail       *emailsvc.ConsoleServiceMock
	Validate   *validator.Validate
	Translator ut.Translator

	Users            *user.Service
	Params           *parameter.Service
	Products         *product.Service
	Mandates         *mandate.Service
	Logs             *logentry.Service
	PaymentScheduler *payment.Scheduler
	Members          *member.Service
	Subscriptions    *subscription.Service
	Payments         *payment.Service
	Deliveries       *delivery.Service
	Shifts           *shift.Service
	Exports          *export.Service
}

func NewApp(t *testing.T) *App {
	t.Helper()

	conf := core.NewTestConfig()
	logger := logsvc.NewTestLogger()
	db := inmemdb.Open()
	txor := inmemdb.NewTransactor()
	tmpls := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, logger)
	mail := emailsvc.NewConsoleServiceMock(tmpls, conf, logger)

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	shift.InitValidators(validate, translator)

	app := &App{
		Conf:       conf,
		DB:         db,
		Logger:     logger,
		Mail:       mail,
		Validate:   validate,
		Translator: translator,
	}
	app.Users = user.NewService(inmemdb.NewUserRepository(db), mail, conf, logger)
	app.Params = parameter.NewService(inmemdb.NewParameterRepository(db))
	app.Products = product.NewService(inmemdb.NewProductRepository(db), txor)
	app.Mandates = mandate.NewService(inmemdb.NewMandateRepository(db))
	app.Logs = logentry.NewService(inmemdb.NewLogEntryRepository(db))

	paymentRepo := inmemdb.NewPaymentRepository(db)
	app.PaymentScheduler = payment.NewScheduler(paymentRepo, app.Params, conf)
	app.Members = member.NewService(inmemdb.NewMemberRepository(db), txor, app.Mandates, app.Params, app.Logs,
		app.PaymentScheduler, pdfsvc.NewDocuments(conf), mail, conf)
	app.Subscriptions = subscription.NewService(inmemdb.NewSubscriptionRepository(db), txor, app.Products, app.Members,
		app.Mandates, app.Params, app.Logs, mail, conf)
	app.Payments = payment.NewService(paymentRepo, txor, app.Subscriptions, app.Members, app.Mandates, app.Products,
		app.Params, app.Logs, conf)
	app.Deliveries = delivery.NewService(inmemdb.NewDeliveryRepository(db), app.Subscriptions, app.Members,
		app.Products, app.Params, conf)
	app.Shifts = shift.NewService(inmemdb.NewShiftRepository(db), txor, app.Members, conf)
	app.Exports = export.NewService(inmemdb.NewExportRepository(db), txor, app.Payments, app.Deliveries,
		app.Subscriptions, app.Members, app.Products, app.Params, mail, conf)
	return app
}

// FreezeTime sets core.NowFunc to `now` until the end of the test.
func FreezeTime(t *testing.T, now time.Time) {
	t.Helper()
	orig := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = orig })
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := core.NowFunc().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func (app *App) CreateMember(t *testing.T, firstName, lastName, email string) member.Member {
	t.Helper()
	m, err := app.Members.Create(context.Background(), member.PersonalData{
		FirstName:   firstName,
		LastName:    lastName,
		Email:       email,
		PhoneNumber: "+4915112345678",
		Street:      "Hauptstraße 1",
		Postcode:    "10115",
		City:        "Berlin",
		Country:     "DE",
		Birthdate:   core.NewDay(core.Date(1985, time.June, 1)),
		IBAN:        "DE89370400440532013000",
	})
	if err != nil {
		t.Fatalf("createMember() failed: %v", err)
	}
	return m
}

func (app *App) CreatePeriod(t *testing.T, start, end time.Time) product.GrowingPeriod {
	t.Helper()
	p, err := app.Products.CreatePeriod(context.Background(), product.NewPeriod{StartDate: core.NewDay(start), EndDate: core.NewDay(end)})
	if err != nil {
		t.Fatalf("createPeriod() failed: %v", err)
	}
	return p
}

// CreateProductType creates a product type with its capacity in `periodID`.
func (app *App) CreateProductType(t *testing.T, periodID, name, cycle string, capacity decimal.Decimal) product.ProductType {
	t.Helper()
	ctx := context.Background()
	pt, err := app.Products.SaveProductType(ctx, product.SaveProductType{
		PeriodID:      periodID,
		Name:          name,
		DeliveryCycle: cycle,
		Capacity:      capacity,
		TaxRate:       product.DefaultTaxRate,
	})
	if err != nil {
		t.Fatalf("createProductType() failed: %v", err)
	}
	return pt
}

// CreateProduct creates a product priced `price` since `validFrom`.
func (app *App) CreateProduct(t *testing.T, typeID, name string, price decimal.Decimal, validFrom time.Time) product.Product {
	t.Helper()
	ctx := context.Background()
	prod, err := app.Products.CreateProduct(ctx, product.NewProduct{TypeID: typeID, Name: name, Price: price})
	if err != nil {
		t.Fatalf("createProduct() failed: %v", err)
	}
	if _, err = app.Products.UpdateProduct(ctx, prod, product.UpdateProduct{Price: &price, ValidFrom: core.NewDay(validFrom)}); err != nil {
		t.Fatalf("createProduct() failed: %v", err)
	}
	return prod
}

func (app *App) SetParam(t *testing.T, key, value string) {
	t.Helper()
	if _, err := app.Params.Set(context.Background(), key, value); err != nil {
		t.Fatalf("setParam(%s) failed: %v", key, err)
	}
}

// ValidationErr returns the error wrapped by the validation error `err`, nil if `err` is not one.
func ValidationErr(err error) error {
	if verr, ok := errors.Cause(err).(*core.ValidationError); ok {
		return verr.Err
	}
	return nil
}
