// Package shared wires the services of the application over PostgreSQL, for the API and the admin CLI.
package shared

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

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
	pdfsvc "github.com/trezcool/tapir/services/pdf"
	"github.com/trezcool/tapir/storage/database"
	sqlxrepos "github.com/trezcool/tapir/storage/database/sqlx"
)

type Services struct {
	Mail       core.EmailService
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

func NewServices(db *sqlx.DB, conf *core.Config, logger core.Logger) *Services {
	txor := database.NewTransactor(db)
	tmpls := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, logger)

	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	shift.InitValidators(validate, translator)

	s := &Services{
		Mail:       emailsvc.NewService(tmpls, conf, logger),
		Validate:   validate,
		Translator: translator,
	}
	s.Users = user.NewService(sqlxrepos.NewUserRepository(db), s.Mail, conf, logger)
	s.Params = parameter.NewService(sqlxrepos.NewParameterRepository(db))
	s.Products = product.NewService(sqlxrepos.NewProductRepository(db), txor)
	s.Mandates = mandate.NewService(sqlxrepos.NewMandateRepository(db))
	s.Logs = logentry.NewService(sqlxrepos.NewLogEntryRepository(db))

	paymentRepo := sqlxrepos.NewPaymentRepository(db)
	s.PaymentScheduler = payment.NewScheduler(paymentRepo, s.Params, conf)
	s.Members = member.NewService(sqlxrepos.NewMemberRepository(db), txor, s.Mandates, s.Params, s.Logs,
		s.PaymentScheduler, pdfsvc.NewDocuments(conf), s.Mail, conf)
	s.Subscriptions = subscription.NewService(sqlxrepos.NewSubscriptionRepository(db), txor, s.Products, s.Members,
		s.Mandates, s.Params, s.Logs, s.Mail, conf)
	s.Payments = payment.NewService(paymentRepo, txor, s.Subscriptions, s.Members, s.Mandates, s.Products,
		s.Params, s.Logs, conf)
	s.Deliveries = delivery.NewService(sqlxrepos.NewDeliveryRepository(db), s.Subscriptions, s.Members,
		s.Products, s.Params, conf)
	s.Shifts = shift.NewService(sqlxrepos.NewShiftRepository(db), txor, s.Members, conf)
	s.Exports = export.NewService(sqlxrepos.NewExportRepository(db), txor, s.Payments, s.Deliveries,
		s.Subscriptions, s.Members, s.Products, s.Params, s.Mail, conf)
	return s
}

// SetUpDB creates the database if needed, opens it & applies the pending migrations.
func SetUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
