package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/delivery"
	"github.com/trezcool/tapir/core/export"
	"github.com/trezcool/tapir/core/logentry"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/parameter"
	"github.com/trezcool/tapir/core/payment"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/shift"
	"github.com/trezcool/tapir/core/subscription"
	"github.com/trezcool/tapir/core/user"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		Users         *user.Service
		Params        *parameter.Service
		Products      *product.Service
		Members       *member.Service
		Subscriptions *subscription.Service
		Payments      *payment.Service
		Deliveries    *delivery.Service
		Shifts        *shift.Service
		Exports       *export.Service
		Logs          *logentry.Service
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		tokens   *TokenIssuer
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
		vala.IsNotNil(deps.Users, "Users"),
		vala.IsNotNil(deps.Params, "Params"),
		vala.IsNotNil(deps.Products, "Products"),
		vala.IsNotNil(deps.Members, "Members"),
		vala.IsNotNil(deps.Subscriptions, "Subscriptions"),
		vala.IsNotNil(deps.Payments, "Payments"),
		vala.IsNotNil(deps.Deliveries, "Deliveries"),
		vala.IsNotNil(deps.Shifts, "Shifts"),
		vala.IsNotNil(deps.Exports, "Exports"),
		vala.IsNotNil(deps.Logs, "Logs"),
	).CheckAndPanic()

	s := &Server{
		deps:     deps,
		app:      echo.New(),
		tokens:   NewTokenIssuer(deps.Conf),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.tokens.jwtConfig())

	registerUserAPI(v1, jwt, s.tokens, s.deps.Users, s.deps.Validate)
	registerNavigationAPI(v1, jwt)
	registerParameterAPI(v1, jwt, s.deps.Params)
	registerProductAPI(v1, jwt, s.deps.Products, s.deps.Validate, s.deps.Conf)
	registerMemberAPI(v1, jwt, s.deps)
	registerDraftAPI(v1, jwt, s.deps.Members, s.deps.Validate, s.deps.Conf)
	registerSubscriptionAPI(v1, jwt, s.deps)
	registerPaymentAPI(v1, jwt, s.deps)
	registerShiftAPI(v1, jwt, s.deps.Shifts, s.deps.Validate, s.deps.Conf)
	registerExportAPI(v1, jwt, s.deps.Exports, s.deps.Deliveries)
	registerLogAPI(v1, jwt, s.deps.Logs)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		return errors.Wrap(err, "starting server")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

// ShutdownSignal is notified when a request handler asks for a graceful shutdown.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}
