package echoapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tapir/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bind decodes the request into `data`; `name` only documents the wrapped error.
func bind(ctx echo.Context, data interface{}, name string) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrapf(err, "binding to %s", name)
	}
	return nil
}

// queryDay reads the YYYY-MM-DD query param `name`, `def` when absent.
func queryDay(ctx echo.Context, name string, def time.Time) (time.Time, error) {
	day, err := core.ParseDay(ctx.QueryParam(name))
	if err != nil {
		return time.Time{}, core.NewFieldError(name, err.Error())
	}
	if day.IsZero() {
		return def, nil
	}
	return day.Time, nil
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	DateResponse struct {
		Date core.Day `json:"date"`
	}
)

// attachment serves `content` as a file download named `filename`.
func attachment(ctx echo.Context, content []byte, filename, contentType string) error {
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, contentType, content)
}
