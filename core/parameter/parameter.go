// Package parameter manages the runtime settings of the cooperative that admins can change without a deploy.
package parameter

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
)

const (
	SiteName        = "site.name"
	SiteEmail       = "site.email"
	SitePrivacyLink = "site.privacy_link"

	CoopSharePrice        = "coop.share_price"
	CoopMinShares         = "coop.min_shares"
	CoopBaseProductType   = "coop.base_product_type"
	CoopHarvestShareType  = "coop.harvest_share_type"
	DeliveryDay           = "delivery.day"
	PaymentDueDay         = "payment.due_day"
	MemberTrialPeriodWeek = "member.trial_period_weeks"
)

type Kind string

const (
	KindString  Kind = "string"
	KindInt     Kind = "int"
	KindDecimal Kind = "decimal"
)

var (
	ErrUnknownKey = errors.New("unknown parameter")

	definitions = map[string]Definition{
		SiteName:              {Key: SiteName, Kind: KindString, Default: "WirGarten", Description: "Name of the cooperative"},
		SiteEmail:             {Key: SiteEmail, Kind: KindString, Default: "mitglied@localhost", Description: "Contact email of the member office"},
		SitePrivacyLink:       {Key: SitePrivacyLink, Kind: KindString, Default: "https://localhost/datenschutz", Description: "Link to the privacy statement"},
		CoopSharePrice:        {Key: CoopSharePrice, Kind: KindDecimal, Default: "50.00", Min: 1, Description: "Price of one cooperative share"},
		CoopMinShares:         {Key: CoopMinShares, Kind: KindInt, Default: "2", Min: 1, Max: 1000, Description: "Minimum number of shares per member"},
		CoopBaseProductType:   {Key: CoopBaseProductType, Kind: KindString, Default: "", Description: "Product type every subscriber must subscribe to"},
		CoopHarvestShareType:  {Key: CoopHarvestShareType, Kind: KindString, Default: "", Description: "Product type of the harvest shares"},
		DeliveryDay:           {Key: DeliveryDay, Kind: KindInt, Default: "2", Min: 0, Max: 6, Description: "Weekday of deliveries (Monday=0)"},
		PaymentDueDay:         {Key: PaymentDueDay, Kind: KindInt, Default: "15", Min: 1, Max: 28, Description: "Day of the month payments are due"},
		MemberTrialPeriodWeek: {Key: MemberTrialPeriodWeek, Kind: KindInt, Default: "4", Min: 0, Max: 52, Description: "Length of the trial period of new subscriptions"},
	}
)

// Definition describes a parameter; Min & Max only apply to numeric kinds.
type Definition struct {
	Key         string `json:"key"`
	Kind        Kind   `json:"kind"`
	Default     string `json:"default"`
	Min         int    `json:"-"`
	Max         int    `json:"-"`
	Description string `json:"description"`
}

func (def Definition) validate(value string) error {
	switch def.Kind {
	case KindInt:
		i, err := strconv.Atoi(value)
		if err != nil {
			return core.NewFieldError("value", "must be a whole number")
		}
		if i < def.Min || (def.Max > def.Min && i > def.Max) {
			return core.NewFieldError("value", fmt.Sprintf("must be between %d and %d", def.Min, def.Max))
		}
	case KindDecimal:
		d, err := decimal.NewFromString(value)
		if err != nil {
			return core.NewFieldError("value", "must be a number")
		}
		if d.LessThan(decimal.NewFromInt(int64(def.Min))) {
			return core.NewFieldError("value", fmt.Sprintf("must be at least %d", def.Min))
		}
	}
	return nil
}

type Parameter struct {
	Definition
	Value string `json:"value"`
}

// Definitions returns all known parameter definitions sorted by key.
func Definitions() []Definition {
	defs := make([]Definition, 0, len(definitions))
	for _, def := range definitions {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Key < defs[j].Key })
	return defs
}

type (
	// Repository stores overridden values only; missing keys fall back to their default.
	Repository interface {
		QueryValues(ctx context.Context) (map[string]string, error)
		SaveValue(ctx context.Context, key, value string) error
	}

	// Service gives typed access to parameters.
	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()
	return &Service{repo: repo}
}

func (svc *Service) All(ctx context.Context) ([]Parameter, error) {
	values, err := svc.repo.QueryValues(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying parameters")
	}
	defs := Definitions()
	params := make([]Parameter, 0, len(defs))
	for _, def := range defs {
		val, ok := values[def.Key]
		if !ok {
			val = def.Default
		}
		params = append(params, Parameter{Definition: def, Value: val})
	}
	return params, nil
}

func (svc *Service) Get(ctx context.Context, key string) (string, error) {
	def, ok := definitions[key]
	if !ok {
		return "", errors.Wrap(ErrUnknownKey, key)
	}
	values, err := svc.repo.QueryValues(ctx)
	if err != nil {
		return "", errors.Wrap(err, "querying parameters")
	}
	if val, ok := values[key]; ok {
		return val, nil
	}
	return def.Default, nil
}

func (svc *Service) String(ctx context.Context, key string) (string, error) {
	return svc.Get(ctx, key)
}

func (svc *Service) Int(ctx context.Context, key string) (int, error) {
	val, err := svc.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(val)
	return i, errors.Wrapf(err, "parsing %s", key)
}

func (svc *Service) Decimal(ctx context.Context, key string) (decimal.Decimal, error) {
	val, err := svc.Get(ctx, key)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(val)
	return d, errors.Wrapf(err, "parsing %s", key)
}

func (svc *Service) Set(ctx context.Context, key, value string) (Parameter, error) {
	def, ok := definitions[key]
	if !ok {
		return Parameter{}, core.NewValidationError(errors.Wrap(ErrUnknownKey, key), core.FieldError{Field: "key", Error: ErrUnknownKey.Error()})
	}
	value = core.CleanString(value)
	if err := def.validate(value); err != nil {
		return Parameter{}, err
	}
	if err := svc.repo.SaveValue(ctx, key, value); err != nil {
		return Parameter{}, errors.Wrap(err, "saving parameter")
	}
	return Parameter{Definition: def, Value: value}, nil
}
