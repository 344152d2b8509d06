// Package export builds the files handed over to suppliers, pickup locations and the bank.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/mail"
	"sort"
	"strconv"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/delivery"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/parameter"
	"github.com/trezcool/tapir/core/payment"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/subscription"
)

const (
	TypeCSV      = "csv"
	csvSeparator = ';'

	JobSupplierList            = "supplier_list"
	JobPickList                = "pick_list"
	JobSEPA                    = "sepa"
	JobHarvestShareSubscribers = "harvest_share_subscribers"
)

var (
	// errors
	ErrNotFound   = errors.New("exported file not found")
	ErrUnknownJob = errors.New("unknown export job")
	ErrNothingDue = errors.New("no payments due")
)

// Jobs lists the export jobs by name.
func Jobs() []string {
	return []string{JobSupplierList, JobPickList, JobSEPA, JobHarvestShareSubscribers}
}

type File struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Content   []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (f File) Filename() string { return f.Name + "." + f.Type }

type (
	Repository interface {
		CreateFile(ctx context.Context, f File) (File, error)
		GetFile(ctx context.Context, id string) (File, error)
		// QueryFiles returns all files without their content, newest first.
		QueryFiles(ctx context.Context) ([]File, error)
	}

	Service struct {
		repo       Repository
		txor       core.Transactor
		payments   *payment.Service
		deliveries *delivery.Service
		subs       *subscription.Service
		members    *member.Service
		products   *product.Service
		params     *parameter.Service
		mailSvc    core.EmailService
		conf       *core.Config
	}
)

func NewService(
	repo Repository,
	txor core.Transactor,
	payments *payment.Service,
	deliveries *delivery.Service,
	subs *subscription.Service,
	members *member.Service,
	products *product.Service,
	params *parameter.Service,
	mailSvc core.EmailService,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(txor, "txor"),
		vala.IsNotNil(payments, "payments"),
		vala.IsNotNil(deliveries, "deliveries"),
		vala.IsNotNil(subs, "subs"),
		vala.IsNotNil(members, "members"),
		vala.IsNotNil(products, "products"),
		vala.IsNotNil(params, "params"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:       repo,
		txor:       txor,
		payments:   payments,
		deliveries: deliveries,
		subs:       subs,
		members:    members,
		products:   products,
		params:     params,
		mailSvc:    mailSvc,
		conf:       conf,
	}
}

func (svc *Service) today() time.Time {
	return core.Today(svc.conf.Location())
}

func (svc *Service) Files(ctx context.Context) ([]File, error) {
	return svc.repo.QueryFiles(ctx)
}

func (svc *Service) GetFile(ctx context.Context, id string) (File, error) {
	return svc.repo.GetFile(ctx, id)
}

// Run executes an export job by name.
func (svc *Service) Run(ctx context.Context, job string) (File, error) {
	switch job {
	case JobSupplierList:
		return svc.SupplierList(ctx)
	case JobPickList:
		return svc.PickList(ctx)
	case JobSEPA:
		return svc.SEPA(ctx)
	case JobHarvestShareSubscribers:
		return svc.HarvestShareSubscribers(ctx)
	}
	return File{}, errors.Wrap(ErrUnknownJob, job)
}

func writeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = csvSeparator
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, errors.Wrap(err, "writing csv")
	}
	return buf.Bytes(), nil
}

func (svc *Service) store(ctx context.Context, name string, content []byte) (File, error) {
	f, err := svc.repo.CreateFile(ctx, File{Name: name, Type: TypeCSV, Content: content, CreatedAt: core.NowFunc().UTC()})
	return f, errors.Wrap(err, "storing exported file")
}

// SupplierList sums the quantities of every product delivered on the next delivery day.
func (svc *Service) SupplierList(ctx context.Context) (File, error) {
	day, err := svc.deliveries.NextDeliveryDate(ctx)
	if err != nil {
		return File{}, err
	}
	subs, err := svc.subs.Query(ctx, &subscription.QueryFilter{ActiveAt: core.NewDay(day)})
	if err != nil {
		return File{}, err
	}
	cycleOf, err := svc.deliveries.CycleOf(ctx)
	if err != nil {
		return File{}, err
	}
	details, err := svc.subs.Details(ctx, delivery.Delivered(subs, cycleOf, day))
	if err != nil {
		return File{}, err
	}

	type line struct {
		productType, product string
		quantity             int
	}
	lines := make(map[string]*line)
	for _, det := range details {
		l, ok := lines[det.ProductID]
		if !ok {
			l = &line{productType: det.ProductType, product: det.ProductName}
			lines[det.ProductID] = l
		}
		l.quantity += det.Quantity
	}
	rows := make([][]string, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []string{core.FormatDate(day), l.productType, l.product, strconv.Itoa(l.quantity)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i][1] != rows[j][1] {
			return rows[i][1] < rows[j][1]
		}
		return rows[i][2] < rows[j][2]
	})

	content, err := writeCSV([]string{"delivery_date", "product_type", "product", "quantity"}, rows)
	if err != nil {
		return File{}, err
	}
	return svc.store(ctx, fmt.Sprintf("supplier_list_%s", day.Format("2006-01-02")), content)
}

// PickList records the deliveries of the next delivery day and lists them per pickup location.
func (svc *Service) PickList(ctx context.Context) (File, error) {
	day, err := svc.deliveries.NextDeliveryDate(ctx)
	if err != nil {
		return File{}, err
	}

	var f File
	err = svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		views, err := svc.deliveries.RecordDeliveries(ctx, day)
		if err != nil {
			return errors.Wrap(err, "recording deliveries")
		}
		locations, err := svc.products.PickupLocations(ctx)
		if err != nil {
			return err
		}
		locNames := make(map[string]string, len(locations))
		for _, loc := range locations {
			locNames[loc.ID] = loc.Name
		}
		ids := make([]string, 0, len(views))
		for _, v := range views {
			ids = append(ids, v.MemberID)
		}
		members, err := svc.members.GetMany(ctx, ids)
		if err != nil {
			return err
		}

		rows := make([][]string, 0)
		for _, v := range views {
			details, err := svc.subs.Details(ctx, v.Subscriptions)
			if err != nil {
				return err
			}
			m := members[v.MemberID]
			for _, det := range details {
				rows = append(rows, []string{
					locNames[v.PickupLocationID],
					strconv.Itoa(m.MemberNo),
					m.DisplayName(),
					det.ProductType,
					det.ProductName,
					strconv.Itoa(det.Quantity),
				})
			}
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })

		content, err := writeCSV([]string{"pickup_location", "member_no", "name", "product_type", "product", "quantity"}, rows)
		if err != nil {
			return err
		}
		f, err = svc.store(ctx, fmt.Sprintf("pick_list_%s", day.Format("2006-01-02")), content)
		return err
	})
	return f, err
}

// SEPA creates the missing payments due this month, exports every DUE payment of the due date and marks them PAID.
func (svc *Service) SEPA(ctx context.Context) (File, error) {
	dueDay, err := svc.params.Int(ctx, parameter.PaymentDueDay)
	if err != nil {
		return File{}, err
	}
	today := svc.today()
	due := core.Date(today.Year(), today.Month(), dueDay)

	var f File
	err = svc.txor.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := svc.payments.CreateDuePayments(ctx, due); err != nil {
			return errors.Wrap(err, "creating due payments")
		}
		rows, err := svc.payments.SEPARows(ctx, due)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return ErrNothingDue
		}

		records := make([][]string, 0, len(rows))
		payments := make([]payment.Payment, 0, len(rows))
		total := decimal.Zero
		for _, r := range rows {
			records = append(records, []string{
				r.MandateRef,
				r.AccountOwner,
				r.IBAN,
				r.Amount.StringFixed(2),
				r.DueDate.Format("2006-01-02"),
				strconv.Itoa(r.MemberNo),
			})
			payments = append(payments, r.Payment)
			total = total.Add(r.Amount)
		}
		content, err := writeCSV([]string{"mandate_ref", "account_owner", "iban", "amount", "due_date", "member_no"}, records)
		if err != nil {
			return err
		}
		if f, err = svc.store(ctx, fmt.Sprintf("sepa_%s", due.Format("2006-01-02")), content); err != nil {
			return err
		}
		_, err = svc.payments.MarkPaid(ctx, payments, f.ID)
		return errors.Wrapf(err, "marking %d payments (%s) paid", len(payments), core.FormatMoney(total))
	})
	return f, err
}

// HarvestShareSubscribers mails the e-mail addresses of the members with an active harvest share
// to the cooperative.
func (svc *Service) HarvestShareSubscribers(ctx context.Context) (File, error) {
	typeID, err := svc.params.String(ctx, parameter.CoopHarvestShareType)
	if err != nil {
		return File{}, err
	}
	prods, err := svc.products.Products(ctx, &product.QueryFilter{TypeID: typeID, IncludeDeleted: true})
	if err != nil {
		return File{}, err
	}
	productIDs := make([]string, 0, len(prods))
	for _, p := range prods {
		productIDs = append(productIDs, p.ID)
	}

	var memberIDs []string
	if len(productIDs) > 0 {
		subs, err := svc.subs.Query(ctx, &subscription.QueryFilter{ActiveAt: core.NewDay(svc.today()), ProductIDs: productIDs})
		if err != nil {
			return File{}, err
		}
		seen := make(map[string]bool)
		for _, s := range subs {
			if !seen[s.MemberID] {
				seen[s.MemberID] = true
				memberIDs = append(memberIDs, s.MemberID)
			}
		}
	}
	members, err := svc.members.GetMany(ctx, memberIDs)
	if err != nil {
		return File{}, err
	}

	rows := make([][]string, 0, len(members))
	for _, m := range members {
		rows = append(rows, []string{strconv.Itoa(m.MemberNo), m.FirstName, m.LastName, m.Email})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][3] < rows[j][3] })
	content, err := writeCSV([]string{"member_no", "first_name", "last_name", "email"}, rows)
	if err != nil {
		return File{}, err
	}
	f, err := svc.store(ctx, fmt.Sprintf("harvest_share_subscribers_%s", svc.today().Format("2006-01-02")), content)
	if err != nil {
		return File{}, err
	}

	siteEmail, err := svc.params.String(ctx, parameter.SiteEmail)
	if err != nil {
		return f, err
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Address: siteEmail}},
		Subject:      "Ernteteiler:innen mit aktivem Vertrag",
		TemplateName: "harvest_share_subscribers",
		TemplateData: map[string]interface{}{"Count": len(rows)},
	}
	if err = msg.AttachBytes(content, f.Filename(), "text/csv"); err != nil {
		return f, err
	}
	svc.mailSvc.SendMessages(msg)
	return f, nil
}
