// Package inmemdb keeps all data in memory. It backs the tests & the dev server started without a database.
package inmemdb

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/delivery"
	"github.com/trezcool/tapir/core/export"
	"github.com/trezcool/tapir/core/logentry"
	"github.com/trezcool/tapir/core/mandate"
	"github.com/trezcool/tapir/core/member"
	"github.com/trezcool/tapir/core/payment"
	"github.com/trezcool/tapir/core/product"
	"github.com/trezcool/tapir/core/shift"
	"github.com/trezcool/tapir/core/subscription"
	"github.com/trezcool/tapir/core/user"
)

// table holds rows by ID, in insertion order.
type table[T any] struct {
	mu   sync.RWMutex
	rows map[string]T
	ids  []string
}

func newTable[T any]() *table[T] {
	return &table[T]{rows: make(map[string]T)}
}

func (t *table[T]) insert(id string, row T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		t.ids = append(t.ids, id)
	}
	t.rows[id] = row
}

func (t *table[T]) get(id string) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[id]
	return row, ok
}

// update replaces an existing row, it reports false if there is none.
func (t *table[T]) update(id string, row T) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return false
	}
	t.rows[id] = row
	return true
}

func (t *table[T]) delete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[id]; !ok {
		return false
	}
	delete(t.rows, id)
	for i, rid := range t.ids {
		if rid == id {
			t.ids = append(t.ids[:i:i], t.ids[i+1:]...)
			break
		}
	}
	return true
}

// filter returns the rows matching `match` (all if nil) in insertion order.
func (t *table[T]) filter(match func(T) bool) []T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res := make([]T, 0, len(t.ids))
	for _, id := range t.ids {
		row := t.rows[id]
		if match == nil || match(row) {
			res = append(res, row)
		}
	}
	return res
}

// find returns the first row matching `match`.
func (t *table[T]) find(match func(T) bool) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range t.ids {
		if row := t.rows[id]; match(row) {
			return row, true
		}
	}
	var zero T
	return zero, false
}

func newID() string { return uuid.New().String() }

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func sortStable[T any](rows []T, less func(a, b T) bool) {
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}

// orderBy sorts rows by the orderings whose field has a comparator in `cmps` (comparators return -1, 0 or 1).
func orderBy[T any](rows []T, ordering []core.DBOrdering, cmps map[string]func(a, b T) int) {
	sortStable(rows, func(a, b T) bool {
		for _, ord := range ordering {
			cmp, ok := cmps[ord.Field]
			if !ok {
				continue
			}
			c := cmp(a, b)
			if !ord.Ascending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}

type DB struct {
	users  *table[user.User]
	params struct {
		sync.RWMutex
		values map[string]string
	}

	periods         *table[product.GrowingPeriod]
	productTypes    *table[product.ProductType]
	capacities      *table[product.Capacity]
	taxRates        *table[product.TaxRate]
	products        *table[product.Product]
	prices          *table[product.Price]
	pickupLocations *table[product.PickupLocation]

	mandateRefs *table[mandate.Ref]
	logEntries  *table[logentry.Entry]

	memberNo struct {
		sync.Mutex
		last int
	}
	members         *table[member.Member]
	shareOwnerships *table[member.ShareOwnership]
	draftUsers      *table[member.DraftUser]
	waitingList     *table[member.WaitingListEntry]

	subscriptions *table[subscription.Subscription]
	payments      *table[payment.Payment]
	transactions  *table[payment.Transaction]
	deliveries    *table[delivery.Delivery]

	shiftGroups         *table[shift.TemplateGroup]
	shiftTemplates      *table[shift.Template]
	attendanceTemplates *table[shift.AttendanceTemplate]
	shifts              *table[shift.Shift]
	attendances         *table[shift.Attendance]

	files *table[export.File]
}

func Open() *DB {
	db := &DB{
		users:               newTable[user.User](),
		periods:             newTable[product.GrowingPeriod](),
		productTypes:        newTable[product.ProductType](),
		capacities:          newTable[product.Capacity](),
		taxRates:            newTable[product.TaxRate](),
		products:            newTable[product.Product](),
		prices:              newTable[product.Price](),
		pickupLocations:     newTable[product.PickupLocation](),
		mandateRefs:         newTable[mandate.Ref](),
		logEntries:          newTable[logentry.Entry](),
		members:             newTable[member.Member](),
		shareOwnerships:     newTable[member.ShareOwnership](),
		draftUsers:          newTable[member.DraftUser](),
		waitingList:         newTable[member.WaitingListEntry](),
		subscriptions:       newTable[subscription.Subscription](),
		payments:            newTable[payment.Payment](),
		transactions:        newTable[payment.Transaction](),
		deliveries:          newTable[delivery.Delivery](),
		shiftGroups:         newTable[shift.TemplateGroup](),
		shiftTemplates:      newTable[shift.Template](),
		attendanceTemplates: newTable[shift.AttendanceTemplate](),
		shifts:              newTable[shift.Shift](),
		attendances:         newTable[shift.Attendance](),
		files:               newTable[export.File](),
	}
	db.params.values = make(map[string]string)
	return db
}

// Transactor runs fn directly: every repository call is atomic on its own and nothing is rolled back.
type Transactor struct{}

var _ core.Transactor = Transactor{}

func NewTransactor() Transactor { return Transactor{} }

func (Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
