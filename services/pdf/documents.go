// Package pdfsvc renders the membership documents of the cooperative.
package pdfsvc

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/member"
)

const (
	fontFamily = "Helvetica"
	lineHeight = 6.0
	blank      = "______________________________"
)

type Documents struct {
	loc *time.Location
}

var _ member.Documents = (*Documents)(nil)

func NewDocuments(conf *core.Config) *Documents {
	return &Documents{loc: conf.Location()}
}

type document struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func newDocument(title string) *document {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true /* isUTF8 */)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	return &document{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

func (d *document) heading(txt string) {
	d.pdf.SetFont(fontFamily, "B", 16)
	d.pdf.MultiCell(0, 9, d.tr(txt), "", "L", false)
	d.pdf.Ln(4)
}

func (d *document) paragraph(txt string) {
	d.pdf.SetFont(fontFamily, "", 11)
	d.pdf.MultiCell(0, lineHeight, d.tr(txt), "", "L", false)
	d.pdf.Ln(3)
}

func (d *document) field(label, value string) {
	if value == "" {
		value = blank
	}
	d.pdf.SetFont(fontFamily, "B", 11)
	d.pdf.CellFormat(55, lineHeight, d.tr(label), "", 0, "L", false, 0, "")
	d.pdf.SetFont(fontFamily, "", 11)
	d.pdf.CellFormat(0, lineHeight, d.tr(value), "", 1, "L", false, 0, "")
}

func (d *document) signature(place string) {
	d.pdf.Ln(15)
	d.pdf.SetFont(fontFamily, "", 11)
	d.pdf.CellFormat(80, lineHeight, d.tr(place), "T", 0, "L", false, 0, "")
	d.pdf.CellFormat(10, lineHeight, "", "", 0, "L", false, 0, "")
	d.pdf.CellFormat(80, lineHeight, d.tr("Unterschrift"), "T", 1, "L", false, 0, "")
}

func (d *document) bytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := d.pdf.Output(buf); err != nil {
		return nil, errors.Wrap(err, "rendering pdf")
	}
	return buf.Bytes(), nil
}

// MembershipAgreement renders the agreement a prospective member signs. Without a draft user the
// personal data fields are left blank, to be filled by hand.
func (docs *Documents) MembershipAgreement(du *member.DraftUser, siteName string, sharePrice decimal.Decimal) ([]byte, error) {
	var data member.DraftUser
	if du != nil {
		data = *du
	}

	d := newDocument("Beitrittserklärung " + siteName)
	d.heading(fmt.Sprintf("Beitrittserklärung zur Genossenschaft %s", siteName))
	d.paragraph("Hiermit erkläre ich meinen Beitritt zur Genossenschaft und verpflichte mich, die nach Gesetz und " +
		"Satzung geschuldete Einzahlung auf die Geschäftsanteile zu leisten.")

	d.field("Vorname", data.FirstName)
	d.field("Nachname", data.LastName)
	d.field("E-Mail", data.Email)
	d.field("Telefon", data.PhoneNumber)
	d.field("Straße", data.Street)
	if data.Street2 != "" {
		d.field("", data.Street2)
	}
	d.field("PLZ / Ort", joinNonEmpty(" ", data.Postcode, data.City))
	d.field("Land", data.Country)
	var birthdate string
	if !data.Birthdate.IsZero() {
		birthdate = core.FormatDate(data.Birthdate)
	}
	d.field("Geburtsdatum", birthdate)
	d.pdf.Ln(4)

	var numShares, total string
	if data.NumShares > 0 {
		numShares = fmt.Sprint(data.NumShares)
		total = core.FormatMoney(data.InitialAmount(sharePrice))
	}
	d.field("Preis je Anteil", core.FormatMoney(sharePrice))
	d.field("Anzahl Anteile", numShares)
	d.field("Gesamtbetrag", total)

	d.signature("Ort, Datum")
	return d.bytes()
}

// MembershipConfirmation renders the confirmation of membership sent to new share owners.
func (docs *Documents) MembershipConfirmation(m member.Member, shares []member.ShareOwnership, siteName string) ([]byte, error) {
	if len(shares) == 0 {
		return nil, member.ErrNoShares
	}
	var quantity int
	total := decimal.Zero
	entryDate := shares[0].EntryDate
	for _, so := range shares {
		quantity += so.Quantity
		total = total.Add(so.TotalPrice())
		if so.EntryDate.Before(entryDate) {
			entryDate = so.EntryDate
		}
	}

	d := newDocument("Mitgliedschaftsbestätigung " + m.DisplayName())
	d.heading("Mitgliedschaftsbestätigung")
	d.paragraph(fmt.Sprintf("Hiermit bestätigen wir die Mitgliedschaft von %s in der Genossenschaft %s.",
		m.DisplayName(), siteName))

	d.field("Mitgliedsnummer", fmt.Sprint(m.MemberNo))
	d.field("Name", m.DisplayName())
	d.field("Anschrift", joinNonEmpty(", ", m.Street, m.Street2, joinNonEmpty(" ", m.Postcode, m.City)))
	d.field("Eintrittsdatum", core.FormatDate(entryDate))
	d.field("Geschäftsanteile", member.SharesSummary(shares))
	d.field("Gesamtbetrag", core.FormatMoney(total))

	d.pdf.Ln(8)
	d.paragraph(fmt.Sprintf("Ausgestellt am %s.", core.FormatDate(core.Today(docs.loc))))
	return d.bytes()
}

func joinNonEmpty(sep string, parts ...string) string {
	var res string
	for _, p := range parts {
		if p == "" {
			continue
		}
		if res != "" {
			res += sep
		}
		res += p
	}
	return res
}
