package paypal

import (
	"context"
	"regexp"
	"strings"

	"readtx/lib/crawler"
	"readtx/lib/tabular"
)

// columns kept from the raw report
var wantedColumns = []string{
	"Datum", "Brutto", "Name", "Typ", "Lieferadresse", "Artikelbezeichnung",
	"Guthaben", "Telefon", "Empfänger E-Mail-Adresse",
}

// columns only needed during cleanup
var processColumns = []string{"Zahlungsquelle", "Auswirkung auf Guthaben", "Hinweis"}

var renameMap = map[string]string{
	"Brutto":                   "Betrag",
	"Name":                     "Empfänger",
	"Typ":                      "Verwendungszweck",
	"Empfänger E-Mail-Adresse": "E-Mail",
}

// "PayPal [Visa x-1234]" in the funding-source column
var fundingSourceRe = regexp.MustCompile(`PayPal\s*\[([^\]]+)\]`)

func (c *Crawler) ProcessData(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ProcessData")
	defer span.End()

	err := c.Base.ProcessData(ctx)
	if err != nil {
		return err
	}
	merged, ok := c.Data().Merged()
	if !ok {
		c.Log().Warn("no transactions to process")
		return nil
	}

	t, err := c.cleanReport(merged)
	if err != nil {
		return err
	}
	out, err := c.NormalizeTransactions(t, crawler.NormalizeOptions{
		DropInvalidAmounts: true,
		ProjectFull:        true,
	})
	if err != nil {
		return err
	}
	c.SetData(crawler.SingleTable(out))
	c.Log().Info("transactions processed", "rows", out.NumRows())
	return nil
}

func (c *Crawler) cleanReport(t *tabular.Table) (*tabular.Table, error) {
	t, err := t.Select(append(append([]string{}, wantedColumns...), processColumns...),
		tabular.SelectOptions{Synthesize: true, Fold: true})
	if err != nil {
		return nil, err
	}

	// memo entries never touched the balance
	t, err = t.DropMatching("Auswirkung auf Guthaben", []string{"Memo"}, tabular.MatchOptions{})
	if err != nil {
		return nil, err
	}

	t = rewriteFundingMoves(t)

	// the free-text note rides along in the purpose
	t = foldNoteIntoType(t)

	t, err = t.Select(wantedColumns, tabular.SelectOptions{Synthesize: true})
	if err != nil {
		return nil, err
	}
	return t.Rename(renameMap), nil
}

// top-ups from and payouts to the linked card or bank account come in
// as generic bookings against the raw funding source; rewrite them into
// readable transfers with PayPal as the counterparty
func rewriteFundingMoves(t *tabular.Table) *tabular.Table {
	typeCol, okType := t.Column("Typ")
	nameCol, okName := t.Column("Name")
	sourceCol, okSource := t.Column("Zahlungsquelle")
	if !okType || !okName {
		return t
	}

	types := append([]tabular.Value{}, typeCol.Values...)
	names := append([]tabular.Value{}, nameCol.Values...)
	for i, v := range types {
		kind := strings.TrimSpace(v.Text())
		var prefix string
		switch kind {
		case "Allgemeine Gutschrift auf Kreditkarte":
			prefix = "Einzahlung von Kreditkarte mit "
		case "Allgemeine Abbuchung von Kreditkarte":
			prefix = "Auszahlung auf Kreditkarte mit "
		case "Bankgutschrift auf PayPal-Konto":
			names[i] = tabular.String("PayPal")
			types[i] = tabular.String("Einzahlung von Bankkonto")
			continue
		default:
			continue
		}
		names[i] = tabular.String("PayPal")
		card := ""
		if okSource {
			if m := fundingSourceRe.FindStringSubmatch(sourceCol.Values[i].Text()); m != nil {
				card = m[1]
			}
		}
		if card == "" {
			types[i] = tabular.String(strings.TrimSuffix(prefix, " mit "))
		} else {
			types[i] = tabular.String(prefix + card)
		}
	}

	out, err := t.SetColumn(tabular.Column{Name: "Typ", Values: types})
	if err != nil {
		return t
	}
	out, err = out.SetColumn(tabular.Column{Name: "Name", Values: names})
	if err != nil {
		return t
	}
	return out
}

func foldNoteIntoType(t *tabular.Table) *tabular.Table {
	typeCol, okType := t.Column("Typ")
	noteCol, okNote := t.Column("Hinweis")
	if !okType || !okNote {
		return t
	}
	values := make([]tabular.Value, len(typeCol.Values))
	for i := range values {
		var parts []string
		for _, v := range []tabular.Value{typeCol.Values[i], noteCol.Values[i]} {
			s := strings.TrimSpace(v.Text())
			if s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			values[i] = tabular.Missing(tabular.KindString)
			continue
		}
		values[i] = tabular.String(strings.Join(parts, " - "))
	}
	out, err := t.SetColumn(tabular.Column{Name: "Typ", Values: values})
	if err != nil {
		return t
	}
	return out
}
