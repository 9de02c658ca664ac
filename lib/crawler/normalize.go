package crawler

import (
	"fmt"
	"strings"

	"readtx/lib/tabular"
	"readtx/lib/textutil"
)

// canonical transaction schema of every saved CSV
const (
	ColDate     = "Datum"
	ColAmount   = "Betrag"
	ColPayee    = "Empfänger"
	ColPurpose  = "Verwendungszweck"
	ColOverflow = "Verwendungszweck 2"
)

// Schema lists the canonical columns in output order.
var Schema = []string{ColDate, ColAmount, ColPayee, ColPurpose, ColOverflow}

// source column names (normalized) recognized per canonical column;
// site crawlers rename their vendor-specific columns before this map
// is consulted
var recognizedAliases = map[string][]string{
	ColDate:    {"datum", "date", "buchungstag", "valutadatum", "wertstellung"},
	ColAmount:  {"betrag", "amount", "brutto", "betrag[€]", "betrag[eur]", "umsatz"},
	ColPayee:   {"empfänger", "payee", "auftraggeber", "zahlungsempfänger", "name"},
	ColPurpose: {"verwendungszweck", "beschreibung", "description", "buchungstext", "typ"},
	// a crawler may have built the overflow column itself already
	ColOverflow: {"verwendungszweck2"},
}

func classifyColumn(name string) (string, bool) {
	normalized := textutil.NormalizeName(name)
	for _, canonical := range Schema {
		for _, alias := range recognizedAliases[canonical] {
			if normalized == alias {
				return canonical, true
			}
		}
	}
	return "", false
}

type NormalizeOptions struct {
	// DropInvalidAmounts drops rows whose amount does not parse instead
	// of zeroing them.
	DropInvalidAmounts bool
	// Order disambiguates numeric dates. Defaults to day-first.
	Order tabular.DateOrder
	// ProjectFull synthesizes canonical columns the vendor does not
	// have, so the output always carries the full five-column schema.
	ProjectFull bool
}

// NormalizeTransactions maps a vendor export onto the canonical schema.
// Recognized columns are renamed into place; every unrecognized column
// is folded into Verwendungszweck 2 as "name: value" pairs so no vendor
// data is silently dropped. Amounts are parsed to decimals and dates to
// the configured window; rows outside [Since, Until] are removed.
func (b *Base) NormalizeTransactions(t *tabular.Table, opts NormalizeOptions) (*tabular.Table, error) {
	rename := map[string]string{}
	claimed := map[string]bool{}
	var leftover []string
	for _, name := range t.ColumnNames() {
		canonical, ok := classifyColumn(name)
		if ok && !claimed[canonical] && name != canonical {
			rename[name] = canonical
			claimed[canonical] = true
			continue
		}
		if ok && !claimed[canonical] {
			claimed[canonical] = true
			continue
		}
		leftover = append(leftover, name)
	}
	out := t.Rename(rename)

	keep := make([]string, 0, len(Schema))
	for _, canonical := range Schema {
		if claimed[canonical] {
			keep = append(keep, canonical)
		}
	}

	if len(leftover) > 0 {
		// an overflow column the crawler built itself gets merged with
		// the newly folded values rather than duplicated
		var existing tabular.Column
		if claimed[ColOverflow] {
			existing, _ = out.Column(ColOverflow)
			trimmed := keep[:0]
			for _, name := range keep {
				if name != ColOverflow {
					trimmed = append(trimmed, name)
				}
			}
			keep = trimmed
		}

		folded := make([]tabular.Value, out.NumRows())
		for i := range folded {
			var parts []string
			if existing.Values != nil && !existing.Values[i].IsMissing() && existing.Values[i].Text() != "" {
				parts = append(parts, existing.Values[i].Text())
			}
			for _, name := range leftover {
				col, _ := out.Column(name)
				v := col.Values[i]
				if v.IsMissing() || strings.TrimSpace(v.Text()) == "" {
					continue
				}
				parts = append(parts, textutil.CollapseWhitespace(name+": "+v.Text()))
			}
			if len(parts) == 0 {
				folded[i] = tabular.Missing(tabular.KindString)
				continue
			}
			folded[i] = tabular.String(strings.Join(parts, "; "))
		}

		projected, err := out.Select(keep, tabular.SelectOptions{})
		if err != nil {
			return nil, fmt.Errorf("crawler: normalize: %w", err)
		}
		out, err = projected.WithColumn(tabular.Column{Name: ColOverflow, Values: folded})
		if err != nil {
			return nil, fmt.Errorf("crawler: normalize: %w", err)
		}
		b.log.Debug("folded unrecognized columns", "columns", leftover)
	} else {
		var err error
		out, err = out.Select(keep, tabular.SelectOptions{})
		if err != nil {
			return nil, fmt.Errorf("crawler: normalize: %w", err)
		}
	}

	var err error
	if claimed[ColAmount] {
		out, err = out.NormalizeAmounts(ColAmount, opts.DropInvalidAmounts)
		if err != nil {
			return nil, fmt.Errorf("crawler: normalize: %w", err)
		}
	}
	if claimed[ColDate] {
		out, err = out.NormalizeDates(ColDate, opts.Order, b.cfg.Since, b.cfg.Until)
		if err != nil {
			return nil, fmt.Errorf("crawler: normalize: %w", err)
		}
	}

	if opts.ProjectFull {
		out, err = out.Select(Schema, tabular.SelectOptions{Synthesize: true})
		if err != nil {
			return nil, fmt.Errorf("crawler: normalize: %w", err)
		}
	}
	return out, nil
}
