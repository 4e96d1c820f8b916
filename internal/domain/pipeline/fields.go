package pipeline

import (
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const nullDisplay = "none"

// MoneyScale is the number of decimal places amounts are stored with.
const MoneyScale = 2

var printer = message.NewPrinter(language.English)

// fieldSpec describes one tracked attribute: how to compare two snapshots,
// how a candidate overrides it, and how values are rendered in diffs.
type fieldSpec struct {
	name string
	// equal compares the field on two snapshots.
	equal func(a, b *DealSnapshot) bool
	// present reports whether the candidate has an opinion on the field.
	present func(c *CandidateDeal) bool
	// merge copies the candidate's value onto dst. Only called when present.
	merge func(dst *DealSnapshot, c *CandidateDeal)
	// render formats the field of a snapshot for display.
	render func(s *DealSnapshot) string
}

// trackedFields lists the compared attributes in diff order.
var trackedFields = []fieldSpec{
	{
		name:    "stage",
		equal:   func(a, b *DealSnapshot) bool { return a.Stage == b.Stage },
		present: func(c *CandidateDeal) bool { return c.Stage.IsPresent() },
		merge: func(dst *DealSnapshot, c *CandidateDeal) {
			if v, ok := c.Stage.Get(); ok {
				dst.Stage = v
			}
		},
		render: func(s *DealSnapshot) string {
			if s.Stage == "" {
				return nullDisplay
			}
			return s.Stage.String()
		},
	},
	moneyField("value",
		func(s *DealSnapshot) **decimal.Decimal { return &s.Value },
		func(c *CandidateDeal) Optional[decimal.Decimal] { return c.Value }),
	nullable("owner",
		func(s *DealSnapshot) **string { return &s.Owner },
		func(c *CandidateDeal) Optional[string] { return c.Owner },
		eqComparable[string], formatString),
	nullable("quarter",
		func(s *DealSnapshot) **string { return &s.Quarter },
		func(c *CandidateDeal) Optional[string] { return c.Quarter },
		eqComparable[string], formatString),
	nullable("type",
		func(s *DealSnapshot) **DealType { return &s.DealType },
		func(c *CandidateDeal) Optional[DealType] { return c.DealType },
		eqComparable[DealType], DealType.String),
	nullable("close date",
		func(s *DealSnapshot) **Date { return &s.CloseDate },
		func(c *CandidateDeal) Optional[Date] { return c.CloseDate },
		Date.Equal, Date.String),
	nullable("vertical",
		func(s *DealSnapshot) **string { return &s.Vertical },
		func(c *CandidateDeal) Optional[string] { return c.Vertical },
		eqComparable[string], formatString),
	nullable("probability",
		func(s *DealSnapshot) **int { return &s.Probability },
		func(c *CandidateDeal) Optional[int] { return c.Probability },
		eqComparable[int], func(v int) string { return strconv.Itoa(v) + "%" }),
	moneyField("weighted value",
		func(s *DealSnapshot) **decimal.Decimal { return &s.WeightedValue },
		func(c *CandidateDeal) Optional[decimal.Decimal] { return c.WeightedValue }),
}

func nullable[T any](
	name string,
	slot func(*DealSnapshot) **T,
	opt func(*CandidateDeal) Optional[T],
	eq func(a, b T) bool,
	format func(T) string,
) fieldSpec {
	return fieldSpec{
		name: name,
		equal: func(a, b *DealSnapshot) bool {
			return equalPtr(*slot(a), *slot(b), eq)
		},
		present: func(c *CandidateDeal) bool { return opt(c).IsPresent() },
		merge: func(dst *DealSnapshot, c *CandidateDeal) {
			*slot(dst) = opt(c).Ptr()
		},
		render: func(s *DealSnapshot) string {
			return formatPtr(*slot(s), format)
		},
	}
}

// moneyField is a nullable amount. Candidate values are brought to the
// stored scale on merge, and comparison happens at that scale, so an amount
// read back from the database matches the import it came from.
func moneyField(
	name string,
	slot func(*DealSnapshot) **decimal.Decimal,
	opt func(*CandidateDeal) Optional[decimal.Decimal],
) fieldSpec {
	f := nullable(name, slot, opt, EqualMoney, FormatMoney)
	f.merge = func(dst *DealSnapshot, c *CandidateDeal) {
		v, ok := opt(c).Get()
		if !ok {
			*slot(dst) = nil
			return
		}
		v = RoundMoney(v)
		*slot(dst) = &v
	}
	return f
}

// RoundMoney rounds an amount to MoneyScale places. Amounts already at or
// below that scale are returned as is.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	if d.Exponent() >= -MoneyScale {
		return d
	}
	return d.Round(MoneyScale)
}

// EqualMoney compares two amounts at the stored scale.
func EqualMoney(a, b decimal.Decimal) bool {
	return RoundMoney(a).Equal(RoundMoney(b))
}

// DiffSnapshots lists the tracked fields that differ between from and to,
// in diff order.
func DiffSnapshots(from, to DealSnapshot) []string {
	var diffs []string
	for _, f := range trackedFields {
		if !f.equal(&from, &to) {
			diffs = append(diffs, FormatDiff(f.name, f.render(&from), f.render(&to)))
		}
	}
	return diffs
}

// FormatDiff renders one field change.
func FormatDiff(field, from, to string) string {
	return field + ": " + from + " → " + to
}

// FormatMoney renders an amount in dollars with thousands separators. Cents
// are shown only for non-integral amounts.
func FormatMoney(d decimal.Decimal) string {
	d = d.Round(MoneyScale)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	whole := sign + "$" + printer.Sprintf("%d", d.IntPart())
	if d.Equal(d.Truncate(0)) {
		return whole
	}
	fixed := d.StringFixed(MoneyScale)
	return whole + fixed[len(fixed)-MoneyScale-1:]
}

func equalPtr[T any](a, b *T, eq func(a, b T) bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return eq(*a, *b)
}

func formatPtr[T any](p *T, format func(T) string) string {
	if p == nil {
		return nullDisplay
	}
	return format(*p)
}

func eqComparable[T comparable](a, b T) bool { return a == b }

func formatString(s string) string { return s }
