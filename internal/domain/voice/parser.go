package voice

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/morita/pos/internal/domain/cart"
)

// Separator splits the fields of an order line.
const Separator = "|"

// Outcome tags the result of parsing one line.
type Outcome int

const (
	// OutcomeParsed means the line produced a cart line.
	OutcomeParsed Outcome = iota
	// OutcomeProse means the line has no separator and was ignored.
	OutcomeProse
	// OutcomeMalformed means the line has a separator but could not be parsed.
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeParsed:
		return "parsed"
	case OutcomeProse:
		return "prose"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Parse errors carried by malformed results.
var (
	ErrFieldCount  = errors.New("expected 3 fields")
	ErrNoName      = errors.New("empty product name")
	ErrNoNumber    = errors.New("no numeric value")
	ErrNonPositive = errors.New("quantity must be greater than 0")
	ErrNegative    = errors.New("subtotal must not be negative")
)

// Result is the tagged outcome of parsing one raw line.
type Result struct {
	Raw     string
	Outcome Outcome
	Line    cart.Line
	Err     error
}

var numberToken = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// Parse splits text into lines and parses each non-blank one. Blank lines
// produce no result at all.
func Parse(text string) []Result {
	var results []Result
	for _, raw := range strings.Split(text, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		results = append(results, ParseLine(raw))
	}
	return results
}

// ParseLine parses "PRODUCT | QUANTITY | SUBTOTAL". The third field is the
// line subtotal; the unit price is derived as subtotal / quantity, rounded
// to cents.
func ParseLine(raw string) Result {
	r := Result{Raw: raw}
	if !strings.Contains(raw, Separator) {
		r.Outcome = OutcomeProse
		return r
	}

	fields := strings.Split(raw, Separator)
	if len(fields) != 3 {
		return malformed(r, errors.Wrapf(ErrFieldCount, "got %d", len(fields)))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	name := strings.Trim(fields[0], "-*• \t")
	if name == "" {
		return malformed(r, ErrNoName)
	}

	qty, err := firstNumber(fields[1])
	if err != nil {
		return malformed(r, errors.Wrap(err, "quantity"))
	}
	if !qty.IsPositive() {
		return malformed(r, ErrNonPositive)
	}

	subtotal, err := firstNumber(fields[2])
	if err != nil {
		return malformed(r, errors.Wrap(err, "subtotal"))
	}
	if subtotal.IsNegative() {
		return malformed(r, ErrNegative)
	}

	r.Outcome = OutcomeParsed
	r.Line = cart.Line{
		Product:   name,
		Quantity:  qty,
		UnitPrice: subtotal.Div(qty).Round(2),
	}
	return r
}

// Lines keeps the cart lines of parsed results, in order.
func Lines(results []Result) []cart.Line {
	lines := make([]cart.Line, 0, len(results))
	for _, r := range results {
		if r.Outcome == OutcomeParsed {
			lines = append(lines, r.Line)
		}
	}
	return lines
}

// Format renders a cart line in the order line format.
func Format(l cart.Line) string {
	return fmt.Sprintf("%s %s %s %s %s", l.Product, Separator, l.Quantity.String(), Separator, l.Subtotal().String())
}

func malformed(r Result, err error) Result {
	r.Outcome = OutcomeMalformed
	r.Err = err
	return r
}

// firstNumber extracts the first numeric token of s, tolerating units and
// words around it. A comma is read as the decimal mark.
func firstNumber(s string) (decimal.Decimal, error) {
	tok := numberToken.FindString(s)
	if tok == "" {
		return decimal.Zero, ErrNoNumber
	}
	return decimal.NewFromString(strings.Replace(tok, ",", ".", 1))
}
