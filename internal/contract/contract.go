// Package contract handles index futures contract specifications and ticker
// parsing, so callers can name a contract instead of typing its multiplier.
package contract

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Spec describes one index futures contract.
type Spec struct {
	Root       string          `json:"root"`
	Name       string          `json:"name"`
	Index      string          `json:"index"`
	Currency   string          `json:"currency"`
	Multiplier decimal.Decimal `json:"multiplier"` // currency per index point
	TickSize   decimal.Decimal `json:"tick_size"`  // index points
}

// TickValue is the currency value of one minimum price move.
func (s Spec) TickValue() decimal.Decimal {
	return s.Multiplier.Mul(s.TickSize)
}

// Notional is the exposure of one contract at the given index price.
func (s Spec) Notional(indexPrice decimal.Decimal) decimal.Decimal {
	return s.Multiplier.Mul(indexPrice)
}

func spec(root, name, index, ccy string, mult int64, tick float64) Spec {
	return Spec{
		Root:       root,
		Name:       name,
		Index:      index,
		Currency:   ccy,
		Multiplier: decimal.NewFromInt(mult),
		TickSize:   decimal.NewFromFloat(tick),
	}
}

var catalog = map[string]Spec{
	"SP":   spec("SP", "S&P 500 Futures", "S&P 500", "USD", 250, 0.1),
	"ES":   spec("ES", "E-mini S&P 500", "S&P 500", "USD", 50, 0.25),
	"MES":  spec("MES", "Micro E-mini S&P 500", "S&P 500", "USD", 5, 0.25),
	"NQ":   spec("NQ", "E-mini Nasdaq-100", "Nasdaq-100", "USD", 20, 0.25),
	"MNQ":  spec("MNQ", "Micro E-mini Nasdaq-100", "Nasdaq-100", "USD", 2, 0.25),
	"YM":   spec("YM", "E-mini Dow", "Dow Jones Industrial Average", "USD", 5, 1),
	"RTY":  spec("RTY", "E-mini Russell 2000", "Russell 2000", "USD", 50, 0.1),
	"FESX": spec("FESX", "Euro Stoxx 50 Futures", "Euro Stoxx 50", "EUR", 10, 1),
	"FDAX": spec("FDAX", "DAX Futures", "DAX", "EUR", 25, 1),
	"Z":    spec("Z", "FTSE 100 Futures", "FTSE 100", "GBP", 10, 0.5),
}

// monthCodes maps futures month letters to calendar months.
var monthCodes = map[byte]time.Month{
	'F': time.January, 'G': time.February, 'H': time.March,
	'J': time.April, 'K': time.May, 'M': time.June,
	'N': time.July, 'Q': time.August, 'U': time.September,
	'V': time.October, 'X': time.November, 'Z': time.December,
}

// tickerRegex matches: {ROOT}{monthCode}{YY}
// Example: ESZ25
var tickerRegex = regexp.MustCompile(`^([A-Z]+?)([FGHJKMNQUVXZ])(\d{2})$`)

var (
	ErrInvalidTicker   = errors.New("contract: invalid ticker format")
	ErrUnknownContract = errors.New("contract: unknown contract")
)

// Contract is a parsed, dated futures ticker.
type Contract struct {
	Ticker      string    `json:"ticker"`
	Spec        Spec      `json:"spec"`
	ExpiryMonth time.Time `json:"expiry_month"`
}

// Catalog returns every known contract spec sorted by root.
func Catalog() []Spec {
	specs := make([]Spec, 0, len(catalog))
	for _, s := range catalog {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Root < specs[j].Root })
	return specs
}

// Lookup returns the spec for a contract root such as "ES".
func Lookup(root string) (Spec, error) {
	s, ok := catalog[strings.ToUpper(strings.TrimSpace(root))]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownContract, root)
	}
	return s, nil
}

// ParseTicker parses and validates a dated ticker.
// Format: {ROOT}{monthCode}{YY}, e.g. ESZ25 or MESH26.
func ParseTicker(ticker string) (*Contract, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	matches := tickerRegex.FindStringSubmatch(ticker)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {root}{month code}{YY})", ErrInvalidTicker, ticker)
	}

	s, err := Lookup(matches[1])
	if err != nil {
		return nil, err
	}

	yy, err := strconv.Atoi(matches[3])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid year %s", ErrInvalidTicker, matches[3])
	}

	return &Contract{
		Ticker:      ticker,
		Spec:        s,
		ExpiryMonth: time.Date(2000+yy, monthCodes[matches[2][0]], 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

// Resolve accepts either a bare root ("ES") or a dated ticker ("ESZ25").
func Resolve(symbol string) (Spec, error) {
	if s, err := Lookup(symbol); err == nil {
		return s, nil
	}
	c, err := ParseTicker(symbol)
	if err != nil {
		return Spec{}, err
	}
	return c.Spec, nil
}

// Multiplier resolves symbol and returns its multiplier for the solver.
func Multiplier(symbol string) (float64, error) {
	s, err := Resolve(symbol)
	if err != nil {
		return 0, err
	}
	return s.Multiplier.InexactFloat64(), nil
}
