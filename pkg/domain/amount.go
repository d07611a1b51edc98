package domain

import (
	"errors"
	"math/big"
	"strings"

	dErrors "mintledger/pkg/domain-errors"
)

// Decimals is the number of fractional digits of one coin.
const Decimals = 9

// ErrNegativeAmount is returned when a subtraction would drop below zero.
var ErrNegativeAmount = errors.New("amount would become negative")

var nanoPerCoin = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Amount is an exact, non-negative quantity of the ledger's single asset,
// counted in nano units (1e-9 coin). The zero value is zero. Amounts are
// immutable; every operation returns a fresh value.
type Amount struct {
	v *big.Int
}

// Nano returns an amount of n nano units. Negative input is clamped to zero.
func Nano(n int64) Amount {
	if n < 0 {
		n = 0
	}
	return Amount{v: big.NewInt(n)}
}

// Coins returns an amount of n whole coins.
func Coins(n int64) Amount {
	if n < 0 {
		n = 0
	}
	return Amount{v: new(big.Int).Mul(big.NewInt(n), nanoPerCoin)}
}

// MustParseAmount is ParseAmount for constants and tests.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseAmount parses a decimal coin string such as "0.02" or "50000".
// Negative values, exponents and more than Decimals fractional digits are rejected.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount is required")
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && frac == "" {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount has a trailing decimal point")
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount has too many decimal places")
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount must be a non-negative decimal")
	}
	frac += strings.Repeat("0", Decimals-len(frac))
	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "amount must be a non-negative decimal")
	}
	return Amount{v: v}, nil
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), b.big())}
}

// Sub returns a - b, or ErrNegativeAmount when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.LessThan(b) {
		return Amount{}, ErrNegativeAmount
	}
	return Amount{v: new(big.Int).Sub(a.big(), b.big())}, nil
}

// SubFloor returns a - b, or zero when b > a.
func (a Amount) SubFloor(b Amount) Amount {
	out, err := a.Sub(b)
	if err != nil {
		return Amount{}
	}
	return out
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

func (a Amount) LessThan(b Amount) bool { return a.Cmp(b) < 0 }

func (a Amount) Equal(b Amount) bool { return a.Cmp(b) == 0 }

func (a Amount) IsZero() bool { return a.big().Sign() == 0 }

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Sum adds all amounts.
func Sum(amounts ...Amount) Amount {
	total := new(big.Int)
	for _, a := range amounts {
		total.Add(total, a.big())
	}
	return Amount{v: total}
}

// Nanos returns the raw nano count as a decimal integer string.
func (a Amount) Nanos() string {
	return a.big().String()
}

// NanoFloat returns the nano count as a float64 for metrics.
func (a Amount) NanoFloat() float64 {
	f, _ := new(big.Float).SetInt(a.big()).Float64()
	return f
}

// ParseNanos parses a decimal integer nano count as produced by Nanos.
func ParseNanos(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return Amount{}, dErrors.New(dErrors.CodeInvalidInput, "nano amount must be a non-negative integer")
	}
	return Amount{v: v}, nil
}

// String renders the amount as a decimal coin string without trailing zeros.
func (a Amount) String() string {
	q, r := new(big.Int).QuoRem(a.big(), nanoPerCoin, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := r.String()
	frac = strings.Repeat("0", Decimals-len(frac)) + frac
	return q.String() + "." + strings.TrimRight(frac, "0")
}

func (a Amount) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Amount) UnmarshalText(text []byte) error {
	parsed, err := ParseAmount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
