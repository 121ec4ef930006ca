package intent

import (
	"math/big"
	"regexp"
	"strings"
)

// Op is an arithmetic operation.
type Op string

const (
	OpAdd      Op = "plus"
	OpSubtract Op = "minus"
	OpMultiply Op = "multiplied by"
	OpDivide   Op = "divided by"
)

// MaxOperandDigits bounds the length of an operand accepted by [ParseCalc].
const MaxOperandDigits = 100

// quotientDigits is the number of decimals shown for a quotient whose
// decimal expansion does not terminate.
const quotientDigits = 10

// Calc is a parsed two-operand arithmetic expression. Operands are
// non-negative decimal integers in canonical form (no leading zeros) and
// may exceed 64 bits.
type Calc struct {
	A, B string
	Op   Op
}

var calcPatterns = []struct {
	op Op
	re *regexp.Regexp
}{
	{OpAdd, regexp.MustCompile(`(?i)(\d+)\s*(plus|\+)\s*(\d+)`)},
	{OpSubtract, regexp.MustCompile(`(?i)(\d+)\s*(minus|-)\s*(\d+)`)},
	{OpMultiply, regexp.MustCompile(`(?i)(\d+)\s*(times|multiplied by|\*)\s*(\d+)`)},
	{OpDivide, regexp.MustCompile(`(?i)(\d+)\s*(divided by|/)\s*(\d+)`)},
}

// ParseCalc detects an arithmetic expression in text. Operators are tried
// in the order add, subtract, multiply, divide; the first hit wins.
// Operands longer than [MaxOperandDigits] are not treated as arithmetic.
func ParseCalc(text string) (Calc, bool) {
	for _, p := range calcPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		a, okA := canonical(m[1])
		b, okB := canonical(m[3])
		if !okA || !okB {
			return Calc{}, false
		}
		return Calc{A: a, B: b, Op: p.op}, true
	}
	return Calc{}, false
}

func canonical(digits string) (string, bool) {
	if len(digits) > MaxOperandDigits {
		return "", false
	}
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return "", false
	}
	return n.String(), true
}

// Result evaluates the expression exactly and returns it as decimal text.
// Division by zero reports ok=false. A quotient is exact when its decimal
// expansion terminates; otherwise it is rounded to ten decimals.
func (c Calc) Result() (value string, ok bool) {
	a, okA := new(big.Int).SetString(c.A, 10)
	b, okB := new(big.Int).SetString(c.B, 10)
	if !okA || !okB {
		return "", false
	}
	switch c.Op {
	case OpAdd:
		return new(big.Int).Add(a, b).String(), true
	case OpSubtract:
		return new(big.Int).Sub(a, b).String(), true
	case OpMultiply:
		return new(big.Int).Mul(a, b).String(), true
	case OpDivide:
		if b.Sign() == 0 {
			return "", false
		}
		return formatQuotient(new(big.Rat).SetFrac(a, b)), true
	}
	return "", false
}

// formatQuotient renders q without a trailing fraction when it is whole,
// exactly when its expansion terminates, and rounded otherwise.
func formatQuotient(q *big.Rat) string {
	if q.IsInt() {
		return q.Num().String()
	}
	digits, exact := terminatingDigits(q.Denom())
	if !exact {
		digits = quotientDigits
	}
	s := q.FloatString(digits)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// terminatingDigits reports whether 1/d has a terminating decimal
// expansion and, if so, how many decimals it needs.
func terminatingDigits(d *big.Int) (int, bool) {
	rest := new(big.Int).Set(d)
	var twos, fives int
	two, five := big.NewInt(2), big.NewInt(5)
	mod := new(big.Int)
	for {
		if q, m := new(big.Int).QuoRem(rest, two, mod); m.Sign() == 0 {
			rest = q
			twos++
			continue
		}
		break
	}
	for {
		if q, m := new(big.Int).QuoRem(rest, five, mod); m.Sign() == 0 {
			rest = q
			fives++
			continue
		}
		break
	}
	if rest.Cmp(big.NewInt(1)) != 0 {
		return 0, false
	}
	return max(twos, fives), true
}
