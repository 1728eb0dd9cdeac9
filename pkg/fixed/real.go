// Package fixed implements fixed-point reals: an arbitrary precision
// integer mantissa scaled by a per-tier power-of-two exponent. A value
// represents mantissa * 2^-exp. All arithmetic stays at the tier's scale;
// mixing scales without an explicit projection is a programming error.
package fixed

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

// ErrNonFinite is returned when decoding an infinity or NaN. A non-finite
// double has no fixed-point representation and must never be coerced to zero.
var ErrNonFinite = errors.New("fixed: cannot represent non-finite float")

const (
	fracBits = 52
	expMask  = 0x7ff
	fracMask = 1<<fracBits - 1
)

// Real is a fixed-point real number. The zero value is 0 at scale exponent 0.
type Real struct {
	mant *big.Int
	exp  uint
}

// New returns the integer v at scale exponent exp.
func New(v int64, exp uint) Real {
	m := big.NewInt(v)
	m.Lsh(m, exp)
	return Real{mant: m, exp: exp}
}

// NewFromMantissa returns mant * 2^-exp. The mantissa is copied.
func NewFromMantissa(mant *big.Int, exp uint) Real {
	return Real{mant: new(big.Int).Set(mant), exp: exp}
}

// FromFloat decodes the IEEE-754 fields of f directly into an exact
// mantissa, then rescales it to the requested exponent by shift. The only
// loss is the right shift when exp carries fewer fractional bits than f.
func FromFloat(f float64, exp uint) (Real, error) {
	bits := math.Float64bits(f)
	bexp := int(bits>>fracBits) & expMask
	frac := bits & fracMask

	if bexp == expMask {
		return Real{}, fmt.Errorf("%w: %v", ErrNonFinite, f)
	}

	mant := new(big.Int)
	var shift int
	switch {
	case bexp == 0 && frac == 0:
		return Real{mant: mant, exp: exp}, nil
	case bexp == 0:
		// subnormal: frac * 2^-1074
		mant.SetUint64(frac)
		shift = int(exp) - 1074
	default:
		mant.SetUint64(frac | 1<<fracBits)
		shift = int(exp) + bexp - 1023 - fracBits
	}

	if shift >= 0 {
		mant.Lsh(mant, uint(shift))
	} else {
		mant.Rsh(mant, uint(-shift))
	}
	if bits>>63 == 1 {
		mant.Neg(mant)
	}
	return Real{mant: mant, exp: exp}, nil
}

// Float converts back to a double. Precision loss is accepted here.
func (r Real) Float() float64 {
	if r.mant == nil {
		return 0
	}
	bf := new(big.Float).SetInt(r.mant)
	bf.SetMantExp(bf, -int(r.exp))
	f, _ := bf.Float64()
	return f
}

// Exp returns the scale exponent of r's tier.
func (r Real) Exp() uint { return r.exp }

// Mantissa returns a copy of r's mantissa.
func (r Real) Mantissa() *big.Int {
	if r.mant == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(r.mant)
}

// Sign returns -1, 0 or +1.
func (r Real) Sign() int {
	if r.mant == nil {
		return 0
	}
	return r.mant.Sign()
}

func (r Real) check(o Real) {
	if r.exp != o.exp {
		panic(fmt.Sprintf("fixed: scale mismatch %d != %d; project first", r.exp, o.exp))
	}
}

func (r Real) m() *big.Int {
	if r.mant == nil {
		return new(big.Int)
	}
	return r.mant
}

// Add returns r+o. Both operands must share a scale exponent.
func (r Real) Add(o Real) Real {
	r.check(o)
	return Real{mant: new(big.Int).Add(r.m(), o.m()), exp: r.exp}
}

// Sub returns r-o. Both operands must share a scale exponent.
func (r Real) Sub(o Real) Real {
	r.check(o)
	return Real{mant: new(big.Int).Sub(r.m(), o.m()), exp: r.exp}
}

// Neg returns -r.
func (r Real) Neg() Real {
	return Real{mant: new(big.Int).Neg(r.m()), exp: r.exp}
}

// MulInt returns r*k, exact at the same scale.
func (r Real) MulInt(k int64) Real {
	return Real{mant: new(big.Int).Mul(r.m(), big.NewInt(k)), exp: r.exp}
}

// MulPow2 returns r * 2^n via left shift.
func (r Real) MulPow2(n uint) Real {
	return Real{mant: new(big.Int).Lsh(r.m(), n), exp: r.exp}
}

// DivPow2 returns r / 2^n via right shift, truncating low bits.
func (r Real) DivPow2(n uint) Real {
	return Real{mant: new(big.Int).Rsh(r.m(), n), exp: r.exp}
}

// Mul returns r*o at the shared scale. The double-width product is brought
// back to the tier by a right shift of the scale exponent. This is
// fixed-point multiplication: the shifted-out bits are truncated.
func (r Real) Mul(o Real) Real {
	r.check(o)
	p := new(big.Int).Mul(r.m(), o.m())
	p.Rsh(p, r.exp)
	return Real{mant: p, exp: r.exp}
}

// Cmp compares r and o, which must share a scale exponent.
func (r Real) Cmp(o Real) int {
	r.check(o)
	return r.m().Cmp(o.m())
}

// Project rescales r to a different tier exponent. Growing the exponent is
// lossless; shrinking truncates low bits.
func (r Real) Project(exp uint) Real {
	if exp == r.exp {
		return Real{mant: new(big.Int).Set(r.m()), exp: exp}
	}
	m := new(big.Int)
	if exp > r.exp {
		m.Lsh(r.m(), exp-r.exp)
	} else {
		m.Rsh(r.m(), r.exp-exp)
	}
	return Real{mant: m, exp: exp}
}

// String renders the serialized mantissa form "<mantissa>e<exp>".
func (r Real) String() string {
	return fmt.Sprintf("%se%d", r.m().String(), r.exp)
}
