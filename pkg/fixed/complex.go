package fixed

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ErrExponentMismatch is returned when parsing a serialized point whose two
// components carry different scale exponents.
var ErrExponentMismatch = errors.New("fixed: point components have different exponents")

// ErrBadPoint is returned for serialized points that do not match the
// "<mantissa>e<exponent>,<mantissa>e<exponent>" contract.
var ErrBadPoint = errors.New("fixed: malformed point")

// Complex is a complex number whose parts share one scale exponent.
type Complex struct {
	Re, Im Real
}

// NewComplex pairs two reals of the same tier.
func NewComplex(re, im Real) Complex {
	re.check(im)
	return Complex{Re: re, Im: im}
}

// FromComplex128 decodes both parts of z at the given exponent.
func FromComplex128(z complex128, exp uint) (Complex, error) {
	re, err := FromFloat(real(z), exp)
	if err != nil {
		return Complex{}, err
	}
	im, err := FromFloat(imag(z), exp)
	if err != nil {
		return Complex{}, err
	}
	return Complex{Re: re, Im: im}, nil
}

// Exp returns the scale exponent of the tier.
func (c Complex) Exp() uint { return c.Re.exp }

// Complex128 projects down to machine floats.
func (c Complex) Complex128() complex128 {
	return complex(c.Re.Float(), c.Im.Float())
}

// Add returns c+o at the shared scale.
func (c Complex) Add(o Complex) Complex {
	return Complex{Re: c.Re.Add(o.Re), Im: c.Im.Add(o.Im)}
}

// Sub returns c-o at the shared scale.
func (c Complex) Sub(o Complex) Complex {
	return Complex{Re: c.Re.Sub(o.Re), Im: c.Im.Sub(o.Im)}
}

// Square returns c*c using fixed-point multiplication.
func (c Complex) Square() Complex {
	re := c.Re.Mul(c.Re).Sub(c.Im.Mul(c.Im))
	im := c.Re.Mul(c.Im).MulPow2(1)
	return Complex{Re: re, Im: im}
}

// AbsSquared returns |c|² at the same scale.
func (c Complex) AbsSquared() Real {
	return c.Re.Mul(c.Re).Add(c.Im.Mul(c.Im))
}

// Project rescales both parts to a new tier exponent.
func (c Complex) Project(exp uint) Complex {
	return Complex{Re: c.Re.Project(exp), Im: c.Im.Project(exp)}
}

// String renders the serialized form "<mx>e<exp>,<my>e<exp>".
func (c Complex) String() string {
	return c.Re.String() + "," + c.Im.String()
}

// ParseComplex parses the scaled-integer point serialization. Both
// components must carry the same exponent.
func ParseComplex(s string) (Complex, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Complex{}, fmt.Errorf("%w: %q", ErrBadPoint, s)
	}
	re, expRe, err := parseMantissa(parts[0])
	if err != nil {
		return Complex{}, err
	}
	im, expIm, err := parseMantissa(parts[1])
	if err != nil {
		return Complex{}, err
	}
	if expRe != expIm {
		return Complex{}, fmt.Errorf("%w: %d vs %d", ErrExponentMismatch, expRe, expIm)
	}
	return Complex{
		Re: Real{mant: re, exp: expRe},
		Im: Real{mant: im, exp: expIm},
	}, nil
}

func parseMantissa(s string) (*big.Int, uint, error) {
	i := strings.LastIndexByte(s, 'e')
	if i < 1 || i == len(s)-1 {
		return nil, 0, fmt.Errorf("%w: %q", ErrBadPoint, s)
	}
	mant, ok := new(big.Int).SetString(s[:i], 10)
	if !ok {
		return nil, 0, fmt.Errorf("%w: bad mantissa %q", ErrBadPoint, s[:i])
	}
	exp, err := strconv.ParseUint(s[i+1:], 10, 32)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: bad exponent %q", ErrBadPoint, s[i+1:])
	}
	return mant, uint(exp), nil
}
