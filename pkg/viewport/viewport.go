// Package viewport owns the pan/zoom state of the interactive view: the
// plane center in the active precision tier, the zoom level (log2 of the
// linear scale), inertial motion, and the tier switching that keeps the
// center representable as the zoom deepens.
package viewport

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"mandelzoom/pkg/fixed"
)

// BaseSpan is the plane width covered by the viewport at zoom 0.
const BaseSpan = 4.0

// Tier switching. Doubles hold a usable pixel delta up to roughly 2^-40
// across a frame; we leave before that, and size the scaled exponent with
// enough guard bits that perturbation deltas stay meaningful.
const (
	scaledZoomThreshold = 32
	tierExpStep         = 32
	tierExpGuard        = 64

	// DoubleExp is the fixed-point exponent backing the plain-double tier.
	DoubleExp = 53
)

// Inertia tuning.
const (
	Friction        = 0.92
	inertiaEpsilon  = 0.02
	maxZoomVelocity = 0.5
)

// ErrBadCenter is returned for center strings matching neither
// serialization form.
var ErrBadCenter = errors.New("viewport: malformed center")

// Tier is a precision tier: plain machine doubles, or scaled integers at
// a fixed binary exponent.
type Tier struct {
	Scaled bool
	Exp    uint
}

func (t Tier) String() string {
	if !t.Scaled {
		return "double"
	}
	return fmt.Sprintf("scaled/%d", t.Exp)
}

// TierForZoom returns the tier a zoom level calls for. Thresholds are
// fixed so switches happen at defined zoom levels only.
func TierForZoom(zoom float64) Tier {
	if zoom < scaledZoomThreshold {
		return Tier{Scaled: false, Exp: DoubleExp}
	}
	steps := math.Ceil((zoom + tierExpGuard) / tierExpStep)
	return Tier{Scaled: true, Exp: uint(steps) * tierExpStep}
}

// Snapshot is an immutable copy of the viewport used to build render
// requests.
type Snapshot struct {
	Center fixed.Complex
	Zoom   float64
	Tier   Tier
}

// PixelScale returns the plane units per pixel as mantissa within float
// range times 2^-shift. shift is the integer part of the zoom, so the
// mantissa never underflows no matter how deep the zoom is.
func (s Snapshot) PixelScale(width int) (mant float64, shift int) {
	zi := int(math.Floor(s.Zoom))
	zf := s.Zoom - float64(zi)
	return BaseSpan * math.Exp2(-zf) / float64(width), zi
}

// Controller mutates viewport state from input events. It is driven from
// a single goroutine (the UI/scheduler thread); it is not safe for
// concurrent mutation.
type Controller struct {
	center fixed.Complex
	zoom   float64
	tier   Tier

	width, height int

	// inertial release state, pixels (pan) and zoom levels per frame
	velX, velY, velZoom float64
	pivotX, pivotY      float64
	inertial            bool
}

// New returns a controller over a surface of the given pixel size, homed
// to the classic full-set view.
func New(width, height int) *Controller {
	c := &Controller{width: width, height: height, tier: TierForZoom(0)}
	center, err := fixed.FromComplex128(complex(-0.5, 0), c.tier.Exp)
	if err != nil {
		panic(err) // constant input
	}
	c.center = center
	return c
}

// Resize updates the pixel dimensions used for pivot math.
func (c *Controller) Resize(width, height int) {
	c.width, c.height = width, height
}

// Zoom returns the current zoom level.
func (c *Controller) Zoom() float64 { return c.zoom }

// Tier returns the active precision tier.
func (c *Controller) Tier() Tier { return c.tier }

// Snapshot copies the current state for a render request.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{Center: c.center, Zoom: c.zoom, Tier: c.tier}
}

// planeOffset converts a screen-pixel offset from the viewport center to
// a plane offset in the active tier. The integer zoom is applied as a
// mantissa shift so nothing underflows.
func (c *Controller) planeOffset(dx, dy float64) fixed.Complex {
	zi := int(math.Floor(c.zoom))
	zf := c.zoom - float64(zi)
	unit := BaseSpan * math.Exp2(-zf) / float64(c.width)

	re, err := fixed.FromFloat(dx*unit, c.tier.Exp)
	if err != nil {
		re, _ = fixed.FromFloat(0, c.tier.Exp)
	}
	im, err := fixed.FromFloat(dy*unit, c.tier.Exp)
	if err != nil {
		im, _ = fixed.FromFloat(0, c.tier.Exp)
	}
	off := fixed.NewComplex(re, im)
	if zi > 0 {
		return fixed.Complex{Re: off.Re.DivPow2(uint(zi)), Im: off.Im.DivPow2(uint(zi))}
	}
	if zi < 0 {
		return fixed.Complex{Re: off.Re.MulPow2(uint(-zi)), Im: off.Im.MulPow2(uint(-zi))}
	}
	return off
}

// PanPixels shifts the center by a screen-pixel delta.
func (c *Controller) PanPixels(dx, dy float64) {
	c.center = c.center.Add(c.planeOffset(dx, dy))
}

// ZoomAround changes the zoom by dz, keeping the plane point under the
// screen pivot visually fixed: the center shifts by the difference
// between the pivot's plane coordinate before and after the zoom.
func (c *Controller) ZoomAround(pivotX, pivotY, dz float64) {
	dx := pivotX - float64(c.width)/2
	dy := pivotY - float64(c.height)/2

	// offset*(1 - 2^-dz), evaluated as a pixel offset scaled by the factor
	f := 1 - math.Exp2(-dz)
	c.center = c.center.Add(c.planeOffset(dx*f, dy*f))
	c.zoom += dz
	c.retier()
}

// Jump moves instantly to a center and zoom, bypassing inertia. Used when
// restoring a saved or linked viewport.
func (c *Controller) Jump(center fixed.Complex, zoom float64) {
	c.inertial = false
	c.velX, c.velY, c.velZoom = 0, 0, 0
	c.zoom = zoom
	c.tier = TierForZoom(zoom)
	c.center = center.Project(c.tier.Exp)
}

// Release starts inertial motion from the velocities at the end of a
// drag or pinch, in pixels (pan) and zoom levels (zoom) per frame.
func (c *Controller) Release(velX, velY, velZoom, pivotX, pivotY float64) {
	if velZoom > maxZoomVelocity {
		velZoom = maxZoomVelocity
	} else if velZoom < -maxZoomVelocity {
		velZoom = -maxZoomVelocity
	}
	c.velX, c.velY, c.velZoom = velX, velY, velZoom
	c.pivotX, c.pivotY = pivotX, pivotY
	c.inertial = true
}

// Step advances one frame of inertial motion, decaying the velocity by
// the friction factor. It reports whether the animation is still live;
// motion halts once the combined velocity magnitude drops below epsilon.
func (c *Controller) Step() bool {
	if !c.inertial {
		return false
	}
	if c.velX != 0 || c.velY != 0 {
		c.PanPixels(-c.velX, -c.velY)
	}
	if c.velZoom != 0 {
		c.ZoomAround(c.pivotX, c.pivotY, c.velZoom)
	}
	c.velX *= Friction
	c.velY *= Friction
	c.velZoom *= Friction
	if math.Sqrt(c.velX*c.velX+c.velY*c.velY+c.velZoom*c.velZoom) < inertiaEpsilon {
		c.inertial = false
		c.velX, c.velY, c.velZoom = 0, 0, 0
	}
	return c.inertial
}

// Inertial reports whether a release animation is in flight.
func (c *Controller) Inertial() bool { return c.inertial }

// retier switches precision tiers when the zoom crosses a threshold,
// reprojecting the center into the new tier at the moment of the switch.
// Growing the exponent is lossless; shrinking truncates (accepted).
func (c *Controller) retier() {
	t := TierForZoom(c.zoom)
	if t == c.tier {
		return
	}
	c.center = c.center.Project(t.Exp)
	c.tier = t
}

// EncodeCenter serializes a center per the deep-link contract: "<x>,<y>"
// in the double tier, "<mx>e<exp>,<my>e<exp>" in a scaled tier. The
// double form uses the fixed format so it never contains an 'e'.
func EncodeCenter(center fixed.Complex, tier Tier) string {
	if !tier.Scaled {
		z := center.Complex128()
		return strconv.FormatFloat(real(z), 'f', -1, 64) + "," +
			strconv.FormatFloat(imag(z), 'f', -1, 64)
	}
	return center.String()
}

// EncodeCenter serializes the current center.
func (c *Controller) EncodeCenter() string {
	return EncodeCenter(c.center, c.tier)
}

// DecodeCenter parses either serialization form. The scaled form is tried
// first; both components must carry the same exponent.
func DecodeCenter(s string) (fixed.Complex, Tier, error) {
	if z, err := fixed.ParseComplex(s); err == nil {
		return z, Tier{Scaled: true, Exp: z.Exp()}, nil
	} else if errors.Is(err, fixed.ErrExponentMismatch) {
		return fixed.Complex{}, Tier{}, err
	}

	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return fixed.Complex{}, Tier{}, fmt.Errorf("%w: %q", ErrBadCenter, s)
	}
	x, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return fixed.Complex{}, Tier{}, fmt.Errorf("%w: %q", ErrBadCenter, s)
	}
	y, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return fixed.Complex{}, Tier{}, fmt.Errorf("%w: %q", ErrBadCenter, s)
	}
	z, err := fixed.FromComplex128(complex(x, y), DoubleExp)
	if err != nil {
		return fixed.Complex{}, Tier{}, err
	}
	return z, Tier{Scaled: false, Exp: DoubleExp}, nil
}
