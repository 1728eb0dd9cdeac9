package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/gogpu/naga"
)

// frameParams mirrors the Params uniform in both WGSL sources. Field
// order, 16-byte grouping and total size must match the shader layout
// exactly; it is uploaded as raw bytes.
type frameParams struct {
	Width, Height, MaxIter, Kind uint32

	// direct mode: the plane center; perturbation mode: the rebased
	// offset of the center from the reference sample. Split hi/lo per
	// axis for the double-single tier; the float32 tier reads hi only.
	CenterXHi, CenterXLo, CenterYHi, CenterYLo float32

	UnitHi, UnitLo, Mul, padScale float32

	JuliaXHi, JuliaXLo, JuliaYHi, JuliaYLo float32

	Perturb, RefLen, padA, padB uint32

	// per-pass sub-pixel offset for supersampling, in pixels
	JitterX, JitterY, padJA, padJB float32
}

// split decomposes a double into a hi/lo float32 pair with hi+lo as
// close to v as two singles allow.
func split(v float64) (hi, lo float32) {
	hi = float32(v)
	lo = float32(v - float64(hi))
	return hi, lo
}

func (p *frameParams) setCenter(re, im float64) {
	p.CenterXHi, p.CenterXLo = split(re)
	p.CenterYHi, p.CenterYLo = split(im)
}

func (p *frameParams) setJulia(c complex128) {
	p.JuliaXHi, p.JuliaXLo = split(real(c))
	p.JuliaYHi, p.JuliaYLo = split(imag(c))
}

func (p *frameParams) bytes() []byte {
	raw := unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p))
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}

// packRef32 serializes a reference orbit as vec2<f32> iterates.
func packRef32(ref []complex128) []byte {
	out := make([]byte, len(ref)*8)
	for i, z := range ref {
		binary.LittleEndian.PutUint32(out[i*8:], math.Float32bits(float32(real(z))))
		binary.LittleEndian.PutUint32(out[i*8+4:], math.Float32bits(float32(imag(z))))
	}
	return out
}

// packRef64 serializes a reference orbit as vec4<f32> iterates holding
// hi/lo double-single pairs per axis.
func packRef64(ref []complex128) []byte {
	out := make([]byte, len(ref)*16)
	for i, z := range ref {
		xh, xl := split(real(z))
		yh, yl := split(imag(z))
		binary.LittleEndian.PutUint32(out[i*16:], math.Float32bits(xh))
		binary.LittleEndian.PutUint32(out[i*16+4:], math.Float32bits(xl))
		binary.LittleEndian.PutUint32(out[i*16+8:], math.Float32bits(yh))
		binary.LittleEndian.PutUint32(out[i*16+12:], math.Float32bits(yl))
	}
	return out
}

// unpackVelocities decodes the velocity readback buffer.
func unpackVelocities(raw []byte, n int) []float32 {
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

// compileWGSL turns WGSL source into SPIR-V words for the hal module.
func compileWGSL(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}
	return words, nil
}

// shader32 is the float32 tier: plain complex arithmetic, direct or
// perturbed against the reference orbit. Escape indexing matches the
// CPU evaluators: update then test, escape on the first update is
// iteration zero.
const shader32 = `
struct Params {
    size: vec4<u32>,   // width, height, max_iter, kind (1 = julia)
    center: vec4<f32>, // x hi, x lo, y hi, y lo
    scale: vec4<f32>,  // unit hi, unit lo, perturbation multiplier, unused
    julia: vec4<f32>,  // x hi, x lo, y hi, y lo
    mode: vec4<u32>,   // perturb flag, reference length, unused, unused
    jitter: vec4<f32>, // sub-pixel x, sub-pixel y, unused, unused
};

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> ref_orbit: array<vec2<f32>>;
@group(0) @binding(2) var<storage, read_write> out_velocity: array<f32>;
@group(0) @binding(3) var<storage, read_write> work: atomic<u32>;

const BAILOUT_SQ: f32 = 16384.0;

fn cmul(a: vec2<f32>, b: vec2<f32>) -> vec2<f32> {
    return vec2<f32>(a.x * b.x - a.y * b.y, a.x * b.y + a.y * b.x);
}

fn smooth_velocity(i: u32, m: f32) -> f32 {
    return f32(i) + 1.0 - log2(log(sqrt(m)));
}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let w = params.size.x;
    let h = params.size.y;
    if (gid.x >= w || gid.y >= h) {
        return;
    }
    let max_iter = params.size.z;
    let is_julia = params.size.w == 1u;

    let off = vec2<f32>(
        (f32(gid.x) + params.jitter.x - f32(w) * 0.5) * params.scale.x,
        (f32(gid.y) + params.jitter.y - f32(h) * 0.5) * params.scale.x,
    );
    let pos = vec2<f32>(params.center.x, params.center.z) + off;

    var velocity = f32(max_iter);
    var iters = max_iter;

    if (params.mode.x == 1u) {
        let mul = params.scale.z;
        var delta = vec2<f32>(0.0, 0.0);
        var dc = pos;
        if (is_julia) {
            delta = pos;
            dc = vec2<f32>(0.0, 0.0);
        }
        var n = params.mode.y - 1u;
        if (max_iter < n) {
            n = max_iter;
        }
        iters = n;
        for (var i = 1u; i <= n; i = i + 1u) {
            delta = cmul(2.0 * ref_orbit[i - 1u] + mul * delta, delta) + dc;
            let wz = ref_orbit[i] + mul * delta;
            let m = dot(wz, wz);
            if (m > BAILOUT_SQ) {
                velocity = smooth_velocity(i - 1u, m);
                iters = i;
                break;
            }
        }
    } else {
        var z = vec2<f32>(0.0, 0.0);
        var c = pos;
        if (is_julia) {
            z = pos;
            c = vec2<f32>(params.julia.x, params.julia.z);
        }
        for (var i = 0u; i < max_iter; i = i + 1u) {
            z = cmul(z, z) + c;
            let m = dot(z, z);
            if (m > BAILOUT_SQ) {
                velocity = smooth_velocity(i, m);
                iters = i + 1u;
                break;
            }
        }
    }

    out_velocity[gid.y * w + gid.x] = velocity;
    atomicAdd(&work, iters);
}
`

// shader64 is the double-single tier: every plane quantity is a hi/lo
// float32 pair combined with error-free transforms, roughly doubling
// the usable mantissa over the float32 tier.
const shader64 = `
struct Params {
    size: vec4<u32>,
    center: vec4<f32>,
    scale: vec4<f32>,
    julia: vec4<f32>,
    mode: vec4<u32>,
    jitter: vec4<f32>,
};

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> ref_orbit: array<vec4<f32>>;
@group(0) @binding(2) var<storage, read_write> out_velocity: array<f32>;
@group(0) @binding(3) var<storage, read_write> work: atomic<u32>;

const BAILOUT_SQ: f32 = 16384.0;

fn two_sum(a: f32, b: f32) -> vec2<f32> {
    let s = a + b;
    let bb = s - a;
    return vec2<f32>(s, (a - (s - bb)) + (b - bb));
}

fn quick_two_sum(a: f32, b: f32) -> vec2<f32> {
    let s = a + b;
    return vec2<f32>(s, b - (s - a));
}

fn two_prod(a: f32, b: f32) -> vec2<f32> {
    let p = a * b;
    return vec2<f32>(p, fma(a, b, -p));
}

fn ds_add(a: vec2<f32>, b: vec2<f32>) -> vec2<f32> {
    let s = two_sum(a.x, b.x);
    return quick_two_sum(s.x, s.y + a.y + b.y);
}

fn ds_mul(a: vec2<f32>, b: vec2<f32>) -> vec2<f32> {
    let p = two_prod(a.x, b.x);
    return quick_two_sum(p.x, p.y + a.x * b.y + a.y * b.x);
}

fn ds_neg(a: vec2<f32>) -> vec2<f32> {
    return vec2<f32>(-a.x, -a.y);
}

// exact for power-of-two s
fn ds_scale(a: vec2<f32>, s: f32) -> vec2<f32> {
    return vec2<f32>(a.x * s, a.y * s);
}

struct C2 {
    re: vec2<f32>,
    im: vec2<f32>,
};

fn c2_add(a: C2, b: C2) -> C2 {
    return C2(ds_add(a.re, b.re), ds_add(a.im, b.im));
}

fn c2_mul(a: C2, b: C2) -> C2 {
    return C2(
        ds_add(ds_mul(a.re, b.re), ds_neg(ds_mul(a.im, b.im))),
        ds_add(ds_mul(a.re, b.im), ds_mul(a.im, b.re)),
    );
}

fn c2_scale(a: C2, s: f32) -> C2 {
    return C2(ds_scale(a.re, s), ds_scale(a.im, s));
}

fn c2_mag(a: C2) -> f32 {
    return a.re.x * a.re.x + a.im.x * a.im.x;
}

fn ref_at(i: u32) -> C2 {
    let r = ref_orbit[i];
    return C2(vec2<f32>(r.x, r.y), vec2<f32>(r.z, r.w));
}

fn smooth_velocity(i: u32, m: f32) -> f32 {
    return f32(i) + 1.0 - log2(log(sqrt(m)));
}

@compute @workgroup_size(8, 8, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let w = params.size.x;
    let h = params.size.y;
    if (gid.x >= w || gid.y >= h) {
        return;
    }
    let max_iter = params.size.z;
    let is_julia = params.size.w == 1u;

    let unit = vec2<f32>(params.scale.x, params.scale.y);
    let off = C2(
        ds_mul(vec2<f32>(f32(gid.x) + params.jitter.x - f32(w) * 0.5, 0.0), unit),
        ds_mul(vec2<f32>(f32(gid.y) + params.jitter.y - f32(h) * 0.5, 0.0), unit),
    );
    let base = C2(vec2<f32>(params.center.x, params.center.y), vec2<f32>(params.center.z, params.center.w));
    let pos = c2_add(base, off);

    var velocity = f32(max_iter);
    var iters = max_iter;

    if (params.mode.x == 1u) {
        let mul = params.scale.z;
        var delta = C2(vec2<f32>(0.0, 0.0), vec2<f32>(0.0, 0.0));
        var dc = pos;
        if (is_julia) {
            delta = pos;
            dc = C2(vec2<f32>(0.0, 0.0), vec2<f32>(0.0, 0.0));
        }
        var n = params.mode.y - 1u;
        if (max_iter < n) {
            n = max_iter;
        }
        iters = n;
        for (var i = 1u; i <= n; i = i + 1u) {
            let t = c2_add(c2_scale(ref_at(i - 1u), 2.0), c2_scale(delta, mul));
            delta = c2_add(c2_mul(t, delta), dc);
            let wz = c2_add(ref_at(i), c2_scale(delta, mul));
            let m = c2_mag(wz);
            if (m > BAILOUT_SQ) {
                velocity = smooth_velocity(i - 1u, m);
                iters = i;
                break;
            }
        }
    } else {
        var z = C2(vec2<f32>(0.0, 0.0), vec2<f32>(0.0, 0.0));
        var c = pos;
        if (is_julia) {
            z = pos;
            c = C2(vec2<f32>(params.julia.x, params.julia.y), vec2<f32>(params.julia.z, params.julia.w));
        }
        for (var i = 0u; i < max_iter; i = i + 1u) {
            z = c2_add(c2_mul(z, z), c);
            let m = c2_mag(z);
            if (m > BAILOUT_SQ) {
                velocity = smooth_velocity(i, m);
                iters = i + 1u;
                break;
            }
        }
    }

    out_velocity[gid.y * w + gid.x] = velocity;
    atomicAdd(&work, iters);
}
`
