package gpu

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/orbit"
	"mandelzoom/pkg/palette"
	"mandelzoom/pkg/render"
)

// ErrPrecisionExceeded is returned when the pixel-scale multiplier has
// left float32 range; the scheduler reacts by demoting to the next
// backend tier.
var ErrPrecisionExceeded = errors.New("gpu: zoom beyond backend precision")

var errNotReady = errors.New("gpu: backend not probed or probe failed")

// smallest normal float32; below it the perturbation multiplier
// denormalizes on device and deltas collapse
const minNormalMul = 0x1p-126

const fenceTimeout = 10 * time.Second

// Backend is one GPU tier over the shared device. It implements
// render.Backend; dispatches are serialized per backend.
type Backend struct {
	name        string
	src         string
	directLimit float64 // zoom at which direct iteration runs out of mantissa
	iterCap     int     // per-pixel iteration ceiling for one dispatch
	dev         *Device
	orbits      *orbit.Provider

	mu     sync.Mutex
	probed bool
	ready  bool

	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

// New32 returns the float32 tier: fastest, usable directly to roughly
// zoom 18, perturbed beyond. Its iteration ceiling keeps a dispatch
// inside typical device watchdog windows.
func New32(dev *Device, orbits *orbit.Provider) *Backend {
	return &Backend{name: "gpu32", src: shader32, directLimit: 18, iterCap: 1 << 15, dev: dev, orbits: orbits}
}

// New64 returns the double-single tier: hi/lo float32 pairs, roughly
// twice the direct mantissa of the float32 tier at around half the
// throughput, and a deeper iteration ceiling for the zoom depths that
// need it.
func New64(dev *Device, orbits *orbit.Provider) *Backend {
	return &Backend{name: "gpu64", src: shader64, directLimit: 40, iterCap: 1 << 18, dev: dev, orbits: orbits}
}

func (b *Backend) Name() string { return b.name }

// clampIter holds a request's iteration cap under the tier ceiling.
func (b *Backend) clampIter(maxIter int) int {
	if maxIter > b.iterCap {
		return b.iterCap
	}
	return maxIter
}

// Probe opens the shared device and builds this tier's pipeline. The
// outcome is cached; a failed probe stays failed for the session.
func (b *Backend) Probe() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.probed {
		return b.ready
	}
	b.probed = true
	if err := b.init(); err != nil {
		log.Printf("[gpu] %s unavailable: %v", b.name, err)
		return false
	}
	b.ready = true
	return true
}

func (b *Backend) init() error {
	if err := b.dev.acquire(); err != nil {
		return err
	}
	spirv, err := compileWGSL(b.src)
	if err != nil {
		return err
	}
	module, err := b.dev.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  b.name,
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create shader module: %w", err)
	}
	bindLayout, err := b.dev.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: b.name + "_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
			{Binding: 3, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		b.dev.device.DestroyShaderModule(module)
		return fmt.Errorf("create bind group layout: %w", err)
	}
	pipeLayout, err := b.dev.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: b.name + "_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		b.dev.device.DestroyBindGroupLayout(bindLayout)
		b.dev.device.DestroyShaderModule(module)
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	pipeline, err := b.dev.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: b.name + "_pipeline", Layout: pipeLayout,
		Compute: hal.ComputeState{Module: module, EntryPoint: "main"},
	})
	if err != nil {
		b.dev.device.DestroyPipelineLayout(pipeLayout)
		b.dev.device.DestroyBindGroupLayout(bindLayout)
		b.dev.device.DestroyShaderModule(module)
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	b.module, b.bindLayout, b.pipeLayout, b.pipeline = module, bindLayout, pipeLayout, pipeline
	return nil
}

// Close releases the tier's pipeline objects. The shared device is left
// for its owner.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return
	}
	b.dev.device.DestroyComputePipeline(b.pipeline)
	b.dev.device.DestroyPipelineLayout(b.pipeLayout)
	b.dev.device.DestroyBindGroupLayout(b.bindLayout)
	b.dev.device.DestroyShaderModule(b.module)
	b.ready = false
}

// Render runs jittered full-frame passes until the sample budget is
// spent or every pixel's velocity variance settles, then colors the
// accumulated means on the CPU. Pass N+1 is submitted without waiting
// for pass N's work-counter readback.
func (b *Backend) Render(ctx context.Context, req *render.Request) (*render.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.ready {
		return nil, errNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	grid := render.NewGrid(req.Viewport, req.Width, req.Height)
	if grid.Mul < minNormalMul {
		return nil, ErrPrecisionExceeded
	}

	maxIter := b.clampIter(req.MaxIter)
	params := frameParams{
		Width:   uint32(req.Width),
		Height:  uint32(req.Height),
		MaxIter: uint32(maxIter),
		Mul:     float32(grid.Mul),
	}
	params.UnitHi, params.UnitLo = split(grid.Unit)
	if req.Kind == escape.Julia {
		params.Kind = 1
		params.setJulia(req.JuliaC)
	}

	perturb := req.Viewport.Tier.Scaled || req.Viewport.Zoom >= b.directLimit
	var refBytes []byte
	if perturb {
		orb, err := b.orbits.Lookup(ctx, req.Generation, render.OrbitParams(req))
		if err != nil {
			return nil, err
		}
		base := grid.Rebase(orb.Sample)
		params.setCenter(real(base), imag(base))
		params.Perturb = 1
		params.RefLen = uint32(len(orb.Iters))
		if b.name == "gpu64" {
			refBytes = packRef64(orb.Iters)
		} else {
			refBytes = packRef32(orb.Iters)
		}
	} else {
		center := grid.Center128()
		params.setCenter(real(center), imag(center))
		// bind a dummy iterate so the layout stays uniform
		if b.name == "gpu64" {
			refBytes = packRef64([]complex128{0})
		} else {
			refBytes = packRef32([]complex128{0})
		}
	}

	budget := req.SampleBudget
	if budget < 1 {
		budget = 1
	}
	acc := make([]render.Accumulator, req.Width*req.Height)
	var work atomic.Uint64
	var wg sync.WaitGroup

	for s := 0; s < budget; s++ {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		jx, jy := render.Jitter(0, 0, s)
		params.JitterX, params.JitterY = float32(jx), float32(jy)

		velocities, err := b.dispatch(&params, refBytes, req.Width, req.Height, &work, &wg)
		if err != nil {
			wg.Wait()
			return nil, err
		}
		if accumulate(acc, velocities) {
			break
		}
	}

	pal := palette.Lookup(req.PaletteID)
	img := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	for i := range acc {
		col := pal.At(acc[i].Mean(), maxIter)
		o := i * 4
		img.Pix[o+0] = col.R
		img.Pix[o+1] = col.G
		img.Pix[o+2] = col.B
		img.Pix[o+3] = col.A
	}

	// the last pass's counter readback overlapped the coloring above
	wg.Wait()
	return &render.Result{
		Backend:    b.name,
		Pix:        img,
		Work:       work.Load(),
		Generation: req.Generation,
	}, nil
}

// accumulate folds one pass of per-pixel velocities into the running
// statistics and reports whether every pixel has settled, which cannot
// happen before MinSamples passes.
func accumulate(acc []render.Accumulator, velocities []float32) bool {
	settled := true
	for i, v := range velocities {
		acc[i].Add(float64(v))
		if !acc[i].Settled() {
			settled = false
		}
	}
	return settled
}

// dispatch uploads, runs one compute pass and reads the velocities
// back. The on-device iteration counter is read on its own goroutine
// into work, so the next pass never waits on it; the caller joins wg
// once all passes are in.
func (b *Backend) dispatch(params *frameParams, refBytes []byte, width, height int, work *atomic.Uint64, wg *sync.WaitGroup) ([]float32, error) {
	dev, queue := b.dev.device, b.dev.queue
	pixels := width * height
	velSize := uint64(pixels) * 4

	paramsBytes := params.bytes()
	uniformBuf, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: b.name + "_params", Size: uint64(len(paramsBytes)),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create params buffer: %w", err)
	}
	defer dev.DestroyBuffer(uniformBuf)

	refBuf, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: b.name + "_ref", Size: uint64(len(refBytes)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create ref buffer: %w", err)
	}
	defer dev.DestroyBuffer(refBuf)

	velBuf, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: b.name + "_velocity", Size: velSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create velocity buffer: %w", err)
	}
	defer dev.DestroyBuffer(velBuf)

	workBuf, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: b.name + "_work", Size: 4,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create work buffer: %w", err)
	}
	defer dev.DestroyBuffer(workBuf)

	velStaging, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: b.name + "_vel_staging", Size: velSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create velocity staging: %w", err)
	}
	defer dev.DestroyBuffer(velStaging)

	workStaging, err := dev.CreateBuffer(&hal.BufferDescriptor{
		Label: b.name + "_work_staging", Size: 4,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create work staging: %w", err)
	}

	queue.WriteBuffer(uniformBuf, 0, paramsBytes)
	queue.WriteBuffer(refBuf, 0, refBytes)
	queue.WriteBuffer(workBuf, 0, []byte{0, 0, 0, 0})

	bindGroup, err := dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: b.name + "_bind", Layout: b.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: uniformBuf.NativeHandle(), Offset: 0, Size: uint64(len(paramsBytes))}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: refBuf.NativeHandle(), Offset: 0, Size: uint64(len(refBytes))}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: velBuf.NativeHandle(), Offset: 0, Size: velSize}},
			{Binding: 3, Resource: gputypes.BufferBinding{Buffer: workBuf.NativeHandle(), Offset: 0, Size: 4}},
		},
	})
	if err != nil {
		dev.DestroyBuffer(workStaging)
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	defer dev.DestroyBindGroup(bindGroup)

	encoder, err := dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: b.name + "_encoder"})
	if err != nil {
		dev.DestroyBuffer(workStaging)
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(b.name); err != nil {
		dev.DestroyBuffer(workStaging)
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: b.name + "_pass"})
	pass.SetPipeline(b.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch((uint32(width)+7)/8, (uint32(height)+7)/8, 1)
	pass.End()
	encoder.CopyBufferToBuffer(velBuf, velStaging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: velSize}})
	encoder.CopyBufferToBuffer(workBuf, workStaging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: 4}})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		dev.DestroyBuffer(workStaging)
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer dev.FreeCommandBuffer(cmdBuf)

	fence, err := dev.CreateFence()
	if err != nil {
		dev.DestroyBuffer(workStaging)
		return nil, fmt.Errorf("create fence: %w", err)
	}
	defer dev.DestroyFence(fence)
	if err := queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		dev.DestroyBuffer(workStaging)
		return nil, fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := dev.Wait(fence, 1, fenceTimeout)
	if err != nil || !fenceOK {
		dev.DestroyBuffer(workStaging)
		return nil, fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}

	raw := make([]byte, velSize)
	if err := queue.ReadBuffer(velStaging, 0, raw); err != nil {
		dev.DestroyBuffer(workStaging)
		return nil, fmt.Errorf("velocity readback: %w", err)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer dev.DestroyBuffer(workStaging)
		counter := make([]byte, 4)
		if err := queue.ReadBuffer(workStaging, 0, counter); err != nil {
			log.Printf("[gpu] %s work counter readback failed: %v", b.name, err)
			return
		}
		work.Add(uint64(uint32(counter[0]) | uint32(counter[1])<<8 | uint32(counter[2])<<16 | uint32(counter[3])<<24))
	}()

	return unpackVelocities(raw, pixels), nil
}
