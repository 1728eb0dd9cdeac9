// Package gpu implements the accelerated render backends on the wgpu
// hardware abstraction layer: a float32 tier and a double-single tier
// sharing one compute device. Both tiers color on the CPU; the device
// only produces per-pixel escape velocities.
package gpu

import (
	"fmt"
	"log"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

// Device owns the hal instance, device and queue shared by the GPU
// tiers. Opening happens at most once; the outcome is cached for the
// process lifetime.
type Device struct {
	once sync.Once
	err  error

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string
}

func (d *Device) acquire() error {
	d.once.Do(func() { d.err = d.open() })
	return d.err
}

func (d *Device) open() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("open device: %w", err)
	}
	d.instance = instance
	d.device = openDev.Device
	d.queue = openDev.Queue
	d.adapter = selected.Info.Name
	log.Printf("[gpu] device opened (%s)", d.adapter)
	return nil
}

// Close releases the device and instance. Backends holding pipelines on
// this device must be closed first.
func (d *Device) Close() {
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
		d.queue = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
}
