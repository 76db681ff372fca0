//go:build !nogpu

package wgpu

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/seabeeberry/Graphite/internal/backend"
)

func init() {
	backend.Register(&gpuBackend{})
}

// gpuBackend runs fused programs as wgpu/hal compute dispatches. Device
// setup is deferred until the first Available check, so hosts without a GPU
// pay nothing and fall through to the software backend.
type gpuBackend struct {
	mu       sync.Mutex
	initOnce sync.Once

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	ready    bool
}

func (b *gpuBackend) Name() string { return "wgpu" }

func (b *gpuBackend) Available() bool {
	b.initOnce.Do(func() {
		if err := b.initGPU(); err != nil {
			b.ready = false
		}
	})
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func (b *gpuBackend) initGPU() error {
	hb, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := hb.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("no GPU adapters found")
	}
	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("open device: %w", err)
	}

	b.mu.Lock()
	b.instance = instance
	b.device = openDev.Device
	b.queue = openDev.Queue
	b.ready = true
	b.mu.Unlock()
	return nil
}

func (b *gpuBackend) Submit(ctx context.Context, prog *backend.Program, inputs []float64) (*backend.Pending, error) {
	if !b.Available() {
		return nil, fmt.Errorf("%w: wgpu device not initialized", backend.ErrBackendUnavailable)
	}
	p := backend.NewPending()
	go func() {
		out, err := b.dispatch(prog, inputs)
		p.Complete(out, err)
	}()
	return p, nil
}

// dispatch compiles the program's shader, binds the input and output
// buffers, and runs a single workgroup. One submit, one fence wait.
func (b *gpuBackend) dispatch(prog *backend.Program, inputs []float64) ([]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	shader, err := b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "fused_run",
		Source: hal.ShaderSource{WGSL: backend.WGSL(prog)},
	})
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	defer b.device.DestroyShaderModule(shader)

	bindLayout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "fused_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group layout: %w", err)
	}
	defer b.device.DestroyBindGroupLayout(bindLayout)

	pipeLayout, err := b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "fused_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}
	defer b.device.DestroyPipelineLayout(pipeLayout)

	pipeline, err := b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "fused_pipeline", Layout: pipeLayout,
		Compute: hal.ComputeState{Module: shader, EntryPoint: "main"},
	})
	if err != nil {
		return nil, fmt.Errorf("create compute pipeline: %w", err)
	}
	defer b.device.DestroyComputePipeline(pipeline)

	inBytes := packScalars(inputs)
	if len(inBytes) == 0 {
		inBytes = make([]byte, 4) // zero-sized bindings are rejected
	}
	outSize := uint64(len(prog.Steps) * 4)

	inBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "fused_in", Size: uint64(len(inBytes)),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create input buffer: %w", err)
	}
	defer b.device.DestroyBuffer(inBuf)

	outBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "fused_out", Size: outSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create output buffer: %w", err)
	}
	defer b.device.DestroyBuffer(outBuf)

	stagingBuf, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "fused_staging", Size: outSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer b.device.DestroyBuffer(stagingBuf)

	b.queue.WriteBuffer(inBuf, 0, inBytes)

	bindGroup, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "fused_bind", Layout: bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: inBuf.NativeHandle(), Offset: 0, Size: uint64(len(inBytes))}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: outBuf.NativeHandle(), Offset: 0, Size: outSize}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	defer b.device.DestroyBindGroup(bindGroup)

	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "fused_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("fused_run"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "fused_pass"})
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch(1, 1, 1)
	pass.End()
	encoder.CopyBufferToBuffer(outBuf, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: outSize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer b.device.FreeCommandBuffer(cmdBuf)

	fence, err := b.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	defer b.device.DestroyFence(fence)
	if err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := b.device.Wait(fence, 1, 5*time.Second)
	if err != nil || !fenceOK {
		return nil, fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}

	readback := make([]byte, outSize)
	if err := b.queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return unpackScalars(readback), nil
}

func packScalars(vals []float64) []byte {
	out := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(v)))
	}
	return out
}

func unpackScalars(data []byte) []float64 {
	out := make([]float64, len(data)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return out
}
