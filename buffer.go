package compute

import (
	"errors"
	"fmt"

	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/handle"
)

// Buffer is a handle to a device buffer and its staging twin.
// The zero Buffer is never valid.
type Buffer struct {
	h handle.Handle
}

// IsZero reports whether b is the zero Buffer.
func (b Buffer) IsZero() bool { return b.h.IsZero() }

func (b Buffer) String() string {
	return fmt.Sprintf("buffer(%d#%d)", b.h.Index(), b.h.Generation())
}

// Buffer allocates a buffer of length elements of elemSize bytes each.
// The device half is visible to kernels, the staging half is used by
// Write and Read. Both start zeroed.
func (e *Engine) Buffer(length, elemSize int) (Buffer, error) {
	if length <= 0 || elemSize <= 0 {
		return Buffer{}, fmt.Errorf("%w: buffer of %d elements of %d bytes", ErrInvalidArgument, length, elemSize)
	}
	if err := e.lock(); err != nil {
		return Buffer{}, err
	}
	defer e.mu.Unlock()

	if uint64(length) > e.limits.MaxBufferSize/uint64(elemSize) {
		return Buffer{}, fmt.Errorf("%w: %d x %d bytes exceeds max buffer size %d",
			ErrAllocation, length, elemSize, e.limits.MaxBufferSize)
	}

	size := length * elemSize
	b, err := e.createBuffer(size)
	if err != nil {
		return Buffer{}, err
	}
	h := e.buffers.Insert(b)
	e.stats.BufferBytes += int64(size)
	e.log.Debug("compute: buffer created", "size", size, "slot", h.Index())
	return Buffer{h: h}, nil
}

// createBuffer allocates both halves or neither.
func (e *Engine) createBuffer(size int) (storageBuffer, error) {
	n := uint64(size) //nolint:gosec // size > 0
	dev, err := e.dev.CreateBuffer(&gpucore.BufferDesc{
		Label: e.label + "_storage",
		Size:  n,
		Usage: gpucore.UsageDeviceStorage,
	})
	if err != nil {
		return storageBuffer{}, allocationError("device", err)
	}
	staging, err := e.dev.CreateBuffer(&gpucore.BufferDesc{
		Label: e.label + "_staging",
		Size:  n,
		Usage: gpucore.UsageStaging,
	})
	if err != nil {
		e.dev.DestroyBuffer(dev)
		return storageBuffer{}, allocationError("staging", err)
	}
	return storageBuffer{device: dev, staging: staging, size: size}, nil
}

func allocationError(half string, err error) error {
	if errors.Is(err, gpucore.ErrOutOfMemory) {
		return fmt.Errorf("%w: %s half: %w", ErrAllocation, half, err)
	}
	return fmt.Errorf("%w: %s half: %w: %w", ErrAllocation, half, ErrDevice, err)
}

func (e *Engine) destroyBuffer(b storageBuffer) {
	e.dev.DestroyBuffer(b.staging)
	e.dev.DestroyBuffer(b.device)
	e.stats.BufferBytes -= int64(b.size)
}

// FreeBuffer releases both halves of b. The handle, and every copy of it,
// is invalid afterwards.
func (e *Engine) FreeBuffer(b Buffer) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	sb, err := e.buffers.Remove(b.h)
	if err != nil {
		return notFound(b.String(), err)
	}
	e.destroyBuffer(sb)
	return nil
}

// BufferSize returns the size of b in bytes.
func (e *Engine) BufferSize(b Buffer) (int, error) {
	if err := e.lock(); err != nil {
		return 0, err
	}
	defer e.mu.Unlock()

	sb, err := e.buffers.Get(b.h)
	if err != nil {
		return 0, notFound(b.String(), err)
	}
	return sb.size, nil
}

// Write copies data into b. len(data) must equal the buffer size.
func (e *Engine) Write(b Buffer, data []byte) error {
	return e.upload(b, data, true)
}

// Upload copies data into the start of b. The rest of the buffer keeps
// its contents. len(data) must be between 1 and the buffer size.
func (e *Engine) Upload(b Buffer, data []byte) error {
	return e.upload(b, data, false)
}

// Read copies the contents of b into out. len(out) must equal the buffer size.
func (e *Engine) Read(b Buffer, out []byte) error {
	return e.download(b, out, true)
}

// Download copies the first len(out) bytes of b into out.
// len(out) must be between 1 and the buffer size.
func (e *Engine) Download(b Buffer, out []byte) error {
	return e.download(b, out, false)
}

// checkLen validates a transfer length against a buffer size.
func checkLen(n, size int, exact bool) error {
	switch {
	case exact && n != size:
		return fmt.Errorf("%w: %d bytes for a %d-byte buffer", ErrSizeMismatch, n, size)
	case !exact && (n == 0 || n > size):
		return fmt.Errorf("%w: %d bytes for a %d-byte buffer", ErrSizeMismatch, n, size)
	}
	return nil
}

func (e *Engine) upload(b Buffer, data []byte, exact bool) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	sb, err := e.buffers.Get(b.h)
	if err != nil {
		return notFound(b.String(), err)
	}
	if err := checkLen(len(data), sb.size, exact); err != nil {
		return err
	}

	mapped, err := e.dev.MapBuffer(sb.staging)
	if err != nil {
		return fmt.Errorf("%w: map staging: %w", ErrDevice, err)
	}
	copy(mapped, data)
	if err := e.dev.UnmapBuffer(sb.staging); err != nil {
		return fmt.Errorf("%w: unmap staging: %w", ErrDevice, err)
	}
	return e.transfer(sb.staging, sb.device, len(data))
}

func (e *Engine) download(b Buffer, out []byte, exact bool) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	sb, err := e.buffers.Get(b.h)
	if err != nil {
		return notFound(b.String(), err)
	}
	if err := checkLen(len(out), sb.size, exact); err != nil {
		return err
	}

	if err := e.transfer(sb.device, sb.staging, len(out)); err != nil {
		return err
	}
	mapped, err := e.dev.MapBuffer(sb.staging)
	if err != nil {
		return fmt.Errorf("%w: map staging: %w", ErrDevice, err)
	}
	copy(out, mapped)
	if err := e.dev.UnmapBuffer(sb.staging); err != nil {
		return fmt.Errorf("%w: unmap staging: %w", ErrDevice, err)
	}
	return nil
}

// transfer copies n bytes from offset 0 of src to dst and waits for the
// copy to complete.
func (e *Engine) transfer(src, dst gpucore.BufferID, n int) error {
	enc, err := e.dev.BeginCommands(e.cmd)
	if err != nil {
		return fmt.Errorf("%w: begin transfer: %w", ErrDevice, err)
	}
	enc.CopyBuffer(src, dst, uint64(n)) //nolint:gosec // n > 0
	if err := enc.Finish(); err != nil {
		return fmt.Errorf("%w: record transfer: %w", ErrDevice, err)
	}
	if err := e.submit(); err != nil {
		return err
	}
	e.stats.Transfers++
	e.log.Debug("compute: transfer", "src", src, "dst", dst, "bytes", n)
	return nil
}
