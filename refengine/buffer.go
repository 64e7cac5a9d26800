package refengine

import (
	"errors"
	"fmt"

	"github.com/rgbflow/denoisegraph/engine"
)

// ErrOutOfRange is returned by Read/Write when offset/byteSize exceed the
// buffer's bounds.
var ErrOutOfRange = errors.New("refengine: read/write out of buffer bounds")

// hostBuffer is a host-memory-backed engine.Buffer: reads and writes are
// plain slice copies, Map/Unmap are no-ops since the bytes are already
// host-addressable.
type hostBuffer struct {
	data []byte
}

func newHostBuffer(byteSize int) *hostBuffer {
	return &hostBuffer{data: make([]byte, byteSize)}
}

func (b *hostBuffer) Data() []byte { return b.data }

func (b *hostBuffer) ByteSize() int { return len(b.data) }

func (b *hostBuffer) Storage() engine.Storage { return engine.StorageHost }

func (b *hostBuffer) Map() error   { return nil }
func (b *hostBuffer) Unmap() error { return nil }

func (b *hostBuffer) Read(offset, byteSize int, host []byte, mode engine.SyncMode) error {
	if offset < 0 || byteSize < 0 || offset+byteSize > len(b.data) {
		return fmt.Errorf("%w: read [%d,%d) in buffer of size %d", ErrOutOfRange, offset, offset+byteSize, len(b.data))
	}
	copy(host, b.data[offset:offset+byteSize])
	return nil
}

func (b *hostBuffer) Write(offset, byteSize int, host []byte, mode engine.SyncMode) error {
	if offset < 0 || byteSize < 0 || offset+byteSize > len(b.data) {
		return fmt.Errorf("%w: write [%d,%d) in buffer of size %d", ErrOutOfRange, offset, offset+byteSize, len(b.data))
	}
	copy(b.data[offset:offset+byteSize], host[:byteSize])
	return nil
}

func (b *hostBuffer) Realloc(newByteSize int) error {
	b.data = make([]byte, newByteSize)
	return nil
}
