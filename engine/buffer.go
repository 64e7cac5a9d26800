// Buffer, Storage and SyncMode are the memory-abstraction half of the
// engine interface: a Buffer is a standalone, reusable allocation rather
// than a tensor-bound method set, since several tensors may be slices of
// the same underlying buffer.
package engine

// Storage selects where a Buffer's bytes physically live.
type Storage int

const (
	StorageHost Storage = iota
	StorageDevice
	StorageShared
)

// SyncMode controls whether Buffer.Read/Write block until the transfer
// completes or return immediately, leaving completion to the engine's own
// ordering guarantees (see spec §5, "Suspension points").
type SyncMode int

const (
	Sync SyncMode = iota
	Async
)

// Buffer is a contiguous region of device/host/shared memory. The scratch
// arena the Graph plans into is one Buffer; transient tensors are views at a
// byte offset into it.
type Buffer interface {
	// Data returns the host-addressable bytes of this buffer, if any
	// (nil for device-only storage that requires Read/Write).
	Data() []byte

	ByteSize() int
	Storage() Storage

	// Map/Unmap make device storage host-addressable for the duration
	// between calls; a no-op pair for host/shared storage.
	Map() error
	Unmap() error

	// Read copies byteSize bytes starting at offset into host. Write
	// copies byteSize bytes from host into the buffer at offset.
	Read(offset, byteSize int, host []byte, mode SyncMode) error
	Write(offset, byteSize int, host []byte, mode SyncMode) error

	// Realloc resizes the buffer, destroying its contents. Callers
	// holding byte offsets into the old contents must not reuse them.
	Realloc(newByteSize int) error
}
