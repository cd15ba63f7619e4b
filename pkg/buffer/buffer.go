package buffer

import (
	"time"

	"github.com/OpenRTM/RTM-Tutorial-sub001/properties"
)

// Status is the result of a buffer operation. Full, empty and timeout are
// ordinary outcomes reported here, never errors.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusFull
	StatusEmpty
	StatusNotSupported
	StatusTimeout
	StatusPreconditionNotMet
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "BUFFER_OK"
	case StatusError:
		return "BUFFER_ERROR"
	case StatusFull:
		return "BUFFER_FULL"
	case StatusEmpty:
		return "BUFFER_EMPTY"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusPreconditionNotMet:
		return "PRECONDITION_NOT_MET"
	default:
		return "UNKNOWN"
	}
}

// UseDefault makes Write and Read use the configured write.timeout / read.timeout.
const UseDefault time.Duration = -1

// Buffer is a fixed-capacity ring of items with independent read and write
// cursors. Put and Get operate at the cursors without moving them; Write and
// Read move them. AdvanceWptr and AdvanceRptr commit staged puts and peeked gets.
type Buffer[T any] interface {
	// Init applies the buffer properties: length, write.full_policy, write.timeout,
	// read.empty_policy, read.timeout.
	Init(props properties.Properties)

	// Length returns the capacity
	Length() int

	// SetLength changes the capacity; only allowed while the buffer is empty.
	SetLength(n int) Status

	// Reset drops every item and rewinds both cursors
	Reset() Status

	// Write stores v and advances the write cursor, applying the full policy.
	Write(v T, timeout time.Duration) Status

	// Read returns the item at the read cursor and advances it, applying the empty policy.
	Read(timeout time.Duration) (T, Status)

	// Put stores v at the write cursor without advancing it.
	Put(v T) Status

	// Get returns the item at the read cursor without advancing it.
	Get() (T, Status)

	// AdvanceWptr moves the write cursor by n slots (negative n moves back).
	AdvanceWptr(n int) Status

	// AdvanceRptr moves the read cursor by n slots (negative n moves back).
	AdvanceRptr(n int) Status

	// Writable returns the number of free slots
	Writable() int

	// Readable returns the number of unread items
	Readable() int

	// Full reports whether no slot is free
	Full() bool

	// Empty reports whether no item is unread
	Empty() bool

	// Stats returns buffer statistics (always collected)
	Stats() *Statistics

	// Close wakes blocked callers; later operations return StatusError.
	Close() error
}

// OverflowPolicy defines how Write behaves when the buffer is full.
type OverflowPolicy int

const (
	// DropOldest overwrites the oldest unread item ("overwrite").
	DropOldest OverflowPolicy = iota

	// DropNewest rejects the new item with StatusFull ("do_nothing").
	DropNewest

	// Block waits for a free slot up to the write timeout ("block").
	Block
)

// String returns the property value naming the policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "overwrite"
	case DropNewest:
		return "do_nothing"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// ParseOverflowPolicy maps write.full_policy values. Unknown values fall back to DropOldest.
func ParseOverflowPolicy(s string) (OverflowPolicy, bool) {
	switch properties.Normalize(s) {
	case "overwrite":
		return DropOldest, true
	case "do_nothing":
		return DropNewest, true
	case "block":
		return Block, true
	default:
		return DropOldest, false
	}
}

// UnderflowPolicy defines how Read behaves when the buffer is empty.
type UnderflowPolicy int

const (
	// ReturnEmpty reports StatusEmpty ("do_nothing").
	ReturnEmpty UnderflowPolicy = iota

	// ReadBack re-reads the most recently read item when one exists ("readback").
	ReadBack

	// BlockEmpty waits for an item up to the read timeout ("block").
	BlockEmpty
)

// String returns the property value naming the policy.
func (p UnderflowPolicy) String() string {
	switch p {
	case ReturnEmpty:
		return "do_nothing"
	case ReadBack:
		return "readback"
	case BlockEmpty:
		return "block"
	default:
		return "unknown"
	}
}

// ParseUnderflowPolicy maps read.empty_policy values. Unknown values fall back to ReturnEmpty.
func ParseUnderflowPolicy(s string) (UnderflowPolicy, bool) {
	switch properties.Normalize(s) {
	case "do_nothing":
		return ReturnEmpty, true
	case "readback":
		return ReadBack, true
	case "block":
		return BlockEmpty, true
	default:
		return ReturnEmpty, false
	}
}

// DropCallback is called with the item discarded by the DropOldest policy.
type DropCallback[T any] func(item T)
