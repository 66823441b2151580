// Package notifyproto implements the userspace substitute for the
// notifier ABI spec.md §6.4 leaves to "the hosting environment": a
// supervised process's instrumented runtime calls notify(i32), which
// the original kernel module (kprobe + ioctl, see
// _examples/original_source/kernel-module) routes to the engine's
// observe. This package wires the same id across a Unix domain socket
// instead, so the engine is runnable and testable without a kernel
// module.
package notifyproto

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// messageSize is the wire size of one notify message: u32 pid, i32 id,
// u32 magic.
const messageSize = 12

// magic is a fixed sentinel that lets Server reject a connection that
// isn't speaking this protocol instead of silently misinterpreting
// garbage as a (pid, id) pair.
const magic uint32 = 0x4c435331 // "LCS1"

// ErrBadMagic is returned when a received message's magic field doesn't
// match, indicating a protocol mismatch or corrupted stream.
var ErrBadMagic = errors.New("notifyproto: bad magic in message")

// ErrShortMessage is returned when fewer than messageSize bytes were
// available to decode.
var ErrShortMessage = errors.New("notifyproto: short message")

// message is one notify(pid, id) wire record.
type message struct {
	PID uint32
	ID  int32
}

// encode packs m into its 12-byte wire form.
func (m message) encode() []byte {
	buf := make([]byte, messageSize)
	binary.LittleEndian.PutUint32(buf[0:4], m.PID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(m.ID))
	binary.LittleEndian.PutUint32(buf[8:12], magic)
	return buf
}

// decodeMessage unpacks buf, validating its length and magic.
func decodeMessage(buf []byte) (message, error) {
	if len(buf) < messageSize {
		return message{}, fmt.Errorf("%w: got %d bytes, want %d", ErrShortMessage, len(buf), messageSize)
	}
	got := binary.LittleEndian.Uint32(buf[8:12])
	if got != magic {
		return message{}, fmt.Errorf("%w: got %#x, want %#x", ErrBadMagic, got, magic)
	}
	return message{
		PID: binary.LittleEndian.Uint32(buf[0:4]),
		ID:  int32(binary.LittleEndian.Uint32(buf[4:8])),
	}, nil
}

// DefaultSocketPath is the Unix domain socket Server listens on, and
// Client dials, unless overridden.
const DefaultSocketPath = "/run/libcallsandbox/notify.sock"
