// Package dlt implements the binary codec for DLT (Diagnostic Log and
// Trace) version 1 records: a storage header stamped by the logger,
// followed by a standard header and optional header-extra fields, an
// optional extended header, and a payload.
package dlt

import "errors"

// Magic is the 4-byte pattern that opens every storage header.
var Magic = [4]byte{'D', 'L', 'T', 0x01}

const (
	// StorageHeaderSize is the fixed size of the storage header: magic(4) +
	// seconds(4) + microseconds(4) + ecu(4).
	StorageHeaderSize = 16

	// StandardHeaderSize is the fixed size of the standard header: htyp(1) +
	// mcnt(1) + len(2).
	StandardHeaderSize = 4

	// ExtendedHeaderSize is the fixed size of the optional extended header.
	ExtendedHeaderSize = 10

	// extraFieldSize is the size of each of the ECU/session-id/tmsp
	// header-extra fields.
	extraFieldSize = 4
)

// htyp bit layout, matching the real DLT wire format.
const (
	HtypUEH       = 0x01
	HtypMSBF      = 0x02
	HtypWEID      = 0x04
	HtypWSID      = 0x08
	HtypWTMS      = 0x10
	HtypVersMask  = 0xE0
	HtypVersShift = 5
)

// Version returns the 3-bit version field carried in htyp bits 5-7.
func Version(htyp uint8) uint8 {
	return (htyp & HtypVersMask) >> HtypVersShift
}

// Sentinel errors for the taxonomy of spec §7. BadVersion/BadLength are
// per-record and never returned from Next: they are reported through the
// diagnostic sink and the decoder resumes scanning. Unsync/Truncated are
// terminal for the current stream.
var (
	ErrUnsync    = errors.New("dlt: unsynchronized: no sync pattern found in remaining data")
	ErrTruncated = errors.New("dlt: truncated record")
)

// StorageHeader is the logger-stamped envelope preceding every record.
type StorageHeader struct {
	Seconds      uint32
	Microseconds uint32
	EcuID        [4]byte
}

// StandardHeader is the framing header common to every record.
type StandardHeader struct {
	Htyp uint8
	Mcnt uint8
	Len  uint16
}

// HeaderExtra holds the optional header-extra fields selected by htyp.
type HeaderExtra struct {
	HasEcu    bool
	EcuID     [4]byte
	HasSess   bool
	SessionID uint32
	HasTmsp   bool
	Tmsp      uint32
}

// Message is one decoded DLT record, retaining every field required for
// faithful re-serialization.
type Message struct {
	Storage   StorageHeader
	Standard  StandardHeader
	Extra     HeaderExtra
	ExtHeader []byte // exactly ExtendedHeaderSize bytes when Standard.Htyp&HtypUEH != 0, else nil
	Payload   []byte

	// EcuID is the resolved bucketing key: the header-extra ECU id when
	// WEID is set, otherwise the storage header's ECU id.
	EcuID [4]byte

	// RecvUsec is the logger's absolute receive time derived from the
	// storage header, in microseconds since the epoch.
	RecvUsec int64

	// Tmsp is the ECU-local relative timestamp in 0.1ms ticks, or 0 when
	// WTMS was not set (spec: 0 means "no reliable relative time").
	Tmsp uint32
}

// EcuKey packs a 4-byte ECU id into a comparable 32-bit map key.
func EcuKey(id [4]byte) uint32 {
	return uint32(id[0])<<24 | uint32(id[1])<<16 | uint32(id[2])<<8 | uint32(id[3])
}
