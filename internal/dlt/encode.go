package dlt

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Encode serializes msg in the exact reverse order Decoder.Next parsed it:
// storage header, standard header, header-extra fields (ECU, session-id,
// tmsp, converting session-id and tmsp back to big-endian), extended
// header, then payload. A round-trip of Decode-then-Encode on an
// unmodified message reproduces every input byte.
func Encode(w io.Writer, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("dlt: encode: nil message")
	}

	var storageBuf [StorageHeaderSize]byte
	copy(storageBuf[0:4], Magic[:])
	binary.LittleEndian.PutUint32(storageBuf[4:8], msg.Storage.Seconds)
	binary.LittleEndian.PutUint32(storageBuf[8:12], msg.Storage.Microseconds)
	copy(storageBuf[12:16], msg.Storage.EcuID[:])
	if _, err := w.Write(storageBuf[:]); err != nil {
		return err
	}

	var stdBuf [StandardHeaderSize]byte
	stdBuf[0] = msg.Standard.Htyp
	stdBuf[1] = msg.Standard.Mcnt
	binary.BigEndian.PutUint16(stdBuf[2:4], msg.Standard.Len)
	if _, err := w.Write(stdBuf[:]); err != nil {
		return err
	}

	if msg.Standard.Htyp&HtypWEID != 0 {
		if _, err := w.Write(msg.Extra.EcuID[:]); err != nil {
			return err
		}
	}
	if msg.Standard.Htyp&HtypWSID != 0 {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], msg.Extra.SessionID)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	if msg.Standard.Htyp&HtypWTMS != 0 {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], msg.Extra.Tmsp)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}

	if msg.Standard.Htyp&HtypUEH != 0 {
		if len(msg.ExtHeader) != ExtendedHeaderSize {
			return fmt.Errorf("dlt: encode: extended header must be %d bytes, got %d", ExtendedHeaderSize, len(msg.ExtHeader))
		}
		if _, err := w.Write(msg.ExtHeader); err != nil {
			return err
		}
	}

	if len(msg.Payload) > 0 {
		if _, err := w.Write(msg.Payload); err != nil {
			return err
		}
	}
	return nil
}

// RewriteTime overwrites the storage header's seconds/microseconds fields
// with the reconstructed absolute time t (microseconds since the epoch),
// as spec'd for the --timestamps flag. It mutates msg in place.
func RewriteTime(msg *Message, t int64) {
	msg.Storage.Seconds = uint32(t / 1_000_000)
	msg.Storage.Microseconds = uint32(t % 1_000_000)
	msg.RecvUsec = t
}
