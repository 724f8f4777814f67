package dlt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/mbehr1/dlt-sort/internal/config"
)

// buildRecord assembles a well-formed record with WEID+WTMS set and no
// extended header, returning the raw bytes.
func buildRecord(ecu [4]byte, seconds, micros uint32, tmsp uint32, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	var storageTail [12]byte
	binary.LittleEndian.PutUint32(storageTail[0:4], seconds)
	binary.LittleEndian.PutUint32(storageTail[4:8], micros)
	copy(storageTail[8:12], ecu[:])
	buf.Write(storageTail[:])

	htyp := uint8(HtypWEID | HtypWTMS | (1 << HtypVersShift))
	extraLen := 8 // ecu(4) + tmsp(4)
	length := StandardHeaderSize + extraLen + len(payload)

	var std [4]byte
	std[0] = htyp
	std[1] = 0
	binary.BigEndian.PutUint16(std[2:4], uint16(length))
	buf.Write(std[:])

	buf.Write(ecu[:])
	var tmspBuf [4]byte
	binary.BigEndian.PutUint32(tmspBuf[:], tmsp)
	buf.Write(tmspBuf[:])
	buf.Write(payload)
	return buf.Bytes()
}

func TestDecodeSingleRecord(t *testing.T) {
	ecu := [4]byte{'E', 'C', 'U', '1'}
	raw := buildRecord(ecu, 100, 250, 500, []byte("hello"))

	dec := NewDecoder(bytes.NewReader(raw), "test", config.Default(), nil)
	msg, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if msg.EcuID != ecu {
		t.Fatalf("EcuID = %v, want %v", msg.EcuID, ecu)
	}
	if msg.Tmsp != 500 {
		t.Fatalf("Tmsp = %d, want 500", msg.Tmsp)
	}
	if msg.RecvUsec != 100*1_000_000+250 {
		t.Fatalf("RecvUsec = %d, want %d", msg.RecvUsec, 100*1_000_000+250)
	}
	if !bytes.Equal(msg.Payload, []byte("hello")) {
		t.Fatalf("Payload = %q", msg.Payload)
	}

	if _, err := dec.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at end, got %v", err)
	}
}

func TestDecodeSkipsGarbageBeforeMagic(t *testing.T) {
	ecu := [4]byte{'E', 'C', 'U', '2'}
	raw := buildRecord(ecu, 1, 2, 10, []byte("x"))
	garbage := append([]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00}, raw...)

	dec := NewDecoder(bytes.NewReader(garbage), "test", config.Default(), nil)
	msg, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if msg.EcuID != ecu {
		t.Fatalf("EcuID = %v, want %v", msg.EcuID, ecu)
	}
}

func TestDecodeUnsyncTerminal(t *testing.T) {
	dec := NewDecoder(bytes.NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}), "test", config.Default(), nil)
	_, err := dec.Next()
	if !errors.Is(err, ErrUnsync) {
		t.Fatalf("expected ErrUnsync, got %v", err)
	}
}

func TestDecodeCleanEOFWithNoData(t *testing.T) {
	dec := NewDecoder(bytes.NewReader(nil), "test", config.Default(), nil)
	_, err := dec.Next()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestDecodeTruncatedMidRecord(t *testing.T) {
	ecu := [4]byte{'E', 'C', 'U', '3'}
	raw := buildRecord(ecu, 1, 2, 10, []byte("payload-data"))
	truncated := raw[:len(raw)-4]

	dec := NewDecoder(bytes.NewReader(truncated), "test", config.Default(), nil)
	_, err := dec.Next()
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeSkipsBadVersionThenReadsNext(t *testing.T) {
	ecu := [4]byte{'E', 'C', 'U', '4'}
	bad := buildRecord(ecu, 1, 2, 10, []byte("bad"))
	// corrupt the version bits (byte offset 16 = htyp, the first byte of this
	// record's standard header after magic(4)+storageTail(12)).
	bad[16] = 0 // version 0, out of [1,1]
	good := buildRecord(ecu, 3, 4, 20, []byte("good"))

	dec := NewDecoder(bytes.NewReader(append(bad, good...)), "test", config.Default(), nil)
	msg, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !bytes.Equal(msg.Payload, []byte("good")) {
		t.Fatalf("Payload = %q, want %q (bad-version record should have been skipped)", msg.Payload, "good")
	}
}

func TestDecodeSkipsBadLengthThenReadsNext(t *testing.T) {
	ecu := [4]byte{'E', 'C', 'U', '5'}
	bad := buildRecord(ecu, 1, 2, 10, nil)
	// force len <= StandardHeaderSize
	binary.BigEndian.PutUint16(bad[18:20], uint16(StandardHeaderSize))
	good := buildRecord(ecu, 3, 4, 20, []byte("good"))

	dec := NewDecoder(bytes.NewReader(append(bad, good...)), "test", config.Default(), nil)
	msg, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !bytes.Equal(msg.Payload, []byte("good")) {
		t.Fatalf("Payload = %q, want %q", msg.Payload, "good")
	}
}

func TestRoundTripDecodeEncode(t *testing.T) {
	ecu := [4]byte{'E', 'C', 'U', '6'}
	raw := buildRecord(ecu, 42, 7, 12345, []byte("round-trip-payload"))

	dec := NewDecoder(bytes.NewReader(raw), "test", config.Default(), nil)
	msg, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	var out bytes.Buffer
	if err := Encode(&out, msg); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(out.Bytes(), raw) {
		t.Fatalf("round trip mismatch:\n got  %x\n want %x", out.Bytes(), raw)
	}
}

func TestRewriteTimeThenEncode(t *testing.T) {
	ecu := [4]byte{'E', 'C', 'U', '7'}
	raw := buildRecord(ecu, 100, 0, 100, []byte("p"))

	dec := NewDecoder(bytes.NewReader(raw), "test", config.Default(), nil)
	msg, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	RewriteTime(msg, 5_000_123)

	var out bytes.Buffer
	if err := Encode(&out, msg); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if bytes.Equal(out.Bytes(), raw) {
		t.Fatalf("expected rewritten output to differ from original")
	}

	dec2 := NewDecoder(bytes.NewReader(out.Bytes()), "test", config.Default(), nil)
	msg2, err := dec2.Next()
	if err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if msg2.RecvUsec != 5_000_123 {
		t.Fatalf("RecvUsec after rewrite = %d, want 5000123", msg2.RecvUsec)
	}
}
