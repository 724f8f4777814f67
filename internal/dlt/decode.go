package dlt

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mbehr1/dlt-sort/internal/config"
	"github.com/mbehr1/dlt-sort/internal/diag"
)

// Decoder is a lazy sequence of Messages parsed from a byte stream. It
// scans for the storage-header magic, skipping unmatched bytes one at a
// time, and reports malformed per-record framing through the diagnostic
// sink without aborting the stream.
type Decoder struct {
	r        *bufio.Reader
	sink     *diag.Sink
	source   string
	cfg      config.Config
	metrics  *diag.Metrics
	consumed int64
}

// NewDecoder returns a Decoder reading from r. source names the input for
// diagnostic messages (typically the file path). sink may be nil.
func NewDecoder(r io.Reader, source string, cfg config.Config, sink *diag.Sink) *Decoder {
	return &Decoder{
		r:      bufio.NewReaderSize(r, 64*1024),
		sink:   sink,
		source: source,
		cfg:    cfg,
	}
}

// SetMetrics attaches a metrics recorder that Next updates as it consumes
// bytes and messages.
func (d *Decoder) SetMetrics(m *diag.Metrics) {
	d.metrics = m
}

func (d *Decoder) warnf(level int, format string, args ...interface{}) {
	if d.sink == nil {
		return
	}
	d.sink.Warnf(level, format, args...)
}

// Next returns the next successfully parsed Message. It returns io.EOF when
// the stream ends cleanly at a record boundary, or an error wrapping
// ErrUnsync/ErrTruncated when the stream ends mid-scan or mid-record.
// Per-record BadVersion/BadLength conditions are reported and skipped
// internally; Next keeps scanning until it finds a good record or the
// stream ends.
func (d *Decoder) Next() (*Message, error) {
	for {
		if err := d.syncToMagic(); err != nil {
			return nil, err
		}

		storage, err := d.readStorageHeaderTail()
		if err != nil {
			return nil, fmt.Errorf("%w: storage header: %v", ErrTruncated, err)
		}

		std, err := d.readStandardHeader()
		if err != nil {
			return nil, fmt.Errorf("%w: standard header: %v", ErrTruncated, err)
		}
		d.consumed += StandardHeaderSize

		if int(std.Len) <= StandardHeaderSize {
			d.warnf(0, "%s: record length %d <= standard header size, skipping record", d.source, std.Len)
			continue
		}
		ver := Version(std.Htyp)
		if ver < d.cfg.HeaderVersionMin || ver > d.cfg.HeaderVersionMax {
			d.warnf(0, "%s: unsupported header version %d, skipping record", d.source, ver)
			continue
		}

		remaining := int(std.Len) - StandardHeaderSize

		extra, extraSize, err := d.readHeaderExtra(std.Htyp, remaining)
		if err != nil {
			return nil, fmt.Errorf("%w: header extra: %v", ErrTruncated, err)
		}
		remaining -= extraSize

		var extHeader []byte
		if std.Htyp&HtypUEH != 0 {
			if remaining < ExtendedHeaderSize {
				return nil, fmt.Errorf("%w: extended header", ErrTruncated)
			}
			extHeader = make([]byte, ExtendedHeaderSize)
			if _, err := io.ReadFull(d.r, extHeader); err != nil {
				return nil, fmt.Errorf("%w: extended header: %v", ErrTruncated, err)
			}
			d.consumed += ExtendedHeaderSize
			remaining -= ExtendedHeaderSize
		}

		if remaining < 0 {
			d.warnf(0, "%s: record declares a length shorter than its own header, skipping", d.source)
			continue
		}
		payload := make([]byte, remaining)
		if remaining > 0 {
			if _, err := io.ReadFull(d.r, payload); err != nil {
				return nil, fmt.Errorf("%w: payload: %v", ErrTruncated, err)
			}
			d.consumed += int64(remaining)
		}

		ecuID := storage.EcuID
		if extra.HasEcu {
			ecuID = extra.EcuID
		}

		msg := &Message{
			Storage:   storage,
			Standard:  std,
			Extra:     extra,
			ExtHeader: extHeader,
			Payload:   payload,
			EcuID:     ecuID,
			RecvUsec:  int64(storage.Seconds)*1_000_000 + int64(storage.Microseconds),
			Tmsp:      extra.Tmsp,
		}

		if d.metrics != nil {
			d.metrics.AddMessage(int64(StorageHeaderSize) + int64(std.Len))
		}

		return msg, nil
	}
}

// syncToMagic scans forward one byte at a time until it finds Magic,
// leaving the reader positioned immediately after it. It returns io.EOF if
// the stream ends before any bytes are read, or a wrapped ErrUnsync if
// bytes were skipped but no magic was found before EOF.
func (d *Decoder) syncToMagic() error {
	var window [4]byte
	filled := 0
	skipped := int64(0)

	for {
		b, err := d.r.ReadByte()
		if err != nil {
			if filled == 0 && skipped == 0 {
				return io.EOF
			}
			return fmt.Errorf("%w after skipping %d bytes", ErrUnsync, skipped)
		}
		if filled < 4 {
			window[filled] = b
			filled++
		} else {
			window[0] = window[1]
			window[1] = window[2]
			window[2] = window[3]
			window[3] = b
			skipped++
		}
		if filled == 4 && window == Magic {
			if skipped > 0 {
				d.warnf(0, "%s: skipped %d bytes to resynchronize on storage header magic", d.source, skipped)
				if d.metrics != nil {
					d.metrics.AddBytes(skipped)
					d.metrics.IncResync()
				}
			}
			d.consumed += 4
			return nil
		}
	}
}

func (d *Decoder) readStorageHeaderTail() (StorageHeader, error) {
	var buf [StorageHeaderSize - 4]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return StorageHeader{}, err
	}
	d.consumed += int64(len(buf))
	var sh StorageHeader
	sh.Seconds = binary.LittleEndian.Uint32(buf[0:4])
	sh.Microseconds = binary.LittleEndian.Uint32(buf[4:8])
	copy(sh.EcuID[:], buf[8:12])
	return sh, nil
}

func (d *Decoder) readStandardHeader() (StandardHeader, error) {
	var buf [StandardHeaderSize]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return StandardHeader{}, err
	}
	return StandardHeader{
		Htyp: buf[0],
		Mcnt: buf[1],
		Len:  binary.BigEndian.Uint16(buf[2:4]),
	}, nil
}

// readHeaderExtra reads, in the fixed order ECU/session-id/tmsp, whichever
// fields htyp selects, provided budget bytes remain in the declared record
// length. It returns the bytes actually consumed.
func (d *Decoder) readHeaderExtra(htyp uint8, budget int) (HeaderExtra, int, error) {
	var extra HeaderExtra
	consumed := 0

	readField := func() ([4]byte, error) {
		var buf [extraFieldSize]byte
		if consumed+extraFieldSize > budget {
			return buf, errors.New("declared length too short for header extra")
		}
		if _, err := io.ReadFull(d.r, buf[:]); err != nil {
			return buf, err
		}
		d.consumed += extraFieldSize
		consumed += extraFieldSize
		return buf, nil
	}

	if htyp&HtypWEID != 0 {
		buf, err := readField()
		if err != nil {
			return extra, consumed, err
		}
		extra.HasEcu = true
		extra.EcuID = buf
	}
	if htyp&HtypWSID != 0 {
		buf, err := readField()
		if err != nil {
			return extra, consumed, err
		}
		extra.HasSess = true
		extra.SessionID = binary.BigEndian.Uint32(buf[:])
	}
	if htyp&HtypWTMS != 0 {
		buf, err := readField()
		if err != nil {
			return extra, consumed, err
		}
		extra.HasTmsp = true
		extra.Tmsp = binary.BigEndian.Uint32(buf[:])
	}
	return extra, consumed, nil
}
