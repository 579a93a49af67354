package eventlog

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// BundleMagic identifies the harness family. Any file not starting with
// this exact sequence is not a bundle this harness produced.
var BundleMagic = [4]byte{'V', 'W', 'H', 'B'}

// BundleFormatVersion is the current on-disk bundle layout version.
// Cross-version replay must check this and refuse rather than guess.
const BundleFormatVersion uint16 = 1

// FailureInfo is the optional trailing block describing why a bundle was
// captured.
type FailureInfo struct {
	InvariantName     string
	ViolationSummary  string
	EventIndex        uint64
	SnapshotDigest    [32]byte
}

// Bundle is a self-contained, immutable artifact sufficient to
// deterministically replay one failing (or on-demand) run.
type Bundle struct {
	HarnessVersion string
	Seed           uint64
	ScenarioID     string
	Log            *Log
	Failure        *FailureInfo // nil when captured on demand, not on violation
}

// Write serializes the bundle to the framed binary format described in
// the repro bundle section of the external-interfaces spec.
func (b *Bundle) Write() ([]byte, error) {
	var buf bytes.Buffer

	buf.Write(BundleMagic[:])
	writeUint16(&buf, BundleFormatVersion)
	writeString(&buf, b.HarnessVersion)
	writeUint64(&buf, b.Seed)
	writeString(&buf, b.ScenarioID)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("eventlog: constructing zstd encoder: %w", err)
	}
	compressed := enc.EncodeAll(b.Log.Encode(), nil)
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("eventlog: closing zstd encoder: %w", err)
	}
	writeBytes(&buf, compressed)

	if b.Failure != nil {
		buf.WriteByte(1)
		writeString(&buf, b.Failure.InvariantName)
		writeString(&buf, b.Failure.ViolationSummary)
		writeUint64(&buf, b.Failure.EventIndex)
		buf.Write(b.Failure.SnapshotDigest[:])
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes(), nil
}

// ReadBundle parses bytes produced by Write. A magic or version mismatch
// is refused explicitly; it never attempts a best-effort decode.
func ReadBundle(data []byte, capacity int, policy OverflowPolicy) (*Bundle, error) {
	r := &byteReader{data: data}

	var magic [4]byte
	if err := r.readN(magic[:]); err != nil {
		return nil, fmt.Errorf("eventlog: reading magic: %w", err)
	}
	if magic != BundleMagic {
		return nil, fmt.Errorf("eventlog: bad magic %x, refusing to guess", magic)
	}

	version, err := r.readUint16()
	if err != nil {
		return nil, fmt.Errorf("eventlog: reading format version: %w", err)
	}
	if version != BundleFormatVersion {
		return nil, fmt.Errorf("eventlog: bundle format version %d is not the supported version %d, refusing to replay", version, BundleFormatVersion)
	}

	harnessVersion, err := r.readString()
	if err != nil {
		return nil, fmt.Errorf("eventlog: reading harness version: %w", err)
	}

	seed, err := r.readUint64()
	if err != nil {
		return nil, fmt.Errorf("eventlog: reading seed: %w", err)
	}

	scenarioID, err := r.readString()
	if err != nil {
		return nil, fmt.Errorf("eventlog: reading scenario id: %w", err)
	}

	compressed, err := r.readBytes()
	if err != nil {
		return nil, fmt.Errorf("eventlog: reading compressed event log: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("eventlog: constructing zstd decoder: %w", err)
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("eventlog: decompressing event log: %w", err)
	}

	log, err := Decode(raw, capacity, policy)
	if err != nil {
		return nil, fmt.Errorf("eventlog: decoding event log: %w", err)
	}

	hasFailure, err := r.readByte()
	if err != nil {
		return nil, fmt.Errorf("eventlog: reading failure-info marker: %w", err)
	}

	bundle := &Bundle{
		HarnessVersion: harnessVersion,
		Seed:           seed,
		ScenarioID:     scenarioID,
		Log:            log,
	}

	if hasFailure == 1 {
		name, err := r.readString()
		if err != nil {
			return nil, fmt.Errorf("eventlog: reading invariant name: %w", err)
		}
		summary, err := r.readString()
		if err != nil {
			return nil, fmt.Errorf("eventlog: reading violation summary: %w", err)
		}
		idx, err := r.readUint64()
		if err != nil {
			return nil, fmt.Errorf("eventlog: reading event index: %w", err)
		}
		var digest [32]byte
		if err := r.readN(digest[:]); err != nil {
			return nil, fmt.Errorf("eventlog: reading snapshot digest: %w", err)
		}
		bundle.Failure = &FailureInfo{
			InvariantName:    name,
			ViolationSummary: summary,
			EventIndex:       idx,
			SnapshotDigest:   digest,
		}
	}

	return bundle, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeBytes(buf *bytes.Buffer, data []byte) {
	writeUint64(buf, uint64(len(data)))
	buf.Write(data)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) readN(dst []byte) error {
	if r.pos+len(dst) > len(r.data) {
		return fmt.Errorf("unexpected end of bundle at offset %d", r.pos)
	}
	copy(dst, r.data[r.pos:r.pos+len(dst)])
	r.pos += len(dst)
	return nil
}

func (r *byteReader) readByte() (byte, error) {
	var b [1]byte
	if err := r.readN(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *byteReader) readUint16() (uint16, error) {
	var b [2]byte
	if err := r.readN(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func (r *byteReader) readUint64() (uint64, error) {
	var b [8]byte
	if err := r.readN(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (r *byteReader) readBytes() ([]byte, error) {
	n, err := r.readUint64()
	if err != nil {
		return nil, err
	}
	if r.pos+int(n) > len(r.data) {
		return nil, fmt.Errorf("unexpected end of bundle at offset %d (need %d bytes)", r.pos, n)
	}
	out := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

func (r *byteReader) readString() (string, error) {
	b, err := r.readBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
