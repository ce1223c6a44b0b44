// Package cache implements the classification engine's output contract:
// a header followed by a bit-packed payload of two bits per packet. The
// writer accumulates decisions in packet order and serializes them once,
// atomically, at the end of a run; the reader round-trips the same bytes
// back into decisions and comment, verifying the payload against the
// checksum recorded in the header.
package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/netreplay/tcpprep/internal/apperr"
	"github.com/netreplay/tcpprep/pkg/decision"
	"github.com/zeebo/xxh3"
)

// Magic identifies a tcpprep cache file.
var Magic = [8]byte{'T', 'C', 'P', 'P', 'C', 'A', 'C', 'H'}

// Version is the cache format version this package reads and writes.
const Version uint8 = 1

// CommentSize is the fixed, null-padded length of the header's comment field.
const CommentSize = 256

// headerSize is the on-disk size of a Header: magic(8) + version(1) +
// packetCount(8) + checksum(8) + comment(CommentSize).
const headerSize = 8 + 1 + 8 + 8 + CommentSize

// ErrVersion marks a cache whose version byte does not match Version,
// distinct from a generically malformed header.
var ErrVersion = fmt.Errorf("%w: unsupported cache version", apperr.ErrParse)

// ErrChecksum marks a cache whose payload does not hash to the checksum
// recorded in its header, distinct from a truncated or malformed cache.
var ErrChecksum = fmt.Errorf("%w: payload checksum mismatch", apperr.ErrParse)

// Header is the fixed-size preface of a cache file.
type Header struct {
	Version     uint8
	PacketCount uint64
	Checksum    uint64
	Comment     string
}

// PayloadSize returns the number of payload bytes for n packets: ⌈2n/8⌉.
func PayloadSize(n uint64) uint64 {
	return (2*n + 7) / 8
}

// Writer accumulates decisions in packet order for one run.
type Writer struct {
	comment   string
	decisions []decision.Decision
}

// NewWriter returns a Writer for a run annotated with comment (truncated
// to CommentSize-1 bytes to leave room for the null terminator).
func NewWriter(comment string) *Writer {
	if len(comment) >= CommentSize {
		comment = comment[:CommentSize-1]
	}
	return &Writer{comment: comment}
}

// Append records the next packet's decision. Packet ordinals remain
// aligned between producer and consumer because every packet that
// reaches the writer — gated out or not — gets exactly one entry.
func (w *Writer) Append(d decision.Decision) {
	w.decisions = append(w.decisions, d)
}

// Len returns the number of decisions appended so far.
func (w *Writer) Len() int {
	return len(w.decisions)
}

// EncodePayload bit-packs decisions into ⌈2n/8⌉ bytes: the high-order bit
// of each packet's pair is sendbit (1=send, 0=drop), the low-order bit is
// side (1=secondary, 0=primary), packed MSB-first, four packets per byte.
func EncodePayload(decisions []decision.Decision) []byte {
	payload := make([]byte, PayloadSize(uint64(len(decisions))))
	for i, d := range decisions {
		var bits byte
		if d.Send {
			bits |= 0b10
		}
		if d.Side == decision.Secondary {
			bits |= 0b01
		}
		byteIdx := i / 4
		shift := uint(3-(i%4)) * 2
		payload[byteIdx] |= bits << shift
	}
	return payload
}

// DecodePayload reverses EncodePayload for n packets.
func DecodePayload(payload []byte, n uint64) ([]decision.Decision, error) {
	if uint64(len(payload)) < PayloadSize(n) {
		return nil, fmt.Errorf("%w: payload too short for %d packets", apperr.ErrParse, n)
	}
	out := make([]decision.Decision, n)
	for i := uint64(0); i < n; i++ {
		byteIdx := i / 4
		shift := uint(3-(i%4)) * 2
		bits := (payload[byteIdx] >> shift) & 0b11
		d := decision.Decision{Send: bits&0b10 != 0}
		if bits&0b01 != 0 {
			d.Side = decision.Secondary
		} else {
			d.Side = decision.Primary
		}
		out[i] = d
	}
	return out, nil
}

// Finalize serializes the header and bit-packed payload and writes them
// to path. The write is atomic: it writes to a temporary file in the
// same directory and renames it into place, so a crash leaves either the
// prior cache or nothing at path, never a partial one.
func (w *Writer) Finalize(path string) error {
	payload := EncodePayload(w.decisions)
	checksum := xxh3.Hash(payload)

	hdr := Header{
		Version:     Version,
		PacketCount: uint64(len(w.decisions)),
		Checksum:    checksum,
		Comment:     w.comment,
	}

	buf := new(bytes.Buffer)
	if err := writeHeader(buf, hdr); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrWrite, err)
	}
	if _, err := buf.Write(payload); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrWrite, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tcpprep-cache-*")
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrWrite, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", apperr.ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrWrite, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrWrite, err)
	}
	return nil
}

func writeHeader(buf *bytes.Buffer, hdr Header) error {
	if _, err := buf.Write(Magic[:]); err != nil {
		return err
	}
	if err := buf.WriteByte(hdr.Version); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.BigEndian, hdr.PacketCount); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.BigEndian, hdr.Checksum); err != nil {
		return err
	}
	var comment [CommentSize]byte
	copy(comment[:], hdr.Comment)
	if _, err := buf.Write(comment[:]); err != nil {
		return err
	}
	return nil
}

// ReadHeader reads and validates only the header of the cache file at
// path, skipping the payload entirely.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", apperr.ErrParse, err)
	}
	defer f.Close()

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(f, raw); err != nil {
		return Header{}, fmt.Errorf("%w: truncated cache header: %v", apperr.ErrParse, err)
	}
	return decodeHeader(raw)
}

func decodeHeader(raw []byte) (Header, error) {
	if len(raw) < headerSize {
		return Header{}, fmt.Errorf("%w: truncated cache header", apperr.ErrParse)
	}
	if !bytes.Equal(raw[0:8], Magic[:]) {
		return Header{}, fmt.Errorf("%w: bad magic", apperr.ErrParse)
	}
	version := raw[8]
	if version != Version {
		return Header{}, fmt.Errorf("%w: got %d, want %d", ErrVersion, version, Version)
	}
	packetCount := binary.BigEndian.Uint64(raw[9:17])
	checksum := binary.BigEndian.Uint64(raw[17:25])
	comment := raw[25 : 25+CommentSize]
	if idx := bytes.IndexByte(comment, 0); idx >= 0 {
		comment = comment[:idx]
	}
	return Header{
		Version:     version,
		PacketCount: packetCount,
		Checksum:    checksum,
		Comment:     string(comment),
	}, nil
}

// ReadAll reads the full cache file at path, verifies its payload against
// the header's checksum, and returns the header and decoded decisions.
// Returns ErrChecksum if the payload does not hash to the recorded
// checksum.
func ReadAll(path string) (Header, []decision.Decision, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Header{}, nil, fmt.Errorf("%w: %v", apperr.ErrParse, err)
	}
	if len(raw) < headerSize {
		return Header{}, nil, fmt.Errorf("%w: truncated cache header", apperr.ErrParse)
	}
	hdr, err := decodeHeader(raw[:headerSize])
	if err != nil {
		return Header{}, nil, err
	}
	payload := raw[headerSize:]
	if got := xxh3.Hash(payload); got != hdr.Checksum {
		return Header{}, nil, fmt.Errorf("%w: got %#x, want %#x", ErrChecksum, got, hdr.Checksum)
	}
	decisions, err := DecodePayload(payload, hdr.PacketCount)
	if err != nil {
		return Header{}, nil, err
	}
	return hdr, decisions, nil
}

// VerifyChecksum reads the full cache file at path and reports whether its
// payload still hashes to the checksum recorded in its header. Returns nil
// if the payload verifies, ErrChecksum if it does not, or any other error
// encountered reading the file.
func VerifyChecksum(path string) error {
	_, _, err := ReadAll(path)
	return err
}

// PrintComment reads only the header at path and returns its comment text.
// It does not verify the payload checksum; callers that need an integrity
// check should also call VerifyChecksum.
func PrintComment(path string) (string, error) {
	hdr, err := ReadHeader(path)
	if err != nil {
		return "", err
	}
	return hdr.Comment, nil
}
