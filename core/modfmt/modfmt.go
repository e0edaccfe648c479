// Package modfmt is the hand-off format for validated modules (.bmod).
//
// A file is a fixed preamble followed by a canonical CBOR payload:
//
//	MAGIC(4) "BEST" | VERSION(2) LE | PAYLOAD_LEN(4) LE | PAYLOAD
//
// The module digest is BLAKE2b-256 over the payload bytes, so it is stable
// across writes of the same module and independent of source positions.
package modfmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/opal-lang/beast/core/ast"
	"github.com/opal-lang/beast/core/invariant"
)

const (
	// Magic is the file magic number "BEST" (4 bytes)
	Magic = "BEST"

	// Version is the format version (uint16, little-endian)
	Version uint16 = 0x0001

	// Ext is the conventional file extension.
	Ext = ".bmod"

	preambleLen = 10

	// maxPayloadLen bounds the allocation a corrupt length can cause.
	maxPayloadLen = 32 * 1024 * 1024
)

// Digest is the BLAKE2b-256 hash of a payload.
type Digest [32]byte

func (d Digest) String() string {
	return fmt.Sprintf("blake2b:%x", d[:])
}

// Write encodes m to w and returns its digest.
func Write(w io.Writer, m *ast.Module) (Digest, error) {
	invariant.NotNil(m, "module")

	payload, err := Canonicalize(m).MarshalBinary()
	if err != nil {
		return Digest{}, err
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return Digest{}, fmt.Errorf("payload length %d exceeds maximum %d", len(payload), uint32(math.MaxUint32))
	}

	var buf bytes.Buffer
	buf.Grow(preambleLen + len(payload))
	buf.WriteString(Magic)
	if err := binary.Write(&buf, binary.LittleEndian, Version); err != nil {
		return Digest{}, err
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(payload))); err != nil {
		return Digest{}, err
	}
	buf.Write(payload)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return Digest{}, fmt.Errorf("write module: %w", err)
	}
	return Sum(payload), nil
}

// Read decodes a module from r and returns it with its digest.
func Read(r io.Reader) (*ast.Module, Digest, error) {
	var preamble [preambleLen]byte
	if _, err := io.ReadFull(r, preamble[:]); err != nil {
		return nil, Digest{}, fmt.Errorf("read preamble: %w", err)
	}

	magic := string(preamble[0:4])
	if magic != Magic {
		return nil, Digest{}, fmt.Errorf("invalid magic: got %q, expected %q", magic, Magic)
	}

	version := binary.LittleEndian.Uint16(preamble[4:6])
	if version != Version {
		return nil, Digest{}, fmt.Errorf("unsupported version: got 0x%04x, expected 0x%04x", version, Version)
	}

	payloadLen := binary.LittleEndian.Uint32(preamble[6:10])
	if payloadLen > maxPayloadLen {
		return nil, Digest{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLen, maxPayloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, Digest{}, fmt.Errorf("read payload: %w", err)
	}

	var p Payload
	if err := p.UnmarshalBinary(payload); err != nil {
		return nil, Digest{}, fmt.Errorf("parse payload: %w", err)
	}
	m, err := p.Module()
	if err != nil {
		return nil, Digest{}, fmt.Errorf("parse payload: %w", err)
	}
	return m, Sum(payload), nil
}

// Sum hashes a payload.
func Sum(payload []byte) Digest {
	return blake2b.Sum256(payload)
}

// ModuleDigest returns the digest m would be written with.
func ModuleDigest(m *ast.Module) (Digest, error) {
	payload, err := Canonicalize(m).MarshalBinary()
	if err != nil {
		return Digest{}, err
	}
	return Sum(payload), nil
}
