// Package rsyncdelta implements the rolling-hash signature and delta
// algorithm the local syncer (internal/localsync) uses to patch a backup
// file in place instead of recopying it whole. The design follows the
// classic rsync algorithm: a weak, cheaply-rolled checksum narrows
// candidate offsets in the new data, a strong (cryptographic) checksum
// confirms the match, and the delta is the resulting sequence of
// copy-from-base and literal-bytes instructions.
//
// The weak checksum here reimplements the two-accumulator construction
// that hash/adler32 uses internally (mod-65521 rolling sums), because the
// stdlib adler32.Hash32 only supports whole-buffer writes, not removing a
// byte from the trailing edge of a sliding window — the defining operation
// of a *rolling* checksum. See DESIGN.md.
package rsyncdelta

import (
	"errors"
	"fmt"
	"io"

	"github.com/Bechma/backup-sync/pkg/contenthash"
)

// rollingModulus is the modulus used by the weak checksum's two
// accumulators, matching the classic rsync/adler construction.
const rollingModulus = 65521

// ChunkEntry is one chunk of a base-file Signature: its index, weak
// rolling checksum, and strong content digest.
type ChunkEntry struct {
	Index  uint64
	Weak   uint32
	Strong contenthash.Digest
}

// Signature is the rolling-hash index of a base file, grouped by weak
// checksum so ComputeDelta can narrow candidates before paying for a
// strong-hash comparison.
type Signature struct {
	ChunkSize uint64
	byWeak    map[uint32][]ChunkEntry
	chunks    []ChunkEntry
}

// BuildSignature reads the whole base file and indexes it into
// chunkSize-sized, non-overlapping windows.
func BuildSignature(r io.Reader, chunkSize uint64) (*Signature, error) {
	if chunkSize == 0 {
		return nil, errors.New("rsyncdelta: chunkSize must be > 0")
	}

	sig := &Signature{
		ChunkSize: chunkSize,
		byWeak:    make(map[uint32][]ChunkEntry),
	}

	buf := make([]byte, chunkSize)

	var index uint64

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			entry := ChunkEntry{
				Index:  index,
				Weak:   weakChecksum(buf[:n]),
				Strong: contenthash.Sum(buf[:n]),
			}
			sig.chunks = append(sig.chunks, entry)
			sig.byWeak[entry.Weak] = append(sig.byWeak[entry.Weak], entry)
			index++
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("rsyncdelta: reading base chunk %d: %w", index, err)
		}
	}

	return sig, nil
}

// weakChecksum computes the rsync-style two-accumulator rolling checksum
// of a fixed buffer (the non-rolling, "from scratch" form).
func weakChecksum(data []byte) uint32 {
	var a, b uint64

	n := uint64(len(data))

	for i, c := range data {
		a += uint64(c)
		b += (n - uint64(i)) * uint64(c)
	}

	a %= rollingModulus
	b %= rollingModulus

	return uint32(a) | (uint32(b) << 16) //nolint:gosec // both values are reduced below rollingModulus
}

// InstructionKind distinguishes a delta instruction's meaning.
type InstructionKind int

const (
	// KindCopy means "copy Length bytes from the base file at Offset".
	KindCopy InstructionKind = iota
	// KindLiteral means "the Literal bytes were not found in the base".
	KindLiteral
)

// Instruction is one step in reconstructing the new file from the base
// file plus the delta.
type Instruction struct {
	Kind    InstructionKind
	Offset  uint64 // valid for KindCopy
	Length  uint64 // valid for KindCopy
	Literal []byte // valid for KindLiteral
}

// ComputeDelta scans newData with a window of sig.ChunkSize bytes and
// returns the copy and literal instructions that rebuild newData from the
// base file the signature was built from.
func ComputeDelta(sig *Signature, newData []byte) []Instruction {
	if sig == nil || sig.ChunkSize == 0 || len(newData) == 0 {
		if len(newData) == 0 {
			return nil
		}

		return []Instruction{{Kind: KindLiteral, Literal: append([]byte(nil), newData...)}}
	}

	chunkSize := int(sig.ChunkSize)
	var instructions []Instruction

	var literal []byte

	flushLiteral := func() {
		if len(literal) > 0 {
			instructions = append(instructions, Instruction{Kind: KindLiteral, Literal: literal})
			literal = nil
		}
	}

	pos := 0
	windowStart := 0
	var weak uint32
	var haveWeak bool

	for pos < len(newData) {
		end := pos + chunkSize
		if end > len(newData) {
			end = len(newData)
		}

		window := newData[pos:end]

		// Recompute from scratch when the window shrank (tail of the file,
		// shorter than chunkSize) or after a match reset the start point;
		// otherwise roll the previous window forward by one byte.
		if !haveWeak || windowStart != pos || len(window) != chunkSize {
			weak = weakChecksum(window)
			haveWeak = true
		}

		windowStart = pos

		if entry, ok := matchStrong(sig, weak, window); ok {
			flushLiteral()
			instructions = append(instructions, Instruction{
				Kind:   KindCopy,
				Offset: entry.Index * sig.ChunkSize,
				Length: uint64(len(window)), //nolint:gosec // bounded by chunk size
			})
			pos = end
			haveWeak = false

			continue
		}

		literal = append(literal, newData[pos])
		pos++

		if pos+chunkSize <= len(newData) && haveWeak {
			weak = rollChecksum(weak, newData[pos-1], newData[pos+chunkSize-1], chunkSize)
			windowStart = pos
		} else {
			haveWeak = false
		}
	}

	flushLiteral()

	return instructions
}

// rollChecksum advances a weak checksum by one byte: outByte leaves the
// window at its old start, inByte enters at its new end. This avoids
// rehashing the full window on every byte-by-byte scan position.
func rollChecksum(prev uint32, outByte, inByte byte, windowLen int) uint32 {
	a := prev & 0xffff
	b := (prev >> 16) & 0xffff

	a = (a + rollingModulus - uint32(outByte)%rollingModulus + uint32(inByte)) % rollingModulus
	b = (b + rollingModulus - (uint32(windowLen)*uint32(outByte))%rollingModulus + a) % rollingModulus

	return a | (b << 16)
}

func matchStrong(sig *Signature, weak uint32, window []byte) (ChunkEntry, bool) {
	candidates := sig.byWeak[weak]
	if len(candidates) == 0 {
		return ChunkEntry{}, false
	}

	strong := contenthash.Sum(window)
	for _, c := range candidates {
		if c.Strong == strong {
			return c, true
		}
	}

	return ChunkEntry{}, false
}

// ApplyDelta reconstructs the new file by executing instructions against
// base, writing the result to w.
func ApplyDelta(base io.ReaderAt, instructions []Instruction, w io.Writer) error {
	for _, instr := range instructions {
		switch instr.Kind {
		case KindLiteral:
			if _, err := w.Write(instr.Literal); err != nil {
				return fmt.Errorf("rsyncdelta: writing literal: %w", err)
			}
		case KindCopy:
			buf := make([]byte, instr.Length)
			if _, err := base.ReadAt(buf, int64(instr.Offset)); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("rsyncdelta: copying base range [%d,%d): %w",
					instr.Offset, instr.Offset+instr.Length, err)
			}

			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("rsyncdelta: writing copied range: %w", err)
			}
		default:
			return fmt.Errorf("rsyncdelta: unknown instruction kind %d", instr.Kind)
		}
	}

	return nil
}
