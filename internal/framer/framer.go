package framer

import (
	"bytes"
	"context"

	"github.com/jive-evlbi/chaind/internal/block"
	"github.com/jive-evlbi/chaind/internal/step"
)

// Frame is what the framer step emits: a block slice that starts
// exactly at a sync word (spec.md §4.6's frame{type, ntrack, block}).
type Frame struct {
	Format Format
	NTrack int
	Block  *block.Block
}

// Scanner holds one framer instance's search state across a stream of
// blocks belonging to a single transfer. It does not carry partial
// frames across block boundaries: a frame that straddles two blocks is
// dropped and resynchronized on in the next block, the same tradeoff
// original_source's netreader.h accepts for a per-read scan.
type Scanner struct {
	format   Format
	ntrack   int
	bm       *boyerMoore // nil in VDIF stride mode (no sync pattern)
	verified bool
}

// NewScanner builds a Scanner for format, tagging every emitted Frame
// with ntrack.
func NewScanner(format Format, ntrack int) *Scanner {
	s := &Scanner{format: format, ntrack: ntrack}
	if len(format.SyncWord) > 0 {
		s.bm = newBoyerMoore(format.SyncWord)
	}
	return s
}

// Feed scans b for frame boundaries and returns the frames found,
// implementing spec.md §4.6's algorithm: Boyer-Moore scan for the sync
// pattern; on first hit, verify by checking the next expected header
// at +framesize; on verify, begin emitting full frames; on miss,
// re-enter search starting one byte after the miss.
//
// Each returned Frame's Block is a Sub of b (an added reference); the
// caller still owns b's own reference and must Release it once done
// feeding it in.
func (s *Scanner) Feed(b *block.Block) []Frame {
	buf := b.Bytes()
	if s.bm == nil {
		return s.feedStride(b, buf)
	}

	var frames []Frame
	pos := 0
	for {
		if !s.verified {
			hit := s.bm.next(buf, pos)
			if hit < 0 {
				return frames
			}
			next := hit + s.format.FrameSize
			if next+len(s.format.SyncWord) > len(buf) {
				return frames // not enough left in this block to verify
			}
			if !bytes.Equal(buf[next:next+len(s.format.SyncWord)], s.format.SyncWord) {
				pos = hit + 1
				continue
			}
			s.verified = true
			pos = hit
		}
		if pos+s.format.FrameSize > len(buf) {
			return frames
		}
		if !bytes.HasPrefix(buf[pos:], s.format.SyncWord) {
			s.verified = false
			continue
		}
		frames = append(frames, Frame{
			Format: s.format,
			NTrack: s.ntrack,
			Block:  b.Sub(pos, s.format.FrameSize),
		})
		pos += s.format.FrameSize
	}
}

// feedStride handles VDIF, which has no fixed sync-word pattern: the
// stream is assumed frame-aligned (spec.md §6 notes VDIF frames are
// re-emitted unmodified) and simply chopped at FrameSize stride.
func (s *Scanner) feedStride(b *block.Block, buf []byte) []Frame {
	var frames []Frame
	pos := 0
	for pos+s.format.FrameSize <= len(buf) {
		frames = append(frames, Frame{
			Format: s.format,
			NTrack: s.ntrack,
			Block:  b.Sub(pos, s.format.FrameSize),
		})
		pos += s.format.FrameSize
	}
	return frames
}

// NewStep builds a step.Fn that frames every block it receives and
// pushes the resulting frame blocks downstream. Frames carry Format
// and NTrack implicitly via the Scanner's configuration; since a
// chain's BlockQueue only moves *block.Block, the frame boundary
// itself (not the Frame wrapper) is what crosses the queue — a
// framecompressor reading from this step's output queue re-derives
// ntrack/format from its own configuration rather than a
// per-block tag, matching the chain's "just bytes between steps"
// contract.
func NewStep(format Format, ntrack int) step.Fn {
	sc := NewScanner(format, ntrack)
	return func(ctx context.Context, inq, outq *step.BlockQueue, sy *step.Sync) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			b, ok := inq.Pop()
			if !ok {
				if outq != nil {
					outq.EnablePopOnly()
				}
				return nil
			}
			frames := sc.Feed(b)
			for _, fr := range frames {
				if outq == nil {
					fr.Block.Release()
					continue
				}
				if !outq.Push(fr.Block) {
					fr.Block.Release()
				}
			}
			b.Release()
		}
	}
}
