package framer

import (
	"context"
	"fmt"

	"github.com/jive-evlbi/chaind/internal/block"
	"github.com/jive-evlbi/chaind/internal/compress"
	"github.com/jive-evlbi/chaind/internal/step"
)

// Allocator is the minimal contract a compressor/decompressor step
// needs to obtain a fresh output block; internal/blockpool.BlockPool
// satisfies it.
type Allocator interface {
	Get() *block.Block
}

// NewFrameCompressorStep builds a step.Fn that, for every frame block
// it receives, skips headerSize header bytes and compresses the rest
// with e, so the sync word and time tag reach the receiver intact
// (spec.md §4.6's framecompressor).
func NewFrameCompressorStep(headerSize int, e compress.Extractor, alloc Allocator) step.Fn {
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
			out, err := compressFrame(b, headerSize, e, alloc)
			b.Release()
			if err != nil {
				return err
			}
			if outq != nil && !outq.Push(out) {
				out.Release()
			} else if outq == nil {
				out.Release()
			}
		}
	}
}

func compressFrame(b *block.Block, headerSize int, e compress.Extractor, alloc Allocator) (*block.Block, error) {
	data := b.Bytes()
	if len(data) < headerSize {
		return nil, fmt.Errorf("framer: frame shorter than header size %d", headerSize)
	}
	compressed, err := compress.CompressPayload(e, data[headerSize:])
	if err != nil {
		return nil, err
	}
	nb := alloc.Get()
	buf := nb.Bytes()
	if headerSize+len(compressed) > len(buf) {
		nb.Release()
		return nil, fmt.Errorf("framer: compressed frame %d bytes exceeds block capacity %d", headerSize+len(compressed), len(buf))
	}
	n := copy(buf, data[:headerSize])
	n += copy(buf[n:], compressed)
	out := nb.Sub(0, n)
	nb.Release()
	return out, nil
}

// NewFrameDecompressorStep builds the inverse of
// NewFrameCompressorStep: it restores the compressed payload's dropped
// channel bits (zero-filled) and re-emits header+payload.
func NewFrameDecompressorStep(headerSize int, e compress.Extractor, alloc Allocator) step.Fn {
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
			out, err := decompressFrame(b, headerSize, e, alloc)
			b.Release()
			if err != nil {
				return err
			}
			if outq != nil && !outq.Push(out) {
				out.Release()
			} else if outq == nil {
				out.Release()
			}
		}
	}
}

func decompressFrame(b *block.Block, headerSize int, e compress.Extractor, alloc Allocator) (*block.Block, error) {
	data := b.Bytes()
	if len(data) < headerSize {
		return nil, fmt.Errorf("framer: frame shorter than header size %d", headerSize)
	}
	restored, err := compress.DecompressPayload(e, data[headerSize:])
	if err != nil {
		return nil, err
	}
	nb := alloc.Get()
	buf := nb.Bytes()
	if headerSize+len(restored) > len(buf) {
		nb.Release()
		return nil, fmt.Errorf("framer: decompressed frame %d bytes exceeds block capacity %d", headerSize+len(restored), len(buf))
	}
	n := copy(buf, data[:headerSize])
	n += copy(buf[n:], restored)
	out := nb.Sub(0, n)
	nb.Release()
	return out, nil
}
