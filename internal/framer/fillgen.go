package framer

import (
	"context"
	"encoding/binary"

	"github.com/jive-evlbi/chaind/internal/step"
)

// FillConfig configures the fill-pattern generator source step
// (spec.md §4.6/§5's "fill-pattern producer"), grounded on
// original_source's fillpatargs (evlbi5a/threadfns.h): an 8-byte
// "fill" seed word and an "inc" increment applied after every word
// emitted, so a receiver can detect dropped data by spotting a break
// in the running sequence. NWord is how many 8-byte words make up one
// generated block.
type FillConfig struct {
	Fill  uint64
	Inc   uint64
	NWord int
}

// NewFillGeneratorStep builds a source step.Fn with no inbound queue:
// it fills blocks with consecutive fill-pattern words until cancelled
// or downstream closes, the only producer in this codebase with no
// external pacing (spec.md §5: "relies solely on" queue back-pressure).
func NewFillGeneratorStep(cfg FillConfig, alloc Allocator) step.Fn {
	word := cfg.Fill
	nword := cfg.NWord
	if nword < 1 {
		nword = 1
	}
	return func(ctx context.Context, inq, outq *step.BlockQueue, sy *step.Sync) error {
		for {
			select {
			case <-ctx.Done():
				if outq != nil {
					outq.EnablePopOnly()
				}
				return nil
			default:
			}
			if sy.Cancelled() {
				if outq != nil {
					outq.EnablePopOnly()
				}
				return nil
			}

			nb := alloc.Get()
			buf := nb.Bytes()
			n := nword * 8
			if n > len(buf) {
				n = (len(buf) / 8) * 8
			}
			for off := 0; off+8 <= n; off += 8 {
				binary.LittleEndian.PutUint64(buf[off:off+8], word)
				word += cfg.Inc
			}
			out := nb.Sub(0, n)
			nb.Release()

			if outq == nil {
				out.Release()
				continue
			}
			if !outq.Push(out) {
				out.Release()
				return nil
			}
		}
	}
}
