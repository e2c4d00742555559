// Package compress implements the bitstream-dropping channel extractor
// (spec.md §4.6): from each bits_per_input_word-wide input word, the
// selected bits_per_channel bits of each of K channels are packed into
// a narrower output word; decompression is the inverse, zero-filling
// the channels that were dropped.
//
// The real system generates C source for the extractor and hands it to
// an external JIT compiler (spec.md §7's out-of-scope "dynamic C
// compiler used to JIT channel extractors", and §9's design note on
// the same). That collaborator is abstracted away entirely behind
// ExtractorFactory(spec) -> Extractor; this package's Extractor is a
// plain Go closure over the bit arithmetic, not JIT-compiled code.
package compress

import (
	"fmt"
	"strconv"
	"strings"
)

// Config is the parsed "channel extractor specification" (spec.md
// §4.6's extractor_config{channels[], bits_per_channel,
// bits_per_input_word}).
type Config struct {
	Channels         []int
	BitsPerChannel   int
	BitsPerInputWord int
}

// OutputBits is the total width of one packed output word.
func (c Config) OutputBits() int { return c.BitsPerChannel * len(c.Channels) }

// ParseChannelSpec parses a textual channel extractor specification of
// the form "ch0,ch1,...,chN[:bitsPerChannel]" — a comma-separated list
// of zero-based channel (track) indices, optionally followed by a
// colon and the number of bits sampled per channel (default 1, the
// common single-bit-sampling case). bitsPerInputWord is supplied
// separately since it comes from the data format (spec.md §3), not the
// extractor spec text itself.
func ParseChannelSpec(spec string, bitsPerInputWord int) (Config, error) {
	body, bitsPart, hasBits := strings.Cut(spec, ":")
	bitsPerChannel := 1
	if hasBits {
		n, err := strconv.Atoi(strings.TrimSpace(bitsPart))
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("compress: invalid bits-per-channel %q", bitsPart)
		}
		bitsPerChannel = n
	}

	fields := strings.Split(body, ",")
	channels := make([]int, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		ch, err := strconv.Atoi(f)
		if err != nil || ch < 0 {
			return Config{}, fmt.Errorf("compress: invalid channel index %q", f)
		}
		channels = append(channels, ch)
	}
	if len(channels) == 0 {
		return Config{}, fmt.Errorf("compress: channel extractor spec %q names no channels", spec)
	}

	cfg := Config{Channels: channels, BitsPerChannel: bitsPerChannel, BitsPerInputWord: bitsPerInputWord}
	return cfg, validate(cfg)
}

func validate(cfg Config) error {
	if cfg.BitsPerInputWord <= 0 || cfg.BitsPerInputWord > 64 {
		return fmt.Errorf("compress: bits_per_input_word %d out of range (1-64)", cfg.BitsPerInputWord)
	}
	if cfg.BitsPerChannel <= 0 {
		return fmt.Errorf("compress: bits_per_channel must be positive")
	}
	for _, ch := range cfg.Channels {
		hi := ch*cfg.BitsPerChannel + cfg.BitsPerChannel
		if hi > cfg.BitsPerInputWord {
			return fmt.Errorf("compress: channel %d exceeds bits_per_input_word %d", ch, cfg.BitsPerInputWord)
		}
	}
	if cfg.OutputBits() > 64 {
		return fmt.Errorf("compress: packed output width %d exceeds 64 bits", cfg.OutputBits())
	}
	return nil
}

// Extractor is the per-word function the chain invokes, the contract
// spec.md §9 asks for regardless of whether a real implementation is
// JIT-compiled native code, a pre-generated table, or an interpreter.
type Extractor interface {
	Config() Config
	// Compress extracts the configured channel bits from one
	// bits_per_input_word-wide input word, packing them into the
	// low OutputBits() bits of the result.
	Compress(word uint64) uint64
	// Decompress is the inverse of Compress: it places packed's low
	// OutputBits() bits back at each channel's original bit position
	// within a bits_per_input_word-wide word, zero-filling every bit
	// position not covered by a configured channel.
	Decompress(packed uint64) uint64
}

type extractor struct {
	cfg Config
}

// ExtractorFactory builds an Extractor from a parsed Config, the
// abstraction point spec.md §9 calls for in place of the source's
// JIT-compiled C.
func ExtractorFactory(cfg Config) (Extractor, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &extractor{cfg: cfg}, nil
}

func (e *extractor) Config() Config { return e.cfg }

func (e *extractor) Compress(word uint64) uint64 {
	var out uint64
	shift := uint(0)
	mask := channelMask(e.cfg.BitsPerChannel)
	for _, ch := range e.cfg.Channels {
		bits := (word >> uint(ch*e.cfg.BitsPerChannel)) & mask
		out |= bits << shift
		shift += uint(e.cfg.BitsPerChannel)
	}
	return out
}

func (e *extractor) Decompress(packed uint64) uint64 {
	var out uint64
	shift := uint(0)
	mask := channelMask(e.cfg.BitsPerChannel)
	for _, ch := range e.cfg.Channels {
		bits := (packed >> shift) & mask
		out |= bits << uint(ch*e.cfg.BitsPerChannel)
		shift += uint(e.cfg.BitsPerChannel)
	}
	return out
}

func channelMask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(bits)) - 1
}
