// Package netparams holds the network, data-format and compression
// configuration a Runtime carries (spec.md §3), and constrain(), the
// operation that derives read/write sizes satisfying invariant I6:
// read_size <= write_size, both divide blocksize, and write_size <=
// MTU - protocol_overhead.
package netparams

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Protocol overhead budgeted off the configured MTU to get the usable
// payload ceiling for write_size, per transport family.
const (
	OverheadUDP = 28 // 20-byte IPv4 + 8-byte UDP header
	OverheadTCP = 40 // 20-byte IPv4 + 20-byte TCP header
)

// NetworkParams is the protocol/sizing half of a Runtime's network
// configuration (spec.md §3's "network parameters").
type NetworkParams struct {
	Protocol        string // "tcp", "udp", "udps" (UDP with PSN, reordering), "udpsnor" (no reordering)
	MTU             int
	SocketBufBytes  int
	BlockSize       int
	NumBlocks       int
	InterPacketGap  int // microseconds between packets, 0 = unpaced
	AckPeriod       uint64

	ReadSize  int // derived by Constrain
	WriteSize int // derived by Constrain
}

// DataFormat is the track/bitrate/frame description of the data a
// transfer moves (spec.md §3's "data format").
type DataFormat struct {
	Family    string // "mark4", "vlba", "mark5b", "vdif"
	NTrack    int
	BitRate   float64 // Mbps
	FrameSize int
}

// CompressionSolution optionally describes the bit-dropping channel
// extraction applied to each frame (spec.md §4.6); nil means no
// compression is configured.
type CompressionSolution struct {
	ChannelsToKeep []int // indices of channels retained after extraction
	BitsPerSample  int
}

func (p *NetworkParams) overhead() (int, error) {
	switch p.Protocol {
	case "tcp":
		return OverheadTCP, nil
	case "udp", "udps", "udpsnor":
		return OverheadUDP, nil
	default:
		return 0, fmt.Errorf("netparams: unknown protocol %q", p.Protocol)
	}
}

// Constrain derives ReadSize/WriteSize for p given the compression
// solution in effect (nil if uncompressed) and writes them back into
// p, or returns a parameter error if no sizing satisfies invariant I6.
//
// The derivation favors the largest write_size that (a) fits under
// MTU-overhead, (b) divides BlockSize, matching original_source's
// preference for maximal packet payloads to minimize per-packet
// overhead at a given data rate.
func Constrain(p *NetworkParams, format *DataFormat, comp *CompressionSolution) error {
	if p.BlockSize <= 0 {
		return fmt.Errorf("netparams: blocksize must be positive")
	}
	overhead, err := p.overhead()
	if err != nil {
		return err
	}
	ceiling := p.MTU - overhead
	if ceiling <= 0 {
		return fmt.Errorf("netparams: mtu %d too small for protocol overhead %d", p.MTU, overhead)
	}

	readSize := sampleStride(format, comp)
	if readSize <= 0 {
		readSize = 1
	}
	if p.BlockSize%readSize != 0 {
		return fmt.Errorf("netparams: read_size %d does not divide blocksize %d", readSize, p.BlockSize)
	}

	writeSize := largestDivisorAtMost(p.BlockSize, ceiling)
	if writeSize < readSize {
		return fmt.Errorf("netparams: no write_size >= read_size %d fits blocksize %d under mtu ceiling %d",
			readSize, p.BlockSize, ceiling)
	}

	p.ReadSize = readSize
	p.WriteSize = writeSize
	return nil
}

// sampleStride returns the natural per-sample-group byte stride for a
// data format under an optional compression solution: compressed
// streams read fewer bytes per group than they write downstream,
// which is exactly the read_size <= write_size split invariant I6
// requires.
func sampleStride(format *DataFormat, comp *CompressionSolution) int {
	if format == nil {
		return 1
	}
	stride := format.FrameSize
	if stride <= 0 {
		stride = 1
	}
	if comp != nil && len(comp.ChannelsToKeep) > 0 && format.NTrack > 0 {
		kept := len(comp.ChannelsToKeep)
		if kept < format.NTrack {
			reduced := stride * kept / format.NTrack
			if reduced > 0 {
				stride = reduced
			}
		}
	}
	return stride
}

// largestDivisorAtMost returns the largest divisor of n that is <= max,
// or 0 if none exists (n == 0 only).
func largestDivisorAtMost(n, max int) int {
	if n <= 0 {
		return 0
	}
	if max >= n {
		return n
	}
	for d := max; d >= 1; d-- {
		if n%d == 0 {
			return d
		}
	}
	return 0
}

// Pacer wraps golang.org/x/time/rate to honor a configured
// inter-packet delay on the network-sink transformer step, so a
// fill-pattern or disk producer feeding a slow network link doesn't
// simply saturate it (spec.md §4.4's udp-class protocols' configured
// inter-packet delay).
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer builds a Pacer that permits one packet of packetBytes every
// interPacketGap microseconds. A non-positive interPacketGap disables
// pacing (Wait always returns immediately).
func NewPacer(interPacketGap int, packetBytes int) *Pacer {
	if interPacketGap <= 0 {
		return &Pacer{}
	}
	period := float64(interPacketGap) / 1e6 // seconds per packet
	r := rate.Limit(1 / period)
	burst := 1
	return &Pacer{limiter: rate.NewLimiter(r, burst)}
}

// Wait blocks, if pacing is enabled, until the next packet may be
// sent.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	return p.limiter.Wait(ctx)
}
