package netparams

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P6: constrain(params, format, compression) produces sizes
// satisfying invariant I6, or raises a parameter error.
func TestConstrainSatisfiesI6(t *testing.T) {
	p := &NetworkParams{Protocol: "udp", MTU: 1500, BlockSize: 131072}
	format := &DataFormat{Family: "vdif", NTrack: 8, FrameSize: 8}

	require.NoError(t, Constrain(p, format, nil))

	assert.LessOrEqual(t, p.ReadSize, p.WriteSize)
	assert.Zero(t, p.BlockSize%p.ReadSize)
	assert.Zero(t, p.BlockSize%p.WriteSize)
	assert.LessOrEqual(t, p.WriteSize, p.MTU-OverheadUDP)
}

func TestConstrainWithCompressionShrinksReadSize(t *testing.T) {
	p := &NetworkParams{Protocol: "udp", MTU: 1500, BlockSize: 131072}
	format := &DataFormat{Family: "vdif", NTrack: 8, FrameSize: 8}
	comp := &CompressionSolution{ChannelsToKeep: []int{0, 1}, BitsPerSample: 2}

	require.NoError(t, Constrain(p, format, comp))
	assert.Less(t, p.ReadSize, 8, "keeping 2 of 8 channels should reduce the per-sample stride")
	assert.LessOrEqual(t, p.ReadSize, p.WriteSize)
}

func TestConstrainRejectsImpossibleMTU(t *testing.T) {
	p := &NetworkParams{Protocol: "udp", MTU: 20, BlockSize: 131072}
	err := Constrain(p, &DataFormat{FrameSize: 8}, nil)
	assert.Error(t, err)
}

func TestConstrainRejectsUnknownProtocol(t *testing.T) {
	p := &NetworkParams{Protocol: "sctp", MTU: 1500, BlockSize: 131072}
	err := Constrain(p, &DataFormat{FrameSize: 8}, nil)
	assert.Error(t, err)
}

func TestPacerDisabledWithoutGap(t *testing.T) {
	p := NewPacer(0, 1500)
	start := time.Now()
	require.NoError(t, p.Wait(context.Background()))
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestPacerEnforcesGap(t *testing.T) {
	p := NewPacer(5000, 1500) // 5ms per packet
	ctx := context.Background()
	require.NoError(t, p.Wait(ctx))
	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 3*time.Millisecond)
}
