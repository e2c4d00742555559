package chaind_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jive-evlbi/chaind"
	"github.com/jive-evlbi/chaind/internal/transfer"
)

func TestNewTestRuntimeStartsIdle(t *testing.T) {
	rt := chaind.NewTestRuntime(0)
	mode, sub := rt.Mode()
	assert.Equal(t, transfer.NoTransfer, mode)
	assert.Zero(t, sub)
}

func TestRuntimeDispatchRoundTripsModeQuery(t *testing.T) {
	rt := chaind.NewTestRuntime(1 << 16)
	resp := rt.Dispatch(context.Background(), "mode ? ;")
	assert.Equal(t, "! mode ? 0 : none : none ;", resp)
}

func TestRuntimeCloseWhileIdleIsNoOp(t *testing.T) {
	rt := chaind.NewTestRuntime(1 << 16)
	assert.NoError(t, rt.Close())
}

func TestStubIOBoardReportsNotImplemented(t *testing.T) {
	board := chaind.StubIOBoard()
	err := board.Start()
	assert.Error(t, err)
	assert.True(t, chaind.IsCode(err, chaind.CodeNotImplemented))
}
