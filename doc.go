// Package chaind implements an evlbi data-movement daemon: a
// processing-chain runtime that moves correlator/recorder data between
// disk, network, and file endpoints under the control of a line-based
// text protocol.
//
// A Runtime holds the transfer-mode state machine (internal/transfer)
// and the block pool and disk array its chains draw from, and is driven
// by commands decoded by internal/control. Each active transfer spawns a Chain
// (internal/chain) of Steps (internal/step) connected by bounded Queues
// (internal/queue), moving reference-counted Blocks (internal/block,
// internal/blockpool) from a producer, through zero or more
// transformers (internal/framer, internal/compress), to a consumer.
package chaind
