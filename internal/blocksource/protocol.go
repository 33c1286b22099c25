// Package blocksource defines the request/response shapes for pulling
// candidate blocks from an external provider, and a Source interface
// any concrete transport implements.
package blocksource

import "github.com/btcstate/chainstate/pkg/btc"

// Request is the union of the two request shapes a Source accepts:
// Initial starts or restarts a fetch against a known anchor; FollowUp
// asks for the next chunk of an in-progress Partial response.
type Request struct {
	Initial  *InitialRequest
	FollowUp *FollowUpRequest
}

// InitialRequest asks the source for blocks successing anchor, naming
// hashes already processed so the source does not resend them.
type InitialRequest struct {
	Network              btc.Network
	Anchor               btc.Hash
	ProcessedBlockHashes []btc.Hash
}

// FollowUpRequest asks for follow-up page n of an in-progress Partial
// response assembly.
type FollowUpRequest struct {
	Page uint8
}

// Response is the union of the three response shapes a Source may
// return.
type Response struct {
	Complete *CompleteResponse
	Partial  *PartialResponse
	FollowUp *FollowUpResponse
}

// CompleteResponse carries zero or more fully-assembled block bytes
// plus the headers of candidate next blocks the caller should ask for
// next.
type CompleteResponse struct {
	Blocks [][]byte
	Next   []*btc.Header
}

// PartialResponse carries the first chunk of a block too large for a
// single response; the remaining chunks must be fetched with
// RemainingFollowUps consecutive FollowUpRequest calls, in order, and
// concatenated as PartialBlock ‖ followup[0] ‖ followup[1] ‖ ….
type PartialResponse struct {
	PartialBlock       []byte
	Next               []*btc.Header
	RemainingFollowUps uint8
}

// FollowUpResponse is one chunk of a Partial assembly in progress.
type FollowUpResponse struct {
	Bytes []byte
}

// Source is anything capable of answering block-source requests; the
// ingestion state machine (component F) depends only on this
// interface, not on any specific transport.
type Source interface {
	Fetch(req Request) (Response, error)
}
