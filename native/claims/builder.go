package claims

import (
	"context"
	"errors"
)

// TransferRequest describes the transfer a Builder should construct.
type TransferRequest struct {
	// Payer is the account that funds the transfer.
	Payer string
	// Recipient is the address as it appeared in the allocation list.
	Recipient     string
	Amount        Amount
	ReservationID string
}

// Artifact is the serialized, not fully signed transaction returned to the claimant.
type Artifact struct {
	Tx        []byte
	Blockhash string
	Recipient string
	Amount    Amount
}

// Builder produces transfer artifacts for a specific ledger.
type Builder interface {
	// Payer returns the address tokens are transferred from.
	Payer() string
	Build(ctx context.Context, req TransferRequest) (Artifact, error)
}

// FuncBuilder adapts a callback to the Builder interface.
type FuncBuilder struct {
	PayerAddress string
	BuildFunc    func(ctx context.Context, req TransferRequest) (Artifact, error)
}

// Payer returns the configured payer address.
func (b FuncBuilder) Payer() string { return b.PayerAddress }

// Build delegates to the configured callback.
func (b FuncBuilder) Build(ctx context.Context, req TransferRequest) (Artifact, error) {
	if b.BuildFunc == nil {
		return Artifact{}, errors.New("claims: builder not configured")
	}
	return b.BuildFunc(ctx, req)
}
