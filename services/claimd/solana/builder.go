package solana

import (
	"context"
	"fmt"
	"log/slog"

	"airdrop/crypto"
	"airdrop/native/claims"
)

// ChainReader is the subset of the RPC client the builder depends on.
type ChainReader interface {
	LatestBlockhash(ctx context.Context) (Blockhash, error)
	AccountInfo(ctx context.Context, account crypto.PublicKey) (*AccountInfo, error)
}

// Builder constructs SPL token transfers from the airdrop authority's token account to
// the claimant's. The claimant pays fees and, when needed, the rent for their token
// account, so the authority only contributes its transfer signature.
type Builder struct {
	chain     ChainReader
	authority *crypto.Keypair
	mint      crypto.PublicKey
	source    crypto.PublicKey
	logger    *slog.Logger
}

// NewBuilder precomputes the authority's associated token account.
func NewBuilder(chain ChainReader, authority *crypto.Keypair, mint crypto.PublicKey, logger *slog.Logger) (*Builder, error) {
	if chain == nil {
		return nil, fmt.Errorf("solana builder: rpc client required")
	}
	if authority == nil {
		return nil, fmt.Errorf("solana builder: authority keypair required")
	}
	if mint.IsZero() {
		return nil, fmt.Errorf("solana builder: token mint required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	source, err := AssociatedTokenAddress(authority.PublicKey(), mint)
	if err != nil {
		return nil, fmt.Errorf("solana builder: derive authority token account: %w", err)
	}
	return &Builder{
		chain:     chain,
		authority: authority,
		mint:      mint,
		source:    source,
		logger:    logger.With(slog.String("component", "solana_builder")),
	}, nil
}

// Payer returns the airdrop authority address.
func (b *Builder) Payer() string { return b.authority.PublicKey().String() }

// Mint returns the token mint address.
func (b *Builder) Mint() string { return b.mint.String() }

// Build returns a transaction signed by the authority with the claimant's fee-payer
// signature slot left empty.
func (b *Builder) Build(ctx context.Context, req claims.TransferRequest) (claims.Artifact, error) {
	recipient, err := crypto.DecodeAddress(req.Recipient)
	if err != nil {
		return claims.Artifact{}, fmt.Errorf("recipient: %w", err)
	}
	if req.Amount == 0 {
		return claims.Artifact{}, fmt.Errorf("transfer amount must be positive")
	}
	destination, err := AssociatedTokenAddress(recipient, b.mint)
	if err != nil {
		return claims.Artifact{}, fmt.Errorf("derive recipient token account: %w", err)
	}

	instructions := make([]Instruction, 0, 2)
	info, err := b.chain.AccountInfo(ctx, destination)
	if err != nil {
		return claims.Artifact{}, err
	}
	if info == nil {
		b.logger.Debug("recipient token account missing, adding create instruction",
			slog.String("address", recipient.String()),
			slog.String("token_account", destination.String()))
		instructions = append(instructions, CreateAssociatedTokenAccountInstruction(recipient, destination, recipient, b.mint))
	}
	instructions = append(instructions, TransferInstruction(b.source, destination, b.authority.PublicKey(), req.Amount.Uint64()))

	blockhash, err := b.chain.LatestBlockhash(ctx)
	if err != nil {
		return claims.Artifact{}, err
	}
	msg, err := NewMessage(recipient, instructions, blockhash.Hash)
	if err != nil {
		return claims.Artifact{}, err
	}
	tx := NewTransaction(msg)
	if err := tx.PartialSign(b.authority); err != nil {
		return claims.Artifact{}, err
	}
	return claims.Artifact{
		Tx:        tx.Serialize(),
		Blockhash: blockhash.Hash.String(),
		Recipient: recipient.String(),
		Amount:    req.Amount,
	}, nil
}
