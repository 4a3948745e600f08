package solana

import (
	"encoding/binary"

	"airdrop/crypto"
)

const tokenInstructionTransfer = 3

// TransferInstruction moves amount base units between two token accounts of the same mint.
func TransferInstruction(source, destination, authority crypto.PublicKey, amount uint64) Instruction {
	data := make([]byte, 9)
	data[0] = tokenInstructionTransfer
	binary.LittleEndian.PutUint64(data[1:], amount)
	return Instruction{
		ProgramID: TokenProgramID,
		Accounts: []AccountMeta{
			{PublicKey: source, IsWritable: true},
			{PublicKey: destination, IsWritable: true},
			{PublicKey: authority, IsSigner: true},
		},
		Data: data,
	}
}

// CreateAssociatedTokenAccountInstruction creates owner's token account for mint, funded by payer.
func CreateAssociatedTokenAccountInstruction(payer, account, owner, mint crypto.PublicKey) Instruction {
	return Instruction{
		ProgramID: AssociatedTokenAccountProgramID,
		Accounts: []AccountMeta{
			{PublicKey: payer, IsSigner: true, IsWritable: true},
			{PublicKey: account, IsWritable: true},
			{PublicKey: owner},
			{PublicKey: mint},
			{PublicKey: SystemProgramID},
			{PublicKey: TokenProgramID},
		},
		Data: []byte{},
	}
}
