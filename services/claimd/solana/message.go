package solana

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"airdrop/crypto"
)

// AccountMeta references an account used by an instruction.
type AccountMeta struct {
	PublicKey  crypto.PublicKey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation before compilation.
type Instruction struct {
	ProgramID crypto.PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// MessageHeader counts the signer and read-only sections of the account key list.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into Message.AccountKeys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a legacy transaction message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []crypto.PublicKey
	RecentBlockhash crypto.PublicKey
	Instructions    []CompiledInstruction
}

// NewMessage compiles instructions into a legacy message. The fee payer is always the
// first account; remaining accounts keep first-use order within the
// signer-writable, signer-readonly, writable and readonly groups.
func NewMessage(feePayer crypto.PublicKey, instructions []Instruction, recentBlockhash crypto.PublicKey) (Message, error) {
	if len(instructions) == 0 {
		return Message{}, errors.New("solana: message needs at least one instruction")
	}
	metas := []AccountMeta{{PublicKey: feePayer, IsSigner: true, IsWritable: true}}
	position := map[crypto.PublicKey]int{feePayer: 0}
	add := func(meta AccountMeta) {
		if i, ok := position[meta.PublicKey]; ok {
			metas[i].IsSigner = metas[i].IsSigner || meta.IsSigner
			metas[i].IsWritable = metas[i].IsWritable || meta.IsWritable
			return
		}
		position[meta.PublicKey] = len(metas)
		metas = append(metas, meta)
	}
	for _, ix := range instructions {
		for _, account := range ix.Accounts {
			add(account)
		}
		add(AccountMeta{PublicKey: ix.ProgramID})
	}

	var groups [4][]AccountMeta
	for _, meta := range metas {
		switch {
		case meta.IsSigner && meta.IsWritable:
			groups[0] = append(groups[0], meta)
		case meta.IsSigner:
			groups[1] = append(groups[1], meta)
		case meta.IsWritable:
			groups[2] = append(groups[2], meta)
		default:
			groups[3] = append(groups[3], meta)
		}
	}
	if len(metas) > 256 {
		return Message{}, fmt.Errorf("solana: %d accounts exceeds 256", len(metas))
	}

	msg := Message{RecentBlockhash: recentBlockhash}
	msg.Header.NumRequiredSignatures = uint8(len(groups[0]) + len(groups[1]))
	msg.Header.NumReadonlySignedAccounts = uint8(len(groups[1]))
	msg.Header.NumReadonlyUnsignedAccounts = uint8(len(groups[3]))
	index := make(map[crypto.PublicKey]uint8, len(metas))
	for _, group := range groups {
		for _, meta := range group {
			index[meta.PublicKey] = uint8(len(msg.AccountKeys))
			msg.AccountKeys = append(msg.AccountKeys, meta.PublicKey)
		}
	}

	for _, ix := range instructions {
		compiled := CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			Accounts:       make([]uint8, len(ix.Accounts)),
			Data:           ix.Data,
		}
		for i, account := range ix.Accounts {
			compiled.Accounts[i] = index[account.PublicKey]
		}
		msg.Instructions = append(msg.Instructions, compiled)
	}
	return msg, nil
}

// Signers returns the account keys that must sign, in signature order.
func (m Message) Signers() []crypto.PublicKey {
	return m.AccountKeys[:m.Header.NumRequiredSignatures]
}

// Serialize produces the wire encoding that signatures commit to.
func (m Message) Serialize() []byte {
	var buf bytes.Buffer
	buf.WriteByte(m.Header.NumRequiredSignatures)
	buf.WriteByte(m.Header.NumReadonlySignedAccounts)
	buf.WriteByte(m.Header.NumReadonlyUnsignedAccounts)
	buf.Write(EncodeCompactU16(len(m.AccountKeys)))
	for _, key := range m.AccountKeys {
		buf.Write(key[:])
	}
	buf.Write(m.RecentBlockhash[:])
	buf.Write(EncodeCompactU16(len(m.Instructions)))
	for _, ix := range m.Instructions {
		buf.WriteByte(ix.ProgramIDIndex)
		buf.Write(EncodeCompactU16(len(ix.Accounts)))
		buf.Write(ix.Accounts)
		buf.Write(EncodeCompactU16(len(ix.Data)))
		buf.Write(ix.Data)
	}
	return buf.Bytes()
}

// Transaction pairs a message with one signature slot per required signer. Unsigned
// slots stay zeroed so another party can sign later.
type Transaction struct {
	Signatures [][ed25519.SignatureSize]byte
	Message    Message
}

// NewTransaction allocates empty signature slots for every required signer.
func NewTransaction(msg Message) *Transaction {
	return &Transaction{
		Signatures: make([][ed25519.SignatureSize]byte, msg.Header.NumRequiredSignatures),
		Message:    msg,
	}
}

// PartialSign fills the signature slots belonging to the supplied keypairs.
func (tx *Transaction) PartialSign(keys ...*crypto.Keypair) error {
	payload := tx.Message.Serialize()
	signers := tx.Message.Signers()
	for _, key := range keys {
		pub := key.PublicKey()
		slot := -1
		for i, signer := range signers {
			if signer == pub {
				slot = i
				break
			}
		}
		if slot < 0 {
			return fmt.Errorf("solana: %s is not a required signer", pub)
		}
		copy(tx.Signatures[slot][:], key.Sign(payload))
	}
	return nil
}

// Serialize encodes the signatures followed by the message.
func (tx *Transaction) Serialize() []byte {
	var buf bytes.Buffer
	buf.Write(EncodeCompactU16(len(tx.Signatures)))
	for _, sig := range tx.Signatures {
		buf.Write(sig[:])
	}
	buf.Write(tx.Message.Serialize())
	return buf.Bytes()
}

// EncodeCompactU16 writes n using the 7-bit little-endian varint used for array lengths.
func EncodeCompactU16(n int) []byte {
	out := make([]byte, 0, 3)
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// DecodeCompactU16 reads a compact-u16 and returns the value and bytes consumed.
func DecodeCompactU16(b []byte) (int, int, error) {
	value := 0
	for i := 0; i < 3; i++ {
		if i >= len(b) {
			return 0, 0, errors.New("solana: truncated compact-u16")
		}
		value |= int(b[i]&0x7f) << (7 * i)
		if b[i]&0x80 == 0 {
			return value, i + 1, nil
		}
	}
	return 0, 0, errors.New("solana: compact-u16 overflow")
}
