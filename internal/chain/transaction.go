package chain

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// TransactionType is the catapult entity type.
type TransactionType uint16

const (
	TypeTransfer          TransactionType = 0x4154
	TypeAggregateComplete TransactionType = 0x4141
)

const (
	transactionVersion = 1

	// headerSize covers size, the two reserved words, signature,
	// signer public key, version, network, type, maxFee and deadline.
	headerSize = 4 + 4 + 64 + 32 + 4 + 1 + 1 + 2 + 8 + 8

	// signedDataOffset is where the signed region starts: the version
	// byte, right after the entity body reserved word.
	signedDataOffset = 4 + 4 + 64 + 32 + 4

	embeddedHeaderSize = 4 + 4 + 32 + 4 + 1 + 1 + 2

	signatureOffset = 4 + 4
	signerOffset    = 4 + 4 + 64

	// DefaultMaxFee matches the fee the payout pipeline attaches to
	// every announced transaction, in base units.
	DefaultMaxFee = 30000

	deadlineWindow = 2 * time.Hour
)

// Mosaic is an asset attachment on a transfer.
type Mosaic struct {
	ID     uint64
	Amount uint64
}

// Transfer describes a single token transfer with a plain-text message.
type Transfer struct {
	Recipient Address
	Mosaics   []Mosaic
	Message   string
}

// SignedTransaction is a fully serialized, signed payload ready to be
// announced to a node.
type SignedTransaction struct {
	Payload []byte
	Hash    [32]byte
	Type    TransactionType
}

// PayloadHex returns the payload as uppercase hex, the form the REST
// gateway expects.
func (s *SignedTransaction) PayloadHex() string {
	return strings.ToUpper(hex.EncodeToString(s.Payload))
}

// HashHex returns the transaction hash as uppercase hex.
func (s *SignedTransaction) HashHex() string {
	return strings.ToUpper(hex.EncodeToString(s.Hash[:]))
}

// Signer serializes and signs transactions for one network.
type Signer struct {
	account         *Account
	generationHash  [32]byte
	epochAdjustment int64
	now             func() time.Time
}

// NewSigner builds a signer from the network generation hash and the
// epoch adjustment in seconds.
func NewSigner(account *Account, generationHashHex string, epochAdjustment int64) (*Signer, error) {
	gh, err := hex.DecodeString(generationHashHex)
	if err != nil {
		return nil, fmt.Errorf("decode generation hash: %w", err)
	}
	if len(gh) != 32 {
		return nil, fmt.Errorf("generation hash must be 32 bytes, got %d", len(gh))
	}

	s := &Signer{
		account:         account,
		epochAdjustment: epochAdjustment,
		now:             time.Now,
	}
	copy(s.generationHash[:], gh)
	return s, nil
}

// deadline returns the network timestamp two hours from now, in
// milliseconds since the nemesis block.
func (s *Signer) deadline() uint64 {
	at := s.now().Add(deadlineWindow).Unix() - s.epochAdjustment
	return uint64(at) * 1000
}

// SignTransfer serializes and signs a standalone transfer.
func (s *Signer) SignTransfer(t Transfer, maxFee uint64) (*SignedTransaction, error) {
	body, err := serializeTransferBody(t)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint32(payload[0:], uint32(len(payload)))
	s.fillEntityHeader(payload, TypeTransfer, maxFee, s.deadline())
	copy(payload[headerSize:], body)

	s.signPayload(payload)
	return &SignedTransaction{
		Payload: payload,
		Hash:    s.hashPayload(payload, payload[signedDataOffset:]),
		Type:    TypeTransfer,
	}, nil
}

// SignAggregateComplete wraps the transfers as embedded transactions
// signed by the dapp account and signs the enclosing aggregate.
func (s *Signer) SignAggregateComplete(transfers []Transfer, maxFee uint64) (*SignedTransaction, error) {
	if len(transfers) == 0 {
		return nil, fmt.Errorf("aggregate requires at least one transfer")
	}

	var embedded bytes.Buffer
	hashes := make([][32]byte, 0, len(transfers))
	for _, t := range transfers {
		raw, err := s.serializeEmbeddedTransfer(t)
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, sha3.Sum256(raw))

		embedded.Write(raw)
		if pad := (8 - len(raw)%8) % 8; pad > 0 {
			embedded.Write(make([]byte, pad))
		}
	}
	merkle := merkleRoot(hashes)

	// Aggregate body: transactions hash, payload size, reserved word,
	// then the padded embedded transactions.
	bodySize := 32 + 4 + 4 + embedded.Len()
	payload := make([]byte, headerSize+bodySize)
	binary.LittleEndian.PutUint32(payload[0:], uint32(len(payload)))
	s.fillEntityHeader(payload, TypeAggregateComplete, maxFee, s.deadline())

	off := headerSize
	copy(payload[off:], merkle[:])
	binary.LittleEndian.PutUint32(payload[off+32:], uint32(embedded.Len()))
	copy(payload[off+40:], embedded.Bytes())

	// An aggregate signature covers only the header through the
	// transactions hash; the embedded payload is bound by the merkle.
	signed := payload[signedDataOffset : headerSize+32]
	s.signPayloadRegion(payload, signed)
	return &SignedTransaction{
		Payload: payload,
		Hash:    s.hashPayload(payload, signed),
		Type:    TypeAggregateComplete,
	}, nil
}

func (s *Signer) fillEntityHeader(payload []byte, txType TransactionType, maxFee, deadline uint64) {
	off := signedDataOffset
	payload[off] = transactionVersion
	payload[off+1] = byte(s.account.Network())
	binary.LittleEndian.PutUint16(payload[off+2:], uint16(txType))
	binary.LittleEndian.PutUint64(payload[off+4:], maxFee)
	binary.LittleEndian.PutUint64(payload[off+12:], deadline)
}

func (s *Signer) signPayload(payload []byte) {
	s.signPayloadRegion(payload, payload[signedDataOffset:])
}

func (s *Signer) signPayloadRegion(payload, signed []byte) {
	data := make([]byte, 0, 32+len(signed))
	data = append(data, s.generationHash[:]...)
	data = append(data, signed...)

	copy(payload[signatureOffset:], s.account.sign(data))
	copy(payload[signerOffset:], s.account.publicKey)
}

func (s *Signer) hashPayload(payload, signed []byte) [32]byte {
	h := sha3.New256()
	h.Write(payload[signatureOffset : signatureOffset+32])
	h.Write(payload[signerOffset : signerOffset+32])
	h.Write(s.generationHash[:])
	h.Write(signed)

	var out [32]byte
	h.Sum(out[:0])
	return out
}

func (s *Signer) serializeEmbeddedTransfer(t Transfer) ([]byte, error) {
	body, err := serializeTransferBody(t)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, embeddedHeaderSize+len(body))
	binary.LittleEndian.PutUint32(raw[0:], uint32(len(raw)))
	copy(raw[8:], s.account.publicKey)
	raw[44] = transactionVersion
	raw[45] = byte(s.account.Network())
	binary.LittleEndian.PutUint16(raw[46:], uint16(TypeTransfer))
	copy(raw[embeddedHeaderSize:], body)
	return raw, nil
}

func serializeTransferBody(t Transfer) ([]byte, error) {
	if len(t.Mosaics) == 0 {
		return nil, fmt.Errorf("transfer to %s carries no mosaics", t.Recipient)
	}
	message := encodePlainMessage(t.Message)
	if len(message) > 1024 {
		return nil, fmt.Errorf("transfer message exceeds 1024 bytes")
	}

	var buf bytes.Buffer
	buf.Write(t.Recipient.Bytes())
	binary.Write(&buf, binary.LittleEndian, uint16(len(message)))
	buf.WriteByte(byte(len(t.Mosaics)))
	buf.Write(make([]byte, 5)) // reserved
	for _, m := range t.Mosaics {
		binary.Write(&buf, binary.LittleEndian, m.ID)
		binary.Write(&buf, binary.LittleEndian, m.Amount)
	}
	buf.Write(message)
	return buf.Bytes(), nil
}

// encodePlainMessage prefixes the text with the plain-message type
// byte. An empty message stays empty on the wire.
func encodePlainMessage(text string) []byte {
	if text == "" {
		return nil
	}
	out := make([]byte, 0, len(text)+1)
	out = append(out, 0x00)
	return append(out, text...)
}

// merkleRoot folds embedded transaction hashes into the aggregate
// transactions hash, duplicating the trailing node on odd levels.
func merkleRoot(hashes [][32]byte) [32]byte {
	if len(hashes) == 0 {
		return [32]byte{}
	}
	level := hashes
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			h := sha3.New256()
			h.Write(level[i][:])
			h.Write(level[i+1][:])

			var parent [32]byte
			h.Sum(parent[:0])
			next = append(next, parent)
		}
		level = next
	}
	return level[0]
}
