package chain

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
)

// Account holds the dapp signing key and its derived identity.
type Account struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	address    Address
	network    NetworkType
}

// AccountFromPrivateKey builds an account from a 64-character hex
// private key, the format dHealth wallets export.
func AccountFromPrivateKey(privateKeyHex string, network NetworkType) (*Account, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)

	addr, err := AddressFromPublicKey(pub, network)
	if err != nil {
		return nil, err
	}

	return &Account{
		privateKey: priv,
		publicKey:  pub,
		address:    addr,
		network:    network,
	}, nil
}

// PublicKey returns the 32-byte signing public key.
func (a *Account) PublicKey() []byte {
	out := make([]byte, len(a.publicKey))
	copy(out, a.publicKey)
	return out
}

// PublicKeyHex returns the public key as uppercase hex.
func (a *Account) PublicKeyHex() string {
	return strings.ToUpper(hex.EncodeToString(a.publicKey))
}

// Address returns the account address on the configured network.
func (a *Account) Address() Address {
	return a.address
}

// Network returns the network the account signs for.
func (a *Account) Network() NetworkType {
	return a.network
}

func (a *Account) sign(data []byte) []byte {
	return ed25519.Sign(a.privateKey, data)
}
