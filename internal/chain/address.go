package chain

import (
	"encoding/base32"
	"fmt"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // catapult addresses require it
	"golang.org/x/crypto/sha3"
)

// NetworkType identifies the dHealth network an address or
// transaction belongs to.
type NetworkType byte

const (
	MainNet NetworkType = 0x68
	TestNet NetworkType = 0x98
)

const (
	// RawAddressSize is the decoded address length: one network byte,
	// a 20-byte ripemd160 hash and a 3-byte checksum.
	RawAddressSize = 24

	// EncodedAddressSize is the unpadded base32 length of a raw address.
	EncodedAddressSize = 39

	checksumSize = 3
)

var addressEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Address is a catapult account address.
type Address struct {
	raw [RawAddressSize]byte
}

// AddressFromPublicKey derives the address owned by an ed25519 public
// key on the given network.
func AddressFromPublicKey(publicKey []byte, network NetworkType) (Address, error) {
	if len(publicKey) != 32 {
		return Address{}, fmt.Errorf("public key must be 32 bytes, got %d", len(publicKey))
	}

	keyHash := sha3.Sum256(publicKey)

	ripe := ripemd160.New()
	ripe.Write(keyHash[:])

	var a Address
	a.raw[0] = byte(network)
	copy(a.raw[1:21], ripe.Sum(nil))

	sum := sha3.Sum256(a.raw[:21])
	copy(a.raw[21:], sum[:checksumSize])
	return a, nil
}

// ParseAddress decodes and validates a plain base32 address such as
// NDAPPH6ZGD4D6LBWFLGFZUT2KQ5OLBLU32K3HNY.
func ParseAddress(plain string) (Address, error) {
	if len(plain) != EncodedAddressSize {
		return Address{}, fmt.Errorf("address must be %d characters, got %d", EncodedAddressSize, len(plain))
	}

	decoded, err := addressEncoding.DecodeString(plain)
	if err != nil {
		return Address{}, fmt.Errorf("decode address: %w", err)
	}
	if len(decoded) != RawAddressSize {
		return Address{}, fmt.Errorf("address decodes to %d bytes, want %d", len(decoded), RawAddressSize)
	}

	var a Address
	copy(a.raw[:], decoded)

	sum := sha3.Sum256(a.raw[:21])
	for i := 0; i < checksumSize; i++ {
		if a.raw[21+i] != sum[i] {
			return Address{}, fmt.Errorf("address %s has an invalid checksum", plain)
		}
	}
	return a, nil
}

// IsValidAddress reports whether plain parses as a well-formed address.
func IsValidAddress(plain string) bool {
	_, err := ParseAddress(plain)
	return err == nil
}

// Plain returns the unpadded base32 form of the address.
func (a Address) Plain() string {
	return addressEncoding.EncodeToString(a.raw[:])
}

// Bytes returns the 24-byte raw form used in transaction payloads.
func (a Address) Bytes() []byte {
	out := make([]byte, RawAddressSize)
	copy(out, a.raw[:])
	return out
}

// Network returns the network the address was issued on.
func (a Address) Network() NetworkType {
	return NetworkType(a.raw[0])
}

func (a Address) String() string {
	return a.Plain()
}
