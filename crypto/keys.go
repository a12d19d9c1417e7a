package crypto

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part of a bech32 encoded address.
type AddressPrefix string

// EscrowPrefix is the prefix carried by every participant address on the
// network.
const EscrowPrefix AddressPrefix = "esc"

const addressLen = 20

// Address is a 20-byte participant address rendered as bech32 with a
// human-readable prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps raw address bytes. The input must be exactly 20 bytes.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != addressLen {
		panic("address must be 20 bytes long")
	}
	return Address{prefix: prefix, bytes: append([]byte(nil), b...)}
}

// DecodeAddress parses a bech32 address string back into an Address,
// rejecting payloads that do not decode to 20 bytes.
func DecodeAddress(s string) (Address, error) {
	prefix, data, err := bech32.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode bech32: %w", err)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("convert bits: %w", err)
	}
	if len(raw) != addressLen {
		return Address{}, fmt.Errorf("address payload is %d bytes, want %d", len(raw), addressLen)
	}
	return NewAddress(AddressPrefix(prefix), raw), nil
}

func (a Address) String() string {
	grouped, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	out, err := bech32.Encode(string(a.prefix), grouped)
	if err != nil {
		panic(err)
	}
	return out
}

func (a Address) Bytes() []byte {
	return a.bytes
}

// Array returns the address as a fixed-size array, the form the escrow
// engine keys its role bindings with.
func (a Address) Array() [20]byte {
	var out [20]byte
	copy(out[:], a.bytes)
	return out
}

// Prefix returns the human-readable prefix of the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// PrivateKey is a secp256k1 signing key.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

// PublicKey is the verification half of a PrivateKey.
type PublicKey struct {
	*ecdsa.PublicKey
}

// GeneratePrivateKey produces a fresh secp256k1 key.
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromBytes restores a key from its 32-byte scalar form.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the 32-byte scalar form of the key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the network address for the key: the trailing 20 bytes of
// the keccak hash of the uncompressed public key, bech32 encoded.
func (k *PublicKey) Address() Address {
	return NewAddress(EscrowPrefix, crypto.PubkeyToAddress(*k.PublicKey).Bytes())
}
