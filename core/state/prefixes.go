package state

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

var (
	tokenPrefix    = []byte("token:")
	tokenListKey   = ethcrypto.Keccak256([]byte("token-list"))
	accountPrefix  = []byte("account:")
	instancePrefix = []byte("escrow/instance:")
	ledgerPrefix   = []byte("escrow/ledger:")
	vaultPrefix    = []byte("escrow/vault:")
)

func tokenMetadataKey(symbol string) []byte {
	buf := make([]byte, len(tokenPrefix)+len(symbol))
	copy(buf, tokenPrefix)
	copy(buf[len(tokenPrefix):], symbol)
	return ethcrypto.Keccak256(buf)
}

func accountKey(addr []byte) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr)
	return ethcrypto.Keccak256(buf)
}

func instanceKey(id [32]byte) []byte {
	buf := make([]byte, len(instancePrefix)+len(id))
	copy(buf, instancePrefix)
	copy(buf[len(instancePrefix):], id[:])
	return ethcrypto.Keccak256(buf)
}

func ledgerKey(id [32]byte, role uint8) []byte {
	buf := make([]byte, len(ledgerPrefix)+len(id)+1)
	copy(buf, ledgerPrefix)
	copy(buf[len(ledgerPrefix):], id[:])
	buf[len(buf)-1] = role
	return ethcrypto.Keccak256(buf)
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}
