package starknet

import (
	"math/big"

	"golang.org/x/crypto/sha3"
)

// selectorMask keeps the low 250 bits of the keccak digest
var selectorMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))

// Selector returns the entry point selector of a contract function name
// (starknet_keccak: keccak256 truncated to 250 bits) as 0x hex.
func Selector(name string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(name))
	v := new(big.Int).SetBytes(h.Sum(nil))
	v.And(v, selectorMask)
	return "0x" + v.Text(16)
}
