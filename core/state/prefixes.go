package state

import "github.com/gagliardetto/solana-go"

var (
	poolPrefix         = []byte("rewards/pool/")
	entryPrefix        = []byte("rewards/entry/")
	vaultBindingPrefix = []byte("rewards/vault-binding/")
	holderPrefix       = []byte("bank/holder/")
)

func prefixedKey(prefix []byte, parts ...solana.PublicKey) []byte {
	buf := make([]byte, len(prefix), len(prefix)+32*len(parts))
	copy(buf, prefix)
	for _, part := range parts {
		buf = append(buf, part[:]...)
	}
	return buf
}

func poolKey(addr solana.PublicKey) []byte { return prefixedKey(poolPrefix, addr) }

func entryKey(pool, user solana.PublicKey) []byte { return prefixedKey(entryPrefix, pool, user) }

func poolEntriesPrefix(pool solana.PublicKey) []byte { return prefixedKey(entryPrefix, pool) }

func vaultBindingKey(vault solana.PublicKey) []byte {
	return prefixedKey(vaultBindingPrefix, vault)
}

func holderKey(addr solana.PublicKey) []byte { return prefixedKey(holderPrefix, addr) }
