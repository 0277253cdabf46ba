// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/rpf

package rpf

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

// keyring derives and caches payload keys per encryption mode.
type keyring struct {
	keys       map[Encryption][]byte
	passphrase string
	iterations int
	mu         sync.Mutex
}

// newKeyring creates keyring for passphrase.
func newKeyring(passphrase string, iterations int) *keyring {
	return &keyring{
		keys:       make(map[Encryption][]byte, 2),
		passphrase: passphrase,
		iterations: iterations,
	}
}

// key returns the 32-byte AES key for mode.
func (k *keyring) key(mode Encryption) []byte {
	k.mu.Lock()
	defer k.mu.Unlock()

	if key, ok := k.keys[mode]; ok {
		return key
	}

	salt := []byte("rpf:" + mode.String())
	key := pbkdf2.Key([]byte(k.passphrase), salt, k.iterations, 32, sha256.New)
	k.keys[mode] = key
	return key
}

// xor applies AES-CTR keystream to data. CTR keeps payload length unchanged.
func (k *keyring) xor(mode Encryption, nameHash uint32, size uint32, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.key(mode))
	if err != nil {
		return nil, err
	}

	var iv [aes.BlockSize]byte
	binary.LittleEndian.PutUint32(iv[0:4], nameHash)
	binary.LittleEndian.PutUint32(iv[4:8], size)
	binary.LittleEndian.PutUint32(iv[8:12], uint32(mode))

	out := make([]byte, len(data))
	cipher.NewCTR(block, iv[:]).XORKeyStream(out, data)
	return out, nil
}
