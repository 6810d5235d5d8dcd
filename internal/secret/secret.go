// Package secret encrypts CMS credentials at rest with AES-256-GCM.
//
// Ciphertext is hex(nonce || ciphertext+tag). Values that do not look like
// ciphertext are treated as legacy plain-text credentials and passed through
// unchanged on decrypt, so existing records keep working after encryption
// is enabled.
package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/crypto/argon2"
)

const (
	keyLen   = 32 // AES-256
	nonceLen = 12 // AES-GCM standard nonce size
	tagLen   = 16

	argonTime    = 1
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
)

// derivationSalt keys Argon2id when the configured key is a passphrase
// rather than a raw hex key. Fixed so the same passphrase always yields
// the same key across restarts.
var derivationSalt = []byte("domainwatch-secret-v1")

// encryptedShape matches hex of nonce+tag plus at least one payload byte.
var encryptedShape = regexp.MustCompile(fmt.Sprintf(`^[0-9a-fA-F]{%d,}$`, (nonceLen+tagLen+1)*2))

// Cipher encrypts and decrypts credential strings with a fixed key.
type Cipher struct {
	key []byte
}

// NewCipher builds a Cipher from key material: a 64-character hex string is
// used as the raw AES-256 key, anything else is run through Argon2id.
func NewCipher(keyMaterial string) (*Cipher, error) {
	if keyMaterial == "" {
		return nil, errors.New("encryption key is empty")
	}

	if len(keyMaterial) == keyLen*2 {
		if key, err := hex.DecodeString(keyMaterial); err == nil {
			return &Cipher{key: key}, nil
		}
	}

	key := argon2.IDKey([]byte(keyMaterial), derivationSalt, argonTime, argonMemory, argonThreads, keyLen)
	return &Cipher{key: key}, nil
}

// Encrypt returns hex(nonce || ciphertext+tag). Empty input stays empty.
func (c *Cipher) Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plain), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values that do not match the encrypted shape
// are legacy plain-text credentials and are returned as-is; a value that
// matches the shape but fails to decrypt is also returned as-is rather
// than erased.
func (c *Cipher) Decrypt(stored string) string {
	if stored == "" || !encryptedShape.MatchString(stored) {
		return stored
	}

	data, err := hex.DecodeString(stored)
	if err != nil {
		return stored
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return stored
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return stored
	}

	nonce := data[:nonceLen]
	plain, err := gcm.Open(nil, nonce, data[nonceLen:], nil)
	if err != nil {
		return stored
	}
	return string(plain)
}
