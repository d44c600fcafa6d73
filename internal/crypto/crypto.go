package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"github.com/enbox/enbox/internal/errors"
)

const (
	aesKeySize = 32 // for AES-256
	refKeySize = 32 // for keyed BLAKE3

	// NonceSize is the size of the GCM initialization vector.
	NonceSize = 12
	// TagSize is the size of the GCM authentication tag.
	TagSize = 16

	// Extension is the number of bytes a plaintext is enlarged by sealing it
	// with SealPacked.
	Extension = NonceSize + TagSize

	// KeySize is the number of key bytes derived for a repository.
	KeySize = aesKeySize + refKeySize
)

var (
	// ErrUnauthenticated is returned when ciphertext verification has failed.
	ErrUnauthenticated = errors.New("ciphertext verification failed")
)

// EncryptionKey is the AES-256 key used to seal block contents and records.
type EncryptionKey [aesKeySize]byte

// ReferenceKey keys the hash that turns content hashes into storage names.
type ReferenceKey [refKeySize]byte

// Key holds the symmetric keys of a repository.
type Key struct {
	EncryptionKey `json:"encrypt"`
	ReferenceKey  `json:"reference"`
}

// NewRandomKey returns new random keys. It panics if the system random
// generator fails.
func NewRandomKey() *Key {
	k := &Key{}
	if _, err := io.ReadFull(rand.Reader, k.EncryptionKey[:]); err != nil {
		panic("unable to read enough random bytes for encryption key")
	}
	if _, err := io.ReadFull(rand.Reader, k.ReferenceKey[:]); err != nil {
		panic("unable to read enough random bytes for reference key")
	}
	return k
}

// keyFromSlice splits scrypt output into a Key.
func keyFromSlice(data []byte) *Key {
	k := &Key{}
	copy(k.EncryptionKey[:], data[:aesKeySize])
	copy(k.ReferenceKey[:], data[aesKeySize:KeySize])
	return k
}

// NewRandomNonce returns a new random nonce. It panics on error so that the
// program is safely terminated.
func NewRandomNonce() []byte {
	iv := make([]byte, NonceSize)
	n, err := rand.Read(iv)
	if n != NonceSize || err != nil {
		panic("unable to read enough random bytes for iv")
	}
	return iv
}

// validNonce checks that nonce is not all zero.
func validNonce(nonce []byte) bool {
	var sum byte
	for _, b := range nonce {
		sum |= b
	}
	return sum > 0
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// Valid tests whether the key k is valid (i.e. not zero).
func (k *Key) Valid() bool {
	return k != nil && !isZero(k.EncryptionKey[:]) && !isZero(k.ReferenceKey[:])
}

// Wipe overwrites the key material with zeros.
func (k *Key) Wipe() {
	if k == nil {
		return
	}
	clear(k.EncryptionKey[:])
	clear(k.ReferenceKey[:])
}

// MarshalJSON refuses to serialize key material; keys are derived, never
// stored.
func (k *Key) MarshalJSON() ([]byte, error) {
	return nil, errors.New("refusing to serialize key material")
}

var _ json.Marshaler = &Key{}

func (k *Key) aead() cipher.AEAD {
	c, err := aes.NewCipher(k.EncryptionKey[:])
	if err != nil {
		panic(fmt.Sprintf("unable to create cipher: %v", err))
	}
	gcm, err := cipher.NewGCMWithTagSize(c, TagSize)
	if err != nil {
		panic(fmt.Sprintf("unable to create GCM: %v", err))
	}
	return gcm
}

// statically ensure that *Key implements crypto/cipher.AEAD
var _ cipher.AEAD = &Key{}

// NonceSize returns the size of the nonce that must be passed to Seal
// and Open.
func (k *Key) NonceSize() int {
	return NonceSize
}

// Overhead returns the maximum difference between the lengths of a
// plaintext and its ciphertext.
func (k *Key) Overhead() int {
	return TagSize
}

// Seal encrypts and authenticates plaintext, authenticates the additional
// data and appends the result (ciphertext followed by the tag) to dst. The
// nonce must be NonceSize() bytes long and unique for all time, for a given
// key.
func (k *Key) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	if !k.Valid() {
		panic("key is invalid")
	}

	if len(nonce) != NonceSize {
		panic("incorrect nonce length")
	}

	if !validNonce(nonce) {
		panic("nonce is invalid")
	}

	return k.aead().Seal(dst, nonce, plaintext, additionalData)
}

// Open decrypts and authenticates ciphertext (with the tag appended),
// authenticates the additional data and, if successful, appends the
// resulting plaintext to dst. ErrUnauthenticated is returned if the tag does
// not verify.
func (k *Key) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if !k.Valid() {
		return nil, errors.New("invalid key")
	}

	if len(nonce) != NonceSize {
		return nil, errors.Errorf("incorrect nonce length %d", len(nonce))
	}

	if !validNonce(nonce) {
		return nil, errors.New("nonce is invalid")
	}

	if len(ciphertext) < TagSize {
		return nil, errors.Errorf("trying to decrypt invalid data: ciphertext too short")
	}

	ret, err := k.aead().Open(dst, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, ErrUnauthenticated
	}

	return ret, nil
}

// SealDetached encrypts plaintext with a fresh random nonce and returns the
// nonce, the ciphertext and the authentication tag separately.
func (k *Key) SealDetached(plaintext, additionalData []byte) (nonce, ciphertext, tag []byte) {
	nonce = NewRandomNonce()
	sealed := k.Seal(make([]byte, 0, len(plaintext)+TagSize), nonce, plaintext, additionalData)
	l := len(sealed) - TagSize
	return nonce, sealed[:l:l], sealed[l:]
}

// OpenDetached is the inverse of SealDetached.
func (k *Key) OpenDetached(nonce, ciphertext, tag, additionalData []byte) ([]byte, error) {
	if len(tag) != TagSize {
		return nil, ErrUnauthenticated
	}

	buf := make([]byte, 0, len(ciphertext)+TagSize)
	buf = append(buf, ciphertext...)
	buf = append(buf, tag...)

	return k.Open(buf[:0], nonce, buf, additionalData)
}

// SealPacked encrypts plaintext with a fresh nonce and returns
// nonce || ciphertext || tag.
func (k *Key) SealPacked(plaintext, additionalData []byte) []byte {
	nonce := NewRandomNonce()
	out := make([]byte, 0, len(plaintext)+Extension)
	out = append(out, nonce...)
	return k.Seal(out, nonce, plaintext, additionalData)
}

// OpenPacked is the inverse of SealPacked.
func (k *Key) OpenPacked(data, additionalData []byte) ([]byte, error) {
	if len(data) < Extension {
		return nil, errors.Errorf("trying to decrypt invalid data: ciphertext too short")
	}
	nonce, ciphertext := data[:NonceSize], data[NonceSize:]
	return k.Open(nil, nonce, ciphertext, additionalData)
}
