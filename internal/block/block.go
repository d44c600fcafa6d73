// Package block encrypts and decrypts single chunks of a blob.
package block

import (
	"encoding/binary"

	"github.com/enbox/enbox/internal/codec"
	"github.com/enbox/enbox/internal/crypto"
	"github.com/enbox/enbox/internal/enbox"
	"github.com/enbox/enbox/internal/errors"
)

var (
	// ErrAuthenticationFailed is returned when the authentication tag of a
	// block does not verify.
	ErrAuthenticationFailed = errors.New("block authentication failed")

	// ErrIntegrityMismatch is returned when a decrypted block does not hash
	// to the content hash it is stored under.
	ErrIntegrityMismatch = errors.New("block content does not match its hash")
)

// recordVersion is the version of the encoded block record.
const recordVersion = 1

// Block is one encrypted chunk. Hash is the SHA-512 of the plaintext.
type Block struct {
	Hash        enbox.ID               `cbor:"-"`
	Version     uint                   `cbor:"1,keyasint"`
	IV          [crypto.NonceSize]byte `cbor:"2,keyasint"`
	Tag         [crypto.TagSize]byte   `cbor:"3,keyasint"`
	Ciphertext  []byte                 `cbor:"4,keyasint"`
	Compression Compression            `cbor:"5,keyasint"`
	Length      uint64                 `cbor:"6,keyasint"`
}

// Hash returns the content hash of plaintext.
func Hash(plaintext []byte) enbox.ID {
	return enbox.Hash(plaintext)
}

// Size returns the number of bytes the block occupies in memory.
func (b *Block) Size() int {
	return len(b.Ciphertext) + len(b.IV) + len(b.Tag)
}

// additionalData binds the content hash and the framing of the ciphertext
// to the authentication tag.
func additionalData(id enbox.ID, comp Compression, length uint64) []byte {
	ad := make([]byte, 0, len(id)+1+8)
	ad = append(ad, id[:]...)
	ad = append(ad, byte(comp))
	return binary.BigEndian.AppendUint64(ad, length)
}

// Encrypt compresses plaintext according to mode and seals it with a fresh
// random IV.
func Encrypt(plaintext []byte, key *crypto.Key, mode Mode) (*Block, error) {
	return encrypt(Hash(plaintext), plaintext, key, mode)
}

func encrypt(id enbox.ID, plaintext []byte, key *crypto.Key, mode Mode) (*Block, error) {
	if !key.Valid() {
		return nil, errors.New("invalid key")
	}

	data, comp, err := compress(plaintext, mode)
	if err != nil {
		return nil, err
	}

	b := &Block{
		Hash:        id,
		Version:     recordVersion,
		Compression: comp,
		Length:      uint64(len(plaintext)),
	}

	nonce, ciphertext, tag := key.SealDetached(data, additionalData(id, comp, b.Length))
	copy(b.IV[:], nonce)
	copy(b.Tag[:], tag)
	b.Ciphertext = ciphertext

	return b, nil
}

// Decrypt authenticates and decrypts b and verifies the plaintext against
// b.Hash.
func Decrypt(b *Block, key *crypto.Key) ([]byte, error) {
	data, err := key.OpenDetached(b.IV[:], b.Ciphertext, b.Tag[:], additionalData(b.Hash, b.Compression, b.Length))
	if errors.Is(err, crypto.ErrUnauthenticated) {
		return nil, errors.WithStack(ErrAuthenticationFailed)
	}
	if err != nil {
		return nil, errors.Wrap(err, "decrypt")
	}

	plaintext, err := decompress(data, b.Compression, int(b.Length))
	if err != nil {
		return nil, errors.Wrapf(err, "block %v", b.Hash.Str())
	}

	if Hash(plaintext) != b.Hash {
		return nil, errors.WithStack(ErrIntegrityMismatch)
	}

	return plaintext, nil
}

// Marshal encodes b into its on-disk record. The content hash is not part of
// the record; it is the key the record is stored under.
func (b *Block) Marshal() ([]byte, error) {
	return codec.Marshal(b)
}

// Unmarshal decodes an on-disk record stored under id.
func Unmarshal(id enbox.ID, data []byte) (*Block, error) {
	b := &Block{}
	if err := codec.Unmarshal(data, b); err != nil {
		return nil, errors.Wrapf(err, "decode block %v", id.Str())
	}
	if b.Version != recordVersion {
		return nil, errors.Errorf("block %v: unsupported record version %d", id.Str(), b.Version)
	}
	b.Hash = id
	return b, nil
}
