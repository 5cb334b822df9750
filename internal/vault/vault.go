// Package vault protects the user's signing key at rest. The key is sealed
// with ChaCha20-Poly1305 under a key-encryption key derived from the user's
// passphrase with Argon2id. The salt and work factor are stored alongside
// the ciphertext in a versioned record, so parameters can change without
// breaking old records.
package vault

import (
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"nostatus/internal/common"
)

const (
	// RecordVersion is the current on-disk record format version.
	RecordVersion = 0

	saltSize = 16
	keySize  = 32

	defaultArgonTime    = 1
	defaultArgonMemory  = 64 * 1024
	defaultArgonThreads = 4
)

// Record is the encrypted-key payload persisted on disk. It is created at
// registration and never mutated; a passphrase change produces a brand-new
// record with a fresh salt and nonce.
type Record struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Time    uint32 `json:"argon2_time"`
	Memory  uint32 `json:"argon2_memory"`
	Threads uint8  `json:"argon2_threads"`
	Nonce   []byte `json:"nonce"`
	Cipher  []byte `json:"cipher"`
}

func deriveKEK(passphrase, salt []byte, time, memory uint32, threads uint8) []byte {
	return argon2.IDKey(passphrase, salt, time, memory, threads, keySize)
}

// Register seals secretKey under a key derived from passphrase and returns
// the versioned record. A fresh random salt and nonce are generated on
// every call.
func Register(secretKey, passphrase []byte) (*Record, error) {
	if len(secretKey) != keySize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidKeyFormat, keySize, len(secretKey))
	}
	allZero := true
	for _, b := range secretKey {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return nil, fmt.Errorf("%w: key is all zeroes", ErrInvalidKeyFormat)
	}

	salt := common.GenerateRandByteArray(saltSize)
	nonce := common.GenerateRandByteArray(chacha20poly1305.NonceSize)

	kek := deriveKEK(passphrase, salt, defaultArgonTime, defaultArgonMemory, defaultArgonThreads)
	defer Wipe(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, err
	}

	return &Record{
		Version: RecordVersion,
		Salt:    salt,
		Time:    defaultArgonTime,
		Memory:  defaultArgonMemory,
		Threads: defaultArgonThreads,
		Nonce:   nonce,
		Cipher:  aead.Seal(nil, nonce, secretKey, nil),
	}, nil
}

// Unlock re-derives the key-encryption key from the record's stored
// parameters and opens the ciphertext. Structural problems surface as
// ErrCorruptRecord (or ErrUnsupportedVersion for future formats);
// an authentication failure surfaces as ErrIncorrectPassphrase. The two
// are deliberately kept distinct so the caller can tell a typo from a
// damaged record.
func Unlock(rec *Record, passphrase []byte) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: no record", ErrCorruptRecord)
	}
	if rec.Version > RecordVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, rec.Version)
	}
	if rec.Version < 0 {
		return nil, fmt.Errorf("%w: negative version", ErrCorruptRecord)
	}
	if len(rec.Salt) != saltSize {
		return nil, fmt.Errorf("%w: bad salt length %d", ErrCorruptRecord, len(rec.Salt))
	}
	if len(rec.Nonce) != chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrCorruptRecord, len(rec.Nonce))
	}
	if rec.Time == 0 || rec.Memory == 0 || rec.Threads == 0 {
		return nil, fmt.Errorf("%w: missing derivation parameters", ErrCorruptRecord)
	}
	if len(rec.Cipher) != keySize+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: bad ciphertext length %d", ErrCorruptRecord, len(rec.Cipher))
	}

	kek := deriveKEK(passphrase, rec.Salt, rec.Time, rec.Memory, rec.Threads)
	defer Wipe(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, err
	}

	secretKey, err := aead.Open(nil, rec.Nonce, rec.Cipher, nil)
	if err != nil {
		return nil, ErrIncorrectPassphrase
	}
	return secretKey, nil
}

// Rotate decrypts the record with oldPassphrase and seals the key again
// under newPassphrase. The old record stays untouched on failure.
func Rotate(rec *Record, oldPassphrase, newPassphrase []byte) (*Record, error) {
	secretKey, err := Unlock(rec, oldPassphrase)
	if err != nil {
		return nil, err
	}
	defer Wipe(secretKey)

	next, err := Register(secretKey, newPassphrase)
	if err != nil {
		return nil, err
	}
	return next, nil
}

// Wipe zeroes the provided buffer. This is best-effort and aims to reduce
// the chance of the compiler eliding the write.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
