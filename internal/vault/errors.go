package vault

import "errors"

var (
	// ErrIncorrectPassphrase is returned when authenticated decryption fails:
	// either the passphrase is wrong or the ciphertext/tag was tampered with.
	// The AEAD cannot tell these apart, and no partial plaintext is ever
	// returned.
	ErrIncorrectPassphrase = errors.New("incorrect passphrase")

	// ErrCorruptRecord is returned when the record's structural fields
	// (lengths, missing parameters) are invalid before decryption is even
	// attempted.
	ErrCorruptRecord = errors.New("corrupt key record")

	// ErrUnsupportedVersion is returned for record versions newer than this
	// reader understands. Guessing at an unknown layout is never attempted.
	ErrUnsupportedVersion = errors.New("unsupported key record version")

	// ErrInvalidKeyFormat is returned by Register when the secret key is not
	// a well-formed 32-byte key.
	ErrInvalidKeyFormat = errors.New("invalid secret key format")
)
