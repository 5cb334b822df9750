package session

import "errors"

var (
	// ErrNotUnlocked is returned by operations that need the signing key
	// while the session is locked.
	ErrNotUnlocked = errors.New("session is not unlocked")
	// ErrAlreadyRegistered guards against overwriting an existing key
	// record during first-run registration.
	ErrAlreadyRegistered = errors.New("a key record already exists")
	// ErrStatusTooLong rejects status text over the length limit before
	// anything is signed or sent.
	ErrStatusTooLong = errors.New("status text exceeds 140 characters")
	// ErrNotFollowing is returned when unfollowing an identity that is
	// not in the follow list.
	ErrNotFollowing = errors.New("not following this identity")
	// ErrProfileNotFound is returned when no profile event could be
	// obtained for an identity, locally or from any relay.
	ErrProfileNotFound = errors.New("profile not found")
)
