package covert

import (
	"errors"

	"github.com/postalsys/covert/internal/archive"
	"github.com/postalsys/covert/internal/header"
	"github.com/postalsys/covert/internal/primitives"
)

// The error kinds below are the closed taxonomy of spec §7. AuthFail in
// particular is never split into "wrong key" vs "tampered" vs "truncated"
// — denial of distinguishability between those is itself a security
// property the core preserves end to end.
var (
	// ErrAuthFail covers any Poly1305 tag mismatch, blind-search
	// exhaustion, or signature verification failure.
	ErrAuthFail = primitives.ErrAuthFail

	// ErrFormat covers structurally invalid input: bad MessagePack
	// framing, disallowed index types, unrecognized reserved keys.
	ErrFormat = archive.ErrFormat

	// ErrPasswordTooShort is raised before any hashing for a passphrase
	// under 8 UTF-8 bytes.
	ErrPasswordTooShort = header.ErrPassphraseTooShort

	// ErrNoRecipients is raised when Encrypt is called with neither
	// recipients nor WideOpen set.
	ErrNoRecipients = header.ErrNoRecipients

	// ErrConflictingRecipients is raised when both WideOpen and explicit
	// recipients are requested (spec §6: "--wide-open ... exit code != 0
	// if recipients also specified").
	ErrConflictingRecipients = errors.New("covert: wide-open conflicts with explicit recipients")

	// ErrTooManyRecipients is raised above the 20-recipient bound.
	ErrTooManyRecipients = header.ErrTooManyRecipients
)
