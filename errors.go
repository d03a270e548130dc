// Package dnf is the library core of a distribution package manager: given
// a local database of installed packages and a set of remote repositories,
// it decides which packages to install, upgrade, downgrade, or remove, and
// executes that decision transactionally while preserving a history of past
// transactions.
package dnf

import "fmt"

// Error is the single tagged error value returned across every component in
// this module. Domain names the owning component, Kind is one of the stable
// failure-taxonomy ids from spec §6, and Cause, if non-nil, is the underlying
// error that triggered this one.
type Error struct {
	Domain string
	Kind   string
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Domain, e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Domain, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Errorf builds an *Error for the given domain and kind.
func Errorf(domain, kind, format string, args ...interface{}) *Error {
	return &Error{Domain: domain, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error for the given domain and kind, recording cause as
// the underlying error.
func Wrap(cause error, domain, kind, format string, args ...interface{}) *Error {
	return &Error{Domain: domain, Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// Is reports whether err is a *dnf.Error (directly, or anywhere in its
// Unwrap chain) carrying the given Kind.
func Is(err error, kind string) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind {
				return true
			}
			err = e.Cause
			continue
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Failure taxonomy ids, stable across the module (spec §6).
const (
	KindNotAvailable         = "not-available"
	KindChecksumMismatch     = "checksum-mismatch"
	KindGPGVerificationFail  = "gpg-verification-failed"
	KindFileInvalid          = "file-invalid"
	KindFileNotFound         = "file-not-found"
	KindCannotWriteCache     = "cannot-write-cache"
	KindCannotFetchSource    = "cannot-fetch-source"
	KindInvalidArchitecture  = "invalid-architecture"
	KindBadSelector          = "bad-selector"
	KindNoSolution           = "no-solution"
	KindRemovalOfProtected   = "removal-of-protected"
	KindNoPackagesToUpdate   = "no-packages-to-update"
	KindPackageConflicts     = "package-conflicts"
	KindRepoNotFound         = "repo-not-found"
	KindCancelled            = "cancelled"
	KindInternal             = "internal"
	KindTransactionFailed    = "transaction-failed"
)
