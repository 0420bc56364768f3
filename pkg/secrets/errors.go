package secrets

import "fmt"

// WeakCredentialError means the requested credential length is below the
// accepted minimum.
type WeakCredentialError struct {
	Length int
	Min    int
}

func (e WeakCredentialError) Error() string {
	return fmt.Sprintf("credential length %d is below the minimum of %d", e.Length, e.Min)
}

// UnknownCharsetError means the requested charset is not one the manager
// knows how to generate from.
type UnknownCharsetError struct {
	Charset Charset
}

func (e UnknownCharsetError) Error() string {
	return fmt.Sprintf("unknown credential charset %q", e.Charset)
}

// PlaintextPayloadError means a secret payload carried an issued credential
// as a literal instead of a deferred reference.
type PlaintextPayloadError struct {
	Secret string
	Field  string
}

func (e PlaintextPayloadError) Error() string {
	return fmt.Sprintf("secret %q: field %q carries an issued credential as a literal; reference it instead", e.Secret, e.Field)
}

// CredentialReuseError means a credential was wired into more than one
// secret record.
type CredentialReuseError struct {
	Credential string
	Existing   string
}

func (e CredentialReuseError) Error() string {
	return fmt.Sprintf("credential %q is already stored in secret %q", e.Credential, e.Existing)
}
