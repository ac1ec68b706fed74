package domain

import "unicode/utf8"

const (
	// MinSecretLength is the minimum number of characters in a sign-up secret.
	MinSecretLength = 6
	// MaxSecretBytes is the longest secret the credential codec accepts.
	MaxSecretBytes = 72
)

// SecretLength counts characters, not bytes.
func SecretLength(secret string) int {
	return utf8.RuneCountInString(secret)
}
