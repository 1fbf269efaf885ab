package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// API keys have two parts: a public key_id used for lookup and a secret
// that is only ever stored as a SHA-256 hash. Clients present the two
// joined by an underscore as a bearer credential.
const (
	// KeyIDPrefix marks a credential as an API key rather than a JWT.
	KeyIDPrefix = "tgk_"

	keyIDRandomBytes  = 16
	secretRandomBytes = 32
)

// KeyIDLength is the fixed length of a key_id: the prefix plus 16 random
// bytes in unpadded base64url. Because base64url output may itself contain
// underscores, credentials are split at this fixed offset, never by
// searching for a separator.
var KeyIDLength = len(KeyIDPrefix) + base64.RawURLEncoding.EncodedLen(keyIDRandomBytes)

// ErrMalformedCredential is returned when a presented credential cannot be
// split into a key_id and secret.
var ErrMalformedCredential = errors.New("malformed api key credential")

// GenerateKeyPair returns a new key_id and secret from crypto/rand.
func GenerateKeyPair() (keyID, secret string, err error) {
	idBytes := make([]byte, keyIDRandomBytes)
	if _, err := rand.Read(idBytes); err != nil {
		return "", "", fmt.Errorf("generate key id: %w", err)
	}
	secretBytes := make([]byte, secretRandomBytes)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", fmt.Errorf("generate key secret: %w", err)
	}
	keyID = KeyIDPrefix + base64.RawURLEncoding.EncodeToString(idBytes)
	secret = base64.RawURLEncoding.EncodeToString(secretBytes)
	return keyID, secret, nil
}

// Credential joins a key_id and secret into the wire form handed to clients
// exactly once, at key creation.
func Credential(keyID, secret string) string {
	return keyID + "_" + secret
}

// SplitCredential separates a presented credential back into key_id and
// secret. The key_id occupies a fixed-length prefix followed by a single
// underscore; anything after it is the secret.
func SplitCredential(cred string) (keyID, secret string, err error) {
	if len(cred) < KeyIDLength+2 || !strings.HasPrefix(cred, KeyIDPrefix) {
		return "", "", ErrMalformedCredential
	}
	if cred[KeyIDLength] != '_' {
		return "", "", ErrMalformedCredential
	}
	return cred[:KeyIDLength], cred[KeyIDLength+1:], nil
}

// HashSecret returns the hex-encoded SHA-256 digest of an API key secret.
// Secrets are high-entropy random strings, so a fast digest is sufficient.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// VerifySecret reports whether secret matches the stored digest, in
// constant time.
func VerifySecret(storedHash, secret string) bool {
	candidate := HashSecret(secret)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(candidate)) == 1
}
