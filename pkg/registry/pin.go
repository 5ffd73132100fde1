package registry

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// ErrUnknownUser is returned when verifying a PIN for a username the
// store has no record of.
var ErrUnknownUser = errors.New("registry: unknown user")

const (
	pbkdf2Iterations = 120_000
	pbkdf2KeyLen     = 32
	pbkdf2SaltLen    = 16
)

// hashPIN derives the current-format hash for pin: pbkdf2$<iterations>$<salt>$<hex>.
func hashPIN(pin string) (string, error) {
	salt := make([]byte, pbkdf2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	return hashPINWithSalt(pin, salt, pbkdf2Iterations), nil
}

func hashPINWithSalt(pin string, salt []byte, iterations int) string {
	derived := pbkdf2.Key([]byte(pin), salt, iterations, pbkdf2KeyLen, sha256.New)
	return fmt.Sprintf("pbkdf2$%d$%s$%s", iterations, hex.EncodeToString(salt), hex.EncodeToString(derived))
}

// verifyPIN reports whether pin matches the stored hash, accepting the
// current pbkdf2 format and three legacy formats:
//
//	sha256$<salt>$<hex>        salted SHA-256
//	sha1$<salt>$<hex>          salted SHA-1
//	<hex>                      bare unsalted MD5 digest
func verifyPIN(pin, stored string) bool {
	parts := strings.Split(stored, "$")

	switch {
	case len(parts) == 4 && parts[0] == "pbkdf2":
		iterations, err := strconv.Atoi(parts[1])
		if err != nil {
			return false
		}
		salt, err := hex.DecodeString(parts[2])
		if err != nil {
			return false
		}
		want, err := hex.DecodeString(parts[3])
		if err != nil {
			return false
		}
		got := pbkdf2.Key([]byte(pin), salt, iterations, len(want), sha256.New)
		return subtle.ConstantTimeCompare(got, want) == 1

	case len(parts) == 3 && parts[0] == "sha256":
		sum := sha256.Sum256([]byte(parts[1] + pin))
		want, err := hex.DecodeString(parts[2])
		if err != nil {
			return false
		}
		return subtle.ConstantTimeCompare(sum[:], want) == 1

	case len(parts) == 3 && parts[0] == "sha1":
		sum := sha1.Sum([]byte(parts[1] + pin))
		want, err := hex.DecodeString(parts[2])
		if err != nil {
			return false
		}
		return subtle.ConstantTimeCompare(sum[:], want) == 1

	case len(parts) == 1:
		sum := md5.Sum([]byte(pin))
		want, err := hex.DecodeString(parts[0])
		if err != nil {
			return false
		}
		return subtle.ConstantTimeCompare(sum[:], want) == 1
	}

	return false
}

// isCurrentFormat reports whether stored is already a pbkdf2-format hash,
// used to decide whether a successful verification needs to trigger an
// upgrade.
func isCurrentFormat(stored string) bool {
	parts := strings.SplitN(stored, "$", 2)
	return len(parts) == 2 && parts[0] == "pbkdf2"
}
