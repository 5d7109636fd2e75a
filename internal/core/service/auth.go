package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/yndnr/gridmesh-go/internal/core/domain"
)

// Argon2id parameters used by HashPassword.
const (
	Argon2Memory      uint32 = 16384 // KB
	Argon2Time        uint32 = 2
	Argon2Parallelism uint8  = 2
	Argon2KeyLen      uint32 = 32
	Argon2SaltLen            = 16
)

// Authenticator checks AUTH passwords against a single configured Argon2id
// hash. With no hash configured every connection is trusted.
type Authenticator struct {
	hash string
}

// NewAuthenticator creates an Authenticator. An empty hash disables
// authentication; a malformed one is rejected.
func NewAuthenticator(passwordHash string) (*Authenticator, error) {
	if passwordHash != "" {
		if _, err := parseArgon2Hash(passwordHash); err != nil {
			return nil, err
		}
	}
	return &Authenticator{hash: passwordHash}, nil
}

// Required reports whether clients must AUTH before issuing commands.
func (a *Authenticator) Required() bool {
	return a.hash != ""
}

// Verify checks password against the configured hash.
func (a *Authenticator) Verify(password string) error {
	if !a.Required() {
		return nil
	}
	if !verifyArgon2Hash(password, a.hash) {
		return domain.ErrAuthFailed
	}
	return nil
}

// HashPassword computes an Argon2id hash of the password.
// Returns the hash in the format: $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, Argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Parallelism, Argon2KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, Argon2Memory, Argon2Time, Argon2Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

type argon2Params struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	digest      []byte
}

// parseArgon2Hash splits a PHC string into its parameters.
func parseArgon2Hash(hash string) (*argon2Params, error) {
	invalid := domain.ErrBadRequest.WithDetails("malformed argon2id hash")

	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, invalid
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, invalid
	}

	p := &argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.parallelism); err != nil {
		return nil, invalid.WithCause(err)
	}
	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, invalid.WithCause(err)
	}
	if p.digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.digest) == 0 {
		return nil, invalid
	}
	return p, nil
}

// verifyArgon2Hash verifies a secret against an Argon2id hash.
func verifyArgon2Hash(secret, hash string) bool {
	p, err := parseArgon2Hash(hash)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(secret), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.digest)))

	// Constant-time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare(computed, p.digest) == 1
}
