package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost parameters. Matches the argon2 crate defaults used by the
// kind of stacks this template replaces: 19 MiB memory, 2 passes, 1 lane.
const (
	argonMemory      uint32 = 19 * 1024
	argonIterations  uint32 = 2
	argonParallelism uint8  = 1
	argonSaltLength         = 16
	argonKeyLength   uint32 = 32
)

// dummyHash is a valid encoding of a random throwaway password. Login runs
// a verification against it when the user record is missing so the request
// takes the same time as a wrong-password attempt.
const dummyHash = "$argon2id$v=19$m=19456,t=2,p=1$AAAAAAAAAAAAAAAAAAAAAA$kO/u2krGW5lPZBTFrZmBwrxGuNpIcYRJaMSD7z5pNAo"

// HashPassword hashes a plaintext password with argon2id and a fresh random
// salt. The output is a self-describing PHC string:
// $argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<digest>
func HashPassword(plain string) (string, error) {
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	digest := argon2.IDKey([]byte(plain), salt, argonIterations, argonMemory, argonParallelism, argonKeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// VerifyPassword reports whether plain matches the encoded hash. It returns
// false for malformed or truncated encodings rather than an error, so a
// caller cannot tell a corrupted record apart from a wrong password.
func VerifyPassword(plain, encoded string) bool {
	salt, digest, iterations, memory, parallelism, ok := decodeHash(encoded)
	if !ok {
		return false
	}

	// Re-derive with the parameters embedded in the stored hash, not the
	// current defaults, so old hashes keep verifying after a cost bump.
	comparison := argon2.IDKey([]byte(plain), salt, iterations, memory, parallelism, uint32(len(digest)))

	return subtle.ConstantTimeCompare(digest, comparison) == 1
}

// DummyVerify burns the same work as a real verification and always fails.
func DummyVerify(plain string) {
	VerifyPassword(plain, dummyHash)
}

func decodeHash(encoded string) (salt, digest []byte, iterations, memory uint32, parallelism uint8, ok bool) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, 0, 0, 0, false
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return nil, nil, 0, 0, 0, false
	}
	if memory == 0 || iterations == 0 || parallelism == 0 {
		return nil, nil, 0, 0, 0, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return nil, nil, 0, 0, 0, false
	}

	digest, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(digest) == 0 {
		return nil, nil, 0, 0, 0, false
	}

	return salt, digest, iterations, memory, parallelism, true
}
