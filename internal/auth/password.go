package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"

	"github.com/tracseq/lims-core/pkg/constant"
)

// argon2Params are the KDF cost parameters: 64 MiB / 3 iterations / 4
// threads, i.e. more iterations than the time=1 that the x/crypto/argon2
// documentation suggests for IDKey.
const (
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// hashPassword returns a self-describing encoded hash
// ("$argon2id$v=19$m=...,t=...,p=...$salt$hash"), the same encoded-string
// convention the original stores via argon2::PasswordHash
// (original_source/lims-core/auth_service/src/services.rs hash_password).
func hashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))

	return encoded, nil
}

// verifyPassword recomputes the hash with the stored parameters and
// compares in constant time (spec.md §4.2: "Password hashing and token
// comparison are constant-time").
func verifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, constant.New(constant.KindInternal, "password_hash", "unrecognized password hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("auth: parse hash version: %w", err)
	}

	var memory, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return false, fmt.Errorf("auth: parse hash params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("auth: decode salt: %w", err)
	}

	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("auth: decode hash: %w", err)
	}

	got := argon2.IDKey([]byte(password), salt, timeCost, memory, threads, uint32(len(want)))

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// validatePasswordStrength enforces the configured policy
// (spec.md §4.2: "Fails WeakPassword if below configured policy"),
// mirroring the original's validate_password_strength character-class
// checks.
func validatePasswordStrength(password string, policy PasswordPolicy) error {
	if len(password) < policy.MinLength {
		return constant.New(constant.KindWeakPassword, "user",
			fmt.Sprintf("password must be at least %d characters long", policy.MinLength))
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			hasSymbol = true
		}
	}

	switch {
	case policy.RequireUppercase && !hasUpper:
		return constant.New(constant.KindWeakPassword, "user", "password must contain at least one uppercase letter")
	case policy.RequireLowercase && !hasLower:
		return constant.New(constant.KindWeakPassword, "user", "password must contain at least one lowercase letter")
	case policy.RequireNumbers && !hasDigit:
		return constant.New(constant.KindWeakPassword, "user", "password must contain at least one number")
	case policy.RequireSymbols && !hasSymbol:
		return constant.New(constant.KindWeakPassword, "user", "password must contain at least one symbol")
	}

	return nil
}
