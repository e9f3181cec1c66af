// Package credentials computes the two password artifacts stored for every
// user: a PBKDF2 hash checked by the account API on password login, and an
// SRP-6a verifier consumed by the game client's authentication protocol.
package credentials

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"hash"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 hashes use the ASP.NET Identity v3 layout:
//
//	0x01 | prf (uint32 BE) | iterations (uint32 BE) | salt length (uint32 BE) | salt | subkey
const (
	formatMarkerV3 = 0x01

	prfHMACSHA1   = 0
	prfHMACSHA256 = 1
	prfHMACSHA512 = 2

	pbkdf2Iterations = 100_000
	pbkdf2SaltSize   = 16
	pbkdf2SubkeySize = 32
	headerSize       = 13
)

// HashPBKDF2 derives a PBKDF2-HMAC-SHA512 hash of password with a fresh salt.
func HashPBKDF2(password string) (string, error) {
	salt := make([]byte, pbkdf2SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return encodePBKDF2(password, salt, prfHMACSHA512, pbkdf2Iterations, pbkdf2SubkeySize), nil
}

func encodePBKDF2(password string, salt []byte, prf, iterations uint32, subkeySize int) string {
	subkey := pbkdf2.Key([]byte(password), salt, int(iterations), subkeySize, prfHash(prf))

	out := make([]byte, headerSize+len(salt)+len(subkey))
	out[0] = formatMarkerV3
	binary.BigEndian.PutUint32(out[1:], prf)
	binary.BigEndian.PutUint32(out[5:], iterations)
	binary.BigEndian.PutUint32(out[9:], uint32(len(salt)))
	copy(out[headerSize:], salt)
	copy(out[headerSize+len(salt):], subkey)

	return base64.StdEncoding.EncodeToString(out)
}

// VerifyPBKDF2 reports whether password matches the encoded hash. Malformed
// hashes never match.
func VerifyPBKDF2(encoded, password string) bool {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < headerSize || raw[0] != formatMarkerV3 {
		return false
	}

	prf := binary.BigEndian.Uint32(raw[1:])
	iterations := binary.BigEndian.Uint32(raw[5:])
	saltLength := int(binary.BigEndian.Uint32(raw[9:]))

	if prfHash(prf) == nil || iterations == 0 || saltLength < 16 || len(raw) < headerSize+saltLength+16 {
		return false
	}

	salt := raw[headerSize : headerSize+saltLength]
	expected := raw[headerSize+saltLength:]
	actual := pbkdf2.Key([]byte(password), salt, int(iterations), len(expected), prfHash(prf))

	return subtle.ConstantTimeCompare(expected, actual) == 1
}

func prfHash(prf uint32) func() hash.Hash {
	switch prf {
	case prfHMACSHA1:
		return sha1.New
	case prfHMACSHA256:
		return sha256.New
	case prfHMACSHA512:
		return sha512.New
	default:
		return nil
	}
}
