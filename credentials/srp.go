package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// RFC 5054 2048-bit group.
var (
	srpN = mustParseHex(strings.Join([]string{
		"AC6BDB41324A9A9BF166DE5E1389582FAF72B6651987EE07FC3192943DB56050",
		"A37329CBB4A099ED8193E0757767A13DD52312AB4B03310DCD7F48A9DA04FD50",
		"E8083969EDB767B0CF6095179A163AB3661A05FBD5FAAAE82918A9962F0B93B8",
		"55F97993EC975EEAA80D740ADBF4FF747359D041D5C33EA71D281E446B14773B",
		"CA97B43A23FB801676BD207A436C6481F1D2B9078717461A5B9D32E688F87748",
		"544523B524B0D57D5EA77A2775D2ECFA032CFBDBF52FB3786160279004E57AE6",
		"AF874E7303CE53299CCC041C7BC308D82A5698F3A8D0C38271AE35F8E9DBFBB6",
		"94B5C803D89F7AE435DE236D525F54759B65E372FCD68EF20FA7111F9E4AFF73",
	}, ""))
	srpG = big.NewInt(2)
)

const srpSaltSize = 32

func mustParseHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("credentials: invalid SRP modulus")
	}
	return n
}

// NewSRPSalt returns a random hex-encoded salt.
func NewSRPSalt() (string, error) {
	salt := make([]byte, srpSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate srp salt: %w", err)
	}
	return hex.EncodeToString(salt), nil
}

// ComputeSRPVerifier computes v = g^x mod N with x = SHA256(salt || SHA256(":" || password)).
// The result is hex encoded, lower case.
func ComputeSRPVerifier(password, salt string) (string, error) {
	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return "", fmt.Errorf("decode srp salt: %w", err)
	}

	inner := sha256.Sum256([]byte(":" + password))

	h := sha256.New()
	h.Write(saltBytes)
	h.Write(inner[:])
	x := new(big.Int).SetBytes(h.Sum(nil))

	v := new(big.Int).Exp(srpG, x, srpN)
	return hex.EncodeToString(v.Bytes()), nil
}

// Credentials are the two password artifacts persisted for a user.
type Credentials struct {
	PBKDF2Hash string
	SRPSalt    string
	SRPHash    string
}

// Derive computes both artifacts from one canonical password.
func Derive(password string) (Credentials, error) {
	pbkdf2Hash, err := HashPBKDF2(password)
	if err != nil {
		return Credentials{}, err
	}
	salt, err := NewSRPSalt()
	if err != nil {
		return Credentials{}, err
	}
	verifier, err := ComputeSRPVerifier(password, salt)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{PBKDF2Hash: pbkdf2Hash, SRPSalt: salt, SRPHash: verifier}, nil
}
