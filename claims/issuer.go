package claims

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/models"
	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/storage"
)

var ErrInvalidToken = errors.New("invalid token")

// Issuer signs and verifies HS256 bearer tokens.
type Issuer struct {
	key      []byte
	issuer   string
	audience string
	duration time.Duration
	now      func() time.Time
}

func NewIssuer(cfg storage.JWTConfiguration) *Issuer {
	return &Issuer{
		key:      []byte(cfg.SigningKey),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		duration: cfg.Duration,
		now:      time.Now,
	}
}

// Issue builds the claim set for subject and signs it.
func (i *Issuer) Issue(subject Subject) (string, error) {
	now := i.now()
	set, err := Build(subject, now)
	if err != nil {
		return "", fmt.Errorf("build claims: %w", err)
	}
	return i.Sign(set, now)
}

// Sign folds set into a JWT payload. Repeated types become arrays in claim
// order.
func (i *Issuer) Sign(set []Claim, now time.Time) (string, error) {
	payload := jwt.MapClaims{
		"iss": i.issuer,
		"aud": i.audience,
		"exp": now.Add(i.duration).Unix(),
	}

	for _, c := range set {
		v, err := encodeValue(c)
		if err != nil {
			return "", err
		}
		switch existing := payload[c.Type].(type) {
		case nil:
			payload[c.Type] = v
		case []any:
			payload[c.Type] = append(existing, v)
		default:
			payload[c.Type] = []any{existing, v}
		}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	return token.SignedString(i.key)
}

func encodeValue(c Claim) (any, error) {
	switch c.ValueType {
	case ValueTypeInteger:
		n, err := strconv.ParseInt(c.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("claim %s: %w", c.Type, err)
		}
		return n, nil
	case ValueTypeBoolean:
		b, err := strconv.ParseBool(c.Value)
		if err != nil {
			return nil, fmt.Errorf("claim %s: %w", c.Type, err)
		}
		return b, nil
	default:
		return c.Value, nil
	}
}

// Principal is the verified identity carried by a bearer token.
type Principal struct {
	UserID      uint
	AccountID   uint
	AccountName string
	Email       string
	Role        models.RoleName
	Scopes      []string
}

func (p *Principal) IsAdministrator() bool {
	return p.Role == models.RoleAdministrator
}

// Parse verifies signature, issuer, audience and expiry of tokenString.
func (i *Issuer) Parse(tokenString string) (*Principal, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	role, err := models.ParseRoleName(stringOf(mc[TypeRole]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	return &Principal{
		UserID:      uint(numberOf(mc[TypeUserID])),
		AccountID:   uint(numberOf(mc[TypeAccountID])),
		AccountName: stringOf(mc[TypeSubject]),
		Email:       stringOf(mc[TypeEmail]),
		Role:        role,
		Scopes:      stringsOf(mc[TypeScope]),
	}, nil
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func numberOf(v any) float64 {
	f, _ := v.(float64)
	return f
}

func stringsOf(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
