package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Audience is stamped on every access token issued by the API.
const Audience = "pothole-api"

// Claims is the payload of an access token.
type Claims struct {
	Role      string `json:"role"`
	Name      string `json:"name,omitempty"`
	Authority string `json:"authority,omitempty"`
	jwt.RegisteredClaims
}

// Identity is what token issuance needs to know about a user.
type Identity struct {
	Subject   string
	Role      string
	Name      string
	Authority string
}

// JWTManager signs and validates HS256 access tokens.
type JWTManager struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewJWTManager creates a manager with the configured secret and TTL.
func NewJWTManager(secret string, accessTTL time.Duration) *JWTManager {
	return &JWTManager{secret: []byte(secret), accessTTL: accessTTL, now: time.Now}
}

// AccessTTL exposes the configured token lifetime.
func (m *JWTManager) AccessTTL() time.Duration {
	return m.accessTTL
}

// GenerateAccessToken returns the signed token and its jti.
func (m *JWTManager) GenerateAccessToken(id Identity) (string, string, error) {
	now := m.now().UTC()
	jti := uuid.NewString()

	claims := Claims{
		Role:      NormalizeRole(id.Role),
		Name:      id.Name,
		Authority: id.Authority,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Audience:  jwt.ClaimStrings{Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", "", err
	}

	return signed, jti, nil
}

// ParseAndValidate checks signature, expiry and audience.
func (m *JWTManager) ParseAndValidate(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithTimeFunc(m.now),
	)

	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token without subject")
	}

	return claims, nil
}
