package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"mintledger/pkg/domain"
	dErrors "mintledger/pkg/domain-errors"
)

// Claims represents the JWT claims for sender access tokens. The registered
// subject is the sender address.
type Claims struct {
	Version string `json:"api_version,omitempty"`
	jwt.RegisteredClaims
}

// APIVersion returns the version the token was minted for, defaulting to the
// current one for tokens without the claim.
func (c *Claims) APIVersion() domain.APIVersion {
	if c.Version == "" {
		return domain.DefaultVersion()
	}
	return domain.APIVersion(c.Version)
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAccessToken signs an HS256 token authenticating sender.
func (s *JWTService) GenerateAccessToken(sender domain.Address, version domain.APIVersion, expiresIn time.Duration) (string, error) {
	if sender.IsZero() {
		return "", dErrors.New(dErrors.CodeBadRequest, "sender is required")
	}
	if version.IsNil() {
		version = domain.DefaultVersion()
	}
	now := time.Now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Version: version.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sender.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// Sender validates the token and parses its subject.
func (s *JWTService) Sender(tokenString string) (domain.Address, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return domain.Address{}, err
	}
	sender, err := domain.ParseAddress(claims.Subject)
	if err != nil {
		return domain.Address{}, dErrors.New(dErrors.CodeUnauthorized, "token subject is not an address")
	}
	return sender, nil
}
