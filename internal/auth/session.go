// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer issues and verifies seat tokens. A seat token proves that the
// bearer was seated as "sub" in room "room", so a new connection can take
// the seat over during its grace period.
type Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// ttl is how long a token stays valid (0 => never expires).
	ttl time.Duration
}

// ParseExpireTime reads a TOKEN_EXPIRE_TIME style value. "never", "0" and
// the empty string mean tokens do not expire.
func ParseExpireTime(s string) (time.Duration, error) {
	if s == "never" || s == "0" || s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// NewSigner generates a fresh ed25519 key pair at runtime. Tokens issued by
// one process are useless to another, which matches rooms living in memory.
func NewSigner(ttl time.Duration) (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Signer{privateKey: priv, publicKey: pub, ttl: ttl}, nil
}

// NewSignerFromPath reads raw ed25519 private/public keys from file.
func NewSignerFromPath(privatePath, publicPath string, ttl time.Duration) (*Signer, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 key size")
	}
	return &Signer{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
		ttl:        ttl,
	}, nil
}

// SeatClaims is what a verified seat token asserts.
type SeatClaims struct {
	RoomID   string
	PlayerID string
	SeatKey  string
}

// IssueSeatToken signs a token with "sub" = playerID, "room" = roomID and
// "jti" = seatKey. The seat key ties the token to one seating, so it stops
// working once that seat is gone even if the player id is reused.
func (s *Signer) IssueSeatToken(roomID, playerID, seatKey string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  playerID,
		"room": roomID,
		"jti":  seatKey,
		"iat":  now.Unix(),
	}
	if s.ttl > 0 {
		claims["exp"] = now.Add(s.ttl).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// VerifySeatToken checks the signature and expiry and returns the seat the
// token was issued for.
func (s *Signer) VerifySeatToken(tokenString string) (SeatClaims, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return SeatClaims{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return SeatClaims{}, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return SeatClaims{}, fmt.Errorf("invalid jwt claims")
	}
	var sc SeatClaims
	if sc.PlayerID, ok = claims["sub"].(string); !ok || sc.PlayerID == "" {
		return SeatClaims{}, fmt.Errorf("missing sub in jwt")
	}
	if sc.RoomID, ok = claims["room"].(string); !ok || sc.RoomID == "" {
		return SeatClaims{}, fmt.Errorf("missing room in jwt")
	}
	if sc.SeatKey, ok = claims["jti"].(string); !ok || sc.SeatKey == "" {
		return SeatClaims{}, fmt.Errorf("missing jti in jwt")
	}
	return sc, nil
}
