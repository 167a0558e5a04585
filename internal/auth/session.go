package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	signingKey ed25519.PrivateKey
	verifyKey  ed25519.PublicKey

	// tokenTTL of zero means tokens never expire.
	tokenTTL time.Duration
)

const defaultTokenTTL = 72 * time.Hour

func parseTokenTTL() error {
	raw := os.Getenv("TOKEN_EXPIRE_TIME")
	switch raw {
	case "":
		tokenTTL = defaultTokenTTL
	case "never", "0":
		tokenTTL = 0
	default:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("failed to parse TOKEN_EXPIRE_TIME: %w", err)
		}
		tokenTTL = d
	}
	return nil
}

// Init generates a fresh ed25519 key pair at runtime. Sessions issued before a
// restart become invalid, which is acceptable for ephemeral game sessions.
func Init() error {
	var err error
	verifyKey, signingKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return parseTokenTTL()
}

// InitFromPath loads a persistent ed25519 key pair from disk so sessions
// survive restarts.
func InitFromPath(privatePath, publicPath string) error {
	priv, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	pub, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}

	signingKey = ed25519.PrivateKey(priv)
	verifyKey = ed25519.PublicKey(pub)
	return parseTokenTTL()
}

// TokenTTLSeconds returns the configured token lifetime in whole seconds,
// or 0 when tokens never expire. Used for cookie Max-Age.
func TokenTTLSeconds() int {
	return int(tokenTTL.Seconds())
}

// CreateJWT issues a signed session token with "sub" set to userID.
func CreateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{"sub": userID}
	if tokenTTL > 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(signingKey)
}

// AuthenticateJWT verifies a session token and returns the user id it carries.
func AuthenticateJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return verifyKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("missing sub in jwt")
	}
	return sub, nil
}
