package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"phoenixescrow/crypto"
)

// authenticator resolves the caller of mutating methods from an HS256 bearer
// token whose subject is the caller's bech32 address.
type authenticator struct {
	secret    []byte
	issuer    string
	audience  string
	clockSkew time.Duration
}

func newAuthenticator(secret []byte, issuer, audience string, skew time.Duration) (*authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("rpc: JWT secret required")
	}
	if skew <= 0 {
		skew = 2 * time.Minute
	}
	return &authenticator{secret: secret, issuer: issuer, audience: audience, clockSkew: skew}, nil
}

func (a *authenticator) caller(r *http.Request) ([20]byte, *RPCError) {
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.clockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "invalid token"}
	}
	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "token subject required"}
	}
	addr, err := crypto.DecodeAddress(subject)
	if err != nil {
		return [20]byte{}, &RPCError{Code: codeUnauthorized, Message: "token subject is not an address", Data: err.Error()}
	}
	return addr.Raw(), nil
}

// IssueToken signs a caller token for addr valid for ttl.
func IssueToken(secret []byte, addr crypto.Address, issuer, audience string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("rpc: JWT secret required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("rpc: token ttl must be positive")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   addr.String(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func extractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
