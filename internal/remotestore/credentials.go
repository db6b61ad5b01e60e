package remotestore

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialsProvider supplies the auth token the datastore transport
// attaches to the Watch/Write streams. The Remote Store never authenticates
// a user itself; credential acquisition is out of scope. It only reacts to
// CredentialDidChange by restarting the network so the next handshake picks
// up a fresh token.
type CredentialsProvider interface {
	Token(ctx context.Context) (string, error)
}

// Claims mirrors the registered JWT claims the Remote Store cares about for
// observability during credential rotation: whose token is this, and when
// does it expire. It never verifies a signature — verification is the
// datastore transport's job when it presents the token to the backend.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// DescribeToken parses (without verifying) a JWT's registered claims so the
// credential-rotation protocol can log expiry for observability. A parse
// failure is not fatal: the token is still handed to the transport as-is,
// this is purely diagnostic.
func DescribeToken(logger *slog.Logger, token string) {
	parser := jwt.NewParser()
	var claims Claims
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		logger.Debug("could not introspect credential token", "error", err)
		return
	}

	var expiresIn time.Duration
	if claims.ExpiresAt != nil {
		expiresIn = time.Until(claims.ExpiresAt.Time)
	}
	logger.Info("credential rotated", "subject", claims.Subject, "expires_in", expiresIn)
}
