package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/hanko-field/product-studio/internal/platform/config"
)

// ErrTokenRevoked signals that the operator's session was revoked or the account disabled.
var ErrTokenRevoked = errors.New("auth: firebase id token revoked")

// adminVerifier is the part of the Admin SDK shared by the project and tenant auth clients.
type adminVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier verifies studio operator ID tokens through the Firebase Admin SDK. When a
// tenant is configured only tokens minted for that tenant are accepted.
type FirebaseVerifier struct {
	client       adminVerifier
	tenantID     string
	checkRevoked bool
}

// NewFirebaseVerifier constructs a FirebaseVerifier for cfg.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("auth: firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("auth: initialise firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth: initialise firebase auth client: %w", err)
	}

	tenantID := strings.TrimSpace(cfg.TenantID)
	if tenantID == "" {
		return newFirebaseVerifier(authClient, "", cfg.CheckRevoked), nil
	}
	tenantClient, err := authClient.TenantManager.AuthForTenant(tenantID)
	if err != nil {
		return nil, fmt.Errorf("auth: initialise tenant %s: %w", tenantID, err)
	}
	return newFirebaseVerifier(tenantClient, tenantID, cfg.CheckRevoked), nil
}

func newFirebaseVerifier(client adminVerifier, tenantID string, checkRevoked bool) *FirebaseVerifier {
	return &FirebaseVerifier{client: client, tenantID: tenantID, checkRevoked: checkRevoked}
}

// VerifyIDToken verifies idToken and, when enabled, rejects revoked sessions and disabled operators.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("auth: firebase verifier not initialised")
	}

	var (
		token *firebaseauth.Token
		err   error
	)
	if v.checkRevoked {
		token, err = v.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	} else {
		token, err = v.client.VerifyIDToken(ctx, idToken)
	}
	switch {
	case err == nil:
	case firebaseauth.IsIDTokenRevoked(err), firebaseauth.IsUserDisabled(err):
		return nil, fmt.Errorf("%w: %v", ErrTokenRevoked, err)
	default:
		return nil, err
	}

	if v.tenantID != "" && token.Firebase.Tenant != v.tenantID {
		return nil, fmt.Errorf("%w: token issued for tenant %q", ErrTokenInvalid, token.Firebase.Tenant)
	}
	return token, nil
}
