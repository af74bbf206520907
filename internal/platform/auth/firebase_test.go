package auth

import (
	"context"
	"errors"
	"net/http"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubAdminVerifier struct {
	token          *firebaseauth.Token
	err            error
	revokedChecked bool
}

func (s *stubAdminVerifier) VerifyIDToken(context.Context, string) (*firebaseauth.Token, error) {
	return s.token, s.err
}

func (s *stubAdminVerifier) VerifyIDTokenAndCheckRevoked(context.Context, string) (*firebaseauth.Token, error) {
	s.revokedChecked = true
	return s.token, s.err
}

func operatorToken(tenant string) *firebaseauth.Token {
	return &firebaseauth.Token{
		UID:      "operator-1",
		Firebase: firebaseauth.FirebaseInfo{Tenant: tenant},
		Claims:   map[string]any{"role": RoleStaff},
	}
}

func TestFirebaseVerifierChecksRevocationWhenEnabled(t *testing.T) {
	stub := &stubAdminVerifier{token: operatorToken("")}
	if _, err := newFirebaseVerifier(stub, "", true).VerifyIDToken(context.Background(), "token"); err != nil {
		t.Fatalf("VerifyIDToken: %v", err)
	}
	if !stub.revokedChecked {
		t.Fatalf("expected revocation check")
	}

	stub = &stubAdminVerifier{token: operatorToken("")}
	if _, err := newFirebaseVerifier(stub, "", false).VerifyIDToken(context.Background(), "token"); err != nil {
		t.Fatalf("VerifyIDToken: %v", err)
	}
	if stub.revokedChecked {
		t.Fatalf("expected plain verification")
	}
}

func TestFirebaseVerifierRejectsTokenFromOtherTenant(t *testing.T) {
	verifier := newFirebaseVerifier(&stubAdminVerifier{token: operatorToken("customers-a7")}, "operators-x1", true)

	_, err := verifier.VerifyIDToken(context.Background(), "token")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	verifier = newFirebaseVerifier(&stubAdminVerifier{token: operatorToken("operators-x1")}, "operators-x1", true)
	token, err := verifier.VerifyIDToken(context.Background(), "token")
	if err != nil || token.UID != "operator-1" {
		t.Fatalf("expected operator token, got %v %v", token, err)
	}
}

func TestFirebaseVerifierPassesOtherErrorsThrough(t *testing.T) {
	failure := errors.New("auth: certificate fetch failed")
	_, err := newFirebaseVerifier(&stubAdminVerifier{err: failure}, "", true).VerifyIDToken(context.Background(), "token")
	if !errors.Is(err, failure) {
		t.Fatalf("expected original error, got %v", err)
	}
}

func TestRequireFirebaseAuth_RevokedToken(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{err: ErrTokenRevoked})
	handler := authn.RequireFirebaseAuth(RoleStaff)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not execute on revoked token")
	}))

	rr := serve(t, handler, "Bearer revoked-token")

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "token_revoked" {
		t.Fatalf("expected token_revoked error, got %v", code)
	}
}
