/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package ghauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chainguard.dev/issuedebug/triage"
	"github.com/stretchr/testify/require"
)

func TestTokenClientSetsAuthorization(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	a, err := New(triage.Credential{Token: "ghp_abc"})
	require.NoError(t, err)

	resp, err := a.Client().Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, "Bearer ghp_abc", gotAuth)

	tok, err := a.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	require.Equal(t, "ghp_abc", tok.AccessToken)
}

func TestNewRejectsInvalidCredential(t *testing.T) {
	_, err := New(triage.Credential{})
	if !errors.Is(err, triage.ErrConfiguration) {
		t.Fatalf("New(empty) = %v, want ConfigurationError", err)
	}

	_, err = New(triage.Credential{AppID: 1, InstallationID: 2, PrivateKey: []byte("not a key")})
	if !errors.Is(err, triage.ErrConfiguration) {
		t.Fatalf("New(bad key) = %v, want ConfigurationError", err)
	}
}

func TestAppCredentialExchangesInstallationToken(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "generate key")
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/app/installations/42/access_tokens" {
			http.NotFound(w, r)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token":"ghs_installation","expires_at":"` + time.Now().Add(time.Hour).UTC().Format(time.RFC3339) + `"}`))
	}))
	defer srv.Close()

	a, err := New(triage.Credential{AppID: 7, InstallationID: 42, PrivateKey: keyPEM}, WithAPIURL(srv.URL+"/"))
	require.NoError(t, err)

	tok, err := a.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	require.Equal(t, "ghs_installation", tok.AccessToken)
}
