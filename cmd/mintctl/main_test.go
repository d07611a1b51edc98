package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mintledger/internal/addressing"
	jwttoken "mintledger/internal/jwt_token"
	"mintledger/pkg/codec"
	"mintledger/pkg/domain"
)

func TestAddress(t *testing.T) {
	owner := domain.Address{7}

	var out bytes.Buffer
	require.NoError(t, run([]string{"address", "--owner", owner.String()}, &out))
	factory := addressing.ForFactory(owner)
	assert.Equal(t, factory.String(), strings.TrimSpace(out.String()))

	out.Reset()
	require.NoError(t, run([]string{"address", "--collection", factory.String(), "--index", "3"}, &out))
	assert.Equal(t, addressing.ForItem(factory, 3).String(), strings.TrimSpace(out.String()))

	assert.Error(t, run([]string{"address"}, &out))
	assert.Error(t, run([]string{"address", "--owner", "not-base58!"}, &out))
}

func TestContentRoundTrip(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"content", "--uri", "ipfs://meta/0.json"}, &out))
	encoded := strings.TrimSpace(out.String())
	assert.True(t, strings.HasPrefix(encoded, "01"))

	out.Reset()
	require.NoError(t, run([]string{"content", "--decode", encoded}, &out))
	assert.Equal(t, "ipfs://meta/0.json", strings.TrimSpace(out.String()))
}

func TestTokenValidates(t *testing.T) {
	sender := domain.Address{4, 2}
	var out bytes.Buffer
	require.NoError(t, run([]string{"token", "--sender", sender.String(), "--key", "k", "--issuer", "i", "--audience", "a"}, &out))

	claims, err := jwttoken.NewJWTService("k", "i", "a").ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, domain.APIVersionV1, claims.APIVersion())
}

func TestDiag(t *testing.T) {
	raw, err := codec.Marshal(map[string]int{"a": 1})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run([]string{"diag", "--hex", hex.EncodeToString(raw)}, &out))
	assert.Equal(t, `{"a": 1}`, strings.TrimSpace(out.String()))
}

func TestUnknownCommand(t *testing.T) {
	assert.Error(t, run([]string{"burn"}, &bytes.Buffer{}))
}

func TestPromoteSendsRequest(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	factory := domain.Address{9}
	var out bytes.Buffer
	err := run([]string{"promote", "--server", srv.URL, "--token", "tok", "--factory", factory.String(), "--value", "1"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "/v1/factories/"+factory.String()+"/promote", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "1", gotBody["value"])
	assert.Contains(t, out.String(), `"success": true`)
}

func TestRemoteErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer srv.Close()

	err := run([]string{"get", "--server", srv.URL, "--account", domain.Address{1}.String()}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "401")
}
