package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"aiforge-core/core/errs"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type walletTable map[string]bool

func (t walletTable) IsAdminWallet(_ context.Context, address string) (bool, error) {
	if address == "boom" {
		return false, errors.New("db down")
	}
	return t[address], nil
}

func TestWithActor(t *testing.T) {
	var got Actor
	h := WithActor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ActorFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "42")
	req.Header.Set(HeaderWallet, "0xABCdef")
	req.Header.Set(HeaderWalletNetwork, "Ethereum")
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got.UserID)
	assert.Equal(t, int64(42), *got.UserID)
	assert.Equal(t, "0xabcdef", got.Wallet)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderUserID, "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWalletPolicy(t *testing.T) {
	policy := NewWalletPolicy([]string{"0xAdMiN", "TConfigured"}, walletTable{"TTable": true})
	ctx := context.Background()

	tests := []struct {
		wallet string
		admin  bool
	}{
		{"0xadmin", true},
		{"TConfigured", true},
		{"tconfigured", false},
		{"TTable", true},
		{"TOther", false},
		{"", false},
	}
	for _, tt := range tests {
		ok, err := policy.IsAdmin(ctx, Actor{Wallet: tt.wallet})
		require.NoError(t, err)
		assert.Equal(t, tt.admin, ok, tt.wallet)
	}

	_, err := policy.IsAdmin(ctx, Actor{Wallet: "boom"})
	assert.Error(t, err)
}

func TestRequireAdmin(t *testing.T) {
	policy := NewWalletPolicy([]string{"TAdmin"}, nil)
	h := WithActor(RequireAdmin(policy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	for wallet, code := range map[string]int{"TAdmin": http.StatusNoContent, "TUser": http.StatusForbidden, "": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodPost, "/v1/admin/x", nil)
		req.Header.Set(HeaderWallet, wallet)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, code, rec.Code, wallet)
	}
}

type tokenCheck map[string]string

func (c tokenCheck) Authenticate(_ context.Context, nodeID, token string) error {
	want, ok := c[nodeID]
	if !ok {
		return fmt.Errorf("node %s: %w", nodeID, errs.ErrNotFound)
	}
	if token != want {
		return fmt.Errorf("bad token: %w", errs.ErrForbidden)
	}
	return nil
}

func TestRequireNodeToken(t *testing.T) {
	r := mux.NewRouter()
	r.Handle("/nodes/{node_id}/poll", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r.Use(RequireNodeToken(tokenCheck{"node-a": "secret"}))

	tests := []struct {
		node  string
		token string
		code  int
	}{
		{"node-a", "secret", http.StatusOK},
		{"node-a", "wrong", http.StatusForbidden},
		{"node-a", "", http.StatusForbidden},
		{"node-x", "secret", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/nodes/"+tt.node+"/poll", nil)
		req.Header.Set(HeaderNodeToken, tt.token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, tt.code, rec.Code, "%s/%s", tt.node, tt.token)
	}
}
