// Package middleware extracts the calling actor and enforces admin and node
// capabilities at the HTTP boundary.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"aiforge-core/core/errs"
	"aiforge-core/core/models"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// Headers set by the authenticating gateway in front of this service
const (
	HeaderUserID        = "X-User-ID"
	HeaderWallet        = "X-Wallet-Address"
	HeaderWalletNetwork = "X-Wallet-Network"
	HeaderNodeToken     = "X-Node-Token"
)

// Actor is the caller of a request
type Actor struct {
	UserID  *int64
	Wallet  string
	Network models.Network
}

type actorKey struct{}

// ActorFrom returns the actor stored by WithActor, or the zero Actor
func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

// ContextWithActor stores a on ctx
func ContextWithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// WithActor reads the actor headers into the request context. A malformed
// user id is rejected.
func WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var a Actor
		if raw := strings.TrimSpace(r.Header.Get(HeaderUserID)); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || id <= 0 {
				writeError(w, http.StatusBadRequest, "invalid "+HeaderUserID)
				return
			}
			a.UserID = &id
		}
		a.Network = models.Network(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderWalletNetwork))))
		a.Wallet = normalizeWallet(r.Header.Get(HeaderWallet), a.Network)

		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), a)))
	})
}

// AuthorizationPolicy decides admin capability for an actor
type AuthorizationPolicy interface {
	IsAdmin(ctx context.Context, actor Actor) (bool, error)
}

// AdminWalletLookup checks the persisted admin wallet list
type AdminWalletLookup interface {
	IsAdminWallet(ctx context.Context, address string) (bool, error)
}

// WalletPolicy grants admin to wallets listed in configuration or in the
// admin wallet table. Ethereum addresses compare case-insensitively.
type WalletPolicy struct {
	static map[string]struct{}
	lookup AdminWalletLookup
}

// NewWalletPolicy creates a policy from configured wallets and an optional lookup
func NewWalletPolicy(wallets []string, lookup AdminWalletLookup) *WalletPolicy {
	p := &WalletPolicy{static: map[string]struct{}{}, lookup: lookup}
	for _, w := range wallets {
		if w = normalizeWallet(w, ""); w != "" {
			p.static[w] = struct{}{}
		}
	}
	return p
}

// IsAdmin implements AuthorizationPolicy
func (p *WalletPolicy) IsAdmin(ctx context.Context, actor Actor) (bool, error) {
	if actor.Wallet == "" {
		return false, nil
	}
	if _, ok := p.static[actor.Wallet]; ok {
		return true, nil
	}
	if p.lookup == nil {
		return false, nil
	}
	return p.lookup.IsAdminWallet(ctx, actor.Wallet)
}

// RequireAdmin rejects callers the policy does not grant admin
func RequireAdmin(policy AuthorizationPolicy) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFrom(r.Context())
			ok, err := policy.IsAdmin(r.Context(), actor)
			if err != nil {
				log.Printf("Admin check failed: %v", err)
				writeError(w, http.StatusInternalServerError, "admin check failed")
				return
			}
			if !ok {
				log.WithFields(log.Fields{"wallet": actor.Wallet, "path": r.URL.Path}).Warn("non-admin caller rejected")
				writeError(w, http.StatusForbidden, "admin wallet required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NodeAuthenticator checks node tokens. *registry.Registry implements it.
type NodeAuthenticator interface {
	Authenticate(ctx context.Context, nodeID, token string) error
}

// RequireNodeToken checks X-Node-Token against the node named by the
// {node_id} route variable
func RequireNodeToken(auth NodeAuthenticator) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nodeID := mux.Vars(r)["node_id"]
			err := auth.Authenticate(r.Context(), nodeID, r.Header.Get(HeaderNodeToken))
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errs.Is(err, errs.ErrNotFound):
				writeError(w, http.StatusNotFound, "node not found")
			case errs.Is(err, errs.ErrForbidden):
				log.WithFields(log.Fields{"node_id": nodeID, "path": r.URL.Path}).Warn("invalid node token")
				writeError(w, http.StatusForbidden, "invalid node token")
			default:
				log.Printf("Node authentication failed: %v", err)
				writeError(w, http.StatusInternalServerError, "node authentication failed")
			}
		})
	}
}

func normalizeWallet(addr string, network models.Network) string {
	addr = strings.TrimSpace(addr)
	if network == models.NetworkEthereum || strings.HasPrefix(addr, "0x") {
		return strings.ToLower(addr)
	}
	return addr
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
