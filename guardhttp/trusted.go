package guardhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"github.com/ggoodman/authguard/auth"
	"github.com/ggoodman/authguard/principals"
)

const (
	authorizedHeader = "X-Authorized"
	userIDHeader     = "X-User-Id"
)

// TrustedHeaders accepts identity asserted by an upstream proxy through the
// X-Authorized and X-User-Id headers. The headers are honored only when the
// immediate peer falls inside one of the configured networks; from anywhere
// else they are ignored and the bearer token path runs as usual. Asserted
// IDs are still resolved through the principal store.
type TrustedHeaders struct {
	networks []netip.Prefix
	store    principals.Store
}

// NewTrustedHeaders builds a TrustedHeaders for the given CIDR blocks. At
// least one block is required.
func NewTrustedHeaders(store principals.Store, cidrs ...string) (*TrustedHeaders, error) {
	if store == nil {
		return nil, errors.New("principal store is required")
	}
	nets := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy cidr %q: %w", c, err)
		}
		nets = append(nets, p.Masked())
	}
	if len(nets) == 0 {
		return nil, errors.New("at least one trusted proxy cidr is required")
	}
	return &TrustedHeaders{networks: nets, store: store}, nil
}

// Trusts reports whether remoteAddr (host or host:port) is a trusted peer.
func (t *TrustedHeaders) Trusts(remoteAddr string) bool {
	addr, err := parseRemoteAddr(remoteAddr)
	if err != nil {
		return false
	}
	for _, p := range t.networks {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// authenticate reports handled=false when the request carries no asserted
// identity or comes from an untrusted peer.
func (t *TrustedHeaders) authenticate(ctx context.Context, r *http.Request) (ac auth.AuthContext, handled bool, err error) {
	vals, present := r.Header[http.CanonicalHeaderKey(authorizedHeader)]
	if !present || len(vals) != 1 || !t.Trusts(r.RemoteAddr) {
		return auth.AuthContext{}, false, nil
	}
	if !strings.EqualFold(strings.TrimSpace(vals[0]), "true") {
		return auth.Unauthenticated(), true, nil
	}

	id, err := principals.ParseID(strings.TrimSpace(r.Header.Get(userIDHeader)))
	if err != nil {
		return auth.AuthContext{}, true, errors.Join(auth.ErrUnauthorized, err)
	}
	p, err := t.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, principals.ErrNotFound) {
			return auth.AuthContext{}, true, errors.Join(auth.ErrUnauthorized, err)
		}
		return auth.AuthContext{}, true, fmt.Errorf("%w: principal lookup: %w", auth.ErrInternal, err)
	}
	if p.ID == "" {
		p.ID = id
	}
	return auth.Authenticated(p), true, nil
}

func parseRemoteAddr(s string) (netip.Addr, error) {
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	return a.Unmap(), nil
}
