package guardhttp

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ggoodman/authguard/auth"
	"github.com/ggoodman/authguard/internal/wellknown"
)

// ResourceMetadataPath is the conventional path for ResourceMetadataHandler.
const ResourceMetadataPath = wellknown.ProtectedResourcePath

// ResourceMetadataHandler serves RFC 9728 protected resource metadata for
// resource, derived from cfg. Nothing secret is published: the shared HMAC
// secret never appears, only algorithms, issuers and the JWKS location.
func ResourceMetadataHandler(resource, name string, cfg auth.Config) http.Handler {
	c := cfg.Copy()
	c.Normalize()

	meta := wellknown.ProtectedResourceMetadata{
		Resource:                          strings.TrimSpace(resource),
		JwksURI:                           c.JWKSURL,
		BearerMethodsSupported:            []string{"header"},
		ResourceSigningAlgValuesSupported: c.AllowedAlgs,
		ResourceName:                      name,
	}
	switch {
	case c.DiscoveryIssuer != "":
		meta.AuthorizationServers = []string{c.DiscoveryIssuer}
	case c.Issuer != "":
		meta.AuthorizationServers = []string{c.Issuer}
	}
	body, _ := json.Marshal(meta)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			writeJSON(w, http.StatusMethodNotAllowed, newBody(http.StatusMethodNotAllowed, ""))
			return
		}
		w.Header().Set("Content-Type", jsonMediaType.String())
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_, _ = w.Write(body)
	})
}
