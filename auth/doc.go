// Package auth implements per-request bearer token authentication. It turns
// the Authorization header of an inbound request into an AuthContext that
// downstream handlers consult before doing any work.
//
// The pipeline is strictly sequential:
//
//  1. ExtractBearer pulls the token out of "Bearer <token>". A request
//     without the header is not an error; it is Unauthenticated().
//  2. The token's signature, algorithm and validity window are verified
//     against process-wide configuration (shared HMAC secret by default,
//     or a JWKS URL / OIDC issuer for asymmetric keys).
//  3. The payload is decoded and must carry the subject claim ("id" by
//     default) as a non-empty string or an integral number.
//  4. The subject is resolved through a principals.Store with exactly one
//     lookup.
//
// Steps 1–4 collapse every credential problem into ErrUnauthorized so callers
// cannot learn which check failed. Store failures unrelated to "not found"
// (including request deadlines) are ErrInternal instead: they are not
// evidence of a bad credential.
//
// # Wiring
//
//	guard, err := auth.NewGuard(ctx, auth.Config{Secret: secret}, store)
//	if err != nil { log.Fatal(err) }
//
//	ac, err := guard.Authenticate(r.Context(), r.Header.Get("Authorization"))
//	if errors.Is(err, auth.ErrUnauthorized) { /* 401 */ }
//	ctx, _ := auth.WithAuthContext(r.Context(), ac)
//
// Transports normally do this through guardhttp, guardgin or guardgrpc,
// which attach the outcome to the request context exactly once and expose a
// RequireAuthenticated check for protected routes.
//
// # Authentication Context
//
// An AuthContext is unset, unauthenticated or authenticated. WithAuthContext
// refuses to overwrite an outcome already on the context, so a request is
// authenticated at most once. Require and RequireContext are the guard
// checks; they read the context and never perform I/O.
package auth
