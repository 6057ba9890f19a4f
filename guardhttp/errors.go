package guardhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/authguard/auth"
)

var jsonMediaType = contenttype.NewMediaType("application/json")

const (
	authorizationHeader   = "Authorization"
	wwwAuthenticateHeader = "WWW-Authenticate"
	requestIDHeader       = "X-Request-Id"
)

// Error is a failure raised by a handler that carries its own HTTP status.
// Client errors (4xx) keep their message; server errors are always reported
// with the generic status text.
type Error struct {
	Status  int
	Message string
	Err     error
}

// NewError returns an *Error with the given status and client-facing message.
func NewError(status int, msg string) *Error {
	return &Error{Status: status, Message: msg}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorBody is the JSON document written for every error response.
type ErrorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func newBody(status int, msg string) ErrorBody {
	if msg == "" {
		msg = http.StatusText(status)
	}
	return ErrorBody{Status: "error", Message: msg}
}

// Translate maps err to an HTTP status and response body. Credential
// failures become 401 with a fixed message regardless of the underlying
// cause; anything unclassified is a 500 whose body reveals nothing.
func Translate(err error) (int, ErrorBody) {
	var he *Error
	switch {
	case err == nil:
		return http.StatusInternalServerError, newBody(http.StatusInternalServerError, "")
	case errors.As(err, &he) && he.Status >= 400 && he.Status < 500:
		return he.Status, newBody(he.Status, he.Message)
	case errors.As(err, &he) && he.Status >= 500 && he.Status < 600:
		return he.Status, newBody(he.Status, "")
	case errors.Is(err, auth.ErrInternal):
		return http.StatusInternalServerError, newBody(http.StatusInternalServerError, "")
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, newBody(http.StatusUnauthorized, "")
	default:
		return http.StatusInternalServerError, newBody(http.StatusInternalServerError, "")
	}
}

// writeJSON emits body as the complete response. Safe to call after some
// headers have been set but before the status is written.
func writeJSON(w http.ResponseWriter, status int, body ErrorBody) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// BearerChallenge builds a WWW-Authenticate value for the Bearer scheme.
//
//	Bearer realm="<realm>", resource_metadata="...", error="...", error_description="..."
//
// Realm is omitted if empty. Only resource_metadata, error and
// error_description are taken from params, in that order.
func BearerChallenge(realm string, params map[string]string) string {
	pieces := make([]string, 0, 4)
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace
	if realm != "" {
		pieces = append(pieces, fmt.Sprintf(`realm="%s"`, esc(realm)))
	}
	if v, ok := params["resource_metadata"]; ok && v != "" {
		pieces = append(pieces, fmt.Sprintf(`resource_metadata="%s"`, esc(v)))
	}
	if v, ok := params["error"]; ok {
		pieces = append(pieces, fmt.Sprintf(`error="%s"`, esc(v)))
	}
	if v, ok := params["error_description"]; ok {
		pieces = append(pieces, fmt.Sprintf(`error_description="%s"`, esc(v)))
	}
	if len(pieces) == 0 {
		return "Bearer"
	}
	return "Bearer " + strings.Join(pieces, ", ")
}
