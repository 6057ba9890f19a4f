// Package principals defines the identity records that bearer credentials
// resolve to and the single lookup operation the authentication pipeline
// consumes from a persistence backend.
package principals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by a Store when no principal exists for an ID.
// Stores must return it (or an error wrapping it) instead of a zero Principal.
var ErrNotFound = errors.New("principals: not found")

// ID is the key of a principal in a Store. Numeric subjects are carried in
// their canonical base-10 form ("42"), string subjects verbatim.
type ID string

func (id ID) String() string { return string(id) }

// ErrInvalidID is returned by ParseID for values that cannot identify a
// principal.
var ErrInvalidID = errors.New("principals: invalid id")

// ParseID normalizes a decoded JSON value into an ID. Non-empty strings and
// integral numbers are accepted; every other shape is ErrInvalidID.
func ParseID(v any) (ID, error) {
	switch x := v.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return "", fmt.Errorf("%w: empty string", ErrInvalidID)
		}
		return ID(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x != math.Trunc(x) || math.Abs(x) > 1<<53 {
			return "", fmt.Errorf("%w: non-integral number", ErrInvalidID)
		}
		return ID(strconv.FormatInt(int64(x), 10)), nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return "", fmt.Errorf("%w: non-integral number", ErrInvalidID)
		}
		return ID(strconv.FormatInt(n, 10)), nil
	case int:
		return ID(strconv.Itoa(x)), nil
	case int64:
		return ID(strconv.FormatInt(x, 10)), nil
	case nil:
		return "", fmt.Errorf("%w: null", ErrInvalidID)
	default:
		return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidID, v)
	}
}

// Principal is a resolved identity. Stores hand out copies; callers may keep
// them for the lifetime of a request but must not expect them to track later
// writes to the backend.
type Principal struct {
	ID        ID        `json:"id"`
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Store looks principals up by ID. Implementations must be safe for
// concurrent use and should honor ctx deadlines.
type Store interface {
	// FindByID returns the principal with the given ID, ErrNotFound if none
	// exists, or another error for backend failures.
	FindByID(ctx context.Context, id ID) (Principal, error)
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, id ID) (Principal, error)

func (f StoreFunc) FindByID(ctx context.Context, id ID) (Principal, error) { return f(ctx, id) }
