package auth

import (
	"errors"
	"testing"
)

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{name: "bearer token", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "surrounding whitespace", header: "  Bearer   abc  ", want: "abc"},
		{name: "absent", header: "", wantErr: ErrNoCredential},
		{name: "blank", header: "   ", wantErr: ErrNoCredential},
		{name: "scheme only", header: "Bearer", wantErr: ErrUnauthorized},
		{name: "scheme and space", header: "Bearer ", wantErr: ErrUnauthorized},
		{name: "other scheme", header: "Basic dXNlcjpwYXNz", wantErr: ErrUnauthorized},
		{name: "no scheme", header: "abc.def.ghi", wantErr: ErrUnauthorized},
		{name: "extra fields", header: "Bearer abc def", wantErr: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractBearer(tt.header)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v (token %q)", tt.wantErr, err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("want %q, got %q", tt.want, got)
			}
		})
	}
}
