package secrets

import (
	"testing"
)

func TestResolve_Precedence(t *testing.T) {
	t.Setenv("WEBHOOK_TOKEN", "from-env")

	payload := map[string]any{"WEBHOOK_TOKEN": "from-payload"}
	defaults := map[string]string{"WEBHOOK_TOKEN": "from-manifest"}

	tests := []struct {
		name      string
		payload   map[string]any
		defaults  map[string]string
		key       string
		want      string
		wantFound bool
	}{
		{
			name:      "payload wins over everything",
			payload:   payload,
			defaults:  defaults,
			key:       "WEBHOOK_TOKEN",
			want:      "from-payload",
			wantFound: true,
		},
		{
			name:      "manifest default wins over environment",
			payload:   nil,
			defaults:  defaults,
			key:       "WEBHOOK_TOKEN",
			want:      "from-manifest",
			wantFound: true,
		},
		{
			name:      "environment is the last fallback",
			payload:   nil,
			defaults:  nil,
			key:       "WEBHOOK_TOKEN",
			want:      "from-env",
			wantFound: true,
		},
		{
			name:      "absent everywhere",
			payload:   nil,
			defaults:  nil,
			key:       "NO_SUCH_SECRET_ANYWHERE",
			want:      "",
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.payload, tt.defaults, nil)
			got, found := r.Resolve(tt.key)
			if found != tt.wantFound {
				t.Fatalf("Resolve(%q) found = %v, want %v", tt.key, found, tt.wantFound)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestResolve_CoercesNonStringPayloadValues(t *testing.T) {
	r := New(map[string]any{
		"retries": float64(3),
		"enabled": true,
	}, nil, nil)

	got, found := r.Resolve("retries")
	if !found || got != "3" {
		t.Errorf("Resolve(retries) = %q, %v; want \"3\", true", got, found)
	}

	got, found = r.Resolve("enabled")
	if !found || got != "true" {
		t.Errorf("Resolve(enabled) = %q, %v; want \"true\", true", got, found)
	}
}
