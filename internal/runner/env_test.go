package runner

import (
	"slices"
	"testing"
)

func TestChildEnv(t *testing.T) {
	environ := []string{
		"PATH=/usr/bin",
		"CODEGEN_API_KEY=sk-test-12345",
		"REDIS_PASSWORD=hunter2",
		"CODEGEN_RUNNER_KEEP=yes",
		"EMPTY=",
	}

	got := childEnv(environ)
	want := []string{"PATH=/usr/bin", "CODEGEN_RUNNER_KEEP=yes", "EMPTY="}
	if !slices.Equal(got, want) {
		t.Errorf("childEnv() = %v, want %v", got, want)
	}
	if len(environ) != 5 || environ[1] != "CODEGEN_API_KEY=sk-test-12345" {
		t.Errorf("input was modified: %v", environ)
	}
}

func TestIsSecret(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"CODEGEN_API_KEY", true},
		{"codegen_api_key", true},
		{"OPENAI_API_KEY", true},
		{"CODEGEN_SERVER_API_KEY", true},
		{"redis_password", true},
		{"GITHUB_CLIENT_SECRET", true},
		{"CODEGEN_API_KEY_2", false},
		{"PATH", false},
		{"HOME", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isSecret(tt.key); got != tt.want {
				t.Errorf("isSecret(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
