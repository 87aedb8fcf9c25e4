package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	result := GetEnv("TEST_NONEXISTENT_VAR", "default")
	if result != "default" {
		t.Errorf("Expected 'default', got %q", result)
	}

	t.Setenv("TEST_GET_ENV", "custom")

	result = GetEnv("TEST_GET_ENV", "default")
	if result != "custom" {
		t.Errorf("Expected 'custom', got %q", result)
	}
}

func TestGetFirstEnv(t *testing.T) {
	t.Setenv("TEST_FIRST_B", "second")

	if got := GetFirstEnv("fallback", "TEST_FIRST_A", "TEST_FIRST_B"); got != "second" {
		t.Errorf("Expected 'second', got %q", got)
	}

	t.Setenv("TEST_FIRST_A", "first")
	if got := GetFirstEnv("fallback", "TEST_FIRST_A", "TEST_FIRST_B"); got != "first" {
		t.Errorf("Expected 'first', got %q", got)
	}

	if got := GetFirstEnv("fallback", "TEST_FIRST_MISSING"); got != "fallback" {
		t.Errorf("Expected 'fallback', got %q", got)
	}
}

func TestGetIntEnv(t *testing.T) {
	result := GetIntEnv("TEST_NONEXISTENT_INT", 42)
	if result != 42 {
		t.Errorf("Expected 42, got %d", result)
	}

	t.Setenv("TEST_INT_ENV", "123")
	result = GetIntEnv("TEST_INT_ENV", 42)
	if result != 123 {
		t.Errorf("Expected 123, got %d", result)
	}

	t.Setenv("TEST_INVALID_INT", "not-a-number")
	result = GetIntEnv("TEST_INVALID_INT", 42)
	if result != 42 {
		t.Errorf("Expected 42 for invalid int, got %d", result)
	}
}

func TestGetBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"false", true, false},
		{"0", true, false},
		{"true", false, true},
		{"yes", false, false}, // not understood by ParseBool, default kept
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL_ENV", tt.value)
			if got := GetBoolEnv("TEST_BOOL_ENV", tt.def); got != tt.want {
				t.Errorf("GetBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
			}
		})
	}
}

func TestGetDurationEnv(t *testing.T) {
	defaultDuration := 5 * time.Second

	result := GetDurationEnv("TEST_NONEXISTENT_DURATION", defaultDuration)
	if result != defaultDuration {
		t.Errorf("Expected %v, got %v", defaultDuration, result)
	}

	t.Setenv("TEST_DURATION_ENV", "30s")
	result = GetDurationEnv("TEST_DURATION_ENV", defaultDuration)
	if result != 30*time.Second {
		t.Errorf("Expected 30s, got %v", result)
	}

	t.Setenv("TEST_INVALID_DURATION", "not-a-duration")
	result = GetDurationEnv("TEST_INVALID_DURATION", defaultDuration)
	if result != defaultDuration {
		t.Errorf("Expected %v for invalid duration, got %v", defaultDuration, result)
	}
}

func TestGetSecretFile(t *testing.T) {
	if result := GetSecretFile(""); result != "" {
		t.Errorf("Expected empty string for empty path, got %q", result)
	}

	if result := GetSecretFile("/nonexistent/path/to/secret"); result != "" {
		t.Errorf("Expected empty string for nonexistent file, got %q", result)
	}

	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("my-secret-value\n"), 0o600); err != nil {
		t.Fatalf("Failed to write secret: %v", err)
	}

	if result := GetSecretFile(path); result != "my-secret-value" {
		t.Errorf("Expected %q, got %q", "my-secret-value", result)
	}
}

func TestGetSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "password")
	if err := os.WriteFile(path, []byte("from-file"), 0o600); err != nil {
		t.Fatalf("Failed to write secret: %v", err)
	}

	t.Setenv("TEST_SECRET_FILE", path)
	if got := GetSecret("TEST_SECRET"); got != "from-file" {
		t.Errorf("Expected value from file, got %q", got)
	}

	t.Setenv("TEST_SECRET", "from-env")
	if got := GetSecret("TEST_SECRET"); got != "from-env" {
		t.Errorf("Expected plain variable to win, got %q", got)
	}
}
