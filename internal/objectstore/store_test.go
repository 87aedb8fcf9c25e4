package objectstore

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsUnreachable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("access denied"), false},
		{"refused", fmt.Errorf("get: %w", syscall.ECONNREFUSED), true},
		{"dns", &net.DNSError{Err: "no such host", Name: "minio"}, true},
		{"dial op", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("boom")}, true},
		{"read op", &net.OpError{Op: "read", Net: "tcp", Err: errors.New("boom")}, false},
		{"url timeout", &url.Error{Op: "Get", URL: "http://minio", Err: timeoutErr{}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isUnreachable(tt.err); got != tt.want {
				t.Errorf("isUnreachable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
