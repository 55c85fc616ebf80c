package client

import (
	"errors"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestIsNoSuchKey(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, true},
		{"404 status", minio.ErrorResponse{StatusCode: http.StatusNotFound}, true},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, false},
		{"plain error", errors.New("dial tcp: connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNoSuchKey(tt.err); got != tt.want {
				t.Errorf("isNoSuchKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMinIOSource_ObjectKey(t *testing.T) {
	m := &MinIOSource{prefix: "wrf/latest"}
	if got := m.objectKey("t2/json/fh_000.json"); got != "wrf/latest/t2/json/fh_000.json" {
		t.Errorf("objectKey() = %q", got)
	}
	m.prefix = ""
	if got := m.objectKey("t2/json/fh_000.json"); got != "t2/json/fh_000.json" {
		t.Errorf("objectKey() without prefix = %q", got)
	}
}
