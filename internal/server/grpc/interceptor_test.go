package grpc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alprslanymeria/oauthserver/internal/common"
	"github.com/alprslanymeria/oauthserver/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// recLogger remembers the level of every entry.
type recLogger struct {
	mu     sync.Mutex
	levels []string
}

func (r *recLogger) add(level string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, level)
}

func (r *recLogger) Debug(context.Context, string, ...any) { r.add("debug") }
func (r *recLogger) Info(context.Context, string, ...any)  { r.add("info") }
func (r *recLogger) Warn(context.Context, string, ...any)  { r.add("warn") }
func (r *recLogger) Error(context.Context, string, ...any) { r.add("error") }
func (r *recLogger) With(...any) logging.Logger            { return r }

func TestInterceptor_PassesThroughResponse(t *testing.T) {
	log := &recLogger{}
	s := NewGRPCServer("", log)
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	handlerCalled := false
	h := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	resp, err := s.loggingInterceptor(context.Background(), nil, info, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handlerCalled {
		t.Fatal("handler was not called")
	}
	if resp != "ok" {
		t.Fatalf("unexpected handler resp: %v", resp)
	}
	if len(log.levels) != 1 || log.levels[0] != "info" {
		t.Fatalf("expected one info entry, got %v", log.levels)
	}
}

func TestInterceptor_MapsTaxonomyErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		code  codes.Code
		msg   string
		level string
	}{
		{"not found", common.NotFound("User not found."), codes.NotFound, "User not found.", "info"},
		{"unauthorized", common.Unauthorized("Invalid credentials."), codes.Unauthenticated, "Invalid credentials.", "info"},
		{"forbidden", common.Forbidden("Account is deactivated."), codes.PermissionDenied, "Account is deactivated.", "info"},
		{"conflict", common.ErrorConflict, codes.AlreadyExists, "conflict", "info"},
		{"business", common.Business("a", "b"), codes.InvalidArgument, "a", "info"},
		{"status kept", status.Error(codes.Unavailable, "later"), codes.Unavailable, "later", "info"},
		{"internal", errors.New("db error: boom"), codes.Internal, "internal error", "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &recLogger{}
			s := NewGRPCServer("", log)
			info := &grpc.UnaryServerInfo{FullMethod: "/svc/M"}

			_, err := s.loggingInterceptor(context.Background(), nil, info, func(context.Context, interface{}) (interface{}, error) {
				return nil, tt.err
			})

			st := status.Convert(err)
			if st.Code() != tt.code {
				t.Fatalf("expected %v, got %v", tt.code, st.Code())
			}
			if st.Message() != tt.msg {
				t.Fatalf("expected message %q, got %q", tt.msg, st.Message())
			}
			if len(log.levels) != 1 || log.levels[0] != tt.level {
				t.Fatalf("expected one %s entry, got %v", tt.level, log.levels)
			}
		})
	}
}

func TestToStatus_Nil(t *testing.T) {
	if err := toStatus(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
