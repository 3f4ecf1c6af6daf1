package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/opensplit/internal/auth"
	"github.com/mmynk/opensplit/internal/metrics"
)

type ping struct{}

func TestRequireAuth(t *testing.T) {
	jwtManager := auth.NewJWTManager("middleware-test-secret", time.Hour)
	token, err := jwtManager.Generate("user-1", "ana@example.com")
	require.NoError(t, err)

	var seenUser, seenEmail string
	handler := RequireAuth(jwtManager)(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		seenUser, seenEmail = GetUserID(ctx), GetEmail(ctx)
		return connect.NewResponse(&ping{}), nil
	})

	tests := []struct {
		name     string
		header   string
		wantCode connect.Code
	}{
		{"valid token", "Bearer " + token, 0},
		{"lowercase scheme", "bearer " + token, 0},
		{"missing header", "", connect.CodeUnauthenticated},
		{"wrong scheme", "Basic " + token, connect.CodeUnauthenticated},
		{"empty token", "Bearer ", connect.CodeUnauthenticated},
		{"bad token", "Bearer abc.def.ghi", connect.CodeUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seenUser, seenEmail = "", ""
			req := connect.NewRequest(&ping{})
			if tt.header != "" {
				req.Header().Set("Authorization", tt.header)
			}

			_, err := handler(context.Background(), req)
			if tt.wantCode == 0 {
				require.NoError(t, err)
				assert.Equal(t, "user-1", seenUser)
				assert.Equal(t, "ana@example.com", seenEmail)
				return
			}
			assert.Equal(t, tt.wantCode, connect.CodeOf(err))
			assert.Empty(t, seenUser, "handler must not run")
		})
	}
}

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	want := connect.NewError(connect.CodeNotFound, errors.New("group not found"))
	handler := LoggingInterceptor()(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return nil, want
	})
	_, err := handler(WithUser(context.Background(), "user-1", ""), connect.NewRequest(&ping{}))
	assert.Equal(t, want, err)
}

func TestLoggingInterceptor_LogsAuthenticatedUser(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	jwtManager := auth.NewJWTManager("middleware-test-secret", time.Hour)
	token, err := jwtManager.Generate("user-1", "ana@example.com")
	require.NoError(t, err)

	// Same order as the server: auth wraps logging.
	handler := RequireAuth(jwtManager)(LoggingInterceptor()(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		return connect.NewResponse(&ping{}), nil
	}))
	req := connect.NewRequest(&ping{})
	req.Header().Set("Authorization", "Bearer "+token)
	_, err = handler(context.Background(), req)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "RPC ok", line["msg"])
	assert.Equal(t, "user-1", line["user_id"])
}

func TestMetricsInterceptor(t *testing.T) {
	m := metrics.New()
	calls := 0
	handler := MetricsInterceptor(m)(func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		calls++
		if calls == 2 {
			return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("bad"))
		}
		return connect.NewResponse(&ping{}), nil
	})

	for i := 0; i < 3; i++ {
		handler(context.Background(), connect.NewRequest(&ping{}))
	}

	assert.Equal(t, 3, calls)
	series, err := testutil.GatherAndCount(m.Registry(), "opensplit_rpc_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one series per code")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, "ok", codeOf(nil))
	assert.Equal(t, "not_found", codeOf(connect.NewError(connect.CodeNotFound, errors.New("x"))))
	assert.Equal(t, "unknown", codeOf(errors.New("plain")))
}
