package transport

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreflightHostsSucceedsIfAnyHostReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	host := srv.Listener.Addr().(*net.TCPAddr)
	err := PreflightHosts(context.Background(), []string{"127.0.0.1:1", srv.Listener.Addr().String()}, time.Second)
	require.NoError(t, err)
	_ = host
}

func TestPreflightHostsFailsWhenAllUnreachable(t *testing.T) {
	err := PreflightHosts(context.Background(), []string{"127.0.0.1:1", "127.0.0.1:2"}, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestPreflightHostsNoopWithoutConfiguredHosts(t *testing.T) {
	err := PreflightHosts(context.Background(), nil, time.Second)
	assert.NoError(t, err)
}
