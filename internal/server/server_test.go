package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frigate-wa-bridge/internal/config"
)

func TestNewHTTPServer(t *testing.T) {
	cfg := config.Config{Host: "127.0.0.1", Port: 4321}
	srv := NewHTTPServer(cfg, http.NewServeMux())
	assert.Equal(t, "127.0.0.1:4321", srv.Addr)
	assert.Equal(t, 5*time.Second, srv.ReadHeaderTimeout)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := config.Config{Host: "127.0.0.1", Port: 0}
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- Run(ctx, cfg, http.NewServeMux(), quietLog()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
