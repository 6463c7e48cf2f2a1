package web

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/ash2k/stager/wait"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/gokairos/internal/fixtures"
	"github.com/atlassian/gokairos/pkg/healthcheck"
	"github.com/atlassian/gokairos/pkg/stats"
)

func TestNewHttpServerRequiresRoutes(t *testing.T) {
	t.Parallel()
	_, err := NewHttpServer(fixtures.NewTestLogger(t), nil, ServerConfig{Address: "127.0.0.1:0"}, nil, nil)
	require.Error(t, err)
}

func TestNewHttpServerIngestionRequiresHandler(t *testing.T) {
	t.Parallel()
	_, err := NewHttpServer(fixtures.NewTestLogger(t), nil, ServerConfig{
		Address:         "127.0.0.1:0",
		EnableIngestion: true,
	}, nil, nil)
	require.Error(t, err)
}

func TestNewHttpServerFromViper(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set("http", map[string]interface{}{
		"address":         "127.0.0.1:0",
		"max-connections": 5,
		"enable-expvar":   true,
	})
	hs, err := NewHttpServerFromViper(v, fixtures.NewTestLogger(t), &fixtures.CapturingEventHandler{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ServerConfig{
		Address:           "127.0.0.1:0",
		MaxConnections:    5,
		EnableExpVar:      true,
		EnableIngestion:   true,
		EnableHealthcheck: true,
	}, hs.config)
	assert.NotNil(t, hs.Router.Get("expvar_get"))
	assert.NotNil(t, hs.Router.Get("eventsv1_post"))
	assert.Nil(t, hs.Router.Get("profmem_post"))
}

func TestHttpServerRunAndShutdown(t *testing.T) {
	t.Parallel()
	ch := &fixtures.CapturingEventHandler{}
	hs, err := NewHttpServer(
		fixtures.NewTestLogger(t),
		ch,
		ServerConfig{
			Address:           "127.0.0.1:0",
			MaxConnections:    2,
			EnableIngestion:   true,
			EnableHealthcheck: true,
		},
		[]healthcheck.HealthcheckFunc{check("ok", healthcheck.Healthy)},
		nil,
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ctx = stats.NewContext(ctx, &stats.NullStatser{})

	var wg wait.Group
	runCtx, stop := context.WithCancel(ctx)
	wg.StartWithContext(runCtx, hs.Run)

	addr := hs.Addr(ctx)
	require.NotNil(t, addr)
	base := fmt.Sprintf("http://%s", addr)

	resp, err := http.Post(base+"/v1/events", "application/json", bytes.NewBufferString(`{"x":1}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Len(t, ch.Events(), 1)

	resp, err = http.Get(base + "/healthcheck")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/nothing-here")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(base + "/v1/events")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	stop()
	wg.Wait()
}
