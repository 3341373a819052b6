package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/mediahammer/internal/common/hammererrors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *MediaServerClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	details := &ApiConnectionDetails{ApiBaseUrl: server.URL + "/admin/api", ApiKey: "secret", Timeout: 5 * time.Second}
	c, err := NewMediaServerClient(details, nil)
	require.NoError(t, err)
	return c
}

func TestMediaServers(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/api/v1/mediaservers", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		_, _ = w.Write([]byte(`[{"id":"a","active":true,"usedCapacity":0.25,"coreCount":4,"deploymentId":"d"},{"id":"b","draining":true}]`))
	})

	servers, err := c.MediaServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, &MediaServer{Id: "a", Active: true, UsedCapacity: 0.25, CoreCount: 4, DeploymentId: "d"}, servers[0])
	assert.True(t, servers[1].Draining)

	server, err := c.MediaServer(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "b", server.Id)

	server, err = c.MediaServer(context.Background(), "gone")
	require.NoError(t, err)
	assert.Nil(t, server)
}

func TestMediaServers_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"a"}]`))
	})

	servers, err := c.MediaServers(context.Background())
	require.NoError(t, err)
	assert.Len(t, servers, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMediaServers_GivesUp(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.MediaServers(context.Background())
	var fetch *hammererrors.ErrMediaServerFetch
	require.ErrorAs(t, err, &fetch)
	assert.Equal(t, uint(FetchAttempts), fetch.Attempts)
	assert.Equal(t, int32(FetchAttempts), calls.Load())
	assert.Equal(t, hammererrors.MediaServerFetch, hammererrors.KindOf(err))
}

func TestMediaServers_Cancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.MediaServers(ctx)
	assert.Equal(t, hammererrors.Cancelled, hammererrors.KindOf(err))
}

func TestCapacityThresholds_CachedPerDeployment(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/admin/api/v2/DeploymentConfig(d1)", r.URL.Path)
		_, _ = w.Write([]byte(`{"capacityThresholds":{"enabled":true,"safeSfuConnectionsPerCpuThreshold":20}}`))
	})

	for i := 0; i < 3; i++ {
		thresholds, err := c.CapacityThresholds(context.Background(), "d1")
		require.NoError(t, err)
		assert.True(t, thresholds.Enabled)
		threshold, ok := thresholds.SfuThreshold()
		assert.True(t, ok)
		assert.Equal(t, 20, threshold)
		assert.Nil(t, thresholds.McuConnectionsPerCpuThreshold)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCapacityThresholds_NotConfigured(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	thresholds, err := c.CapacityThresholds(context.Background(), "d1")
	require.NoError(t, err)
	assert.Nil(t, thresholds)
}

func TestNewMediaServerClient_InvalidUrl(t *testing.T) {
	_, err := NewMediaServerClient(&ApiConnectionDetails{ApiBaseUrl: "not a url"}, nil)
	assert.Equal(t, hammererrors.InvalidArgument, hammererrors.KindOf(err))
}
