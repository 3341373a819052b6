package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go"
	lru "github.com/hashicorp/golang-lru"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/mediahammer/internal/common/hammererrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// FetchAttempts is the number of times the media server list is requested before giving up.
	FetchAttempts      = 4
	fetchInitialDelay  = 500 * time.Millisecond
	thresholdCacheSize = 64
)

// MediaServer is a point-in-time snapshot of one media server.
type MediaServer struct {
	Id           string  `json:"id"`
	Available    bool    `json:"available"`
	Active       bool    `json:"active"`
	OverCapacity bool    `json:"overCapacity"`
	UsedCapacity float64 `json:"usedCapacity"`
	Draining     bool    `json:"draining"`
	CoreCount    int     `json:"coreCount"`
	DeploymentId string  `json:"deploymentId"`
}

// CapacityThresholds are connections-per-CPU limits of a deployment. Nil means not configured. Scans open
// SFU connections only, so the MCU limits are decoded but never consulted.
type CapacityThresholds struct {
	Enabled                             bool `json:"enabled"`
	McuConnectionsPerCpuThreshold       *int `json:"mcuConnectionsPerCpuThreshold"`
	SfuConnectionsPerCpuThreshold       *int `json:"sfuConnectionsPerCpuThreshold"`
	SafeMcuConnectionsPerCpuThreshold   *int `json:"safeMcuConnectionsPerCpuThreshold"`
	SafeSfuConnectionsPerCpuThreshold   *int `json:"safeSfuConnectionsPerCpuThreshold"`
	UnsafeMcuConnectionsPerCpuThreshold *int `json:"unsafeMcuConnectionsPerCpuThreshold"`
	UnsafeSfuConnectionsPerCpuThreshold *int `json:"unsafeSfuConnectionsPerCpuThreshold"`
}

// SfuThreshold returns the first configured of the explicit, safe and unsafe SFU thresholds.
func (t *CapacityThresholds) SfuThreshold() (int, bool) {
	return firstSet(t.SfuConnectionsPerCpuThreshold, t.SafeSfuConnectionsPerCpuThreshold, t.UnsafeSfuConnectionsPerCpuThreshold)
}

func firstSet(values ...*int) (int, bool) {
	for _, v := range values {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

type deploymentConfig struct {
	CapacityThresholds *CapacityThresholds `json:"capacityThresholds"`
}

// MediaServerClient reads the cluster management API. Media server snapshots are fetched fresh on every
// call. Capacity thresholds rarely change and are cached per deployment.
type MediaServerClient struct {
	details    *ApiConnectionDetails
	httpClient *http.Client
	thresholds *lru.Cache
}

func NewMediaServerClient(details *ApiConnectionDetails, httpClient *http.Client) (*MediaServerClient, error) {
	if _, err := url.ParseRequestURI(details.ApiBaseUrl); err != nil {
		return nil, errors.WithStack(&hammererrors.ErrInvalidArgument{
			Name:    "api-base-url",
			Value:   details.ApiBaseUrl,
			Message: "invalid API base URL",
		})
	}
	if httpClient == nil {
		httpClient = NewHttpClient(details)
	}
	thresholds, err := lru.New(thresholdCacheSize)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &MediaServerClient{
		details:    details,
		httpClient: httpClient,
		thresholds: thresholds,
	}, nil
}

// MediaServers returns every registered media server. Transient failures are retried with a doubling
// delay; after FetchAttempts the last error is returned wrapped in ErrMediaServerFetch.
func (c *MediaServerClient) MediaServers(ctx context.Context) ([]*MediaServer, error) {
	var servers []*MediaServer
	err := retry.Do(
		func() error {
			servers = nil
			return c.get(ctx, "v1/mediaservers", &servers)
		},
		retry.Context(ctx),
		retry.Attempts(FetchAttempts),
		retry.Delay(fetchInitialDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.WithError(err).Warnf("Media server list could not be fetched (attempt %d of %d)", n+1, FetchAttempts)
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithStack(hammererrors.ErrCancelled)
		}
		return nil, errors.WithStack(&hammererrors.ErrMediaServerFetch{Attempts: FetchAttempts, Cause: err})
	}
	return servers, nil
}

// MediaServer returns the snapshot of one media server, or nil if it is no longer registered.
func (c *MediaServerClient) MediaServer(ctx context.Context, id string) (*MediaServer, error) {
	servers, err := c.MediaServers(ctx)
	if err != nil {
		return nil, err
	}
	for _, server := range servers {
		if server.Id == id {
			return server, nil
		}
	}
	return nil, nil
}

// CapacityThresholds returns the thresholds of a deployment, or nil if none are configured.
func (c *MediaServerClient) CapacityThresholds(ctx context.Context, deploymentId string) (*CapacityThresholds, error) {
	if cached, ok := c.thresholds.Get(deploymentId); ok {
		return cached.(*CapacityThresholds), nil
	}
	config := &deploymentConfig{}
	path := fmt.Sprintf("v2/DeploymentConfig(%s)", url.PathEscape(deploymentId))
	if err := c.get(ctx, path, config); err != nil {
		return nil, err
	}
	c.thresholds.Add(deploymentId, config.CapacityThresholds)
	return config.CapacityThresholds, nil
}

func (c *MediaServerClient) get(ctx context.Context, path string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseUrl(c.details)+path, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.WithStack(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WithStack(err)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("GET %s returned %s", path, resp.Status)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.Wrapf(err, "error decoding response of GET %s", path)
	}
	return nil
}
