package configuration

import (
	"testing"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/mediahammer/internal/common/hammererrors"
)

func TestDefaultsAreValid(t *testing.T) {
	cluster := DefaultClusterOptions()
	assert.NoError(t, cluster.Validate())
	load := DefaultLoadOptions()
	assert.NoError(t, load.Validate())

	scan := DefaultScanOptions()
	scan.Api.ApiKey = "key"
	assert.NoError(t, scan.Validate())
}

func TestValidate_ReportsFlagNames(t *testing.T) {
	tests := map[string]struct {
		modify func(o *LoadOptions)
		flag   string
	}{
		"client count":   {modify: func(o *LoadOptions) { o.ClientCount = 0 }, flag: "--client-count"},
		"parallelism":    {modify: func(o *LoadOptions) { o.ParallelChannelJoins = 0 }, flag: "--parallel-channel-joins"},
		"gateway url":    {modify: func(o *LoadOptions) { o.Gateway.GatewayUrl = "not a url" }, flag: "--gateway-url"},
		"shared secret":  {modify: func(o *LoadOptions) { o.Gateway.SharedSecret = "" }, flag: "--shared-secret"},
		"output":         {modify: func(o *LoadOptions) { o.Report.Output = "xml" }, flag: "--output"},
		"redis key":      {modify: func(o *LoadOptions) { o.Report.ResultsRedisAddr = "localhost:6379" }, flag: "--results-redis-key"},
		"media timeout":  {modify: func(o *LoadOptions) { o.MediaTimeout = 0 }, flag: "--media-timeout"},
		"pause":          {modify: func(o *LoadOptions) { o.PauseTimeout = -time.Second }, flag: "--pause-timeout"},
		"log format":     {modify: func(o *LoadOptions) { o.Logging.Format = "xml" }, flag: "--log-format"},
		"log level":      {modify: func(o *LoadOptions) { o.Logging.Level = "loud" }, flag: "--log-level"},
		"verify one":     {modify: func(o *LoadOptions) { o.VerifyMedia = true }, flag: "--client-count"},
		"sdk log level":  {modify: func(o *LoadOptions) { o.Gateway.SdkLogLevel = "chatty" }, flag: "--sdk-log-level"},
		"iteration zero": {modify: func(o *LoadOptions) { o.IterationCount = 0 }, flag: "--iteration-count"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			options := DefaultLoadOptions()
			tc.modify(&options)

			err := options.Validate()

			var invalid *hammererrors.ErrInvalidArgument
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tc.flag, invalid.Name)
			assert.Equal(t, 1, hammererrors.ExitCode(err))
		})
	}
}

func TestScanOptions_ApiKeyRequiredUnlessSimulating(t *testing.T) {
	options := DefaultScanOptions()
	err := options.Validate()
	var invalid *hammererrors.ErrInvalidArgument
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "--api-key", invalid.Name)

	options.Gateway.Simulate = true
	assert.NoError(t, options.Validate())
}

func TestScanOptions_ShouldTestServer(t *testing.T) {
	options := DefaultScanOptions()
	assert.True(t, options.ShouldTestServer("a"))

	options.MediaServerId = "b"
	assert.False(t, options.ShouldTestServer("a"))
	assert.True(t, options.ShouldTestServer("b"))
}

func TestLoadOptions_Warmup(t *testing.T) {
	options := DefaultLoadOptions()
	options.ClientCount = 50
	options.ParallelConnectionOpens = 10
	options.PauseTimeout = time.Minute
	options.IterationCount = 4

	warmup := options.Warmup()

	assert.Equal(t, 1, warmup.ClientCount)
	assert.Equal(t, 1, warmup.ParallelConnectionOpens)
	assert.Equal(t, 1, warmup.IterationCount)
	assert.Zero(t, warmup.PauseTimeout)
	assert.Equal(t, 50, options.ClientCount)
}

func TestClusterOptions_Client(t *testing.T) {
	options := DefaultClusterOptions()
	options.Tag1, options.Region2, options.User2 = "t1", "r2", "u2"

	first := options.Client(1)
	second := options.Client(2)

	assert.Equal(t, "t1", first.Tag)
	assert.Equal(t, DefaultApplicationId, first.ApplicationId)
	assert.Equal(t, "r2", second.Region)
	assert.Equal(t, "u2", second.UserId)
	assert.Empty(t, second.Tag)
}

func TestSecondsDurationHookFunc(t *testing.T) {
	type target struct {
		Timeout time.Duration `mapstructure:"timeout"`
		Count   int           `mapstructure:"count"`
	}
	tests := map[string]struct {
		input    interface{}
		expected time.Duration
	}{
		"int":             {input: 5, expected: 5 * time.Second},
		"int64":           {input: int64(7), expected: 7 * time.Second},
		"float":           {input: 1.5, expected: 1500 * time.Millisecond},
		"numeric string":  {input: "12", expected: 12 * time.Second},
		"duration string": {input: "1m30s", expected: 90 * time.Second},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var result target
			decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				DecodeHook: SecondsDurationHookFunc(),
				Result:     &result,
			})
			require.NoError(t, err)

			require.NoError(t, decoder.Decode(map[string]interface{}{"timeout": tc.input, "count": 3}))
			assert.Equal(t, tc.expected, result.Timeout)
			assert.Equal(t, 3, result.Count)
		})
	}
}

func TestSecondsDurationHookFunc_InvalidString(t *testing.T) {
	var result struct {
		Timeout time.Duration `mapstructure:"timeout"`
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: SecondsDurationHookFunc(),
		Result:     &result,
	})
	require.NoError(t, err)

	assert.Error(t, decoder.Decode(map[string]interface{}{"timeout": "soon"}))
}
