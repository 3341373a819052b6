package configuration

import (
	"time"

	"github.com/G-Research/mediahammer/internal/common/logging"
	"github.com/G-Research/mediahammer/internal/media"
	"github.com/G-Research/mediahammer/pkg/client"
)

// GatewayOptions are shared by every verb.
type GatewayOptions struct {
	GatewayUrl    string `mapstructure:"gateway-url" validate:"required,url"`
	ApplicationId string `mapstructure:"application-id" validate:"required"`
	SharedSecret  string `mapstructure:"shared-secret" validate:"required"`
	// SdkLogLevel is the level of the media SDK's own logger.
	SdkLogLevel string `mapstructure:"sdk-log-level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic none off"`
	// Simulate runs against the in-process loopback gateway instead of GatewayUrl.
	Simulate bool `mapstructure:"simulate"`
}

// ReportOptions control what happens with the outcome of a run.
type ReportOptions struct {
	Output           string `mapstructure:"output" validate:"oneof=text json"`
	MetricsPushUrl   string `mapstructure:"metrics-push-url" validate:"omitempty,url"`
	ResultsRedisAddr string `mapstructure:"results-redis-addr" validate:"omitempty,hostname_port"`
	ResultsRedisKey  string `mapstructure:"results-redis-key" validate:"required_with=ResultsRedisAddr"`
}

type ClusterOptions struct {
	Gateway        GatewayOptions `mapstructure:",squash"`
	Report         ReportOptions  `mapstructure:",squash"`
	Logging        logging.Config `mapstructure:",squash"`
	IterationCount int            `mapstructure:"iteration-count" validate:"gte=1"`
	MediaTimeout   time.Duration  `mapstructure:"media-timeout" validate:"gt=0"`
	User1          string         `mapstructure:"user-1"`
	User2          string         `mapstructure:"user-2"`
	Device1        string         `mapstructure:"device-1"`
	Device2        string         `mapstructure:"device-2"`
	Tag1           string         `mapstructure:"tag-1"`
	Tag2           string         `mapstructure:"tag-2"`
	Region1        string         `mapstructure:"region-1"`
	Region2        string         `mapstructure:"region-2"`
}

// Client returns the identity of the first (leg 1) or second (leg 2) client.
func (o *ClusterOptions) Client(leg int) media.ClientConfig {
	config := media.ClientConfig{GatewayUrl: o.Gateway.GatewayUrl, ApplicationId: o.Gateway.ApplicationId}
	if leg == 1 {
		config.UserId, config.DeviceId, config.Tag, config.Region = o.User1, o.Device1, o.Tag1, o.Region1
	} else {
		config.UserId, config.DeviceId, config.Tag, config.Region = o.User2, o.Device2, o.Tag2, o.Region2
	}
	return config
}

type LoadOptions struct {
	Gateway                 GatewayOptions `mapstructure:",squash"`
	Report                  ReportOptions  `mapstructure:",squash"`
	Logging                 logging.Config `mapstructure:",squash"`
	IterationCount          int            `mapstructure:"iteration-count" validate:"gte=1"`
	ClientCount             int            `mapstructure:"client-count" validate:"gte=1"`
	ChannelCount            int            `mapstructure:"channel-count" validate:"gte=1"`
	ConnectionCount         int            `mapstructure:"connection-count" validate:"gte=1"`
	ParallelClientRegisters int            `mapstructure:"parallel-client-registers" validate:"gte=1"`
	ParallelChannelJoins    int            `mapstructure:"parallel-channel-joins" validate:"gte=1"`
	ParallelConnectionOpens int            `mapstructure:"parallel-connection-opens" validate:"gte=1"`
	// ChannelBurst joins every client to channel 1 before any client joins channel 2.
	ChannelBurst bool          `mapstructure:"channel-burst"`
	PauseTimeout time.Duration `mapstructure:"pause-timeout" validate:"gte=0"`
	NoWarmup     bool          `mapstructure:"no-warmup"`
	VerifyMedia  bool          `mapstructure:"verify-media"`
	MediaTimeout time.Duration `mapstructure:"media-timeout" validate:"gt=0"`
	Tag          string        `mapstructure:"tag"`
}

// Warmup returns the options of the single-client iteration run before the first real one.
func (o LoadOptions) Warmup() LoadOptions {
	o.IterationCount = 1
	o.ClientCount = 1
	o.ChannelCount = 1
	o.ConnectionCount = 1
	o.ParallelClientRegisters = 1
	o.ParallelChannelJoins = 1
	o.ParallelConnectionOpens = 1
	o.PauseTimeout = 0
	o.VerifyMedia = false
	return o
}

type ScanOptions struct {
	Gateway         GatewayOptions              `mapstructure:",squash"`
	Report          ReportOptions               `mapstructure:",squash"`
	Logging         logging.Config              `mapstructure:",squash"`
	Api             client.ApiConnectionDetails `mapstructure:",squash"`
	Tag             string                      `mapstructure:"tag"`
	MediaServerId   string                      `mapstructure:"media-server-id"`
	NoHost          bool                        `mapstructure:"no-host"`
	NoStun          bool                        `mapstructure:"no-stun"`
	NoTurnUdp       bool                        `mapstructure:"no-turn-udp"`
	NoTurnTcp       bool                        `mapstructure:"no-turn-tcp"`
	NoTurns         bool                        `mapstructure:"no-turns"`
	MinCertDays     int                         `mapstructure:"min-cert-days" validate:"gte=0"`
	MaxAttempts     int                         `mapstructure:"max-attempts" validate:"gte=1"`
	AttemptInterval time.Duration               `mapstructure:"attempt-interval" validate:"gte=0"`
}

// ShouldTestServer reports whether the server passes the --media-server-id filter.
func (o *ScanOptions) ShouldTestServer(mediaServerId string) bool {
	return o.MediaServerId == "" || o.MediaServerId == mediaServerId
}
