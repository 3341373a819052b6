package configuration

import (
	"time"

	"github.com/G-Research/mediahammer/internal/common/logging"
	"github.com/G-Research/mediahammer/pkg/client"
)

const (
	DefaultGatewayUrl    = "http://localhost:8080/sync"
	DefaultApplicationId = "my-app-id"
	DefaultSharedSecret  = "--replaceThisWithYourOwnSharedSecret--"
	DefaultApiBaseUrl    = "http://localhost:9090/admin/api"
	DefaultResultsKey    = "hammer:results"
)

func DefaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		GatewayUrl:    DefaultGatewayUrl,
		ApplicationId: DefaultApplicationId,
		SharedSecret:  DefaultSharedSecret,
		SdkLogLevel:   "error",
	}
}

func DefaultReportOptions() ReportOptions {
	return ReportOptions{Output: "text"}
}

func DefaultLoggingConfig() logging.Config {
	return logging.Config{Level: "info", Format: "cli"}
}

func DefaultClusterOptions() ClusterOptions {
	return ClusterOptions{
		Gateway:        DefaultGatewayOptions(),
		Report:         DefaultReportOptions(),
		Logging:        DefaultLoggingConfig(),
		IterationCount: 1000,
		MediaTimeout:   5 * time.Second,
	}
}

func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Gateway:                 DefaultGatewayOptions(),
		Report:                  DefaultReportOptions(),
		Logging:                 DefaultLoggingConfig(),
		IterationCount:          1,
		ClientCount:             1,
		ChannelCount:            1,
		ConnectionCount:         1,
		ParallelClientRegisters: 1,
		ParallelChannelJoins:    1,
		ParallelConnectionOpens: 1,
		MediaTimeout:            5 * time.Second,
	}
}

func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		Gateway:         DefaultGatewayOptions(),
		Report:          DefaultReportOptions(),
		Logging:         DefaultLoggingConfig(),
		Api:             client.ApiConnectionDetails{ApiBaseUrl: DefaultApiBaseUrl, Timeout: 30 * time.Second},
		MinCertDays:     7,
		MaxAttempts:     3,
		AttemptInterval: 5 * time.Second,
	}
}
