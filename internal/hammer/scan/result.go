package scan

import (
	"crypto/x509"
	"time"
)

type State string

const (
	Pass State = "Pass"
	Fail State = "Fail"
	Skip State = "Skip"
)

// ScenarioResult is the outcome of one scenario against one media server.
type ScenarioResult struct {
	Scenario string `json:"scenario"`
	State    State  `json:"state"`
	Reason   string `json:"reason,omitempty"`
	// CertificateDays is the whole number of days the TLS certificate seen during the probe remains valid.
	CertificateDays *int `json:"certificateDays,omitempty"`

	Err                 error          `json:"-"`
	CertificateValidFor *time.Duration `json:"-"`

	certificateHost string
	certificate     *x509.Certificate
}

func passed(scenario string, certificateValidFor *time.Duration) *ScenarioResult {
	result := &ScenarioResult{Scenario: scenario, State: Pass, CertificateValidFor: certificateValidFor}
	if certificateValidFor != nil {
		days := wholeDays(*certificateValidFor)
		result.CertificateDays = &days
	}
	return result
}

func failed(scenario string, err error) *ScenarioResult {
	return &ScenarioResult{Scenario: scenario, State: Fail, Reason: err.Error(), Err: err}
}

func skipped(scenario string, reason string) *ScenarioResult {
	return &ScenarioResult{Scenario: scenario, State: Skip, Reason: reason}
}

// ServerResult is the outcome of scanning one media server. It fails if any scenario failed.
type ServerResult struct {
	MediaServerId   string            `json:"mediaServerId"`
	State           State             `json:"state"`
	Reason          string            `json:"reason,omitempty"`
	Attempts        int               `json:"attempts"`
	ScenarioResults []*ScenarioResult `json:"scenarioResults"`

	Err error `json:"-"`
}

func newServerResult(mediaServerId string) *ServerResult {
	return &ServerResult{MediaServerId: mediaServerId, State: Pass, ScenarioResults: []*ScenarioResult{}}
}

func serverSkipped(mediaServerId string, reason string) *ServerResult {
	return &ServerResult{MediaServerId: mediaServerId, State: Skip, Reason: reason, ScenarioResults: []*ScenarioResult{}}
}

func serverFailed(mediaServerId string, err error) *ServerResult {
	return &ServerResult{MediaServerId: mediaServerId, State: Fail, Reason: err.Error(), Err: err, ScenarioResults: []*ScenarioResult{}}
}

func (r *ServerResult) add(result *ScenarioResult) {
	if result.State == Fail {
		r.State = Fail
		r.Reason = result.Reason
		r.Err = result.Err
	}
	r.ScenarioResults = append(r.ScenarioResults, result)
}

// CertificateExpiring reports whether any scenario saw a certificate valid for less than minDays.
func (r *ServerResult) CertificateExpiring(minDays int) bool {
	minimum := time.Duration(minDays) * 24 * time.Hour
	for _, scenario := range r.ScenarioResults {
		if scenario.CertificateValidFor != nil && *scenario.CertificateValidFor < minimum {
			return true
		}
	}
	return false
}

// Result is the document written once a scan has completed.
type Result struct {
	Failed   []*ServerResult `json:"failed"`
	Expiring []*ServerResult `json:"expiring"`

	Servers []*ServerResult `json:"-"`
}

func wholeDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
