// Package hammererrors contains the failure model shared by every scenario runner.
//
// A run ends either successfully or with exactly one error. The error is one of the types defined here,
// possibly wrapped with github.com/pkg/errors; KindOf recovers the FailureKind through the chain and
// ExitCode maps it to the process exit code reported by the command line.
//
// If several release steps fail during teardown, those are aggregated into a multierror.Error from
// github.com/hashicorp/go-multierror and logged; they never replace the error that caused the unwind.
package hammererrors

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// FailureKind enumerates every way a run can end.
type FailureKind int

const (
	None FailureKind = iota
	Cancelled
	ClientRegister
	ChannelJoin
	TrackStart
	ConnectionOpen
	MediaStreamFailed
	CertificateExpiring
	MediaServerMismatch
	MediaServerFetch
	InvalidArgument
	Unknown
)

var kindNames = map[FailureKind]string{
	None:                "None",
	Cancelled:           "Cancelled",
	ClientRegister:      "ClientRegisterFailed",
	ChannelJoin:         "ChannelJoinFailed",
	TrackStart:          "TrackStartFailed",
	ConnectionOpen:      "ConnectionOpenFailed",
	MediaStreamFailed:   "MediaStreamFailed",
	CertificateExpiring: "CertificateExpiring",
	MediaServerMismatch: "MediaServerMismatch",
	MediaServerFetch:    "MediaServerFetchFailed",
	InvalidArgument:     "InvalidArgument",
	Unknown:             "Unknown",
}

func (k FailureKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FailureKind(%d)", int(k))
}

func (k FailureKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ErrCancelled is returned whenever the shared cancellation signal was observed.
var ErrCancelled = errors.New("user cancelled")

// ErrStageFailed indicates that a fan-out stage (register, join, track start, connection open) faulted.
// Group is the 1-based index of the group that faulted, or 0 if the stage is not batched.
type ErrStageFailed struct {
	Kind  FailureKind
	Stage string
	Group int
	Cause error
}

func (err *ErrStageFailed) Error() string {
	var s string
	switch err.Kind {
	case ClientRegister:
		s = "one or more clients could not be registered"
	case ChannelJoin:
		s = "one or more channels could not be joined"
	case TrackStart:
		s = "one or more tracks could not be started"
	case ConnectionOpen:
		s = "one or more connections could not be opened"
	default:
		s = fmt.Sprintf("stage %q failed", err.Stage)
	}
	if err.Group > 0 {
		s = fmt.Sprintf("%s (group #%d)", s, err.Group)
	}
	if err.Cause != nil {
		s = fmt.Sprintf("%s: %s", s, err.Cause)
	}
	return s
}

func (err *ErrStageFailed) Unwrap() error {
	return err.Cause
}

// ErrMediaStreamFailed describes a single (stream, leg) pair that was not observed flowing within the
// verification window. Sent and Received are diagnostic frame counters for that leg.
type ErrMediaStreamFailed struct {
	Stream   string
	Leg      string
	Sent     int64
	Received int64
	Cause    error
}

func (err *ErrMediaStreamFailed) Error() string {
	s := fmt.Sprintf("%s %s failed (sent: %d, received: %d)", err.Stream, err.Leg, err.Sent, err.Received)
	if err.Cause != nil {
		s = fmt.Sprintf("%s: %s", s, err.Cause)
	}
	return s
}

func (err *ErrMediaStreamFailed) Unwrap() error {
	return err.Cause
}

// ErrMediaVerification aggregates every failed leg of one verification.
type ErrMediaVerification struct {
	Failures []*ErrMediaStreamFailed
}

func (err *ErrMediaVerification) Error() string {
	parts := make([]string, len(err.Failures))
	for i, f := range err.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("media verification failed: %s", strings.Join(parts, "; "))
}

// ErrMediaServerMismatch indicates that a connection pinned to one media server was negotiated with another.
type ErrMediaServerMismatch struct {
	Requested string
	Actual    string
}

func (err *ErrMediaServerMismatch) Error() string {
	return fmt.Sprintf("connection connected to media server %s instead of preferred media server %s", err.Actual, err.Requested)
}

// ExpiringCertificate identifies a certificate whose remaining validity is below the configured minimum.
type ExpiringCertificate struct {
	MediaServerId string
	Host          string
	Subject       string
	NotAfter      time.Time
}

// ErrCertificateExpiring is reported once a scan has completed, never while probing.
type ErrCertificateExpiring struct {
	Certificates []ExpiringCertificate
	MinDays      int
}

func (err *ErrCertificateExpiring) Error() string {
	servers := make([]string, 0, len(err.Certificates))
	for _, c := range err.Certificates {
		servers = append(servers, c.MediaServerId)
	}
	return fmt.Sprintf(
		"%d media server(s) have certificates expiring in less than %d day(s): %s",
		len(err.Certificates), err.MinDays, strings.Join(servers, ", "),
	)
}

// ErrMediaServerFetch is returned once fetching the media server list has failed more times than allowed.
type ErrMediaServerFetch struct {
	Attempts uint
	Cause    error
}

func (err *ErrMediaServerFetch) Error() string {
	return fmt.Sprintf("could not fetch media servers after %d attempt(s): %s", err.Attempts, err.Cause)
}

func (err *ErrMediaServerFetch) Unwrap() error {
	return err.Cause
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the option referred to, e.g., "clientCount"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for option %q", err.Value, err.Name)
	} else {
		return fmt.Sprintf("value %v is invalid for option %q; %s", err.Value, err.Name, err.Message)
	}
}

// KindOf returns the FailureKind of err.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
// Cancellation takes precedence over any other failure found in the chain.
func KindOf(err error) FailureKind {
	if err == nil {
		return None
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return Cancelled
	}

	// Using {} scopes just to re-use the "e" variable name for each case.
	{
		var e *ErrStageFailed
		if errors.As(err, &e) {
			return e.Kind
		}
	}
	{
		var e *ErrMediaVerification
		if errors.As(err, &e) {
			return MediaStreamFailed
		}
	}
	{
		var e *ErrMediaStreamFailed
		if errors.As(err, &e) {
			return MediaStreamFailed
		}
	}
	{
		var e *ErrCertificateExpiring
		if errors.As(err, &e) {
			return CertificateExpiring
		}
	}
	{
		var e *ErrMediaServerMismatch
		if errors.As(err, &e) {
			return MediaServerMismatch
		}
	}
	{
		var e *ErrMediaServerFetch
		if errors.As(err, &e) {
			return MediaServerFetch
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return InvalidArgument
		}
	}
	return Unknown
}

var exitCodes = map[FailureKind]int{
	None:                0,
	Cancelled:           1,
	InvalidArgument:     1,
	ClientRegister:      2,
	ChannelJoin:         3,
	TrackStart:          4,
	ConnectionOpen:      5,
	MediaStreamFailed:   6,
	CertificateExpiring: 7,
	MediaServerFetch:    8,
}

// ExitCode maps err to the process exit code. Every failure kind has its own code.
func ExitCode(err error) int {
	if code, ok := exitCodes[KindOf(err)]; ok {
		return code
	}
	return 9
}
