package hammererrors

import (
	"context"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := map[string]struct {
		err  error
		want FailureKind
	}{
		"nil":                         {nil, None},
		"ErrCancelled":                {ErrCancelled, Cancelled},
		"context.Canceled":            {errors.WithStack(context.Canceled), Cancelled},
		"ErrStageFailed register":     {&ErrStageFailed{Kind: ClientRegister}, ClientRegister},
		"ErrStageFailed join":         {&ErrStageFailed{Kind: ChannelJoin}, ChannelJoin},
		"ErrStageFailed track start":  {&ErrStageFailed{Kind: TrackStart}, TrackStart},
		"ErrStageFailed open":         {&ErrStageFailed{Kind: ConnectionOpen}, ConnectionOpen},
		"ErrMediaStreamFailed":        {&ErrMediaStreamFailed{Stream: "Audio", Leg: "1"}, MediaStreamFailed},
		"ErrMediaVerification":        {&ErrMediaVerification{}, MediaStreamFailed},
		"ErrCertificateExpiring":      {&ErrCertificateExpiring{}, CertificateExpiring},
		"ErrMediaServerMismatch":      {&ErrMediaServerMismatch{}, MediaServerMismatch},
		"ErrMediaServerFetch":         {&ErrMediaServerFetch{}, MediaServerFetch},
		"ErrInvalidArgument":          {&ErrInvalidArgument{}, InvalidArgument},
		"pkg.Error => ErrStageFailed": {errors.WithMessage(&ErrStageFailed{Kind: ChannelJoin}, "foo"), ChannelJoin},
		"pkg.Error":                   {errors.New("foo"), Unknown},
		"stage failure caused by cancellation": {
			&ErrStageFailed{Kind: ConnectionOpen, Cause: ErrCancelled},
			Cancelled,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(ErrCancelled))
	assert.Equal(t, 1, ExitCode(&ErrInvalidArgument{Name: "clientCount"}))
	assert.Equal(t, 2, ExitCode(&ErrStageFailed{Kind: ClientRegister}))
	assert.Equal(t, 3, ExitCode(&ErrStageFailed{Kind: ChannelJoin}))
	assert.Equal(t, 4, ExitCode(&ErrStageFailed{Kind: TrackStart}))
	assert.Equal(t, 5, ExitCode(&ErrStageFailed{Kind: ConnectionOpen}))
	assert.Equal(t, 6, ExitCode(&ErrMediaVerification{}))
	assert.Equal(t, 7, ExitCode(&ErrCertificateExpiring{}))
	assert.Equal(t, 8, ExitCode(&ErrMediaServerFetch{}))
	assert.Equal(t, 9, ExitCode(errors.New("foo")))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(
		t,
		"one or more clients could not be registered (group #2): boom",
		(&ErrStageFailed{Kind: ClientRegister, Stage: "register", Group: 2, Cause: errors.New("boom")}).Error(),
	)
	assert.Equal(t, `stage "pause" failed`, (&ErrStageFailed{Kind: Unknown, Stage: "pause"}).Error())
	assert.Equal(t, "Audio 1 failed (sent: 10, received: 0)", (&ErrMediaStreamFailed{Stream: "Audio", Leg: "1", Sent: 10}).Error())
	assert.Equal(
		t,
		"connection connected to media server b instead of preferred media server a",
		(&ErrMediaServerMismatch{Requested: "a", Actual: "b"}).Error(),
	)
	assert.Equal(
		t,
		"1 media server(s) have certificates expiring in less than 7 day(s): ms-1",
		(&ErrCertificateExpiring{
			Certificates: []ExpiringCertificate{{MediaServerId: "ms-1", NotAfter: time.Now()}},
			MinDays:      7,
		}).Error(),
	)
	assert.Equal(t, `value -1 is invalid for option "minCertDays"; cannot be negative`,
		(&ErrInvalidArgument{Name: "minCertDays", Value: -1, Message: "cannot be negative"}).Error())
}

func TestTeardownErrorsDoNotMaskCause(t *testing.T) {
	var teardown *multierror.Error
	teardown = multierror.Append(teardown, errors.New("close failed"))
	cause := &ErrStageFailed{Kind: ConnectionOpen, Cause: errors.New("ice failed")}

	assert.Equal(t, Unknown, KindOf(teardown.ErrorOrNil()))
	assert.Equal(t, ConnectionOpen, KindOf(cause))
}

func TestFailureKindText(t *testing.T) {
	text, err := MediaStreamFailed.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "MediaStreamFailed", string(text))
	assert.Equal(t, "FailureKind(99)", FailureKind(99).String())
}
