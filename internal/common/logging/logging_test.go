package logging

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandLineFormatter(t *testing.T) {
	entry := log.NewEntry(log.New()).WithFields(log.Fields{"group": 2, "stage": "register"})
	entry.Message = "Registering clients..."

	out, err := (&CommandLineFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "Registering clients...\n", string(out))

	out, err = (&CommandLineFormatter{Verbose: true}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "Registering clients... group=2 stage=register\n", string(out))
}

func TestConfigure(t *testing.T) {
	logger := log.New()
	var buf bytes.Buffer
	require.NoError(t, Configure(logger, &buf, Config{Level: "debug"}))
	assert.Equal(t, log.DebugLevel, logger.GetLevel())

	logger.Debug("hello")
	assert.Equal(t, "hello\n", buf.String())

	require.NoError(t, Configure(logger, &buf, Config{Level: "warn", Format: FormatJson}))
	assert.IsType(t, &log.JSONFormatter{}, logger.Formatter)

	require.NoError(t, Configure(logger, &buf, Config{Level: "none", Format: FormatText}))
	assert.Equal(t, log.PanicLevel, logger.GetLevel())
}

func TestConfigure_Invalid(t *testing.T) {
	assert.Error(t, Configure(log.New(), &bytes.Buffer{}, Config{Level: "loud"}))
	assert.Error(t, Configure(log.New(), &bytes.Buffer{}, Config{Format: "xml"}))
}

func TestOrigin(t *testing.T) {
	assert.Nil(t, Origin(fmt.Errorf("foo")))
	assert.Nil(t, Origin(nil))

	inner := errors.New("foo")
	wrapped := fmt.Errorf("context: %w", errors.Wrap(inner, "bar"))
	origin := Origin(wrapped)
	require.NotNil(t, origin)
	assert.Equal(t, inner.(stackTracer).StackTrace()[0], origin[0])
}

func TestWithFailure(t *testing.T) {
	logger := log.New()
	err := errors.New("boom")

	logger.SetLevel(log.InfoLevel)
	entry := WithFailure(log.NewEntry(logger), err)
	assert.Equal(t, err, entry.Data[log.ErrorKey])
	assert.NotContains(t, entry.Data, OriginField)

	logger.SetLevel(log.DebugLevel)
	entry = WithFailure(log.NewEntry(logger), err)
	assert.Contains(t, entry.Data[OriginField], "TestWithFailure")
}
