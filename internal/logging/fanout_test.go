package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestNewFanout_SelectsSinks(t *testing.T) {
	var file, graylog bytes.Buffer

	assert.Equal(t, []string{SinkConsole}, NewFanout(Outputs{}, nil).Sinks())
	assert.Equal(t, []string{SinkFile}, NewFanout(Outputs{File: &file}, nil).Sinks())
	assert.Equal(t, []string{SinkFile, SinkGraylog, SinkOTel}, NewFanout(Outputs{
		File:     &file,
		Graylog:  &graylog,
		Provider: sdklog.NewLoggerProvider(),
	}, nil).Sinks())
}

func TestFanout_WritesTextAndGraylogJSON(t *testing.T) {
	var file, graylog bytes.Buffer
	logger := slog.New(NewFanout(Outputs{File: &file, Graylog: &graylog}, nil))

	logger.Info("marker removed", "index", 2)

	assert.Contains(t, file.String(), "msg=\"marker removed\" index=2")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(graylog.Bytes(), &rec))
	assert.Equal(t, "marker removed", rec["msg"])
	assert.Equal(t, ServiceName, rec["service"])
	assert.NotContains(t, file.String(), "service=")
}

func TestFanout_Enabled(t *testing.T) {
	info := NewFanout(Outputs{File: &bytes.Buffer{}}, &slog.HandlerOptions{Level: slog.LevelInfo})
	assert.False(t, info.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, info.Enabled(context.Background(), slog.LevelInfo))

	assert.False(t, (&Fanout{}).Enabled(context.Background(), slog.LevelError))
}

func TestFanout_WithAttrsAndGroup(t *testing.T) {
	var file, graylog bytes.Buffer
	f := NewFanout(Outputs{File: &file, Graylog: &graylog}, nil)

	slog.New(f.WithAttrs([]slog.Attr{slog.String("component", "server")}).WithGroup("req")).Info("done", "status", 204)

	assert.Contains(t, file.String(), "component=server req.status=204")
	assert.Contains(t, graylog.String(), `"req":{"status":204}`)
	assert.Equal(t, f, f.WithGroup(""))
}

// failingHandler accepts every record and fails to write it
type failingHandler struct {
	slog.Handler
}

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("connection refused")
}

func TestFanout_FailingSinkDoesNotBlockOthers(t *testing.T) {
	var file bytes.Buffer
	f := &Fanout{sinks: []sink{
		{SinkGraylog, failingHandler{}},
		{SinkFile, slog.NewTextHandler(&file, nil)},
	}}

	r := slog.NewRecord(timeZero, slog.LevelInfo, "still written", 0)
	err := f.Handle(context.Background(), r)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "graylog: connection refused")
	assert.Contains(t, file.String(), "still written")
}
