package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommandSkipsConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version", "--config", "/nonexistent/gasmonitor.yaml"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "version: dev")
}

func TestReportPeriod(t *testing.T) {
	now := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	defer func() { reportFrom, reportTo, reportShift = "", "", 8*time.Hour }()

	reportShift = 8 * time.Hour
	from, to, err := reportPeriod(now)
	require.NoError(t, err)
	assert.Equal(t, now, to)
	assert.Equal(t, now.Add(-8*time.Hour), from)

	reportFrom = "2026-03-01T06:00:00Z"
	reportTo = "2026-03-01T10:00:00Z"
	from, to, err = reportPeriod(now)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, to.Sub(from))

	reportFrom = "2026-03-01T11:00:00Z"
	_, _, err = reportPeriod(now)
	assert.Error(t, err)

	reportFrom = "yesterday"
	_, _, err = reportPeriod(now)
	assert.Error(t, err)
}
