package output

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m 00s"},
		{7 * time.Second, "0m 07s"},
		{5*time.Minute + 7*time.Second, "5m 07s"},
		{59*time.Minute + 59*time.Second, "59m 59s"},
		{time.Hour, "1h 00m 00s"},
		{3*time.Hour + 5*time.Minute + 7*time.Second, "3h 05m 07s"},
		{-time.Minute, "0m 00s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.d), "duration %s", tt.d)
	}
}

func TestFormatDurationCompact(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m"},
		{5 * time.Minute, "5m"},
		{time.Hour, "1h 0m"},
		{3*time.Hour + 5*time.Minute, "3h 5m"},
		{-time.Second, "0m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDurationCompact(tt.d), "duration %s", tt.d)
	}
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$0", FormatMoney(0))
	assert.Equal(t, "$113", FormatMoney(112.6))
	assert.Equal(t, "$150", FormatMoney(150.0))
}

func TestFormatTokens(t *testing.T) {
	assert.Equal(t, "no data", FormatTokens(0, false))
	assert.Equal(t, "~45k", FormatTokens(45000, true))
	assert.Equal(t, "~67k", FormatTokens(67500, true))
	assert.Equal(t, "~0k", FormatTokens(120, true))
}

func TestUI_Verbose(t *testing.T) {
	var buf bytes.Buffer
	u := &UI{Out: &buf, ErrOut: &buf}

	u.VerboseLog("hidden")
	assert.Empty(t, buf.String())

	u.Verbose = true
	u.VerboseLog("shown %d", 42)
	assert.Contains(t, buf.String(), "shown 42")
}

func TestUI_WriterRouting(t *testing.T) {
	var out, errOut bytes.Buffer
	u := &UI{Out: &out, ErrOut: &errOut}

	u.Info("to stdout")
	u.Error("to stderr")

	assert.Contains(t, out.String(), "to stdout")
	assert.NotContains(t, out.String(), "to stderr")
	assert.Contains(t, errOut.String(), "to stderr")
}
