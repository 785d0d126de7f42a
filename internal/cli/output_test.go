package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainOutput(buf *bytes.Buffer) *Output {
	return &Output{writer: buf, jsonMode: false, colorEnabled: false}
}

func coloredOutput(buf *bytes.Buffer) *Output {
	return &Output{writer: buf, jsonMode: false, colorEnabled: true}
}

// Property: P&L formatting always carries an explicit sign for gains and
// survives an ANSI strip with the numeric value intact.
func TestProperty_PnLFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	var buf bytes.Buffer
	out := coloredOutput(&buf)

	properties.Property("FormatPnL signs and colors are consistent", prop.ForAll(
		func(pnl float64) bool {
			formatted := out.FormatPnL(pnl)
			plain := stripANSI(formatted)

			switch {
			case pnl > 0:
				if !strings.HasPrefix(plain, "+") {
					t.Logf("Expected + prefix for %f, got %q", pnl, plain)
					return false
				}
				if !strings.HasPrefix(formatted, ColorGreen) {
					t.Logf("Expected green for %f", pnl)
					return false
				}
			case pnl < 0:
				if !strings.HasPrefix(plain, "-") {
					t.Logf("Expected - prefix for %f, got %q", pnl, plain)
					return false
				}
				if !strings.HasPrefix(formatted, ColorRed) {
					t.Logf("Expected red for %f", pnl)
					return false
				}
			}
			return true
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("stripANSI removes every color it applies", prop.ForAll(
		func(pct float64) bool {
			plain := stripANSI(out.FormatPercent(pct))
			if strings.Contains(plain, "\033") {
				t.Logf("Escape survived for %f: %q", pct, plain)
				return false
			}
			return strings.HasSuffix(plain, "%")
		},
		gen.Float64Range(-1000, 1000),
	))

	properties.TestingRun(t)
}

func TestFormatPnLPlain(t *testing.T) {
	var buf bytes.Buffer
	out := plainOutput(&buf)

	assert.Equal(t, "+1234.50", out.FormatPnL(1234.5))
	assert.Equal(t, "-99.99", out.FormatPnL(-99.99))
	assert.Equal(t, "0.00", out.FormatPnL(0))
	assert.Equal(t, "+4.25%", out.FormatPercent(4.25))
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	out := &Output{writer: &buf, jsonMode: true}

	require.NoError(t, out.JSON(map[string]interface{}{"total_return": 0.12, "passed": true}))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 0.12, decoded["total_return"])
	assert.Equal(t, true, decoded["passed"])
}

func TestColoredMessagesWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	out := plainOutput(&buf)

	out.Success("reference %s created", "baseline")
	out.Warning("volume missing")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "reference baseline created", lines[0])
	assert.Equal(t, "volume missing", lines[1])
	assert.NotContains(t, buf.String(), "\033[", "no escapes when colors are disabled")
}

func TestTableRender(t *testing.T) {
	var buf bytes.Buffer
	out := plainOutput(&buf)

	table := NewTable(out, "METRIC", "VALUE")
	table.AddRow("total_return", "0.1234")
	table.AddRow("sharpe", "1.10")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4, "header, separator, two rows")
	assert.True(t, strings.HasPrefix(lines[0], "METRIC"))
	assert.True(t, strings.HasPrefix(lines[1], "---"))

	// Columns align on the widest cell.
	headerValue := strings.Index(lines[0], "VALUE")
	rowValue := strings.Index(lines[2], "0.1234")
	assert.Equal(t, headerValue, rowValue)
}

func TestTableAlignsColoredCells(t *testing.T) {
	var buf bytes.Buffer
	out := coloredOutput(&buf)

	table := NewTable(out, "METRIC", "VALUE")
	table.AddRow("pnl", out.FormatPnL(125.5))
	table.AddRow("ret", "1.0")
	table.Render()

	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		plain := stripANSI(line)
		assert.NotContains(t, plain, "\033[", "width math must ignore color codes")
	}
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"short=5", "long=20"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"short": 5, "long": 20}, params)

	t.Run("empty", func(t *testing.T) {
		params, err := parseParams(nil)
		require.NoError(t, err)
		assert.Empty(t, params)
	})

	t.Run("malformed pair", func(t *testing.T) {
		_, err := parseParams([]string{"short"})
		assert.Error(t, err)
	})

	t.Run("non-numeric value", func(t *testing.T) {
		_, err := parseParams([]string{"short=fast"})
		assert.Error(t, err)
	})
}

func TestParseGrid(t *testing.T) {
	grid, err := parseGrid([]string{"short=5,10", "long=20,40,60"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]float64{
		"short": {5, 10},
		"long":  {20, 40, 60},
	}, grid)

	t.Run("malformed axis", func(t *testing.T) {
		_, err := parseGrid([]string{"short"})
		assert.Error(t, err)
	})

	t.Run("non-numeric value", func(t *testing.T) {
		_, err := parseGrid([]string{"short=5,x"})
		assert.Error(t, err)
	})
}
