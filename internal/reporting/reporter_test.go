package reporting

import (
	"bytes"
	"encoding/json"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netscanner/internal/errors"
)

var host = netip.MustParseAddr("10.0.0.1")

func TestNew(t *testing.T) {
	var buf bytes.Buffer

	tests := []struct {
		format   string
		expected any
	}{
		{"", &Text{}},
		{FormatText, &Text{}},
		{FormatJSON, &JSON{}},
		{FormatTable, &Table{}},
	}
	for _, tt := range tests {
		r, err := New(tt.format, &buf)
		require.NoError(t, err, tt.format)
		assert.IsType(t, tt.expected, r)
	}

	_, err := New("xml", &buf)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeValidation))
}

func TestTextReport(t *testing.T) {
	t.Run("labels known ports", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewText(&buf).Report(host, []uint16{22, 8080, 8081}))

		expected := "\nOpen ports on 10.0.0.1:\n" +
			"\t22\tSSH\n" +
			"\t8080\tAlternate HTTP / proxy\n" +
			"\t8081\n"
		assert.Equal(t, expected, buf.String())
	})

	t.Run("no open ports prints nothing", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewText(&buf).Report(host, nil))
		assert.Empty(t, buf.String())
	})
}

func TestJSONReport(t *testing.T) {
	var buf bytes.Buffer
	r := NewJSON(&buf)

	require.NoError(t, r.Report(host, []uint16{443, 9999}))
	require.NoError(t, r.Report(netip.MustParseAddr("10.0.0.2"), []uint16{}))
	require.NoError(t, r.Report(netip.MustParseAddr("10.0.0.3"), []uint16{22}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first HostReport
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "10.0.0.1", first.Host)
	assert.Equal(t, []PortReport{{Port: 443, Service: "HTTPS"}, {Port: 9999}}, first.OpenPorts)
	assert.NotContains(t, lines[0], `"service":""`)
}

func TestTableReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTable(&buf).Report(host, []uint16{80, 12345}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\nOpen ports on 10.0.0.1:\n"))
	assert.Contains(t, out, "HTTP")
	assert.Contains(t, out, "12345")

	buf.Reset()
	require.NoError(t, NewTable(&buf).Report(host, nil))
	assert.Empty(t, buf.String())
}

func TestFooter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Footer(&buf, 1500*time.Millisecond))
	assert.Equal(t, "\nScanning completed in 1.5s\n", buf.String())
}
