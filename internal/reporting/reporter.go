// Package reporting formats the open ports of a scanned host. Callers
// serialize Report calls with the scan's output lock so one host's block is
// never interleaved with another's.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/anstrom/netscanner/internal/errors"
	"github.com/anstrom/netscanner/internal/ports"
)

// Output formats.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatTable = "table"
)

// Reporter writes the open ports of one host.
type Reporter interface {
	Report(host netip.Addr, openPorts []uint16) error
}

// New returns the reporter for format writing to w.
func New(format string, w io.Writer) (Reporter, error) {
	switch format {
	case FormatText, "":
		return NewText(w), nil
	case FormatJSON:
		return NewJSON(w), nil
	case FormatTable:
		return NewTable(w), nil
	default:
		return nil, errors.NewConfigFieldError(errors.CodeValidation,
			"unknown output format", "output.format", format)
	}
}

// Text writes the classic block layout:
//
//	Open ports on 10.0.0.1:
//		22	SSH
//		8081
type Text struct {
	w io.Writer
}

// NewText creates a text reporter.
func NewText(w io.Writer) *Text {
	return &Text{w: w}
}

// Report implements Reporter. Hosts without open ports print nothing.
func (t *Text) Report(host netip.Addr, openPorts []uint16) error {
	if len(openPorts) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(t.w, "\nOpen ports on %s:\n", host); err != nil {
		return err
	}
	for _, port := range openPorts {
		var err error
		if label, ok := ports.Label(port); ok {
			_, err = fmt.Fprintf(t.w, "\t%d\t%s\n", port, label)
		} else {
			_, err = fmt.Fprintf(t.w, "\t%d\n", port)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// PortReport is one open port in machine-readable output.
type PortReport struct {
	Port    uint16 `json:"port"`
	Service string `json:"service,omitempty"`
}

// HostReport is one host in machine-readable output.
type HostReport struct {
	Host      string       `json:"host"`
	OpenPorts []PortReport `json:"open_ports"`
}

// NewHostReport labels the open ports of host.
func NewHostReport(host netip.Addr, openPorts []uint16) HostReport {
	report := HostReport{Host: host.String(), OpenPorts: make([]PortReport, 0, len(openPorts))}
	for _, port := range openPorts {
		label, _ := ports.Label(port)
		report.OpenPorts = append(report.OpenPorts, PortReport{Port: port, Service: label})
	}
	return report
}

// JSON writes one JSON object per host and line.
type JSON struct {
	enc *json.Encoder
}

// NewJSON creates a JSON lines reporter.
func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

// Report implements Reporter.
func (j *JSON) Report(host netip.Addr, openPorts []uint16) error {
	if len(openPorts) == 0 {
		return nil
	}
	return j.enc.Encode(NewHostReport(host, openPorts))
}

// Table renders each host as a bordered table.
type Table struct {
	w io.Writer
}

// NewTable creates a table reporter.
func NewTable(w io.Writer) *Table {
	return &Table{w: w}
}

// Report implements Reporter.
func (t *Table) Report(host netip.Addr, openPorts []uint16) error {
	if len(openPorts) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(t.w, "\nOpen ports on %s:\n", host); err != nil {
		return err
	}

	table := tablewriter.NewWriter(t.w)
	table.Header("Port", "Service")
	for _, p := range NewHostReport(host, openPorts).OpenPorts {
		service := p.Service
		if service == "" {
			service = "-"
		}
		if err := table.Append([]string{strconv.Itoa(int(p.Port)), service}); err != nil {
			return err
		}
	}
	return table.Render()
}

// Footer writes the completion line printed after every scan.
func Footer(w io.Writer, elapsed time.Duration) error {
	_, err := fmt.Fprintf(w, "\nScanning completed in %s\n", elapsed)
	return err
}
