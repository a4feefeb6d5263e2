package output

import (
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by results that can render as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable writes data as a borderless, left-aligned table.
func PrintTable(w io.Writer, data TableRenderer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.Headers())

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(data.Rows())
	table.Render()
	return nil
}

// FileList is a user's remote files, as returned by LIST.
type FileList struct {
	User  string   `json:"user" yaml:"user"`
	Files []string `json:"files" yaml:"files"`
}

// Headers implements TableRenderer.
func (l FileList) Headers() []string {
	return []string{"#", "File"}
}

// Rows implements TableRenderer.
func (l FileList) Rows() [][]string {
	rows := make([][]string, 0, len(l.Files))
	for i, f := range l.Files {
		rows = append(rows, []string{strconv.Itoa(i + 1), f})
	}
	return rows
}

// Transfer describes a completed upload or download.
type Transfer struct {
	Direction string `json:"direction" yaml:"direction"`
	Remote    string `json:"remote" yaml:"remote"`
	Local     string `json:"local" yaml:"local"`
	Bytes     int64  `json:"bytes" yaml:"bytes"`
}

// Headers implements TableRenderer.
func (t Transfer) Headers() []string {
	return []string{"Direction", "Remote", "Local", "Size"}
}

// Rows implements TableRenderer.
func (t Transfer) Rows() [][]string {
	return [][]string{{t.Direction, t.Remote, t.Local, HumanBytes(t.Bytes)}}
}

// HumanBytes formats n with binary units, e.g. "1.5 MiB".
func HumanBytes(n int64) string {
	if n < 0 {
		return strconv.FormatInt(n, 10)
	}
	return humanize.IBytes(uint64(n))
}
