package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/pranshuparmar/procfd/pkg/model"
)

var tableHeaders = []string{"PID", "User", "Name", "Type", "FD", "Mode", "Target"}

var (
	cellStyle = lipgloss.NewStyle().Padding(0, 1)
	// The last column gets no right padding so lines carry no trailing blanks.
	lastCellStyle = lipgloss.NewStyle().Padding(0, 0, 0, 1)
)

// WriteTable renders entries as a table with column separators and a rule
// under the header, but no outer border. Nothing is written for an empty
// result.
func WriteTable(w io.Writer, entries []model.FdEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range Sorted(entries) {
		rows = append(rows, tableRow(e))
	}

	t := table.New().
		Border(lipgloss.ASCIIBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderHeader(true).
		BorderColumn(true).
		BorderRow(false).
		Headers(tableHeaders...).
		Rows(rows...).
		StyleFunc(func(_, col int) lipgloss.Style {
			if col == len(tableHeaders)-1 {
				return lastCellStyle
			}
			return cellStyle
		})

	_, err := fmt.Fprintln(w, trimLineEnds(t.Render()))
	return err
}

// trimLineEnds drops the blanks lipgloss pads short last-column cells with.
func trimLineEnds(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}

func tableRow(e model.FdEntry) []string {
	var fd, mode string
	if e.FD != nil {
		fd = strconv.Itoa(int(*e.FD))
	}
	if e.Mode != nil {
		mode = *e.Mode
	}
	return []string{
		strconv.Itoa(int(e.PID)),
		SanitizeCell(e.User),
		SanitizeCell(e.Name),
		SanitizeCell(e.Type.String()),
		fd,
		mode,
		SanitizeCell(e.Target.String()),
	}
}
