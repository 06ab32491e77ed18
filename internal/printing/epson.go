package printing

import (
	"bytes"
	"strings"
)

// ESC/POS control sequences used by Epson thermal printers.
var (
	escInitialize  = []byte{0x1b, 0x40}
	escAlignCenter = []byte{0x1b, 0x61, 0x01}
	escAlignLeft   = []byte{0x1b, 0x61, 0x00}
	escBoldOn      = []byte{0x1b, 0x45, 0x01}
	escBoldOff     = []byte{0x1b, 0x45, 0x00}
	escCutPaper    = []byte{0x1d, 0x56, 0x00}
)

// EpsonRenderer emits ESC/POS text tickets.
type EpsonRenderer struct {
	columns int
}

var _ Renderer = (*EpsonRenderer)(nil)

// NewEpsonRenderer builds a renderer for the given paper width in columns.
// Zero falls back to the standard 58mm width.
func NewEpsonRenderer(columns int) *EpsonRenderer {
	if columns <= 0 {
		columns = defaultTicketColumns
	}
	return &EpsonRenderer{columns: columns}
}

func (r *EpsonRenderer) Kind() string { return "epson" }

func (r *EpsonRenderer) Render(job Job) ([]byte, error) {
	job.Columns = r.columns
	order := job.Order

	var buf bytes.Buffer
	buf.Write(escInitialize)

	buf.Write(escAlignCenter)
	buf.Write(escBoldOn)
	buf.WriteString(strings.TrimSpace(job.StoreName))
	buf.WriteString("\n")
	buf.Write(escBoldOff)
	buf.WriteString(order.Number)
	buf.WriteString("\n")
	buf.Write(escAlignLeft)

	for _, line := range ticketBody(job) {
		buf.WriteString(line)
		buf.WriteString("\n")
	}

	buf.WriteString("\n")
	buf.Write(escCutPaper)
	return buf.Bytes(), nil
}
