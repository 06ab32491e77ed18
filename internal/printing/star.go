package printing

import (
	"bytes"
	"strings"
)

// Star line-mode control sequences.
var (
	starReset       = []byte{0x1b, 0x1d, 0x61, 0x00}
	starAlignCenter = []byte{0x1b, 0x1d, 0x61, 0x01}
	starAlignLeft   = []byte{0x1b, 0x1d, 0x61, 0x00}
	starEmphasisOn  = []byte{0x1b, 0x45}
	starEmphasisOff = []byte{0x1b, 0x46}
	starCutPaper    = []byte{0x1b, 0x64, 0x02}
)

// StarRenderer emits Star line-mode tickets.
type StarRenderer struct {
	columns int
}

var _ Renderer = (*StarRenderer)(nil)

// NewStarRenderer builds a renderer for the given paper width in columns.
func NewStarRenderer(columns int) *StarRenderer {
	if columns <= 0 {
		columns = defaultTicketColumns
	}
	return &StarRenderer{columns: columns}
}

func (r *StarRenderer) Kind() string { return "star" }

func (r *StarRenderer) Render(job Job) ([]byte, error) {
	job.Columns = r.columns
	order := job.Order

	var buf bytes.Buffer
	buf.Write(starReset)

	buf.Write(starAlignCenter)
	buf.Write(starEmphasisOn)
	buf.WriteString(strings.TrimSpace(job.StoreName))
	buf.WriteString("\r\n")
	buf.Write(starEmphasisOff)
	buf.WriteString(order.Number)
	buf.WriteString("\r\n")
	buf.Write(starAlignLeft)

	for _, line := range ticketBody(job) {
		buf.WriteString(line)
		buf.WriteString("\r\n")
	}

	buf.WriteString("\r\n")
	buf.Write(starCutPaper)
	return buf.Bytes(), nil
}
