package printing

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/orderdeck/api/internal/services"
)

const defaultTicketColumns = 32

// Job carries everything a renderer needs to produce one ticket.
type Job struct {
	Order     services.Order
	StoreName string
	Copies    int
	Columns   int
	PrintedAt time.Time
}

// Renderer produces the raw bytes sent to one printer family.
type Renderer interface {
	Kind() string
	Render(job Job) ([]byte, error)
}

// runeColumns reports how many terminal columns the rune occupies. Full-width
// CJK characters take two; everything else takes one.
func runeColumns(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

func textColumns(s string) int {
	total := 0
	for _, r := range s {
		total += runeColumns(r)
	}
	return total
}

// truncateColumns cuts the string so it occupies at most max columns.
func truncateColumns(s string, max int) string {
	total := 0
	for i, r := range s {
		total += runeColumns(r)
		if total > max {
			return s[:i]
		}
	}
	return s
}

// spreadLine lays left and right text on one line of the given column width,
// truncating the left side when both cannot fit.
func spreadLine(left, right string, columns int) string {
	rightCols := textColumns(right)
	available := columns - rightCols - 1
	if available < 0 {
		available = 0
	}
	left = truncateColumns(left, available)
	padding := columns - textColumns(left) - rightCols
	if padding < 1 {
		padding = 1
	}
	return left + strings.Repeat(" ", padding) + right
}

// centerLine centers the text within the column width.
func centerLine(s string, columns int) string {
	cols := textColumns(s)
	if cols >= columns {
		return truncateColumns(s, columns)
	}
	return strings.Repeat(" ", (columns-cols)/2) + s
}

func formatAmount(amount int64) string {
	return fmt.Sprintf("%d", amount)
}

// ticketBody renders the printer-neutral middle section shared by all
// renderer backends: items, addons, totals, and footer metadata.
func ticketBody(job Job) []string {
	columns := job.Columns
	if columns <= 0 {
		columns = defaultTicketColumns
	}
	order := job.Order
	divider := strings.Repeat("-", columns)

	lines := []string{divider}
	for _, item := range order.Items {
		name := fmt.Sprintf("%dx %s", item.Quantity, item.Name)
		lines = append(lines, spreadLine(name, formatAmount(item.Total), columns))
		for _, addon := range item.Addons {
			lines = append(lines, truncateColumns(fmt.Sprintf("  + %dx %s", addon.Quantity, addon.Name), columns))
		}
	}
	lines = append(lines, divider)

	if order.Discount > 0 {
		lines = append(lines,
			spreadLine("Subtotal", formatAmount(order.GrossAmount), columns),
			spreadLine("Discount", "-"+formatAmount(order.Discount), columns),
		)
	}
	lines = append(lines, spreadLine("TOTAL", formatAmount(order.NetAmount), columns))

	if order.TableRef != nil {
		lines = append(lines, spreadLine("Table", *order.TableRef, columns))
	}
	if note := strings.TrimSpace(order.Note); note != "" {
		lines = append(lines, truncateColumns("Note: "+note, columns))
	}

	lines = append(lines, divider)
	lines = append(lines, spreadLine(string(order.Type), job.PrintedAt.Format("15:04"), columns))
	return lines
}
