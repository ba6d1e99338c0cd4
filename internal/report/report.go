// Package report renders a daemon's status for the terminal.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/lipgloss/v2/table"
	"github.com/dustin/go-humanize"
	"github.com/dvcrn/turmeric/internal/coordinator"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Left)
	cellStyle   = lipgloss.NewStyle().Align(lipgloss.Left)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func relative(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

func interval(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}

// Rows builds the table body, one row per resource
func Rows(st coordinator.Status, now time.Time) [][]string {
	rows := make([][]string, 0, len(st.Resources))
	for _, r := range st.Resources {
		items := "-"
		if r.Items >= 0 {
			items = strconv.Itoa(r.Items)
		}
		next := relative(r.NextDue, now)
		if r.LastSuccess.IsZero() || !r.NextDue.After(now) {
			next = "due"
		}
		rows = append(rows, []string{r.Name, interval(r.Interval), relative(r.LastSuccess, now), next, items})
	}
	return rows
}

// Render writes a summary header and the resource table
func Render(w io.Writer, st coordinator.Status, now time.Time) error {
	health := okStyle.Render("ok")
	if !st.Healthy() {
		health = errStyle.Render("error: " + st.LastError)
	}

	if st.Account != "" {
		fmt.Fprintf(w, "Account:   %s\n", st.Account)
	}
	fmt.Fprintf(w, "Last tick: %s\n", relative(st.LastTick, now))
	fmt.Fprintf(w, "Health:    %s\n", health)
	if st.TokenExpiresAt != nil {
		fmt.Fprintf(w, "Token:     expires %s\n", relative(*st.TokenExpiresAt, now))
	}
	fmt.Fprintln(w)

	t := table.New().
		BorderBottom(false).
		BorderTop(false).
		BorderLeft(false).
		BorderRight(false).
		Border(lipgloss.HiddenBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := cellStyle
			if row == table.HeaderRow {
				style = headerStyle
			}
			if col > 0 {
				style = style.PaddingLeft(2)
			}
			return style
		}).
		Headers("RESOURCE", "INTERVAL", "LAST SUCCESS", "NEXT", "ITEMS").
		BorderHeader(false).
		Rows(Rows(st, now)...)

	_, err := fmt.Fprintln(w, t.String())
	return err
}
