// package formatter renders playlists, moderation queues and history as text, CSV, Markdown or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/playroom/internal/models"
	"github.com/desertthunder/playroom/internal/shared"
)

// Format names an output encoding.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts text, json, csv and markdown (or md).
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "txt":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
}

const stamp = "2006-01-02 15:04"

// PlaylistToCSV converts playlist rows to CSV with columns: Position, Token, Title, SubmittedBy, ApprovedBy, ApprovedAt, ArtifactKey
func PlaylistToCSV(rows []models.PlaylistEntry) ([]byte, error) {
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		records = append(records, []string{
			strconv.Itoa(row.Position),
			row.Token,
			row.Title,
			row.SubmittedBy,
			row.ApprovedBy,
			row.ApprovedAt.UTC().Format(time.RFC3339),
			row.ArtifactKey,
		})
	}
	return writeCSV([]string{"Position", "Token", "Title", "SubmittedBy", "ApprovedBy", "ApprovedAt", "ArtifactKey"}, records)
}

// PlaylistToText converts playlist rows to a numbered plain text list
func PlaylistToText(room string, rows []models.PlaylistEntry) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Room: %s\n", room)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(rows))
	for _, row := range rows {
		fmt.Fprintf(&buf, "%d. %s (by %s)\n", row.Position, row.Title, row.SubmittedBy)
	}
	return buf.Bytes()
}

// PlaylistToMarkdown converts playlist rows to a Markdown document
func PlaylistToMarkdown(room string, rows []models.PlaylistEntry) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s\n\n", room)
	fmt.Fprintf(&buf, "**Tracks**: %d\n\n", len(rows))
	buf.WriteString("## Tracks\n\n")
	for _, row := range rows {
		approver := ""
		if row.ApprovedBy != "" {
			approver = fmt.Sprintf(", approved by %s", row.ApprovedBy)
		}
		fmt.Fprintf(&buf, "%d. %s (submitted by %s%s)\n", row.Position, row.Title, row.SubmittedBy, approver)
	}
	return buf.Bytes()
}

// QueueToText lists entries awaiting review with their age relative to now
func QueueToText(room string, entries []models.LedgerEntry, now time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Room: %s\n", room)
	fmt.Fprintf(&buf, "Pending: %d\n\n", len(entries))
	for i, e := range entries {
		who := ""
		if e.State == models.StateInProgress {
			who = fmt.Sprintf(" [reviewing: %s]", e.DecidedBy)
		}
		fmt.Fprintf(&buf, "%d. %s  %s (by %s, %s ago)%s\n", i+1, e.Token, e.Title, e.SubmittedBy, Age(now.Sub(e.SubmittedAt)), who)
	}
	return buf.Bytes()
}

// QueueToCSV converts queued entries to CSV with columns: Token, Title, SubmittedBy, State, SubmittedAt, Reviewer
func QueueToCSV(entries []models.LedgerEntry) ([]byte, error) {
	records := make([][]string, 0, len(entries))
	for _, e := range entries {
		records = append(records, []string{
			e.Token,
			e.Title,
			e.SubmittedBy,
			string(e.State),
			e.SubmittedAt.UTC().Format(time.RFC3339),
			e.DecidedBy,
		})
	}
	return writeCSV([]string{"Token", "Title", "SubmittedBy", "State", "SubmittedAt", "Reviewer"}, records)
}

// RejectedToText lists the rejected archive, newest first
func RejectedToText(room string, entries []models.RejectedEntry) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Room: %s\n", room)
	fmt.Fprintf(&buf, "Rejected: %d\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s  %s (by %s, rejected %s by %s)\n", e.Token, e.Title, e.SubmittedBy, e.RejectedAt.Local().Format(stamp), e.DecidedBy)
	}
	return buf.Bytes()
}

// ViewsToText lists a submitter's tracks and their status
func ViewsToText(views []models.SubmitterView) []byte {
	var buf bytes.Buffer
	for _, v := range views {
		fmt.Fprintf(&buf, "%-11s %s  %s\n", v.Status, v.Token, v.Title)
	}
	return buf.Bytes()
}

// HistoryToText renders moderation events one per line
func HistoryToText(events []models.Event) []byte {
	var buf bytes.Buffer
	for _, ev := range events {
		line := fmt.Sprintf("%s  %-19s", ev.At.Local().Format(stamp), ev.Kind)
		if ev.Token != "" {
			line += " " + ev.Token
		}
		if ev.Title != "" {
			line += " " + strconv.Quote(ev.Title)
		}
		if ev.Actor != "" {
			line += " by " + ev.Actor
		}
		buf.WriteString(line + "\n")
	}
	return buf.Bytes()
}

// ToJSON encodes v as indented JSON with a trailing newline
func ToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// WritePlaylist renders rows in format to w
func WritePlaylist(w io.Writer, format Format, room string, rows []models.PlaylistEntry) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJSON:
		data, err = ToJSON(rows)
	case FormatCSV:
		data, err = PlaylistToCSV(rows)
	case FormatMarkdown:
		data = PlaylistToMarkdown(room, rows)
	default:
		data = PlaylistToText(room, rows)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteExport writes data to path, creating or truncating it
func WriteExport(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Age renders d coarsely: 42s, 5m, 3h, 2d.
func Age(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

func writeCSV(headers []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}
