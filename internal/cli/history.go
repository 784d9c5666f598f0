package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relicta-tech/notebase/internal/container"
	"github.com/relicta-tech/notebase/internal/domain/eventsource"
	rperrors "github.com/relicta-tech/notebase/internal/errors"
)

var historyFormat string

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Print the event stream of a note, todo or category",
	Long: `Print every event recorded for one aggregate, oldest first.

Examples:
  notebase history <id>
  notebase history <id> --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyFormat, "format", "text", "output format (text, json, yaml)")
}

// historyEntry is a record with its payload decoded for display.
type historyEntry struct {
	Position  int64     `json:"position" yaml:"position"`
	Sequence  int64     `json:"sequence" yaml:"sequence"`
	Aggregate string    `json:"aggregate_type" yaml:"aggregate_type"`
	Event     string    `json:"event_name" yaml:"event_name"`
	At        time.Time `json:"occurred_at" yaml:"occurred_at"`
	Payload   any       `json:"payload" yaml:"payload"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	const op = "history"
	id, err := parseID("aggregate", args[0])
	if err != nil {
		return err
	}
	format := strings.ToLower(historyFormat)
	if IsJSONOutput() {
		format = "json"
	}
	switch format {
	case "text", "json", "yaml", "yml":
	default:
		return rperrors.Validation(op, fmt.Sprintf("unsupported format %q (use text, json or yaml)", historyFormat))
	}

	return withApp(cmd, func(ctx context.Context, app *container.Container) error {
		records, _, err := app.Store().Load(ctx, id)
		if err != nil {
			return rperrors.StorageWrap(err, op, "failed to load events")
		}
		if len(records) == 0 {
			return rperrors.NotFound(op, fmt.Sprintf("No events recorded for %s", id))
		}
		entries, err := historyEntries(records)
		if err != nil {
			return rperrors.Wrap(err, rperrors.KindInternal, op, "failed to decode events")
		}

		switch format {
		case "json":
			return printJSONOutput(entries)
		case "yaml", "yml":
			data, err := yaml.Marshal(entries)
			if err != nil {
				return rperrors.IOWrap(err, op, "failed to encode output")
			}
			_, err = out().Write(data)
			return err
		}

		printTitle(fmt.Sprintf("%s %s", records[0].AggregateType, id))
		for _, e := range entries {
			fmt.Fprintf(out(), "%3d  %s  %s\n", e.Sequence,
				styles.Subtle.Render(e.At.Local().Format("2006-01-02 15:04:05")), e.Event)
		}
		return nil
	})
}

func historyEntries(records []eventsource.Record) ([]historyEntry, error) {
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		var payload map[string]any
		if err := json.Unmarshal(rec.Payload, &payload); err != nil {
			return nil, fmt.Errorf("record %d: %w", rec.Position, err)
		}
		entries = append(entries, historyEntry{
			Position:  rec.Position,
			Sequence:  rec.Sequence,
			Aggregate: rec.AggregateType,
			Event:     rec.EventName,
			At:        rec.OccurredAt,
			Payload:   payload,
		})
	}
	return entries, nil
}
