package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"availwatch/internal/storage"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit    int
	Episodes bool
}

// Show prints recent check samples, or recent alert episodes.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	backend, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	if opts.Episodes {
		return a.showEpisodes(ctx, backend, opts.Limit)
	}

	samples, err := backend.ListRecentSamples(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(a.Out, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tStatus\tTrigger\tPrice\tTest\tError")

	for _, sample := range samples {
		errMsg := ""
		if sample.Error != nil {
			errMsg = sanitizeInline(*sample.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%t\t%s\n",
			sample.CheckedAt.UTC().Format(time.RFC3339),
			sample.Status.StorageKey(),
			sample.Trigger,
			formatPrice(sample),
			sample.TestMode,
			errMsg,
		)
	}

	return writer.Flush()
}

func (a *App) showEpisodes(ctx context.Context, store storage.EpisodeStore, limit int) error {
	episodes, err := store.ListRecentEpisodes(ctx, limit)
	if err != nil {
		return err
	}
	if len(episodes) == 0 {
		fmt.Fprintln(a.Out, "no alert episodes found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Detected (UTC)\tFrom\tTo\tCount\tUrgent\tID")
	for _, ep := range episodes {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%t\t%s\n",
			ep.DetectedAt.UTC().Format(time.RFC3339),
			ep.Previous.StorageKey(),
			ep.Triggering.StorageKey(),
			ep.Count,
			ep.Urgent,
			ep.ID,
		)
	}
	return writer.Flush()
}

func formatPrice(sample storage.CheckSample) string {
	if !sample.Price.Valid {
		return "-"
	}
	price := sample.Price.Decimal.StringFixed(2)
	if sample.Currency != "" {
		price += " " + sample.Currency
	}
	return price
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
