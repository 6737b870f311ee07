package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"availwatch/internal/status"
	"availwatch/internal/storage"
)

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// Export renders check history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	backend, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	to := a.Clock.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	// 默认窗口按每分钟一次检查估算
	from := to.Add(-time.Duration(opts.MaxPoints) * time.Minute)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := backend.ListSamplesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no samples found for export window")
		return nil
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if len(downsampled) < 2 {
			a.Logger.Warn().Msg("need at least two samples to draw a chart; skipping png")
			return nil
		}
		if err := writeSamplesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSamples(samples []storage.CheckSample, max int) []storage.CheckSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}
	if max == 1 {
		return samples[len(samples)-1:]
	}

	result := make([]storage.CheckSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []storage.CheckSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"checked_at", "status", "rank", "trigger", "price", "currency", "test_mode", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		errMsg := ""
		if sample.Error != nil {
			errMsg = *sample.Error
		}
		price := ""
		if sample.Price.Valid {
			price = sample.Price.Decimal.String()
		}
		record := []string{
			sample.CheckedAt.UTC().Format(time.RFC3339),
			sample.Status.StorageKey(),
			strconv.Itoa(sample.Status.Rank()),
			sample.Trigger,
			price,
			sample.Currency,
			strconv.FormatBool(sample.TestMode),
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSamplesPNG(path string, samples []storage.CheckSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(samples))
	rank := make([]float64, len(samples))
	var priceX []time.Time
	var price []float64

	for i, sample := range samples {
		x[i] = sample.CheckedAt
		rank[i] = float64(sample.Status.Rank())
		if sample.Price.Valid {
			priceX = append(priceX, sample.CheckedAt)
			price = append(price, sample.Price.Decimal.InexactFloat64())
		}
	}

	rankFormatter := func(v interface{}) string {
		if f, ok := v.(float64); ok {
			for _, s := range status.All {
				if float64(s.Rank()) == f {
					return s.Display()
				}
			}
		}
		return ""
	}
	series := []chart.Series{
		chart.TimeSeries{
			Name:    "Status",
			XValues: x,
			YValues: rank,
		},
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Availability",
			ValueFormatter: rankFormatter,
			Range:          &chart.ContinuousRange{Min: 0, Max: float64(status.Available.Rank())},
		},
	}
	if len(price) > 1 {
		graph.YAxisSecondary = chart.YAxis{
			Name: "Price",
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		}
		series = append(series, chart.TimeSeries{
			Name:    "Price",
			XValues: priceX,
			YValues: price,
			YAxis:   chart.YAxisSecondary,
		})
	}
	graph.Series = series
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
