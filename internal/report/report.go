// Package report renders a per-device shift exposure summary as PDF.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"

	"GasMonitorAPI/internal/aggregation"
	"GasMonitorAPI/internal/models"
	"GasMonitorAPI/internal/repository"
)

type StatsSource interface {
	GetStats(ctx context.Context, deviceID int, start, end time.Time) ([]repository.QuantityStats, error)
}

type PeakSource interface {
	PeakByWindow(ctx context.Context, q models.HistoryQuery) ([]models.Aggregate, error)
}

type AlertSource interface {
	Query(ctx context.Context, q models.HistoryQuery, severity models.Severity) ([]models.Alert, int, error)
}

// LiveSource serves the aggregates of the last completed engine pass.
type LiveSource interface {
	Latest(deviceID int) ([]models.Aggregate, []models.Alert)
}

// Peak is a window's highest TWA over the period with its classification.
type Peak struct {
	models.Aggregate
	Severity models.Severity
}

type Data struct {
	Device      models.Device
	From        time.Time
	To          time.Time
	GeneratedAt time.Time
	// Live is set when the report was built from in-memory state only.
	Live   bool
	Stats  []repository.QuantityStats
	Peaks  []Peak
	Alerts []models.Alert
}

// Builder collects report data. Without history sources it falls back to
// the live view.
type Builder struct {
	Stats      StatsSource
	Peaks      PeakSource
	Alerts     AlertSource
	Live       LiveSource
	Thresholds aggregation.Thresholds
	// MaxAlerts caps the alert table.
	MaxAlerts int
	Now       func() time.Time
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}

func (b *Builder) Build(ctx context.Context, device models.Device, from, to time.Time) (*Data, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("report period is empty: %s..%s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	thresholds := b.Thresholds
	if thresholds == nil {
		thresholds = aggregation.DefaultThresholds()
	}

	d := &Data{Device: device, From: from, To: to, GeneratedAt: b.now()}

	if b.Stats == nil || b.Peaks == nil || b.Alerts == nil {
		if b.Live == nil {
			return nil, fmt.Errorf("report: no history or live source configured")
		}
		aggs, alerts := b.Live.Latest(device.ID)
		d.Live = true
		d.Peaks = classify(aggs, thresholds)
		d.Alerts = alerts
		return d, nil
	}

	stats, err := b.Stats.GetStats(ctx, device.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("report stats: %w", err)
	}
	d.Stats = stats

	id := device.ID
	q := models.HistoryQuery{DeviceID: &id, StartTime: &from, EndTime: &to}
	peaks, err := b.Peaks.PeakByWindow(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("report peaks: %w", err)
	}
	d.Peaks = classify(peaks, thresholds)

	q.Limit = b.MaxAlerts
	if q.Limit <= 0 {
		q.Limit = 50
	}
	alerts, _, err := b.Alerts.Query(ctx, q, "")
	if err != nil {
		return nil, fmt.Errorf("report alerts: %w", err)
	}
	d.Alerts = alerts
	return d, nil
}

func classify(aggs []models.Aggregate, t aggregation.Thresholds) []Peak {
	peaks := make([]Peak, 0, len(aggs))
	for _, a := range aggs {
		sev, _ := t.Classify(a.Quantity, a.Window, a.Mean)
		peaks = append(peaks, Peak{Aggregate: a, Severity: sev})
	}
	sort.SliceStable(peaks, func(i, j int) bool {
		if peaks[i].Quantity != peaks[j].Quantity {
			return quantityRank(peaks[i].Quantity) < quantityRank(peaks[j].Quantity)
		}
		return windowRank(peaks[i].Window) < windowRank(peaks[j].Window)
	})
	return peaks
}

func quantityRank(q models.Quantity) int {
	for i, x := range models.Quantities {
		if x == q {
			return i
		}
	}
	return len(models.Quantities)
}

func windowRank(label string) int {
	for i, w := range models.Windows {
		if w.Label == label {
			return i
		}
	}
	return len(models.Windows)
}

// Render writes d as a one or more page A4 PDF.
func Render(w io.Writer, d *Data) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("Exposure report %s", d.Device.ExternalIdentifier), true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Generated %s  |  page %d",
			d.GeneratedAt.Format("2006-01-02 15:04 MST"), pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, "Shift Exposure Report")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 10)
	label := d.Device.ExternalIdentifier
	if d.Device.Name != "" {
		label = fmt.Sprintf("%s (%s)", d.Device.Name, d.Device.ExternalIdentifier)
	}
	kv := [][2]string{
		{"Device", label},
		{"Worker", d.Device.Worker},
		{"Location", d.Device.Location},
		{"Period", fmt.Sprintf("%s to %s", d.From.Format("2006-01-02 15:04"), d.To.Format("2006-01-02 15:04 MST"))},
	}
	if d.Live {
		kv = append(kv, [2]string{"Source", "live engine state (no persisted history)"})
	}
	for _, row := range kv {
		if row[1] == "" {
			continue
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(30, 6, row[0]+":", "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, tr(row[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if len(d.Stats) > 0 {
		section(pdf, "Readings")
		header(pdf, []string{"Quantity", "Samples", "Average", "Min", "Max"}, []float64{40, 30, 40, 40, 40})
		for _, s := range d.Stats {
			unit := s.Quantity.Unit()
			cells(pdf, tr, []float64{40, 30, 40, 40, 40}, []string{
				string(s.Quantity),
				fmt.Sprintf("%d", s.SampleCount),
				fmt.Sprintf("%.2f %s", s.Avg, unit),
				fmt.Sprintf("%.2f %s", s.Min, unit),
				fmt.Sprintf("%.2f %s", s.Max, unit),
			}, false)
		}
		pdf.Ln(4)
	}

	title := "Peak time-weighted averages"
	if d.Live {
		title = "Current time-weighted averages"
	}
	section(pdf, title)
	if len(d.Peaks) == 0 {
		note(pdf, "No aggregates recorded for this period.")
	} else {
		widths := []float64{35, 30, 45, 40, 40}
		header(pdf, []string{"Quantity", "Window", "TWA", "Computed", "Status"}, widths)
		for _, p := range d.Peaks {
			cells(pdf, tr, widths, []string{
				string(p.Quantity),
				p.Window,
				fmt.Sprintf("%.3f %s", p.Mean, p.Quantity.Unit()),
				p.ComputedAt.Format("01-02 15:04"),
				string(p.Severity),
			}, p.Severity == models.SeverityDanger)
		}
	}
	pdf.Ln(4)

	section(pdf, "Alerts")
	if len(d.Alerts) == 0 {
		note(pdf, "No thresholds were exceeded.")
	} else {
		widths := []float64{40, 30, 25, 25, 35, 35}
		header(pdf, []string{"Triggered", "Quantity", "Window", "Severity", "TWA", "Limit"}, widths)
		for _, a := range d.Alerts {
			cells(pdf, tr, widths, []string{
				a.TriggeredAt.Format("01-02 15:04"),
				string(a.Quantity),
				a.Window,
				string(a.Severity),
				fmt.Sprintf("%.3f", a.Mean),
				fmt.Sprintf("%.3f", a.Threshold),
			}, a.Severity == models.SeverityDanger)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)
}

func note(pdf *gofpdf.Fpdf, text string) {
	pdf.SetFont("Helvetica", "I", 10)
	pdf.Cell(0, 6, text)
	pdf.Ln(7)
}

func header(pdf *gofpdf.Fpdf, cols []string, widths []float64) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, c := range cols {
		pdf.CellFormat(widths[i], 7, c, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
}

func cells(pdf *gofpdf.Fpdf, tr func(string) string, widths []float64, values []string, highlight bool) {
	pdf.SetFont("Helvetica", "", 9)
	if highlight {
		pdf.SetTextColor(180, 0, 0)
	}
	for i, v := range values {
		pdf.CellFormat(widths[i], 6, tr(v), "1", 0, "C", false, 0, "")
	}
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(-1)
}
