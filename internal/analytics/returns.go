package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrRuperto3/TAO-App/internal/models"
)

// MaxWindowDays caps the lookback accepted by SelectWindow
const MaxWindowDays = 365

// ErrInvalidWindow is returned for malformed window parameters
var ErrInvalidWindow = errors.New("invalid analytics window")

// PercentReturn returns (end-start)/start*100, or nil when there is no positive baseline
func PercentReturn(start, end float64) *float64 {
	if !(start > 0) || !isFinite(start) || !isFinite(end) {
		return nil
	}
	r := (end - start) / start * 100
	if !isFinite(r) {
		return nil
	}
	return &r
}

// MaxDrawdown walks the series once tracking the running peak and returns the
// most negative (value/peak-1)*100 seen. The result is always <= 0.
// Non-finite points are skipped without resetting the peak.
func MaxDrawdown(values []float64) float64 {
	maxDD := 0.0
	peak := 0.0
	havePeak := false

	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		if !havePeak || v > peak {
			peak = v
			havePeak = true
		}
		if peak <= 0 {
			continue
		}
		dd := (v/peak - 1) * 100
		if dd < maxDD {
			maxDD = dd
		}
	}

	return maxDD
}

// SelectWindow returns the snapshots in [now-days, now] plus the most recent
// snapshot strictly before the window start, so the window's starting value is
// a real observation whenever one exists. Input must be sorted by CapturedAt.
func SelectWindow(series []models.SnapshotWithPositions, now time.Time, days int) ([]models.SnapshotWithPositions, error) {
	if days <= 0 || days > MaxWindowDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d, got %d", ErrInvalidWindow, MaxWindowDays, days)
	}

	start := now.Add(-time.Duration(days) * 24 * time.Hour)

	anchor := -1
	var selected []models.SnapshotWithPositions
	for i := range series {
		at := series[i].CapturedAt
		if at.Before(start) {
			anchor = i
			continue
		}
		if at.After(now) {
			break
		}
		selected = append(selected, series[i])
	}

	if anchor >= 0 {
		selected = append([]models.SnapshotWithPositions{series[anchor]}, selected...)
	}

	return selected, nil
}
