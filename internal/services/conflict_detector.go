package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/models"
)

// ConflictProbe describes a proposed window for conflict detection
type ConflictProbe struct {
	ExcursionID     string
	StartDate       time.Time
	EndDate         time.Time
	RegionIDs       models.UUIDArray
	PickupPointIDs  models.UUIDArray
	ExcludeWindowID string
}

// ProbeFor builds a probe from a window, excluding the window itself
func ProbeFor(w *models.AvailabilityWindow) ConflictProbe {
	return ConflictProbe{
		ExcursionID:     w.ExcursionID,
		StartDate:       w.StartDate,
		EndDate:         w.EndDate,
		RegionIDs:       w.RegionIDs,
		PickupPointIDs:  w.PickupPointIDs,
		ExcludeWindowID: w.ID,
	}
}

// ConflictDetector finds active windows that sell the same excursion on
// overlapping dates at a shared region and a shared pickup point
type ConflictDetector struct{}

// NewConflictDetector creates a new ConflictDetector
func NewConflictDetector() *ConflictDetector {
	return &ConflictDetector{}
}

// CheckConflict reports whether p collides with an existing active window.
// Callers saving a window must run it on the same transaction as the write,
// after locking the excursion.
func (d *ConflictDetector) CheckConflict(ctx context.Context, q database.Queries, p ConflictProbe) (bool, []string, error) {
	if len(p.RegionIDs) == 0 || len(p.PickupPointIDs) == 0 {
		return false, nil, nil
	}

	candidates, err := q.FindOverlappingActiveWindows(ctx, p.ExcursionID, p.StartDate, p.EndDate, p.ExcludeWindowID)
	if err != nil {
		return false, nil, err
	}

	var details []string
	for _, existing := range candidates {
		regions := existing.RegionIDs.Intersect(p.RegionIDs)
		if len(regions) == 0 {
			continue
		}
		points := existing.PickupPointIDs.Intersect(p.PickupPointIDs)
		if len(points) == 0 {
			continue
		}

		detail, err := d.describe(ctx, q, &existing, regions, points)
		if err != nil {
			return false, nil, err
		}
		details = append(details, detail)
	}

	return len(details) > 0, details, nil
}

func (d *ConflictDetector) describe(ctx context.Context, q database.Queries, w *models.AvailabilityWindow, regions, points []string) (string, error) {
	regionNames, err := q.RegionNames(ctx, regions)
	if err != nil {
		return "", err
	}
	pointNames, err := q.PickupPointNames(ctx, points)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("window %s (%s to %s) already covers regions [%s] at pickup points [%s]",
		w.ID,
		w.StartDate.Format(models.DateLayout),
		w.EndDate.Format(models.DateLayout),
		displayNames(regions, regionNames),
		displayNames(points, pointNames),
	), nil
}

// displayNames renders IDs by name, falling back to the ID when unknown
func displayNames(ids []string, names map[string]string) string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := names[id]; ok && name != "" {
			out = append(out, name)
		} else {
			out = append(out, id)
		}
	}
	return strings.Join(out, ", ")
}
