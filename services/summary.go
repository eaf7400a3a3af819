package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"clasutil/models"
	"clasutil/utils"
)

const unknownBuilding = "(unassigned)"

type SummaryService struct {
	logger *utils.Logger
}

func NewSummaryService(logger *utils.Logger) *SummaryService {
	return &SummaryService{logger: logger}
}

func (s *SummaryService) Generate(report *models.StatusReport) *models.Summary {
	summary := &models.Summary{}
	if report == nil || len(report.Rooms) == 0 {
		return summary
	}

	summary.TotalRooms = len(report.Rooms)
	summary.OccupiedCount = report.OccupiedCount
	summary.EmptyCount = report.EmptyCount
	summary.OtherCount = summary.TotalRooms - summary.OccupiedCount - summary.EmptyCount

	byBuilding := make(map[string]*models.BuildingSummary)
	for _, r := range report.Rooms {
		name := r.Building
		if name == "" {
			name = unknownBuilding
		}
		b, ok := byBuilding[name]
		if !ok {
			b = &models.BuildingSummary{Building: name}
			byBuilding[name] = b
		}
		b.Rooms++
		switch r.Status {
		case models.StatusOccupied:
			b.Occupied++
		case models.StatusEmpty:
			b.Empty++
		default:
			b.Other++
		}

		if summary.MostRecent == nil || r.Timestamp.After(summary.MostRecent.Timestamp) {
			summary.MostRecent = r
		}
		if summary.Stalest == nil || r.Timestamp.Before(summary.Stalest.Timestamp) {
			summary.Stalest = r
		}
	}

	// Rate over rooms with a known status only
	if known := summary.OccupiedCount + summary.EmptyCount; known > 0 {
		summary.OccupancyRate = round2(float64(summary.OccupiedCount) / float64(known) * 100)
	}

	for _, b := range byBuilding {
		summary.Buildings = append(summary.Buildings, *b)
	}
	sort.Slice(summary.Buildings, func(i, j int) bool {
		if summary.Buildings[i].Rooms != summary.Buildings[j].Rooms {
			return summary.Buildings[i].Rooms > summary.Buildings[j].Rooms
		}
		return summary.Buildings[i].Building < summary.Buildings[j].Building
	})

	s.logger.Debug("[summary] %d rooms across %d buildings", summary.TotalRooms, len(summary.Buildings))
	return summary
}

func (s *SummaryService) Print(w io.Writer, sum *models.Summary, now time.Time) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  ROOM OCCUPANCY\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Overview\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Rooms reporting : \033[1m%d\033[0m\n", sum.TotalRooms)
	fmt.Fprintf(w, "  Occupied        : \033[1;31m%d\033[0m\n", sum.OccupiedCount)
	fmt.Fprintf(w, "  Empty           : \033[1;32m%d\033[0m\n", sum.EmptyCount)
	if sum.OtherCount > 0 {
		fmt.Fprintf(w, "  Other status    : %d\n", sum.OtherCount)
	}
	fmt.Fprintf(w, "  Occupancy rate  : %.2f%%\n", sum.OccupancyRate)
	fmt.Fprintln(w)

	if sum.MostRecent != nil && sum.Stalest != nil {
		fmt.Fprintf(w, "\033[1;33m  Freshness\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  Newest report : %s (%s ago)\n",
			truncate(sum.MostRecent.RoomName, 28), age(now, sum.MostRecent.Timestamp))
		fmt.Fprintf(w, "  Oldest report : %s (%s ago)\n",
			truncate(sum.Stalest.RoomName, 28), age(now, sum.Stalest.Timestamp))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  Rooms by Building\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if len(sum.Buildings) == 0 {
		fmt.Fprintf(w, "  No rooms reporting\n")
	} else {
		for _, b := range sum.Buildings {
			bar := strings.Repeat("█", b.Occupied) + strings.Repeat("░", b.Empty)
			fmt.Fprintf(w, "  %-24s %s (%d/%d occupied)\n",
				truncate(b.Building, 22), bar, b.Occupied, b.Rooms)
		}
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func age(now, ts time.Time) time.Duration {
	d := now.Sub(ts)
	if d < 0 {
		return 0
	}
	return d.Truncate(time.Second)
}
