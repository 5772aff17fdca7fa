package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sweeney/soil-irrigator/internal/pumplog"
)

// DailyJSON is the response of /api/pumps/daily.
type DailyJSON struct {
	Days          []DayJSON `json:"days"`
	TotalPumps    int64     `json:"total_pumps"`
	TotalVolumeML float64   `json:"total_volume_ml"`
}

// DayJSON is one calendar day.
type DayJSON struct {
	Date     string  `json:"date"`
	Pumps    int64   `json:"pumps"`
	VolumeML float64 `json:"volume_ml"`
}

// RecentJSON is the response of /api/pumps/recent.
type RecentJSON struct {
	Pumps []EntryJSON `json:"pumps"`
}

// EntryJSON is one recorded activation.
type EntryJSON struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	PumpID    string `json:"pump_id"`
}

// HourlyJSON is the response of /api/pumps/hourly.
type HourlyJSON struct {
	Date          string     `json:"date"`
	Hours         []HourJSON `json:"hours"`
	TotalPumps    int64      `json:"total_pumps"`
	TotalVolumeML float64    `json:"total_volume_ml"`
}

// HourJSON is one clock hour of the local day.
type HourJSON struct {
	Hour     string  `json:"hour"`
	Pumps    int64   `json:"pumps"`
	VolumeML float64 `json:"volume_ml"`
}

// CumulativeJSON is the response of /api/pumps/cumulative.
type CumulativeJSON struct {
	Since  string      `json:"since"`
	Points []PointJSON `json:"points"`
}

// PointJSON is the running total after one activation.
type PointJSON struct {
	Timestamp string  `json:"timestamp"`
	Pumps     int64   `json:"pumps"`
	VolumeML  float64 `json:"volume_ml"`
}

func formatDaily(counts []pumplog.DayCount) DailyJSON {
	out := DailyJSON{Days: make([]DayJSON, 0, len(counts))}
	for _, c := range counts {
		out.Days = append(out.Days, DayJSON{Date: c.Day(), Pumps: c.Pumps, VolumeML: c.VolumeML()})
		out.TotalPumps += c.Pumps
	}
	out.TotalVolumeML = pumplog.VolumeML(out.TotalPumps)
	return out
}

func formatRecent(entries []pumplog.Entry) RecentJSON {
	out := RecentJSON{Pumps: make([]EntryJSON, 0, len(entries))}
	for _, e := range entries {
		out.Pumps = append(out.Pumps, EntryJSON{
			ID:        e.EventID,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			PumpID:    e.PumpID,
		})
	}
	return out
}

func formatHourly(now time.Time, hours []pumplog.HourCount) HourlyJSON {
	out := HourlyJSON{Date: now.Format("2006-01-02"), Hours: make([]HourJSON, 0, len(hours))}
	for _, h := range hours {
		out.Hours = append(out.Hours, HourJSON{Hour: h.Label(), Pumps: h.Pumps, VolumeML: h.VolumeML()})
		out.TotalPumps += h.Pumps
	}
	out.TotalVolumeML = pumplog.VolumeML(out.TotalPumps)
	return out
}

func formatCumulative(since time.Time, points []pumplog.Point) CumulativeJSON {
	out := CumulativeJSON{
		Since:  since.UTC().Format(time.RFC3339),
		Points: make([]PointJSON, 0, len(points)),
	}
	for _, p := range points {
		out.Points = append(out.Points, PointJSON{
			Timestamp: p.Timestamp.UTC().Format(time.RFC3339Nano),
			Pumps:     p.Pumps,
			VolumeML:  p.VolumeML(),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	data, _ := json.MarshalIndent(v, "", "  ")
	w.Write(data)
}
