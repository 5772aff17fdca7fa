package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/soil-irrigator/internal/metrics"
	"github.com/sweeney/soil-irrigator/internal/monitor"
	"github.com/sweeney/soil-irrigator/internal/mqtt"
	"github.com/sweeney/soil-irrigator/internal/pumplog"
	"github.com/sweeney/soil-irrigator/internal/status"
)

// pumpStore is the part of the pump log the loop writes to.
type pumpStore interface {
	Record(ctx context.Context, pumpID string, at time.Time) (pumplog.Entry, error)
	Total(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, t time.Time) (int64, error)
	StartOfDay(t time.Time) time.Time
	Daily(ctx context.Context, days int, now time.Time) ([]pumplog.DayCount, error)
}

// monitorLoop holds everything the run loop touches. It is only used from
// the loop's goroutine.
type monitorLoop struct {
	lines      *monitor.Tracker
	plog       pumpStore
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // may be nil
	status     *status.Tracker
	metrics    *metrics.Metrics
	pumpID     string
	now        func() time.Time

	total int64
}

var errSerialClosed = errors.New("serial stream ended")

func runLoop(ctx context.Context, m *monitorLoop, lines <-chan string, lineErr <-chan error, rollup <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			m.publishLifecycle(mqtt.EventShutdown, signalName(s))
			return nil

		case line, ok := <-lines:
			if !ok {
				err := <-lineErr
				if err == nil {
					err = errSerialClosed
				}
				log.Printf("serial: %v", err)
				m.status.SetSerialConnected(false)
				m.publishLifecycle(mqtt.EventShutdown, "SERIAL")
				return fmt.Errorf("serial: %w", err)
			}
			m.handleLine(ctx, line)

		case at := <-rollup:
			m.dailySummary(ctx, at)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// loadTotals seeds the all-time and today counts from the pump log.
func (m *monitorLoop) loadTotals(ctx context.Context) error {
	total, err := m.plog.Total(ctx)
	if err != nil {
		return err
	}
	today, err := m.plog.CountSince(ctx, m.plog.StartOfDay(m.now()))
	if err != nil {
		return err
	}
	m.total = total
	m.status.SetTotals(total, today)
	log.Printf("pumplog: %d activations recorded, %d today", total, today)
	return nil
}

func (m *monitorLoop) handleLine(ctx context.Context, line string) {
	at := m.now()
	res := m.lines.Feed(line, at)
	m.metrics.Lines.Inc()
	m.status.ObserveLine(m.lines.Stats(), at)
	m.refreshMQTT()

	if !res.Matched {
		return
	}
	m.metrics.LastCount.Set(float64(res.Count))

	switch {
	case res.Baseline:
		log.Printf("monitor: baseline count %d", res.Count)
		return
	case res.Reset:
		log.Printf("monitor: WARNING controller reset, count %d after %d", res.Count, res.Previous)
		m.metrics.Resets.Inc()
		m.publishSystem(mqtt.SystemEvent{
			Timestamp: at,
			Event:     mqtt.EventReset,
			Reason:    fmt.Sprintf("count %d after %d", res.Count, res.Previous),
		})
	}

	if res.Unusual {
		log.Printf("monitor: unusual jump of %d pumps (count %d)", res.NewPumps, res.Count)
	}
	if res.Skipped != monitor.SkipNone {
		log.Printf("monitor: skipped %d pumps at count %d (%s)", res.NewPumps, res.Count, res.Skipped)
		m.metrics.Skipped.Add(float64(res.NewPumps))
		return
	}
	if !res.Record() {
		return
	}

	var recorded int64
	for i := 0; i < res.NewPumps; i++ {
		entry, err := m.plog.Record(ctx, m.pumpID, at)
		if err != nil {
			log.Printf("pumplog: record failed: %v", err)
			continue
		}
		recorded++
		m.total++
		event := mqtt.PumpEvent{
			ID:        entry.EventID,
			Timestamp: entry.Timestamp,
			PumpID:    m.pumpID,
			Count:     res.Count,
			Total:     m.total,
		}
		if err := m.publisher.Publish(event); err != nil {
			log.Printf("publish error: %v", err)
		}
	}
	if recorded == 0 {
		return
	}

	log.Printf("monitor: recorded %d pump(s), count %d, total %d", recorded, res.Count, m.total)
	m.metrics.Pumps.Add(float64(recorded))
	m.metrics.VolumeML.Add(pumplog.VolumeML(recorded))
	m.status.RecordPumps(recorded, at)
}

// dailySummary reports the day that just ended and resets today's count.
func (m *monitorLoop) dailySummary(ctx context.Context, at time.Time) {
	days, err := m.plog.Daily(ctx, 2, at)
	if err != nil || len(days) != 2 {
		log.Printf("rollup: daily query failed: %v", err)
		return
	}
	prev, today := days[0], days[1]
	log.Printf("rollup: %s %d pumps, %.1f mL", prev.Day(), prev.Pumps, prev.VolumeML())

	m.status.SetTotals(m.total, today.Pumps)
	m.publishSystem(mqtt.SystemEvent{
		Timestamp: at,
		Event:     mqtt.EventHeartbeat,
		Reason:    prev.Day(),
		Pumps:     prev.Pumps,
		VolumeML:  prev.VolumeML(),
	})
}

// publishLifecycle sends STARTUP or SHUTDOWN with the full status snapshot.
func (m *monitorLoop) publishLifecycle(event, reason string) {
	m.refreshMQTT()
	snap := m.status.Snapshot()
	m.publishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
}

func (m *monitorLoop) publishSystem(event mqtt.SystemEvent) {
	if err := m.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish %s event: %v", event.Event, err)
		return
	}
	log.Printf("published %s event", event.Event)
}

func (m *monitorLoop) refreshMQTT() {
	if m.mqttStatus != nil {
		m.status.SetMQTTConnected(m.mqttStatus.IsConnected())
	}
}
