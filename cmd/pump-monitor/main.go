// Command pump-monitor follows the irrigation controller's serial log, records
// every pump activation in SQLite, publishes them to MQTT and serves a status
// dashboard.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweeney/soil-irrigator/internal/metrics"
	"github.com/sweeney/soil-irrigator/internal/monitor"
	"github.com/sweeney/soil-irrigator/internal/mqtt"
	"github.com/sweeney/soil-irrigator/internal/pumplog"
	"github.com/sweeney/soil-irrigator/internal/seriallog"
	"github.com/sweeney/soil-irrigator/internal/status"
	"github.com/sweeney/soil-irrigator/internal/web"
)

// options is the resolved flag/env configuration.
type options struct {
	Port     string
	Baud     int
	DBPath   string
	Broker   string
	ClientID string
	HTTPAddr string
	PumpID   string
	Rollup   string
}

func main() {
	rootCmd := &cobra.Command{
		Use:          "pump-monitor",
		Short:        "Record irrigation pump activations from the controller's serial log",
		RunE:         runCmd,
		SilenceUsage: true,
	}

	f := rootCmd.Flags()
	f.String("port", "/dev/ttyUSB0", "serial port the controller logs to")
	f.Int("baud", seriallog.DefaultBaudRate, "serial baud rate")
	f.String("db", "/var/lib/irrigator/pumplog.db", "pump log database path")
	f.String("broker", "tcp://localhost:1883", "MQTT broker address (empty to disable)")
	f.String("client-id", "pump-monitor", "MQTT client ID")
	f.String("http", ":8080", "HTTP status address (empty to disable)")
	f.String("pump-id", "pump-1", "identifier stored with each activation")
	f.String("rollup", "@daily", "cron schedule for the daily summary")

	for _, key := range []string{"port", "baud", "db", "broker", "client-id", "http", "pump-id", "rollup"} {
		_ = viper.BindPFlag(strings.ReplaceAll(key, "-", "_"), f.Lookup(key))
	}
	viper.SetEnvPrefix("PUMPMON")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "ports",
		Short: "List serial ports and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := seriallog.Ports()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadOptions() options {
	return options{
		Port:     viper.GetString("port"),
		Baud:     viper.GetInt("baud"),
		DBPath:   viper.GetString("db"),
		Broker:   viper.GetString("broker"),
		ClientID: viper.GetString("client_id"),
		HTTPAddr: viper.GetString("http"),
		PumpID:   viper.GetString("pump_id"),
		Rollup:   viper.GetString("rollup"),
	}
}

func runCmd(cmd *cobra.Command, args []string) error {
	if err := run(loadOptions()); err != nil {
		log.Printf("fatal: %v", err)
		return err
	}
	return nil
}

func run(opts options) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	plog, err := pumplog.Open(ctx, opts.DBPath)
	if err != nil {
		return fmt.Errorf("open pump log: %w", err)
	}
	defer plog.Close()

	var publisher mqtt.Publisher = discardPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if opts.Broker != "" {
		rp := mqtt.NewRealPublisher(opts.Broker, opts.ClientID)
		publisher, mqttStatus = rp, rp
	}
	defer publisher.Close()

	start := time.Now()
	tracker := status.NewTracker(start, status.Config{
		SerialPort: opts.Port,
		BaudRate:   opts.Baud,
		DBPath:     opts.DBPath,
		Broker:     opts.Broker,
		HTTPAddr:   opts.HTTPAddr,
		PumpID:     opts.PumpID,
		MLPerPump:  pumplog.MLPerPump,
	})
	met := metrics.New()

	loop := &monitorLoop{
		lines:      monitor.NewTracker(monitor.DefaultConfig(), start),
		plog:       plog,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		status:     tracker,
		metrics:    met,
		pumpID:     opts.PumpID,
		now:        time.Now,
	}
	if err := loop.loadTotals(ctx); err != nil {
		return err
	}

	port, err := seriallog.Open(opts.Port, opts.Baud)
	if err != nil {
		return fmt.Errorf("open serial: %w", err)
	}
	defer port.Close()
	tracker.SetSerialConnected(true)
	lines, lineErr := seriallog.Lines(ctx, port)

	loop.publishLifecycle(mqtt.EventStartup, "")

	if opts.HTTPAddr != "" {
		srv := web.New(opts.HTTPAddr, tracker, plog, met.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", opts.HTTPAddr)
	}

	rollup := make(chan time.Time, 1)
	c := cron.New()
	if _, err := c.AddFunc(opts.Rollup, func() {
		select {
		case rollup <- time.Now():
		default:
		}
	}); err != nil {
		return fmt.Errorf("rollup schedule %q: %w", opts.Rollup, err)
	}
	c.Start()
	defer c.Stop()

	log.Printf("started: port=%s baud=%d db=%s broker=%s rollup=%s", opts.Port, opts.Baud, opts.DBPath, opts.Broker, opts.Rollup)
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("sd_notify: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(ctx, loop, lines, lineErr, rollup, sigCh)
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	return err
}

// discardPublisher is used when no broker is configured.
type discardPublisher struct{}

func (discardPublisher) Publish(mqtt.PumpEvent) error         { return nil }
func (discardPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discardPublisher) Close() error                         { return nil }
