// Command irrigator runs the soil-moisture irrigation controller: it loads the
// stored threshold, offers an interactive calibration at boot and then keeps
// the soil below the threshold with short pump pulses.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sweeney/soil-irrigator/internal/board"
	"github.com/sweeney/soil-irrigator/internal/config"
	"github.com/sweeney/soil-irrigator/internal/controller"
	"github.com/sweeney/soil-irrigator/internal/seriallog"
	"github.com/sweeney/soil-irrigator/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "irrigator",
		Short:        "Soil-moisture irrigation controller",
		RunE:         runCmd,
		SilenceUsage: true,
	}

	f := rootCmd.PersistentFlags()
	f.String("config", "/etc/irrigator/irrigator.yaml", "path to the YAML config file")
	f.String("db", "", "preferences database path (overrides store.path)")
	f.String("log-port", "", "serial port to copy the log to (overrides log.serial_port)")

	_ = viper.BindPFlag("config", f.Lookup("config"))
	_ = viper.BindPFlag("db", f.Lookup("db"))
	_ = viper.BindPFlag("log_port", f.Lookup("log-port"))

	viper.SetEnvPrefix("IRRIGATOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "state",
		Short: "Print the stored threshold and pump counter and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printState(cmd.OutOrStdout(), cfg)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag/env overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if db := viper.GetString("db"); db != "" {
		cfg.Store.Path = db
	}
	if port := viper.GetString("log_port"); port != "" {
		cfg.Log.SerialPort = port
	}
	return cfg, nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := run(cfg); err != nil {
		log.Printf("fatal: %v", err)
		return err
	}
	return nil
}

func run(cfg *config.Config) error {
	if closeLog := teeLog(cfg.Log); closeLog != nil {
		defer closeLog.Close()
	}

	ns, err := store.Open(cfg.Store.Path, cfg.Store.Namespace)
	if err != nil {
		log.Printf("store: %v; running without persistence", err)
	}
	defer ns.Close()
	prefs := store.NewPrefs(ns)

	hw, closeHW, err := openHardware(cfg)
	if err != nil {
		return fmt.Errorf("init hardware: %w", err)
	}
	defer closeHW()

	ctrl := controller.New(cfg, hw, prefs, nil, nil)
	if err := startup(ctrl, cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("sd_notify: %v", err)
	}
	err = ctrl.Run(ctx)
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	return err
}

// startup attaches the pump, loads persisted state and runs calibration if
// the operator holds the trigger during the boot window.
func startup(ctrl *controller.Controller, cfg *config.Config) error {
	if err := ctrl.AttachPump(); err != nil {
		if cfg.Pump.AttachFatal() {
			return fmt.Errorf("attach pump: %w", err)
		}
		log.Printf("pump: attach failed, continuing without drive: %v", err)
	}
	ctrl.Boot()
	if ctrl.CalibrationRequested() {
		ctrl.Calibrate()
	}
	return nil
}

// teeLog copies the standard logger to the configured serial port. A port
// that cannot be opened is logged and skipped.
func teeLog(cfg config.LogConfig) io.Closer {
	if cfg.SerialPort == "" {
		return nil
	}
	port, err := seriallog.Open(cfg.SerialPort, cfg.BaudRate)
	if err != nil {
		log.Printf("log: serial port unavailable, logging to stderr only: %v", err)
		return nil
	}
	log.SetOutput(io.MultiWriter(os.Stderr, seriallog.NewWriter(port)))
	log.Printf("log: copying to %s at %d baud", cfg.SerialPort, cfg.BaudRate)
	return port
}

// openHardware claims the trigger and LED lines, the PWM channel and the
// moisture probe. The LED is optional; everything else is required.
func openHardware(cfg *config.Config) (controller.Hardware, func(), error) {
	var hw controller.Hardware

	chip, err := board.OpenChip(cfg.Pins.Chip)
	if err != nil {
		return hw, nil, err
	}
	closers := []io.Closer{chip}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}

	trigger, err := chip.Input("trigger", cfg.Pins.Trigger)
	if err != nil {
		closeAll()
		return hw, nil, fmt.Errorf("trigger line %d: %w", cfg.Pins.Trigger, err)
	}
	hw.Trigger = trigger

	if led, err := chip.Output("led", cfg.Pins.LED); err != nil {
		log.Printf("board: LED line %d unavailable: %v", cfg.Pins.LED, err)
	} else {
		hw.LED = led
	}

	pump := board.NewSysfsPWM(cfg.Pins.PWMChannel)
	closers = append(closers, pump)
	hw.Pump = pump

	moisture, bus, err := board.OpenMoisture(cfg.Pins.MoistureAddr, cfg.Pins.MoistureDelay)
	if err != nil {
		closeAll()
		return hw, nil, fmt.Errorf("moisture probe: %w", err)
	}
	closers = append(closers, bus)
	hw.Moisture = moisture

	return hw, closeAll, nil
}

// printState writes the stored controller values without modifying them.
func printState(w io.Writer, cfg *config.Config) error {
	ns, err := store.Open(cfg.Store.Path, cfg.Store.Namespace)
	if err != nil {
		return err
	}
	defer ns.Close()

	st, err := store.NewPrefs(ns).Peek()
	if err != nil {
		return err
	}
	threshold := st.Threshold.String()
	if !st.Threshold.Set {
		threshold = fmt.Sprintf("unset (default %d)", cfg.Loop.DefaultThreshold)
	}
	fmt.Fprintf(w, "store: %s\n", cfg.Store.Path)
	fmt.Fprintf(w, "threshold: %s\n", threshold)
	fmt.Fprintf(w, "pumps since calibration: %d\n", st.SinceCalibration)
	return nil
}
