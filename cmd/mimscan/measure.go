package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/mastercactapus/mimscan/config"
	"github.com/mastercactapus/mimscan/datafile"
	"github.com/mastercactapus/mimscan/interrupt"
	"github.com/mastercactapus/mimscan/logging"
	"github.com/mastercactapus/mimscan/machine"
	"github.com/mastercactapus/mimscan/machine/daq"
	"github.com/mastercactapus/mimscan/machine/sim"
	"github.com/mastercactapus/mimscan/metrics"
	"github.com/mastercactapus/mimscan/spjs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var measureFlags struct {
	params   string
	fast     string
	slow     string
	feedback bool
	repeat   bool
	zStart   float64
	port     string
	spjsURL  string
	baud     int
	dataDir  string
	name     string
	addr     string
}

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Run an approach-curve scan",
	Long: `Acquires one approach curve per fast-axis step, correcting z after each
curve. Press u/d to step z in manual mode and q to quit.

Without --port the scan runs against a simulated instrument.`,
	RunE: runMeasure,
}

func init() {
	f := measureCmd.Flags()
	f.StringVar(&measureFlags.params, "params", "", "YAML parameter file.")
	f.StringVar(&measureFlags.fast, "fast", "", "Fast axis as start,stop,points in volts.")
	f.StringVar(&measureFlags.slow, "slow", "", "Slow axis as start,stop,points in volts.")
	f.BoolVar(&measureFlags.feedback, "feedback", false, "Track contact automatically.")
	f.BoolVar(&measureFlags.repeat, "repeat", false, "Restart the slow axis after the last line.")
	f.Float64Var(&measureFlags.zStart, "z-start", 0, "Initial z voltage.")
	f.StringVar(&measureFlags.port, "port", "", "Serial port of the DAQ bridge.")
	f.StringVar(&measureFlags.spjsURL, "spjs", "", "Websocket URL of an SPJS server that has the bridge port.")
	f.IntVar(&measureFlags.baud, "baud", 115200, "Serial baud rate.")
	f.StringVar(&measureFlags.dataDir, "dir", "./data", "Data directory to use.")
	f.StringVar(&measureFlags.name, "name", "approach", "Run name used in the data directory.")
	f.StringVar(&measureFlags.addr, "addr", ":9091", "Address for the status API, empty to disable.")
}

// parseLinspace reads "start,stop,points".
func parseLinspace(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("want start,stop,points, got %q", s)
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, err
	}
	stop, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, errors.New("need at least one point")
	}
	return config.Linspace(start, stop, n), nil
}

func loadConfig(cmd *cobra.Command) (config.Scan, error) {
	cfg := config.Default()
	var err error
	if measureFlags.params != "" {
		cfg, err = config.Load(measureFlags.params)
		if err != nil {
			return cfg, err
		}
	}

	f := cmd.Flags()
	if f.Changed("fast") {
		cfg.FastAxis, err = parseLinspace(measureFlags.fast)
		if err != nil {
			return cfg, fmt.Errorf("--fast: %w", err)
		}
	}
	if f.Changed("slow") {
		cfg.SlowAxis, err = parseLinspace(measureFlags.slow)
		if err != nil {
			return cfg, fmt.Errorf("--slow: %w", err)
		}
	}
	if f.Changed("feedback") {
		cfg.Feedback = measureFlags.feedback
	}
	if f.Changed("repeat") {
		cfg.Repeat = measureFlags.repeat
	}
	if f.Changed("z-start") {
		cfg.ZStart = measureFlags.zStart
	}
	return cfg, cfg.Normalized().Validate()
}

func openAdapter(cfg config.Scan) (machine.Adapter, func() error, error) {
	if measureFlags.port == "" {
		return sim.NewAdapter(sim.ModelFor(cfg), cfg.CurvePeriod()), func() error { return nil }, nil
	}
	if measureFlags.spjsURL != "" {
		c := spjs.Dial(measureFlags.spjsURL)
		p, err := c.Open(measureFlags.port, measureFlags.baud)
		if err != nil {
			c.Close()
			return nil, nil, fmt.Errorf("open %s: %w", measureFlags.port, err)
		}
		a := daq.NewSerialAdapter(p, cfg.Samples)
		return a, func() error { return errors.Join(a.Close(), c.Close()) }, nil
	}

	a, err := daq.Open(measureFlags.port, measureFlags.baud, cfg.Samples)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", measureFlags.port, err)
	}
	return a, a.Close, nil
}

func runMeasure(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	kb, err := interrupt.OpenTerminal(os.Stdin, terminalLogger(os.Stderr))
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	defer kb.Close()
	log := logging.New("measure")

	run, err := datafile.NewRun(measureFlags.dataDir, measureFlags.name, time.Now())
	if err != nil {
		return err
	}
	if measureFlags.params != "" {
		err = run.CopyFile(measureFlags.params)
		if err != nil {
			log.Warn("copy params", "err", err)
		}
	}
	sinks, err := run.OpenSinks()
	if err != nil {
		return err
	}

	adapter, closeAdapter, err := openAdapter(cfg)
	if err != nil {
		sinks.Full.Close()
		sinks.Spatial.Close()
		return err
	}
	defer closeAdapter()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	met := metrics.New(reg)

	m, err := machine.New(adapter, cfg, machine.Options{
		Full:    sinks.Full,
		Spatial: sinks.Spatial,
		Metrics: met,
		Logger:  logging.New("machine"),
	})
	if err != nil {
		sinks.Full.Close()
		sinks.Spatial.Close()
		return err
	}

	remote := interrupt.NewRemote()
	if measureFlags.addr != "" {
		a := newAPI(m, remote, reg, met, measureFlags.dataDir)
		defer a.Close()
		srv := &http.Server{Addr: measureFlags.addr, Handler: a}
		go func() {
			log.Info("serving status api", "addr", measureFlags.addr)
			err := srv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("status api", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	log.Info("scan starting", "dir", run.Dir, "run", run.ID.String())
	st, err := m.Run(ctx, interrupt.First(kb, remote))
	log.Info("scan finished", "phase", st.Phase.String(), "approaches", st.Counter, "z", st.Z)
	return err
}

// terminalLogger re-initializes logging with carriage returns once the
// terminal is in raw mode, before the keyboard logger is built.
func terminalLogger(w io.Writer) func(raw bool) *slog.Logger {
	return func(raw bool) *slog.Logger {
		if raw {
			logging.Init(logging.ParseLevel(rootFlags.logLevel), rootFlags.logFormat, crlfWriter{w})
		}
		return logging.New("keyboard")
	}
}

// crlfWriter adds carriage returns for a terminal in raw mode.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	_, err := c.w.Write([]byte(strings.ReplaceAll(string(p), "\n", "\r\n")))
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
