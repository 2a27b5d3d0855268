// Command rtfsm runs state machine definitions on simulated hardware.
//
// With the default manual clock the loop runs as fast as the host allows
// until -duration of simulated time has passed. -realtime drives it from the
// wall clock instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/comalice/rtfsm"
	"github.com/comalice/rtfsm/internal/core"
	"github.com/comalice/rtfsm/internal/extensibility"
	"github.com/comalice/rtfsm/internal/production"
	"github.com/comalice/rtfsm/realtime"
)

type options struct {
	configPath string
	defPath    string
	machines   int
	realtime   bool
	duration   time.Duration
	inputs     string
	dotPath    string
	savePath   string
	dev        bool
	quiet      bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Runtime config file (YAML)")
	flag.StringVar(&o.defPath, "def", "", "State machine definition (.yaml, .yml or .json)")
	flag.IntVar(&o.machines, "machines", 0, "Machines to load the definition into (default: config value)")
	flag.BoolVar(&o.realtime, "realtime", false, "Drive the loop from the wall clock")
	flag.DurationVar(&o.duration, "duration", 5*time.Second, "Run length (simulated time unless -realtime)")
	flag.StringVar(&o.inputs, "inputs", "", "Scripted digital inputs, e.g. 50ms:0:1,80ms:0:0")
	flag.StringVar(&o.dotPath, "dot", "", "Write the definition as Graphviz DOT to this file")
	flag.StringVar(&o.savePath, "save", "", "Write a YAML snapshot of the final status to this file")
	flag.BoolVar(&o.dev, "dev", false, "Development logging")
	flag.BoolVar(&o.quiet, "q", false, "Do not print transitions")
	flag.Parse()

	if o.defPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: rtfsm -def <definition.yaml> [-config runtime.yaml] [-inputs script] [-duration 5s]")
		fmt.Fprintln(os.Stderr, "       rtfsm -def <definition.yaml> -realtime -duration 10s")
		fmt.Fprintln(os.Stderr, "       rtfsm -def <definition.yaml> -dot graph.dot")
		os.Exit(1)
	}

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(o options) error {
	log, err := newLogger(o.dev)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	cfg := realtime.Config{}
	if o.configPath != "" {
		if cfg, err = realtime.LoadConfig(o.configPath); err != nil {
			return err
		}
	}
	if o.machines > 0 {
		cfg.Machines = o.machines
	}
	cfg.Logger = log

	def, err := production.ReadDefinitionFile(o.defPath)
	if err != nil {
		return err
	}
	for _, w := range def.Warnings() {
		log.Warn("definition", zap.String("warning", w))
	}

	if o.dotPath != "" {
		dot := (&production.DefaultVisualizer{}).ExportDOT(def, production.NoState)
		if err := os.WriteFile(o.dotPath, []byte(dot), 0o644); err != nil {
			return fmt.Errorf("write dot: %w", err)
		}
	}

	script, err := extensibility.ParseScript(o.inputs)
	if err != nil {
		return fmt.Errorf("inputs: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		clock  realtime.Clock
		manual *realtime.ManualClock
	)
	if o.realtime {
		clock = realtime.NewWallClock()
	} else {
		manual = realtime.NewManualClock(o.duration)
		clock = manual
		cfg.InlineHelpers = true
	}

	defaults := realtime.DefaultConfig()
	port := extensibility.NewSimPort(
		extensibility.WithTimeSource(clock.Now),
		extensibility.WithScript(script),
		extensibility.WithChannels(
			orDefault(cfg.DigitalChannels, defaults.DigitalChannels),
			orDefault(cfg.AnalogInChannels, defaults.AnalogInChannels),
			orDefault(cfg.AnalogOutChannels, defaults.AnalogOutChannels)),
	)
	sound := extensibility.NewLoggingSoundTrigger(nil, log.Named("sound"))

	sys, err := rtfsm.NewSystem(cfg, port, realtime.WithClock(clock), realtime.WithSoundTrigger(sound))
	if err != nil {
		return err
	}
	machines := sys.Runtime.Machines()

	printed := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(printed)
		printTransitions(sys, done, o.quiet)
	}()

	load := func(ctx context.Context) error {
		for i := 0; i < machines; i++ {
			if err := sys.Client(i).Start(ctx, def); err != nil {
				return fmt.Errorf("machine %d: %w", i, err)
			}
		}
		return nil
	}

	if manual != nil {
		if err := prime(ctx, sys.Runtime, manual, load); err != nil {
			close(done)
			<-printed
			return err
		}
		err = sys.Run(ctx)
	} else {
		err = runWall(ctx, sys, o.duration, load)
	}
	close(done)
	<-printed
	if err != nil {
		return err
	}

	status := sys.Runtime.Status()
	stats := sys.Runtime.Stats()
	styled := term.IsTerminal(int(os.Stdout.Fd()))
	fmt.Println(renderStatus(status, stats, styled))

	if o.savePath != "" {
		if err := saveSnapshot(o.savePath, def, status, stats); err != nil {
			return err
		}
		log.Info("snapshot saved", zap.String("path", o.savePath))
	}
	return nil
}

// prime steps the loop by hand until load has finished, so the definition
// is running before simulated time is allowed to race ahead.
func prime(ctx context.Context, rt *realtime.Runtime, clock *realtime.ManualClock, load func(context.Context) error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- load(ctx) }()
	period := rt.Config().Period
	for {
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rt.Cycle()
		clock.Advance(period)
	}
}

func runWall(ctx context.Context, sys *rtfsm.System, d time.Duration, load func(context.Context) error) error {
	var cancel context.CancelFunc
	if d > 0 {
		ctx, cancel = context.WithTimeout(ctx, d)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- sys.Run(ctx) }()
	if err := load(ctx); err != nil && ctx.Err() == nil {
		cancel()
		<-errCh
		return err
	}
	return <-errCh
}

func printTransitions(sys *rtfsm.System, done <-chan struct{}, quiet bool) {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i := 0; i < sys.Runtime.Machines(); i++ {
		wg.Add(1)
		go func(c *rtfsm.Client) {
			defer wg.Done()
			stream := c.TransitionStream()
			emit := func(t rtfsm.StateTransition) {
				if quiet {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				fmt.Println(transitionLine(c.Machine(), t))
			}
			for {
				select {
				case t := <-stream:
					emit(t)
				case <-done:
					for {
						select {
						case t := <-stream:
							emit(t)
						default:
							return
						}
					}
				}
			}
		}(sys.Client(i))
	}
	wg.Wait()
}

type snapshot struct {
	Taken      time.Time            `yaml:"taken"`
	Definition string               `yaml:"definition"`
	Stats      realtime.Stats       `yaml:"stats"`
	Machines   []core.MachineStatus `yaml:"machines"`
}

func saveSnapshot(path string, def *rtfsm.Definition, status []core.MachineStatus, stats realtime.Stats) error {
	data, err := yaml.Marshal(snapshot{
		Taken:      time.Now().UTC(),
		Definition: def.Name,
		Stats:      stats,
		Machines:   status,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func orDefault(v, d int) int {
	if v > 0 {
		return v
	}
	return d
}
