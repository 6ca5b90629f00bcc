// Command pendulum-timer times pendulum swings from an IR beam sensor,
// disciplines the timebase to a GPS PPS input and streams one CSV line per
// swing over a serial link and MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/capture"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/config"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/core"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/gpio"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/mqtt"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/protocol"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/serial"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/sim"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/status"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/tick"
	"github.com/flynnr2/Arduino.RP20240.TickTock/internal/web"
)

// options holds the parsed command line.
type options struct {
	poll         time.Duration
	broker       string
	heartbeat    time.Duration
	chip         string
	pinIR        int
	pinPPS       int
	serialPort   string
	baud         int
	httpAddr     string
	tunablesFile string
	simulate     bool
	simPpm       float64
	nominalHz    uint
}

func main() {
	var o options
	flag.DurationVar(&o.poll, "poll", 10*time.Millisecond, "Main loop interval")
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address (empty to disable)")
	flag.DurationVar(&o.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&o.chip, "gpio-chip", gpio.DefaultChip, "GPIO chip for the capture lines")
	flag.IntVar(&o.pinIR, "pin-ir", gpio.PinIR, "BCM pin number for the IR beam sensor")
	flag.IntVar(&o.pinPPS, "pin-pps", gpio.PinPPS, "BCM pin number for the GPS PPS output")
	flag.StringVar(&o.serialPort, "serial", "", "Serial port for data and commands (empty for stdin/stdout)")
	flag.IntVar(&o.baud, "baud", serial.DefaultBaudRate, "Serial baud rate")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.StringVar(&o.tunablesFile, "tunables", "/etc/pendulum-timer/tunables.yaml", "Tunables file (empty to keep changes in memory)")
	flag.BoolVar(&o.simulate, "sim", false, "Drive the pipeline from the simulated bench instead of GPIO")
	flag.Float64Var(&o.simPpm, "sim-ppm", 20, "Simulated oscillator error in ppm")
	flag.UintVar(&o.nominalHz, "nominal-hz", tick.DefaultNominalHz, "Nominal timebase frequency in Hz")

	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// validate rejects option values the pipeline cannot run with.
func (o options) validate() error {
	if o.nominalHz == 0 || uint64(o.nominalHz) > math.MaxUint32 {
		return fmt.Errorf("invalid -nominal-hz %d: must be in 1..%d", o.nominalHz, uint64(math.MaxUint32))
	}
	if o.poll <= 0 {
		return fmt.Errorf("invalid -poll %v: must be positive", o.poll)
	}
	if o.heartbeat < 0 {
		return fmt.Errorf("invalid -heartbeat %v: must not be negative", o.heartbeat)
	}
	return nil
}

func run(o options) error {
	if err := o.validate(); err != nil {
		return err
	}
	nominal := uint32(o.nominalHz)

	tun, err := config.Load(o.tunablesFile)
	if err != nil {
		return fmt.Errorf("load tunables: %w", err)
	}
	store := config.NewStore(tun, o.tunablesFile)

	// Data and command link
	link, err := openLink(o.serialPort, o.baud)
	if err != nil {
		return err
	}
	if o.serialPort != "" {
		defer link.Close()
	}
	writeLine(link, protocol.StatusLine(protocol.StatusProgressUpdate, "Begin setup() ..."))

	// Capture pipeline
	var drv driver
	var c *core.Core
	source := "gpio"
	if o.simulate {
		source = "sim"
		cfg := sim.DefaultConfig()
		cfg.NominalHz = nominal
		cfg.OscPpm = o.simPpm
		cfg.Seed = time.Now().UnixNano()
		ref := &deferredClock{}
		c = core.New(ref, nominal, store)
		bench := sim.NewBench(cfg, c.Bank)
		ref.src = bench.Clock()
		drv = simDriver{bench: bench}
	} else {
		host := tick.NewHostClock(nominal)
		c = core.New(host, nominal, store)
		g, err := startGPIO(o, host, c.Bank)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		drv = g
	}
	defer func() {
		if err := drv.Close(); err != nil {
			log.Printf("close %s: %v", source, err)
		}
	}()

	// Initialize MQTT
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if o.broker != "" {
		p, err := mqtt.NewRealPublisher(o.broker, mqtt.DefaultClientID)
		if err != nil {
			log.Printf("mqtt unavailable, continuing without it: %v", err)
		} else {
			defer p.Close()
			publisher, mqttStatus = p, p
		}
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:       o.poll.Milliseconds(),
		HeartbeatMs:  o.heartbeat.Milliseconds(),
		NominalHz:    nominal,
		Source:       source,
		Broker:       o.broker,
		HTTPAddr:     o.httpAddr,
		SerialPort:   o.serialPort,
		TunablesFile: store.Path(),
	})
	tracker.Update(c.Stats(), store.Tunables())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	publishSystem(publisher, mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	})

	// Start HTTP status server
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	writeLine(link, protocol.StatusLine(protocol.StatusProgressUpdate, "... end setup()"))
	writeLine(link, protocol.HeaderLine(store.DataUnits()))

	log.Printf("started: source=%s poll=%v nominal=%dHz broker=%s heartbeat=%v", source, o.poll, nominal, o.broker, o.heartbeat)

	ticker := time.NewTicker(o.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d := deps{
		core:       c,
		driver:     drv,
		store:      store,
		commands:   protocol.NewCommands(store, c),
		out:        link,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		heartbeat:  o.heartbeat,
	}
	return runLoop(d, time.Now, ticker.C, sigCh, link.Commands())
}

// deps are the collaborators runLoop drives. publisher and mqttStatus may
// be nil when MQTT is disabled.
type deps struct {
	core       *core.Core
	driver     driver
	store      *config.Store
	commands   *protocol.Commands
	out        lineWriter
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	heartbeat  time.Duration
}

type lineWriter interface {
	WriteLine(s string) error
}

func runLoop(d deps, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, cmds <-chan string) error {
	startTime := now()
	last := startTime
	hb := status.NewHeartbeat(startTime, d.heartbeat)

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			refreshTracker(d)
			snap := d.tracker.Snapshot()
			event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			publishSystem(d.publisher, event)
			return nil

		case line, ok := <-cmds:
			if !ok {
				// Input closed; keep running on the data side.
				cmds = nil
				continue
			}
			log.Printf("command: %s", line)
			resp := d.commands.Handle(line)
			for _, l := range resp.Lines {
				writeLine(d.out, l)
			}
			if resp.ResendHeader {
				writeLine(d.out, protocol.HeaderLine(d.store.DataUnits()))
			}

		case <-tick:
			t := now()
			d.driver.Step(t.Sub(last))
			last = t

			for _, s := range d.core.Poll() {
				writeLine(d.out, protocol.SampleLine(s))
				d.tracker.RecordSample(s)
				if d.publisher != nil {
					if err := d.publisher.PublishSample(s); err != nil {
						log.Printf("publish error: %v", err)
						// Don't crash on publish failure
					}
				}
			}

			for _, tr := range d.core.Transitions() {
				publishSystem(d.publisher, mqtt.SystemEvent{
					Timestamp: t,
					Event:     "GPS_" + tr.To.String(),
					Reason:    tr.From.String(),
				})
			}

			// Update status tracker for HTTP consumers
			refreshTracker(d)

			if hb.Due(t) {
				st := d.core.Stats()
				log.Printf("heartbeat (every %v): uptime=%v state=%s swings=%d dropped=%d R=%dppm J=%dppm",
					hb.Interval(), t.Sub(startTime), st.Discipline.State, st.Swings, st.Dropped,
					st.Discipline.Metrics.RPpm, st.Discipline.Metrics.JPpm)

				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					d.tracker.SetNetwork(net)
				}
				snap := d.tracker.Snapshot()
				publishSystem(d.publisher, mqtt.SystemEvent{
					Timestamp:  t,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				})
			}
		}
	}
}

func refreshTracker(d deps) {
	d.tracker.Update(d.core.Stats(), d.store.Tunables())
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func publishSystem(p mqtt.Publisher, event mqtt.SystemEvent) {
	if p == nil {
		return
	}
	if err := p.PublishSystem(event); err != nil {
		log.Printf("failed to publish %s event: %v", event.Event, err)
		return
	}
	log.Printf("published %s event", event.Event)
}

func writeLine(w lineWriter, s string) {
	if err := w.WriteLine(s); err != nil {
		log.Printf("write error: %v", err)
	}
}

// openLink opens the serial port, or stdin/stdout when port is empty.
func openLink(port string, baud int) (*serial.Link, error) {
	if port == "" {
		return serial.NewLink("stdio", stdio{Reader: os.Stdin, Writer: os.Stdout}), nil
	}
	link, err := serial.Open(port, baud)
	if err != nil {
		return nil, fmt.Errorf("init serial: %w", err)
	}
	return link, nil
}

// stdio joins stdin and stdout. Close leaves both open.
type stdio struct {
	io.Reader
	io.Writer
}

func (stdio) Close() error { return nil }

// driver advances the edge source. Real hardware runs on its own, so only
// the simulated bench uses Step.
type driver interface {
	Step(elapsed time.Duration)
	Close() error
}

type simDriver struct {
	bench *sim.Bench
}

func (s simDriver) Step(elapsed time.Duration) { s.bench.Advance(elapsed) }
func (s simDriver) Close() error               { return nil }

// deferredClock lets the core be built before the bench that owns the clock.
type deferredClock struct {
	src tick.Source
}

func (d *deferredClock) Now() tick.Tick { return d.src.Now() }

// gpioDriver owns the two capture lines.
type gpioDriver struct {
	ir, pps *gpio.RealUnit
}

func startGPIO(o options, clk *tick.HostClock, bank *capture.Bank) (*gpioDriver, error) {
	g := &gpioDriver{
		ir:  gpio.NewRealUnit(o.chip, o.pinIR, clk),
		pps: gpio.NewRealUnit(o.chip, o.pinPPS, clk),
	}
	irISR := capture.NewHandler(capture.IR, g.ir, clk, bank.IR, capture.Falling)
	ppsISR := capture.NewHandler(capture.PPS, g.pps, clk, bank.PPS, capture.Rising)

	if err := g.ir.Start(irISR.OnCapture); err != nil {
		return nil, err
	}
	if err := g.pps.Start(ppsISR.OnCapture); err != nil {
		g.ir.Close()
		return nil, err
	}
	log.Printf("gpio: capturing IR on %s:%d, PPS on %s:%d", o.chip, o.pinIR, o.chip, o.pinPPS)
	return g, nil
}

func (g *gpioDriver) Step(time.Duration) {}

// Close releases both lines, collecting errors.
func (g *gpioDriver) Close() error {
	var errs []error
	if err := g.ir.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := g.pps.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
