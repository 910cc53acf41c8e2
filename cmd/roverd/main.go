// Command roverd wires the NMEA parser, NTRIP client, RTCM forwarding,
// and device-link orchestrator together into one running process.
// Grounded on the teacher's main_rtk.go: flag-parsed CLI overrides, a
// log-file-plus-console logger, the goroutine-per-stream read loop, and
// signal.Notify-driven graceful shutdown, generalized from the teacher's
// single hardcoded RTK pipeline to this module's configurable transports.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/bramburn/rtkcore/internal/config"
	"github.com/bramburn/rtkcore/internal/eventbus"
	"github.com/bramburn/rtkcore/internal/nmea"
	"github.com/bramburn/rtkcore/internal/ntrip"
	"github.com/bramburn/rtkcore/internal/ntrip/transport"
	"github.com/bramburn/rtkcore/internal/orchestrator"
	"github.com/bramburn/rtkcore/internal/position"
	"github.com/bramburn/rtkcore/internal/telemetry"
)

// deviceSink adapts an *orchestrator.Orchestrator to ntrip.FrameSink, so
// RTCM frames read from the caster are forwarded to whichever device link
// is currently active, matching spec §4.5's "downstream forwarding" rule.
type deviceSink struct{ orch *orchestrator.Orchestrator }

func (d deviceSink) Send(frame []byte) error {
	if !d.orch.SendData(frame) {
		return fmt.Errorf("roverd: no active device link")
	}
	return nil
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	casterHost := flag.String("caster-host", "", "NTRIP caster hostname, overrides config file")
	casterPort := flag.Int("caster-port", 0, "NTRIP caster port, overrides config file")
	mountpoint := flag.String("mountpoint", "", "NTRIP mountpoint, overrides config file")
	username := flag.String("username", "", "NTRIP username, overrides config file")
	password := flag.String("password", "", "NTRIP password, overrides config file")
	serialPort := flag.String("serial-port", "", "serial device link port (leave empty to auto-select)")
	logFile := flag.String("log", "", "log file path; empty logs to stderr only")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	log, err := telemetry.New(telemetry.Options{Level: *logLevel, LogFile: *logFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ntripCfg, err := loadNtripConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("roverd: loading config")
	}
	applyFlagOverrides(&ntripCfg, *casterHost, *casterPort, *mountpoint, *username, *password)

	bus := eventbus.New()
	tracker := position.NewTracker()
	parser := nmea.New(bus, tracker, log.WithField("component", "nmea"))

	orch := orchestrator.New(bus, log.WithField("component", "orchestrator"))
	orch.Register(orchestrator.NewSerialTransport(*serialPort))
	bus.Subscribe(eventbus.KindDeviceData, func(evt eventbus.Event) {
		payload := evt.Payload.(eventbus.DeviceDataPayload)
		parser.Feed(payload.Bytes)
	})

	client := ntrip.NewClient(bus, tracker, deviceSink{orch: orch}, log.WithField("component", "ntrip"))
	client.RegisterTransport(transport.NewDirect(log.WithField("component", "ntrip.direct")))
	client.RegisterTransport(transport.NewProxy(log.WithField("component", "ntrip.proxy")))
	client.RegisterTransport(transport.NewWebsocket(log.WithField("component", "ntrip.websocket")))

	logEvents(bus, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx, ntripCfg); err != nil {
		log.WithError(err).Fatal("roverd: initial NTRIP connect failed")
	}
	defer client.Disconnect()

	if !orch.Connect(ctx, orchestrator.ConnectOptions{RememberedPort: *serialPort}) {
		log.Warn("roverd: no device link connected, RTCM frames will be dropped until one is")
	}
	defer orch.Disconnect()

	log.Info("roverd: running, press Ctrl+C to stop")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("roverd: shutdown signal received")
}

func loadNtripConfig(path string) (ntrip.NtripConfig, error) {
	if path == "" {
		return ntrip.DefaultConfig(), nil
	}
	f, err := config.Load(path)
	if err != nil {
		return ntrip.NtripConfig{}, err
	}
	return f.Resolve(), nil
}

func applyFlagOverrides(cfg *ntrip.NtripConfig, host string, port int, mountpoint, username, password string) {
	if host != "" {
		cfg.CasterHost = host
	}
	if port != 0 {
		cfg.CasterPort = port
	}
	if mountpoint != "" {
		cfg.Mountpoint = mountpoint
	}
	if username != "" {
		cfg.Username = username
	}
	if password != "" {
		cfg.Password = password
	}
}

// logEvents subscribes a one-line structured log entry per bus event,
// generalizing the teacher's plain Println status lines in main_rtk.go
// into logrus.Fields keyed by event kind.
func logEvents(bus *eventbus.Bus, log *logrus.Entry) {
	bus.Subscribe(eventbus.KindNtripConnected, func(evt eventbus.Event) {
		p := evt.Payload.(eventbus.NtripConnectedPayload)
		log.WithFields(logrus.Fields{"caster": p.CasterHost, "mountpoint": p.Mountpoint, "mode": p.Mode}).Info("ntrip connected")
	})
	bus.Subscribe(eventbus.KindNtripDisconnected, func(evt eventbus.Event) {
		p := evt.Payload.(eventbus.NtripDisconnectedPayload)
		log.WithField("reason", p.Reason).Warn("ntrip disconnected")
	})
	bus.Subscribe(eventbus.KindNtripError, func(evt eventbus.Event) {
		p := evt.Payload.(eventbus.ErrorPayload)
		log.WithField("message", p.Message).Error("ntrip error")
	})
	bus.Subscribe(eventbus.KindConnectionConnected, func(evt eventbus.Event) {
		p := evt.Payload.(eventbus.ConnectionPayload)
		log.WithField("transport", p.Transport).Info("device link connected")
	})
	bus.Subscribe(eventbus.KindConnectionDisconnected, func(evt eventbus.Event) {
		p := evt.Payload.(eventbus.ConnectionPayload)
		log.WithFields(logrus.Fields{"transport": p.Transport, "reason": p.Reason}).Warn("device link disconnected")
	})
	bus.Subscribe(eventbus.KindPosition, func(evt eventbus.Event) {
		p := evt.Payload.(eventbus.PositionPayload)
		log.WithFields(logrus.Fields{"lat": p.Latitude, "lon": p.Longitude, "quality": position.FixQuality(p.Quality).String()}).Debug("position update")
	})
}

