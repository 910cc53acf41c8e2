// Command ntrip-avg reads GGA fixes from a GNSS receiver's serial device
// link, accumulates them into a static base-station position, and writes
// the result to a JSON file. Adapted from the teacher's cmd/ntrip-avg,
// which averaged samples pulled from an NTRIP stream; a base station
// survey-in averages the receiver's own autonomous fixes, so this version
// reads from internal/devicelink.SerialLink instead. NMEA decoding is
// internal/nmea.Parser and the averaging is internal/position.Averager,
// generalized from the teacher's PositionAverager over Fix.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bramburn/rtkcore/internal/devicelink"
	"github.com/bramburn/rtkcore/internal/eventbus"
	"github.com/bramburn/rtkcore/internal/nmea"
	"github.com/bramburn/rtkcore/internal/position"
	"github.com/bramburn/rtkcore/internal/telemetry"
)

// surveyResult is the on-disk shape written to outputFile, grounded on
// the teacher's SavePositionWithStats JSON output.
type surveyResult struct {
	Latitude               float64         `json:"latitude"`
	Longitude              float64         `json:"longitude"`
	Altitude               float64         `json:"altitude"`
	LatitudeStdDev         float64         `json:"latitudeStdDev"`
	LongitudeStdDev        float64         `json:"longitudeStdDev"`
	AltitudeStdDev         float64         `json:"altitudeStdDev"`
	SampleCount            int             `json:"sampleCount"`
	DurationSeconds        float64         `json:"durationSeconds"`
	Timestamp              time.Time       `json:"timestamp"`
	FixQualityDistribution map[string]int  `json:"fixQualityDistribution"`
}

func main() {
	portName := flag.String("port", "", "serial port the GNSS receiver is attached to")
	baudRate := flag.Int("baud", 38400, "serial baud rate")
	outputFile := flag.String("output", "", "output file path (default: base_position_avg.json beside the executable)")
	minFixQuality := flag.Int("min-fix", int(position.FixAutonomous), "minimum fix quality to accept")
	sampleCount := flag.Int("samples", 60, "number of samples to collect")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall timeout for the survey")
	flag.Parse()

	if *portName == "" {
		fmt.Println("Error: -port is required")
		flag.Usage()
		os.Exit(1)
	}
	if *outputFile == "" {
		execPath, err := os.Executable()
		if err != nil {
			execPath = "."
		}
		*outputFile = filepath.Join(filepath.Dir(execPath), "base_position_avg.json")
	}

	serialCfg := devicelink.DefaultSerialConfig()
	serialCfg.BaudRate = *baudRate
	link, err := devicelink.OpenSerialLink(*portName, serialCfg)
	if err != nil {
		fmt.Printf("Error opening %s: %v\n", *portName, err)
		os.Exit(1)
	}
	defer link.Close()

	log, err := telemetry.New(telemetry.Options{})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	bus := eventbus.New()
	tracker := position.NewTracker()
	parser := nmea.New(bus, tracker, log)
	averager := position.NewAverager(position.FixQuality(*minFixQuality))

	samplesCollected := 0
	done := make(chan struct{})
	var doneClosed bool
	bus.Subscribe(eventbus.KindPosition, func(eventbus.Event) {
		fix, ok := tracker.LastFix()
		if !ok {
			return
		}
		if averager.AddSample(fix) {
			samplesCollected++
			fmt.Printf("Sample %d/%d collected (fix: %s)\r", samplesCollected, *sampleCount, fix.Quality)
			if samplesCollected >= *sampleCount && !doneClosed {
				doneClosed = true
				close(done)
			}
		} else {
			fmt.Printf("Current fix quality: %s (not used)\r", fix.Quality)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived shutdown signal")
		cancel()
	}()

	go func() {
		for {
			data, err := link.Receive()
			if err != nil {
				log.WithError(err).Warn("ntrip-avg: serial read ended")
				return
			}
			parser.Feed(data)
		}
	}()

	fmt.Printf("Reading from %s, collecting up to %d samples (min fix: %s). Press Ctrl+C to stop early.\n",
		*portName, *sampleCount, position.FixQuality(*minFixQuality))

	select {
	case <-done:
	case <-ctx.Done():
		fmt.Println("\nTimeout or cancellation")
	}

	writeResult(averager, *outputFile)
}

func writeResult(averager *position.Averager, outputFile string) {
	if averager.SampleCount() == 0 {
		fmt.Println("\nNo position samples collected.")
		return
	}

	fix, stats, err := averager.Average()
	if err != nil {
		fmt.Printf("\nError averaging position: %v\n", err)
		return
	}

	altitude := 0.0
	if fix.Altitude != nil {
		altitude = *fix.Altitude
	}

	fmt.Println("\nAveraged position:")
	fmt.Printf("  Latitude: %.8f (+/-%.8f)\n", fix.Latitude, stats.LatitudeStdDev)
	fmt.Printf("  Longitude: %.8f (+/-%.8f)\n", fix.Longitude, stats.LongitudeStdDev)
	fmt.Printf("  Altitude: %.2f meters (+/-%.2f)\n", altitude, stats.AltitudeStdDev)
	fmt.Printf("  Sample count: %d over %s\n", stats.SampleCount, stats.Duration)

	dist := make(map[string]int, len(stats.FixQualityDistribution))
	for q, n := range stats.FixQualityDistribution {
		dist[q.String()] = n
	}

	result := surveyResult{
		Latitude:               fix.Latitude,
		Longitude:              fix.Longitude,
		Altitude:               altitude,
		LatitudeStdDev:         stats.LatitudeStdDev,
		LongitudeStdDev:        stats.LongitudeStdDev,
		AltitudeStdDev:         stats.AltitudeStdDev,
		SampleCount:            stats.SampleCount,
		DurationSeconds:        stats.Duration.Seconds(),
		Timestamp:              fix.Timestamp,
		FixQualityDistribution: dist,
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Printf("Error encoding result: %v\n", err)
		return
	}
	if err := os.WriteFile(outputFile, data, 0o644); err != nil {
		fmt.Printf("Error writing %s: %v\n", outputFile, err)
		return
	}
	fmt.Printf("Position saved to %s\n", outputFile)
}
