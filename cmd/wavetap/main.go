package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"github.com/wavetap/wavetap/cmd/wavetap/config"
	"github.com/wavetap/wavetap/internal/archive"
	"github.com/wavetap/wavetap/internal/capture"
	"github.com/wavetap/wavetap/internal/conditioner"
	"github.com/wavetap/wavetap/internal/devicecatalog"
	"github.com/wavetap/wavetap/internal/endpoint"
	"github.com/wavetap/wavetap/internal/session"
	"github.com/wavetap/wavetap/internal/transport"
	"github.com/wavetap/wavetap/internal/utils"
)

func main() {
	configFilePath := flag.String("configFilePath", "config.yaml", "Set the file path to the config file.")
	listDevices := flag.Bool("listDevices", false, "List input-capable devices with their scores, then exit.")
	deviceIndex := flag.Int("device", -1, "Capture from an explicit device index instead of auto-selecting.")
	flag.Parse()

	config.LoadConfig(*configFilePath)
	logFilePointer, err := utils.ConfigureDefaultLogger(
		viper.GetString("loglevel"),
		viper.GetString("logfile"),
		slog.HandlerOptions{},
	)
	if err != nil {
		slog.Error("error while configuring default logger", "err", err)
		panic(err)
	}
	if logFilePointer != nil {
		defer logFilePointer.Close()
	}

	// --------------------------------------------------------------------------------

	backend := capture.Detect(slog.Default())
	defer backend.Close()

	catalog := devicecatalog.NewCatalog(backend, slog.Default())

	if *listDevices {
		printDeviceListing(catalog)
		return
	}

	device, err := chooseDevice(catalog, *deviceIndex)
	if err != nil {
		if errors.Is(err, devicecatalog.ErrNoSystemAudioDevice) {
			printTroubleshooting(catalog)
			return
		}
		slog.Error("device selection failed", "err", err)
		os.Exit(1)
	}

	streamConfig, stream, err := capture.Negotiate(backend, device, viper.GetInt("preferredchannels"), slog.Default())
	if err != nil {
		// Exhaustive negotiation failure is terminal for this device; the
		// error names the device and every candidate configuration tried.
		slog.Error("stream negotiation failed", "err", err)
		fmt.Fprintf(os.Stderr, "%v\nTry another device: wavetap -listDevices\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resolver := endpoint.NewResolver(viper.GetString("host"), viper.GetInt("port"), slog.Default())
	dst := resolver.Resolve(ctx)

	sender, err := transport.NewUDPSender(dst, slog.Default())
	if err != nil {
		stream.Close()
		slog.Error("failed to open transport", "err", err)
		os.Exit(1)
	}

	targetRate := viper.GetInt("targetrate")
	adapter := conditioner.NewRateAdapter(streamConfig.FrameSize, streamConfig.SampleRate, targetRate)

	var tap *archive.WAVArchive
	if path := viper.GetString("archivefile"); path != "" {
		wireRate := streamConfig.SampleRate
		if adapter.Active() {
			wireRate = targetRate
		}
		tap, err = archive.NewWAVArchive(path, wireRate, slog.Default())
		if err != nil {
			stream.Close()
			sender.Close()
			slog.Error("failed to open archive tap", "err", err)
			os.Exit(1)
		}
	}

	cond := conditioner.New(streamConfig.FrameSize, float32(viper.GetFloat64("gain")))
	sess := session.New(streamConfig, stream, sender, cond, adapter, tap, slog.Default())

	fmt.Printf("Capturing %q at %dHz/%dch, streaming to %s\n",
		device.Name, streamConfig.SampleRate, streamConfig.Channels, dst)
	fmt.Println("Play audio to feed the visualizer. Ctrl+C to stop.")

	go renderActivityMeter(ctx, sess)

	if err := sess.Run(ctx); err != nil {
		slog.Error("capture loop failed", "err", err)
		os.Exit(1)
	}
	fmt.Println("\nStreaming stopped")
}

// chooseDevice picks an explicit index when one was given (flag first, then
// config), otherwise auto-selects by score.
func chooseDevice(catalog *devicecatalog.Catalog, flagIndex int) (devicecatalog.Descriptor, error) {
	index := flagIndex
	if index < 0 {
		index = viper.GetInt("deviceindex")
	}
	if index >= 0 {
		return catalog.SelectIndex(index)
	}
	return catalog.Select()
}

func printDeviceListing(catalog *devicecatalog.Catalog) {
	inputDevices, err := catalog.InputDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not enumerate devices: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Input-capable audio devices:")
	for _, d := range inputDevices {
		marker := "  "
		if devicecatalog.Score(d) > 0 {
			marker = "* "
		}
		fmt.Printf("%sDevice %d: %s (%d in / %d out channels)\n",
			marker, d.Index, d.Name, d.MaxInputChannels, d.MaxOutputChannels)
	}
	fmt.Println("\nDevices marked * look like system-audio (loopback) sources.")
}

// printTroubleshooting handles the no-candidate outcome: show what exists and
// how to enable a loopback device, then leave the choice to the operator.
func printTroubleshooting(catalog *devicecatalog.Catalog) {
	fmt.Println("No system audio capture device found.")
	fmt.Println()
	printDeviceListing(catalog)
	fmt.Println()
	fmt.Println("To enable system audio capture on Windows:")
	fmt.Println("  1. Right-click the speaker icon, open Sounds, Recording tab")
	fmt.Println("  2. Right-click an empty area and enable Show Disabled Devices")
	fmt.Println("  3. Enable 'Stereo Mix' (or a similar loopback device)")
	fmt.Println()
	fmt.Println("Or pick any input device explicitly: wavetap -device <index>")
}

// renderActivityMeter paints a one-line level meter from the session's status
// snapshot. Pure presentation; the core never formats its own output.
func renderActivityMeter(ctx context.Context, sess *session.Session) {
	const meterWidth = 30

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		status := sess.Status()
		if status.Silent {
			fmt.Printf("\rwaiting for audio %s 0.0000", strings.Repeat(".", meterWidth))
			continue
		}

		bars := int(status.ActivityLevel * float32(meterWidth))
		if bars > meterWidth {
			bars = meterWidth
		}
		meter := strings.Repeat("#", bars) + strings.Repeat(".", meterWidth-bars)
		fmt.Printf("\rstreaming        %s %.4f", meter, status.ActivityLevel)
	}
}
