package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/posture.report/internal/alert"
	"github.com/banshee-data/posture.report/internal/config"
	"github.com/banshee-data/posture.report/internal/db"
	"github.com/banshee-data/posture.report/internal/depth"
	"github.com/banshee-data/posture.report/internal/monitor"
	"github.com/banshee-data/posture.report/internal/pipeline"
	"github.com/banshee-data/posture.report/internal/posture"
	"github.com/banshee-data/posture.report/internal/publish"
	"github.com/banshee-data/posture.report/internal/sensor"
	"github.com/banshee-data/posture.report/internal/version"
	"github.com/banshee-data/posture.report/internal/wearable"
)

var (
	listen       = flag.String("listen", ":8080", "HTTP listen address")
	dbPath       = flag.String("db", "posture.db", "Path to the sqlite database")
	configFile   = flag.String("config", "", "Path to a tuning JSON file (defaults apply when empty)")
	devMode      = flag.Bool("dev", false, "Run against the synthetic scene")
	replayFile   = flag.String("replay", "", "Replay a recording instead of the live sensor")
	replayRate   = flag.Float64("replay-rate", 1, "Replay speed multiplier; 0 plays as fast as possible")
	replayLoop   = flag.Bool("replay-loop", false, "Restart the replay when it ends")
	recordFile   = flag.String("record", "", "Record incoming frames to this file")
	mqttBroker   = flag.String("mqtt-broker", "", "MQTT broker URL, e.g. tcp://localhost:1883 (disabled when empty)")
	mqttTopic    = flag.String("mqtt-topic", publish.DefaultTopicPrefix, "MQTT topic prefix")
	wearablePort = flag.String("wearable-port", "", "Serial port of the wearable accelerometer")
	wearableBaud = flag.Int("wearable-baud", 9600, "Baud rate of the wearable serial link")
	wearableFile = flag.String("wearable-file", "", "File holding the wearable state (0 ok, 1 fall)")
	callerCmd    = flag.String("caller", "", "Program launched to call a caregiver when an alert is raised")
	plotsDir     = flag.String("plots", "", "Write pose PNG plots under this directory on shutdown")
	showVersion  = flag.Bool("version", false, "Print version information and exit")
)

// envPrefix prefixes the environment variable that overrides each flag,
// e.g. POSTURE_MQTT_BROKER for -mqtt-broker.
const envPrefix = "POSTURE_"

func envName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// applyEnvOverrides sets every flag not given on the command line from its
// environment variable, if present.
func applyEnvOverrides(fs *flag.FlagSet, lookup func(string) (string, bool)) error {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var errs []error
	fs.VisitAll(func(f *flag.Flag) {
		if set[f.Name] {
			return
		}
		if v, ok := lookup(envName(f.Name)); ok {
			if err := fs.Set(f.Name, v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", envName(f.Name), err))
			}
		}
	})
	return errors.Join(errs...)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// a missing .env is fine; the process environment still applies
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}
	if err := applyEnvOverrides(flag.CommandLine, os.LookupEnv); err != nil {
		log.Fatalf("invalid environment override: %v", err)
	}

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(flag.Args()[1:], *dbPath, os.Stdout); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("posture: %v", err)
	}
}

func loadTuning() (*config.TuningConfig, error) {
	if *configFile == "" {
		return config.EmptyTuningConfig(), nil
	}
	return config.LoadTuningConfig(*configFile)
}

func run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tuning, err := loadTuning()
	if err != nil {
		return err
	}
	tuningJSON, err := json.Marshal(tuning)
	if err != nil {
		return fmt.Errorf("failed to encode tuning: %w", err)
	}

	processor, err := depth.NewProcessor(tuning.ProcessorConfig(), tuning.Mapper())
	if err != nil {
		return err
	}
	classifier, err := posture.NewClassifier(tuning.ClassifierConfig())
	if err != nil {
		return err
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	source, sourceName := selectSource(tuning)
	session, err := database.CreateSession(sourceName, string(tuningJSON))
	if err != nil {
		return err
	}
	log.Printf("session %s started (source=%s)", session.ID, sourceName)
	defer func() {
		if err := database.EndSession(session.ID); err != nil {
			log.Printf("failed to end session: %v", err)
		}
	}()

	var wg sync.WaitGroup
	// results fan out to every sink; the web server is appended once it exists
	sinks := pipeline.MultiSink{}

	var publisher alert.Publisher
	if *mqttBroker != "" {
		client, err := publish.Dial(*mqttBroker, "posture-"+session.ID)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		mqttSink := publish.NewMQTTSink(client, publish.Options{
			SessionID:    session.ID,
			TopicPrefix:  *mqttTopic,
			PoseInterval: tuning.GetLogInterval(),
		})
		sinks = append(sinks, mqttSink)
		publisher = mqttSink
	}

	reader, err := openWearable(ctx, &wg)
	if err != nil {
		return err
	}
	caller, err := parseCaller(*callerCmd)
	if err != nil {
		return err
	}
	alerts := alert.NewMonitor(alert.Config{
		Threshold: tuning.GetFallAlertThreshold(),
		Cooldown:  tuning.GetAlertCooldown(),
	}, alert.Options{
		SessionID: session.ID,
		Wearable:  reader,
		Caller:    caller,
		Store:     database,
		Publisher: publisher,
	})

	var plots *monitor.PosePlotter
	if *plotsDir != "" {
		plots = monitor.NewPosePlotter(nil)
		dir := monitor.MakePlotOutputDir(*plotsDir, *replayFile, time.Now())
		if err := plots.Start(dir); err != nil {
			return err
		}
		sinks = append(sinks, plots)
	}

	runtime, err := pipeline.NewRuntime(pipeline.Options{
		SessionID:   session.ID,
		Processor:   processor,
		Classifier:  classifier,
		Alerts:      alerts,
		Poses:       database,
		Envelopes:   database,
		Sink:        &sinks,
		LogInterval: tuning.GetLogInterval(),
	})
	if err != nil {
		return err
	}

	ws, err := monitor.NewWebServer(monitor.WebServerConfig{
		Address: *listen,
		Runtime: runtime,
		DB:      database,
		Tuning:  tuning,
	})
	if err != nil {
		return err
	}
	sinks = append(sinks, ws)
	if cs, ok := source.(sensor.ColorSource); ok {
		cs.OnColor(runtime.OfferColor)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("web server: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := alerts.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("alert monitor: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runtime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("pipeline: %v", err)
		}
		log.Print("pipeline routine terminated")
	}()

	onDepth, onSkeleton := runtime.OfferDepth, runtime.OfferSkeleton
	if *recordFile != "" {
		rec, err := sensor.CreateRecorder(*recordFile)
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Printf("failed to close recording: %v", err)
			}
			log.Printf("recorded %d frames to %s", rec.Frames(), *recordFile)
		}()
		onDepth, onSkeleton = rec.Tap(onDepth, onSkeleton)
	}

	srcErr := source.Run(ctx, onDepth, onSkeleton)
	if srcErr != nil && !errors.Is(srcErr, context.Canceled) {
		log.Printf("source stopped: %v", srcErr)
		cancel()
	}
	// keep serving after a replay ends so the results can be inspected
	<-ctx.Done()
	wg.Wait()

	if plots != nil {
		plots.Stop()
		n, err := plots.GeneratePlots()
		if err != nil {
			log.Printf("failed to generate plots: %v", err)
		} else {
			log.Printf("wrote %d plots to %s", n, plots.OutputDir())
		}
	}
	log.Printf("graceful shutdown complete")
	if errors.Is(srcErr, context.Canceled) {
		return nil
	}
	return srcErr
}

// selectSource picks the frame source from the flags. Without a replay the
// synthetic scene stands in for the sensor.
func selectSource(tuning *config.TuningConfig) (sensor.Source, string) {
	if *replayFile != "" {
		r := sensor.NewReplay(*replayFile)
		r.Rate = *replayRate
		r.Loop = *replayLoop
		return r, "replay:" + *replayFile
	}
	if !*devMode {
		log.Print("no live sensor driver available, using the synthetic scene")
	}
	g := sensor.NewSynthetic(tuning.GetDepthWidth(), tuning.GetDepthHeight())
	g.ColorWidth, g.ColorHeight = tuning.GetColorWidth(), tuning.GetColorHeight()
	return g, "synthetic"
}

// parseCaller splits the -caller command line into a program and its
// arguments. An empty command disables the caller.
func parseCaller(cmd string) (alert.Caller, error) {
	if cmd == "" {
		return nil, nil
	}
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return nil, fmt.Errorf("caller command %q names no program", cmd)
	}
	return alert.CommandCaller{Program: fields[0], Args: fields[1:]}, nil
}

// openWearable returns the configured wearable reader, starting the serial
// monitor on wg when a port is given.
func openWearable(ctx context.Context, wg *sync.WaitGroup) (wearable.Reader, error) {
	switch {
	case *wearablePort != "":
		r, err := wearable.OpenSerialReader(*wearablePort, wearable.PortOptions{BaudRate: *wearableBaud})
		if err != nil {
			return nil, err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer r.Close()
			if err := r.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("wearable monitor: %v", err)
			}
		}()
		// a blocked read only returns once the port is closed
		go func() {
			<-ctx.Done()
			r.Close()
		}()
		return r, nil
	case *wearableFile != "":
		return wearable.FileReader{Path: *wearableFile}, nil
	}
	return nil, nil
}
