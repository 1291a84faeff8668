// Kira - voice assistant for the Zenbo robot.
// Listens on the host microphone, answers through the robot's face and the
// host speaker, and serves a web dashboard.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/teslashibe/go-kira/internal/config"
	"github.com/teslashibe/go-kira/internal/log"
	"github.com/teslashibe/go-kira/pkg/audioio"
	"github.com/teslashibe/go-kira/pkg/events"
	"github.com/teslashibe/go-kira/pkg/kira"
)

func main() {
	envFile := flag.StringP("env", "e", ".env", "Env file path")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	logLevel := flag.StringP("log", "l", "", "Log level (overrides LOG_LEVEL)")
	robotURL := flag.String("robot-url", "", "Robot API base URL (overrides ROBOT_API_URL)")
	eventsURL := flag.String("events-url", "", "Robot event stream URL (overrides ROBOT_EVENTS_URL)")
	transport := flag.String("events-transport", "", "Event stream transport: websocket or sse")
	audio := flag.String("audio", "", "Audio backend: auto, portaudio or mock")
	addr := flag.StringP("addr", "a", "", "Web dashboard listen address")
	static := flag.String("static", "", "Directory with the built web front-end")
	noListen := flag.Bool("no-listen", false, "Do not open the microphone at startup")
	noTools := flag.Bool("no-tools", false, "Do not offer robot-side tools to the model")
	flag.Parse()

	settings, err := config.Load(*envFile)
	if err != nil {
		log.Init("info")
		log.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfg := kira.FromSettings(settings)
	cfg.Debug = *debug
	switch {
	case *logLevel != "":
		cfg.LogLevel = *logLevel
	case *debug:
		cfg.LogLevel = "debug"
	}
	if *robotURL != "" {
		cfg.RobotAPIURL = *robotURL
	}
	if *eventsURL != "" {
		cfg.RobotEventsURL = *eventsURL
	}
	if *transport != "" {
		cfg.EventsTransport = events.Transport(*transport)
	}
	if *audio != "" {
		cfg.AudioBackend = audioio.Backend(*audio)
	}
	if *addr != "" {
		cfg.WebAddr = *addr
	}
	if *static != "" {
		cfg.StaticDir = *static
	}
	if *noListen {
		cfg.AutoListen = false
	}
	if *noTools {
		cfg.RemoteTools = false
	}

	log.Init(cfg.LogLevel)

	app, err := kira.New(cfg, kira.WithLogger(log.L()))
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	if err := app.Init(); err != nil {
		log.Error("initialization failed", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		os.Exit(1)
	}
}
