// robot-sim serves the Zenbo robot's HTTP API and event stream on one port,
// so Kira can be developed without the robot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/teslashibe/go-kira/internal/log"
	"github.com/teslashibe/go-kira/pkg/robotsim"
)

func main() {
	addr := flag.StringP("addr", "a", robotsim.DefaultAddr, "Listen address")
	speakRate := flag.Duration("speak-rate", 50*time.Millisecond, "Simulated speech duration per character")
	logLevel := flag.StringP("log", "l", "info", "Log level")
	debug := flag.Bool("debug", false, "Log every HTTP request")
	flag.Parse()

	if *debug {
		*logLevel = "debug"
	}
	log.Init(*logLevel)

	sim := robotsim.New(
		robotsim.WithAddr(*addr),
		robotsim.WithSpeakRate(*speakRate),
		robotsim.WithDebug(*debug),
		robotsim.WithLogger(log.L()),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := sim.Run(ctx, nil); err != nil {
		log.Error("simulator stopped", "error", err)
		os.Exit(1)
	}
}
