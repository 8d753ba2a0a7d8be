// Package cli contains the swervesim command line application.
package cli

import (
	"io"
	"time"

	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	generalFlagConfig = "config"
	generalFlagDebug  = "debug"

	runFlagDuration      = "duration"
	runFlagVX            = "vx"
	runFlagVY            = "vy"
	runFlagOmegaDeg      = "omega-deg"
	runFlagStartX        = "start-x"
	runFlagStartY        = "start-y"
	runFlagStartDeg      = "start-heading-deg"
	runFlagSlip          = "slip"
	runFlagGyroDrift     = "gyro-drift-deg"
	runFlagCameraLatency = "camera-latency"
	runFlagCameraNoise   = "camera-noise"
	runFlagPrintEvery    = "print-every"
	runFlagXLock         = "xlock"
	runFlagPlot          = "plot"
)

var app = &cli.App{
	Name:            "swervesim",
	Usage:           "drive a simulated swerve robot and watch the pose estimate",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    generalFlagConfig,
			Aliases: []string{"c"},
			Usage:   "load configuration from `FILE` (.json, .yaml or .yml)",
		},
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:   "check-config",
			Usage:  "validate a configuration and print it with defaults filled in",
			Action: CheckConfigAction,
		},
		{
			Name:      "run",
			Usage:     "run the control loop against simulated hardware",
			UsageText: "swervesim [global options] run [command options]",
			Flags: []cli.Flag{
				&cli.DurationFlag{
					Name:  runFlagDuration,
					Usage: "how long to drive",
					Value: 5 * time.Second,
				},
				&cli.Float64Flag{
					Name:  runFlagVX,
					Usage: "forward speed in m/s",
					Value: 1,
				},
				&cli.Float64Flag{
					Name:  runFlagVY,
					Usage: "leftward speed in m/s",
				},
				&cli.Float64Flag{
					Name:  runFlagOmegaDeg,
					Usage: "rotation rate in deg/s, counter-clockwise",
				},
				&cli.Float64Flag{
					Name:  runFlagStartX,
					Usage: "starting x on the field in meters",
					Value: 2,
				},
				&cli.Float64Flag{
					Name:  runFlagStartY,
					Usage: "starting y on the field in meters",
					Value: 4,
				},
				&cli.Float64Flag{
					Name:  runFlagStartDeg,
					Usage: "starting heading in degrees",
				},
				&cli.Float64Flag{
					Name:  runFlagSlip,
					Usage: "fraction of wheel travel lost to slip, in [0, 1]",
				},
				&cli.Float64Flag{
					Name:  runFlagGyroDrift,
					Usage: "gyro drift in deg/s",
				},
				&cli.DurationFlag{
					Name:  runFlagCameraLatency,
					Usage: "processing latency of every simulated camera",
					Value: 30 * time.Millisecond,
				},
				&cli.Float64Flag{
					Name:  runFlagCameraNoise,
					Usage: "standard deviation of camera position noise in meters",
				},
				&cli.IntFlag{
					Name:  runFlagPrintEvery,
					Usage: "print the estimate every N cycles, 0 to only print the summary",
					Value: 25,
				},
				&cli.BoolFlag{
					Name:  runFlagXLock,
					Usage: "lock the wheels in an X when done",
				},
				&cli.StringFlag{
					Name:  runFlagPlot,
					Usage: "save the true, estimated and odometry paths to `FILE` (.png, .svg or .pdf)",
				},
			},
			Action: RunAction,
		},
	},
}

// NewApp returns the app with its output directed to the given writers.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
