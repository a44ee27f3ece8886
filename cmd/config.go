package cmd

import (
	"github.com/ospray/hdospray-sub000/config"
	"github.com/ospray/hdospray-sub000/log"
	"github.com/urfave/cli"
)

// GlobalFlags are shared by every command. Each flag can also be set
// through its HDOSPRAY_* environment variable.
var GlobalFlags = []cli.Flag{
	cli.BoolFlag{
		Name:  "v",
		Usage: "enable verbose logging",
	},
	cli.BoolFlag{
		Name:  "vv",
		Usage: "enable even more verbose logging",
	},
	cli.StringFlag{
		Name:   "log-level",
		Usage:  "log level: debug, info, notice, warning or error",
		EnvVar: "HDOSPRAY_LOG_LEVEL",
	},
}

func configFlags() []cli.Flag {
	def := config.Default()
	return []cli.Flag{
		cli.StringFlag{
			Name:   "device, d",
			Value:  def.Device,
			Usage:  "backend device name",
			EnvVar: "HDOSPRAY_DEVICE",
		},
		cli.StringSliceFlag{
			Name:   "device-arg",
			Value:  &cli.StringSlice{},
			Usage:  "device init argument in key=value form",
			EnvVar: "HDOSPRAY_DEVICE_ARGS",
		},
		cli.Float64Flag{
			Name:   "target-fps",
			Value:  def.InteractiveTargetFPS,
			Usage:  "frame rate the interactive resolution scale aims for",
			EnvVar: "HDOSPRAY_TARGET_FPS",
		},
		cli.Float64Flag{
			Name:   "initial-scale",
			Value:  def.InitialInteractiveScale,
			Usage:  "interactive resolution divisor used before the first measurement",
			EnvVar: "HDOSPRAY_INITIAL_SCALE",
		},
		cli.Float64Flag{
			Name:   "min-scale",
			Value:  def.MinInteractiveScale,
			Usage:  "smallest interactive resolution divisor",
			EnvVar: "HDOSPRAY_MIN_SCALE",
		},
		cli.Float64Flag{
			Name:   "max-scale",
			Value:  def.MaxInteractiveScale,
			Usage:  "largest interactive resolution divisor",
			EnvVar: "HDOSPRAY_MAX_SCALE",
		},
		cli.IntFlag{
			Name:   "interactive-depth",
			Value:  def.InteractiveMaxDepth,
			Usage:  "path depth limit while interacting",
			EnvVar: "HDOSPRAY_INTERACTIVE_DEPTH",
		},
		cli.BoolFlag{
			Name:   "depth-every-frame",
			Usage:  "resolve depth outputs for every frame instead of the first sample only",
			EnvVar: "HDOSPRAY_DEPTH_EVERY_FRAME",
		},
	}
}

// Build the session configuration from the command flags.
func configFromContext(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	cfg.Device = ctx.String("device")
	cfg.DeviceArgs = ctx.StringSlice("device-arg")
	cfg.InteractiveTargetFPS = ctx.Float64("target-fps")
	cfg.InitialInteractiveScale = ctx.Float64("initial-scale")
	cfg.MinInteractiveScale = ctx.Float64("min-scale")
	cfg.MaxInteractiveScale = ctx.Float64("max-scale")
	cfg.InteractiveMaxDepth = ctx.Int("interactive-depth")
	if level, err := log.ParseLevel(ctx.GlobalString("log-level")); err == nil {
		cfg.LogLevel = level
	}
	if ctx.Bool("depth-every-frame") {
		cfg.DepthResolve = config.DepthResolveEveryFrame
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
