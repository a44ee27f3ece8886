package main

import (
	"os"

	_ "github.com/ospray/hdospray-sub000/backend/soft"
	"github.com/ospray/hdospray-sub000/cmd"
	"github.com/ospray/hdospray-sub000/log"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "hdospray"
	app.Usage = "sync scenes to a ray tracing backend and render them progressively"
	app.Version = "0.1.0"
	app.Flags = cmd.GlobalFlags
	app.Commands = []cli.Command{
		{
			Name:   "list-devices",
			Usage:  "list registered backend devices",
			Action: cmd.ListDevices,
		},
		{
			Name:   "settings",
			Usage:  "list render settings and their defaults",
			Action: cmd.ShowSettings,
		},
		{
			Name:      "scene-info",
			Usage:     "print a summary of a wavefront obj scene",
			ArgsUsage: "scene_file.obj",
			Action:    cmd.ShowSceneInfo,
		},
		{
			Name:   "render",
			Usage:  "render scene",
			Action: nil,
			Subcommands: []cli.Command{
				{
					Name:  "frame",
					Usage: "render single frame",
					Description: `
Sync the scene to the backend and accumulate samples until the frame
converges. The color output is written to a PNG file.`,
					Flags:  cmd.RenderFlags(),
					Action: cmd.RenderFrame,
				},
				{
					Name:  "turntable",
					Usage: "orbit the camera around the scene",
					Description: `
Move the camera around the scene for a number of frames. Frames are rendered
at reduced resolution while the camera moves; once it stops the pass settles
and converges at full resolution.`,
					Flags: append(cmd.RenderFlags(), cli.IntFlag{
						Name:  "frames",
						Value: 36,
						Usage: "number of camera positions",
					}),
					Action: cmd.RenderTurntable,
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.New("hdospray").Error(err)
		os.Exit(1)
	}
}
