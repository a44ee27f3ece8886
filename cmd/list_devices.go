package cmd

import (
	"bytes"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/ospray/hdospray-sub000/backend"
	"github.com/urfave/cli"
)

// Features reported by list-devices.
var knownFeatures = []string{backend.FeatureDenoiser}

// List registered backend devices. Each device is opened with its default
// arguments to query the features it supports.
func ListDevices(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader(append([]string{"Device", "Status"}, knownFeatures...))

	names := backend.Devices()
	for _, name := range names {
		row := []string{name, "ok"}
		dev, err := backend.Open(name, nil)
		if err != nil {
			row[1] = err.Error()
			for range knownFeatures {
				row = append(row, "-")
			}
			table.Append(row)
			continue
		}
		for _, feature := range knownFeatures {
			row = append(row, fmt.Sprintf("%t", dev.Supports(feature)))
		}
		dev.Close()
		table.Append(row)
	}

	table.Render()
	logger.Noticef("%d registered device(s)\n%s", len(names), buf.String())
	return nil
}
