package cmd

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/ospray/hdospray-sub000/settings"
	"github.com/urfave/cli"
)

// Display the render settings and their defaults.
func ShowSettings(ctx *cli.Context) error {
	setupLogging(ctx)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Setting", "Default", "Description"})
	for _, desc := range settings.NewStore().Describe() {
		table.Append([]string{
			string(desc.Key),
			fmt.Sprintf("%v", desc.Default),
			desc.Usage,
		})
	}

	table.Render()
	logger.Noticef("render settings\n%s", buf.String())
	return nil
}

// Apply key=value overrides from the --set flag.
func applySettings(store *settings.Store, overrides []string) error {
	for _, kv := range overrides {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("malformed setting %q; expected key=value", kv)
		}
		if err := store.Parse(settings.Key(strings.TrimSpace(key)), strings.TrimSpace(value)); err != nil {
			return err
		}
	}
	return nil
}
