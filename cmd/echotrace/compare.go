package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"echotrace/config"
	srv "echotrace/internal/server"
)

// resolveThreshold keeps an explicitly passed value, including 0, and only
// falls back to the configured default when the flag was never set.
func resolveThreshold(flagSet bool, flagValue, fallback float64) float64 {
	if flagSet {
		return flagValue
	}
	return fallback
}

func compareCMD() *cobra.Command {
	var cfgPath string
	var threshold float64

	var compare = &cobra.Command{
		Use:   "compare <transcription.json>",
		Short: "Locate a candidate transcription's content in the registered reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			tr, err := loadTranscript(args[0])
			if err != nil {
				return err
			}

			ctx := context.Background()
			app, err := srv.Build(ctx, cfg)
			if err != nil {
				return err
			}
			threshold = resolveThreshold(cmd.Flags().Changed("threshold"), threshold, app.DefaultThreshold)
			res, err := app.Service.Compare(ctx, tr, threshold)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(res)
		},
	}
	compare.Flags().Float64Var(&threshold, "threshold", 0, "similarity threshold (default from config)")
	compare.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return compare
}
