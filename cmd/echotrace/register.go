package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"echotrace/config"
	srv "echotrace/internal/server"
	"echotrace/internal/service"
	"echotrace/internal/transcript"
)

// loadTranscript reads a transcription result JSON file and extracts the
// usable transcript.
func loadTranscript(path string) (transcript.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return transcript.Transcript{}, err
	}
	var res transcript.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return transcript.Transcript{}, fmt.Errorf("parse transcription %s: %w", path, err)
	}
	return res.Transcript()
}

func registerCMD() *cobra.Command {
	var cfgPath string
	var source string

	var register = &cobra.Command{
		Use:   "register <transcription.json>",
		Short: "Register a reference recording's transcription",
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
			res, err := app.Service.RegisterReference(ctx, tr, service.ReferenceMeta{Source: source})
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(res)
		},
	}
	register.Flags().StringVar(&source, "source", "", "reference source identifier")
	register.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return register
}
