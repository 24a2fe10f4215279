package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mirrorml/internal/app"
	"mirrorml/internal/config"
	"mirrorml/internal/logger"
)

type options struct {
	DetectionModel   string
	RecognitionModel string
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "mirrorml",
		Short:         "Face detection and recognition bridge for the mirror camera",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DetectionModel, "detection_model", "", "Path to the face detection model.")
	cmd.Flags().StringVar(&opts.RecognitionModel, "recognition_model", "", "Path to the face recognition (image classification) model.")
	_ = cmd.MarkFlagRequired("detection_model")
	_ = cmd.MarkFlagRequired("recognition_model")

	return cmd
}

func run(cmd *cobra.Command, opts options) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.DetectionModel = opts.DetectionModel
	cfg.RecognitionModel = opts.RecognitionModel

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return err
	}
	log.Info("running server as main")

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Error("Failed to start server: %v", err)
		return err
	}

	return application.Run(cmd.Context())
}
