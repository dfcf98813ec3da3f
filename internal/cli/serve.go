package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/verity/internal/config"
	"github.com/ppiankov/verity/internal/pipeline"
	"github.com/ppiankov/verity/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scan API over HTTP",
	Long: `Serve exposes Verity to browser front ends:
  POST /v1/scan                              annotate posted HTML
  GET  /v1/sessions/:session/regions/:id     region details
  POST /v1/verify                            verify selected text
  POST /v1/feedback                          report a wrong rating
  GET  /healthz, /metrics`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		ctx, cancel := signalContext(0)
		defer cancel()

		// Settings are re-read for every scan so config edits apply without a restart
		p := pipeline.NewPipeline(cfg, config.NewViperSource(v), logger)
		if err := server.New(p, cfg.Server, logger).ListenAndServe(ctx); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, 127.0.0.1:8787)")
	rootCmd.AddCommand(serveCmd)
}
