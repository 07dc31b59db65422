package cmd

import (
	"encoding/json"
	"fmt"
	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"
	"movement-analysis/config"
	server2 "movement-analysis/server"
	"movement-analysis/service"
	"path/filepath"
)

const progressTemplate = `{{ string . "prefix" }} {{counters . "%s/%s" "%s/?"}} {{bar . }} {{percent . "%.01f%%" "?"}} {{etime . "%s elapsed"}}`

// progressBar adapts a terminal progress bar to service.Progress.
type progressBar struct {
	prefix string
	bar    *pb.ProgressBar
}

func (p *progressBar) Start(total int) {
	p.bar = pb.ProgressBarTemplate(progressTemplate).New(total)
	p.bar.Set("prefix", p.prefix)
	p.bar.Start()
}

func (p *progressBar) Advance() {
	p.bar.Increment()
}

func (p *progressBar) Finish() {
	p.bar.Finish()
}

func analyze(config *config.Config) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "analyze [video...]",
		Short: "analyze local videos and print keypoints as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := server2.LoggerContext(config)

			analyzer, err := server2.NewAnalyzer(config)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			for _, path := range args {
				var opts []service.AnalyzeOption
				if !quiet {
					opts = append(opts, service.WithProgress(&progressBar{prefix: filepath.Base(path)}))
				}

				result, err := analyzer.Analyze(ctx, path, opts...)
				if err != nil {
					return fmt.Errorf("analyze %s: %w", path, err)
				}

				if err := enc.Encode(service.NewUploadResponse(filepath.Base(path), result)); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not show progress")
	return cmd
}
