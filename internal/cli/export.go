package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/tramites/internal/changelog"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	DataDir string
	Output  string
}

// ExportResult is the structured output of the export command.
type ExportResult struct {
	Path          string `json:"path" yaml:"path"`
	Modifications int    `json:"modifications" yaml:"modifications"`
	Events        int    `json:"events" yaml:"events"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export both change logs to an Excel workbook",
		Long: `Write modificaciones.csv and adiciones.csv from the data directory into a
single .xlsx workbook, one sheet per log. Missing logs export as sheets with
only a header row.

Example:
  tramites export -o cambios.xlsx
  tramites export --data-dir ./data -o /tmp/cambios.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "data directory (default from config)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output .xlsx path (required)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	dir := opts.DataDir
	if dir == "" {
		cfg, err := opts.loadConfig()
		if err != nil {
			return err
		}
		dir = cfg.Data.Dir
	}

	var sheets []changelog.Sheet
	for _, t := range []changelog.Table{changelog.Modifications, changelog.Events} {
		rows, err := changelog.Read(filepath.Join(dir, t.FileName()), t)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read "+t.FileName(), err)
		}
		sheets = append(sheets, changelog.Sheet{Table: t, Rows: rows})
	}

	if err := changelog.ExportXLSX(opts.Output, sheets...); err != nil {
		return WrapExitError(ExitCommandError, "failed to export", err)
	}

	res := ExportResult{Path: opts.Output, Modifications: len(sheets[0].Rows), Events: len(sheets[1].Rows)}
	f := opts.formatter(cmd)
	if f.Structured() {
		return f.Success(res)
	}
	return f.Success(fmt.Sprintf("Wrote %s (%d modifications, %d events)", res.Path, res.Modifications, res.Events))
}
