package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tramites/internal/changelog"
	"github.com/roach88/tramites/internal/diff"
	"github.com/roach88/tramites/internal/harvest"
	"github.com/roach88/tramites/internal/snapshot"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	Timestamp  string
	SchemaPath string
	Resource   string
	Composite  []string
	Structural bool
	Write      bool
	DataDir    string
}

// DiffResult is the structured output of the diff command.
type DiffResult struct {
	Timestamp      string          `json:"timestamp" yaml:"timestamp"`
	Compared       []string        `json:"compared" yaml:"compared"`
	Events         []changelog.Row `json:"events" yaml:"events"`
	Modifications  []changelog.Row `json:"modifications" yaml:"modifications"`
	Failures       []diff.Failure  `json:"failures" yaml:"failures"`
	StructuralOnly int             `json:"structural_only" yaml:"structural_only"`
	Written        *WrittenLogs    `json:"written,omitempty" yaml:"written,omitempty"`
}

// WrittenLogs reports what --write appended.
type WrittenLogs struct {
	Modifications changelog.Stats `json:"modifications" yaml:"modifications"`
	Events        changelog.Stats `json:"events" yaml:"events"`
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <previous.jsonl> <current.jsonl>",
		Short: "Compare two snapshots offline",
		Long: `Compare two stored snapshots and print the changes.

With --write the changes are appended to the change logs in the data
directory exactly as a harvest would, so a snapshot pair can be replayed
into the logs. Re-running the same pair with the same timestamp adds nothing.

Examples:
  tramites diff old/tramites.jsonl tramites.jsonl
  tramites diff a.jsonl b.jsonl --timestamp 2024-05-01T14:05+00:00 --write
  tramites diff a.jsonl b.jsonl --composite requisitos --format json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Timestamp, "timestamp", "", "timestamp stamped on every change (default now, minute precision)")
	cmd.Flags().StringVar(&opts.SchemaPath, "schema", "", "datapackage.json with field types (default from config)")
	cmd.Flags().StringVar(&opts.Resource, "resource", "", "datapackage resource name (default first)")
	cmd.Flags().StringSliceVar(&opts.Composite, "composite", nil, "additional composite field (repeatable)")
	cmd.Flags().BoolVar(&opts.Structural, "structural", false, "report added/removed composite elements")
	cmd.Flags().BoolVar(&opts.Write, "write", false, "append the changes to the change logs")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "directory of the change logs (default from config)")

	return cmd
}

func runDiff(opts *DiffOptions, prevPath, currPath string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.DataDir != "" {
		cfg.Data.Dir = opts.DataDir
	}
	logger, err := opts.newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	schemaPath := opts.SchemaPath
	if schemaPath == "" {
		schemaPath = cfg.SchemaPath()
	}
	resource := opts.Resource
	if resource == "" {
		resource = cfg.Data.Resource
	}
	engine, err := buildEngine(EngineOptions{
		SchemaPath: schemaPath,
		Resource:   resource,
		Composite:  append(append([]string{}, cfg.Data.Composite...), opts.Composite...),
		Structural: opts.Structural || cfg.Data.Structural,
	}, logger)
	if err != nil {
		return err
	}

	prev, err := snapshot.Load(prevPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load previous snapshot", err)
	}
	curr, err := snapshot.Load(currPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load current snapshot", err)
	}

	ts := opts.Timestamp
	if ts == "" {
		ts = diff.FormatTimestamp(time.Now())
	} else if _, err := time.Parse(diff.TimestampLayout, ts); err != nil {
		return WrapExitError(ExitCommandError, "invalid --timestamp", err)
	}

	res := engine.Detect(prev, curr, ts)

	out := DiffResult{
		Timestamp:      res.Timestamp,
		Compared:       res.Compared,
		Events:         changelog.EventRows(res.Events),
		Modifications:  changelog.ModificationRows(res.Modifications),
		Failures:       res.Failures,
		StructuralOnly: res.StructuralOnly,
	}
	if out.Compared == nil {
		out.Compared = []string{}
	}
	if out.Failures == nil {
		out.Failures = []diff.Failure{}
	}

	if opts.Write {
		mods, events, err := harvest.AppendLogs(cfg.Data.Dir, res)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to write change logs", err)
		}
		out.Written = &WrittenLogs{Modifications: mods, Events: events}
	}

	f := opts.formatter(cmd)
	if f.Structured() {
		return f.Success(out)
	}
	renderDiff(cmd.OutOrStdout(), out)
	return nil
}

func renderDiff(w io.Writer, d DiffResult) {
	if len(d.Events) == 0 && len(d.Modifications) == 0 {
		fmt.Fprintf(w, "No changes at %s (%d fields compared)\n", d.Timestamp, len(d.Compared))
	}

	if len(d.Events) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIPO\tID\tENTIDAD\tNOMBRE")
		for _, r := range d.Events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				r[changelog.ColTipo], r[changelog.ColID], r[changelog.ColEntidad], r[changelog.ColNombre])
		}
		tw.Flush()
	}

	if len(d.Modifications) > 0 {
		if len(d.Events) > 0 {
			fmt.Fprintln(w)
		}
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCAMPO\tVIEJO\tNUEVO")
		for _, r := range d.Modifications {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				r[changelog.ColID], r[changelog.ColCampo], r[changelog.ColViejo], r[changelog.ColNuevo])
		}
		tw.Flush()
	}

	for _, f := range d.Failures {
		fmt.Fprintf(w, "comparison failed: id %s field %s: %s\n", f.ID, f.Field, f.Err)
	}
	if d.StructuralOnly > 0 {
		fmt.Fprintf(w, "%d composite field(s) changed shape only\n", d.StructuralOnly)
	}
	if d.Written != nil {
		fmt.Fprintf(w, "modificaciones.csv +%d rows, adiciones.csv +%d rows\n",
			d.Written.Modifications.Added, d.Written.Events.Added)
	}
}
