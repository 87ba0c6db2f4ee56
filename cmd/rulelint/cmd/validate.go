package cmd

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/solatis/rulelint/internal/core/metrics"
	"github.com/solatis/rulelint/internal/loader"
	"github.com/solatis/rulelint/internal/rules"
)

var (
	validateWatch       bool
	validateVerbose     bool
	validateMetricsAddr string
)

var validateCmd = &cobra.Command{
	Use:   "validate [paths...]",
	Short: "Validate rule files (JSON or YAML)",
	Long: `Validate checks every rule in the given files and directories.
Each failing rule prints one "<file>: <key>: <message>" line per error.
The exit status is 1 when any rule fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVarP(&validateWatch, "watch", "w", false, "re-validate files as they change")
	validateCmd.Flags().BoolVarP(&validateVerbose, "verbose", "v", false, "also print valid rules with trigger stats")
	validateCmd.Flags().StringVar(&validateMetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while watching")
}

// checker validates documents and prints results.
type checker struct {
	engine  *rules.Engine
	metrics *metrics.Collector
	out     io.Writer
	verbose bool
}

// checkDocument prints results for one document and reports whether every
// rule in it was valid.
func (c *checker) checkDocument(doc loader.Document) bool {
	outcomes := c.engine.Check(doc.Rules)
	c.metrics.ObserveBatch(metrics.SourceCLI, len(outcomes))

	ok := true
	for _, o := range outcomes {
		if o.Valid() {
			c.metrics.ObserveRule(metrics.SourceCLI, nil, o.Depth())
			if o.DecodeErr != nil {
				logger.Debug("rule stats unavailable", "path", doc.Path, "rule", o.Key, "error", o.DecodeErr)
			}
			if c.verbose {
				if o.Stats != nil {
					fmt.Fprintf(c.out, "%s: %s: ok (nodes=%d leaves=%d depth=%d)\n",
						doc.Path, o.Key, o.Stats.Nodes, o.Stats.Leaves, o.Stats.Depth)
				} else {
					fmt.Fprintf(c.out, "%s: %s: ok (stats unavailable: %v)\n", doc.Path, o.Key, o.DecodeErr)
				}
			}
			continue
		}
		ok = false
		c.metrics.ObserveRule(metrics.SourceCLI, o.Err.Errors, 0)
		for _, msg := range o.Err.Messages() {
			fmt.Fprintf(c.out, "%s: %s: %s\n", doc.Path, o.Key, msg)
		}
	}

	logger.Debug("document checked", "path", doc.Path, "rules", len(outcomes), "ok", ok)
	return ok
}

// checkPaths validates every path. Load errors are printed and count as
// failures so one unreadable file does not hide the others.
func (c *checker) checkPaths(paths []string) bool {
	ok := true
	for _, path := range paths {
		docs, err := loader.LoadPath(path)
		if err != nil {
			fmt.Fprintf(c.out, "%s: %v\n", path, err)
			ok = false
			continue
		}
		for _, doc := range docs {
			if !c.checkDocument(doc) {
				ok = false
			}
		}
	}
	return ok
}

func runValidate(cmd *cobra.Command, args []string) error {
	c := &checker{
		engine:  rules.NewEngine(),
		metrics: metrics.NewCollector(nil),
		out:     cmd.OutOrStdout(),
		verbose: validateVerbose,
	}

	ok := c.checkPaths(args)
	if !validateWatch {
		if !ok {
			return ErrValidationFailed
		}
		return nil
	}

	ctx := cmd.Context()
	if validateMetricsAddr != "" {
		srv := &http.Server{Addr: validateMetricsAddr, Handler: metricsMux(c.metrics)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	w, err := loader.NewWatcher(loader.DefaultDebounce, logger)
	if err != nil {
		return err
	}
	defer w.Close()
	for _, path := range args {
		if err := w.Add(path); err != nil {
			return err
		}
	}

	logger.Info("watching for changes", "paths", args)
	return w.Run(ctx, func(path string) {
		doc, err := loader.LoadFile(path)
		if err != nil {
			fmt.Fprintf(c.out, "%s: %v\n", path, err)
			return
		}
		if c.checkDocument(doc) && !c.verbose {
			fmt.Fprintf(c.out, "%s: ok\n", path)
		}
	})
}

func metricsMux(c *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	return mux
}
