// Package cli implements imgopt, a command line front end that runs the
// image and PDF transforms against local files.
//
// Each command reads its inputs from disk and writes the outputs below
// <output-dir>/<job>/, named <n>.<ext> in output order.
package cli

import (
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dunamismax/imageoptimizer/internal/transform"
)

const appName = "imgopt"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

type CLI struct {
	Logger *log.Logger

	outputDir      string
	jobName        string
	maxImagePixels int64
	concurrency    int
}

func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
			Prefix:          appName,
		}),
	}
}

func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand builds the command tree.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Compress, resize and convert images; compress, merge and split PDFs",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.outputDir, "output-dir", "o", ".", "directory the job folder is created in")
	flags.StringVar(&c.jobName, "job", "", "job folder name (default: a generated id)")
	flags.Int64Var(&c.maxImagePixels, "max-pixels", 0, "reject images with more pixels than this (0 uses the built-in limit)")
	flags.IntVar(&c.concurrency, "split-concurrency", 0, "ranges rendered at once by split (0 uses the built-in default)")

	root.AddCommand(c.compressCommand())
	root.AddCommand(c.resizeCommand())
	root.AddCommand(c.convertCommand())
	root.AddCommand(c.compressPDFCommand())
	root.AddCommand(c.mergeCommand())
	root.AddCommand(c.splitCommand())

	return root
}

func (c *CLI) service() *transform.Service {
	return transform.NewService(transform.Options{
		MaxImagePixels:   c.maxImagePixels,
		SplitConcurrency: c.concurrency,
	})
}
