package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dunamismax/imageoptimizer/internal/domain"
	"github.com/dunamismax/imageoptimizer/internal/id"
	"github.com/dunamismax/imageoptimizer/internal/pipeline"
	"github.com/dunamismax/imageoptimizer/internal/transform"
)

// run processes inputs through the local pipeline and prints one output path
// per line on stdout. Progress goes to the logger.
func (c *CLI) run(cmd *cobra.Command, spec domain.JobSpec, inputs []string) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	jobName := c.jobName
	if jobName == "" {
		jobName = id.Request()
	}

	start := time.Now()
	c.Logger.Debug("starting", "op", spec.Operation, "inputs", len(inputs), "job", jobName)

	processor := pipeline.NewLocalProcessor(c.outputDir, c.service())
	result, err := processor.Process(cmd.Context(), pipeline.Request{
		JobID:  jobName,
		Spec:   spec,
		Inputs: inputs,
	})
	if err != nil {
		// Show the library cause on the terminal, not just the generic message.
		var terr *transform.Error
		if errors.As(err, &terr) {
			return fmt.Errorf("%s: %s", spec.Operation, terr.Cause())
		}
		return fmt.Errorf("%s: %w", spec.Operation, err)
	}

	for _, skipped := range result.Skipped {
		c.Logger.Warn("range outside document, skipped", "index", skipped, "range", spec.Ranges[skipped].String())
	}

	out := cmd.OutOrStdout()
	for _, o := range result.Outputs {
		c.Logger.Debug("wrote", "path", o.Path, "size", humanize.Bytes(uint64(o.Bytes)), "mime", o.MIMEType)
		fmt.Fprintln(out, o.Path)
	}

	c.Logger.Infof("%s: %s, %s -> %s (%s)",
		spec.Operation,
		pluralize(len(result.Outputs), "output"),
		humanize.Bytes(uint64(result.InputBytes)),
		humanize.Bytes(uint64(result.OutputBytes())),
		time.Since(start).Round(time.Millisecond),
	)
	return nil
}
