package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dunamismax/imageoptimizer/internal/domain"
	"github.com/dunamismax/imageoptimizer/internal/transform"
)

func (c *CLI) compressCommand() *cobra.Command {
	var quality int

	cmd := &cobra.Command{
		Use:   "compress [image]",
		Short: "Re-encode an image in its own format at a lower quality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, domain.JobSpec{
				Operation: transform.OpCompressImage,
				Quality:   &quality,
			}, args)
		},
	}
	cmd.Flags().IntVarP(&quality, "quality", "q", transform.DefaultQuality, "encoder quality, 1-100")
	return cmd
}

func (c *CLI) resizeCommand() *cobra.Command {
	var (
		width, height int
		keepAspect    bool
	)

	cmd := &cobra.Command{
		Use:   "resize [image]",
		Short: "Scale an image into a width x height box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, domain.JobSpec{
				Operation:           transform.OpResizeImage,
				Width:               width,
				Height:              height,
				MaintainAspectRatio: &keepAspect,
			}, args)
		},
	}
	cmd.Flags().IntVar(&width, "width", 0, "box width in pixels")
	cmd.Flags().IntVar(&height, "height", 0, "box height in pixels")
	cmd.Flags().BoolVar(&keepAspect, "keep-aspect", true, "fit inside the box instead of stretching to it")
	_ = cmd.MarkFlagRequired("width")
	_ = cmd.MarkFlagRequired("height")
	return cmd
}

func (c *CLI) convertCommand() *cobra.Command {
	var (
		target  string
		quality int
	)

	targets := make([]string, 0, len(transform.ConvertTargets))
	for _, f := range transform.ConvertTargets {
		targets = append(targets, string(f))
	}

	cmd := &cobra.Command{
		Use:   "convert [image]",
		Short: "Convert an image to another format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, domain.JobSpec{
				Operation:    transform.OpConvertImage,
				TargetFormat: target,
				Quality:      &quality,
			}, args)
		},
	}
	cmd.Flags().StringVarP(&target, "to", "t", "", "target format: "+strings.Join(targets, ", "))
	cmd.Flags().IntVarP(&quality, "quality", "q", transform.DefaultQuality, "encoder quality, 1-100")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func (c *CLI) compressPDFCommand() *cobra.Command {
	var quality int

	cmd := &cobra.Command{
		Use:   "compress-pdf [pdf]",
		Short: "Rewrite a PDF with compact object streams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, domain.JobSpec{
				Operation: transform.OpCompressPDF,
				Quality:   &quality,
			}, args)
		},
	}
	cmd.Flags().IntVarP(&quality, "quality", "q", transform.DefaultQuality, "lower values deduplicate more aggressively")
	return cmd
}

func (c *CLI) mergeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "merge [pdf] [pdf]...",
		Short: "Concatenate PDFs in the order given",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, domain.JobSpec{Operation: transform.OpMergePDFs}, args)
		},
	}
}

func (c *CLI) splitCommand() *cobra.Command {
	var rawRanges []string

	cmd := &cobra.Command{
		Use:   "split [pdf]",
		Short: "Write one PDF per page range",
		Example: `  imgopt split report.pdf --range 1-3 --range 7
  imgopt split report.pdf -r 1-3,4-6`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ranges := make([]transform.PageRange, 0, len(rawRanges))
			for _, raw := range rawRanges {
				r, err := transform.ParsePageRange(raw)
				if err != nil {
					return err
				}
				ranges = append(ranges, r)
			}
			return c.run(cmd, domain.JobSpec{Operation: transform.OpSplitPDF, Ranges: ranges}, args)
		},
	}
	cmd.Flags().StringSliceVarP(&rawRanges, "range", "r", nil, "page range N or N-M, 1-based and inclusive (repeatable)")
	_ = cmd.MarkFlagRequired("range")
	return cmd
}

func pluralize(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
