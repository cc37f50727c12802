package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/labdesk/labdesk/internal/config"
	"github.com/labdesk/labdesk/internal/domain/labreport"
	"github.com/labdesk/labdesk/internal/platform/db"
	"github.com/labdesk/labdesk/internal/platform/jsondoc"
	"github.com/labdesk/labdesk/internal/platform/labsource"
	"github.com/labdesk/labdesk/internal/platform/tableview"
)

func renderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render [file]",
		Short: "Render report JSON from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, title, err := outputFlags(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			renderer, err := newRenderer(cfg)
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			raw, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read report: %w", err)
			}

			doc, err := jsondoc.Parse(raw)
			if err != nil {
				return fmt.Errorf("parse report: %w", err)
			}
			return tableview.Write(cmd.OutOrStdout(), renderer.Render(doc, title), format)
		},
	}
	addOutputFlags(cmd)
	return cmd
}

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <number|file.pdf>",
		Short: "Fetch a report from the report source and render it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, title, err := outputFlags(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			renderer, err := newRenderer(cfg)
			if err != nil {
				return err
			}

			number, err := strconv.Atoi(args[0])
			if err != nil {
				resolver, rerr := newResolver(cfg)
				if rerr != nil {
					return rerr
				}
				if number, err = resolver.Resolve(args[0]); err != nil {
					return fmt.Errorf("%w (known files: %s)", err, strings.Join(resolver.Names(), ", "))
				}
			}

			client := labsource.NewClient(cfg.ReportSourceURL, cfg.ReportSourceTimeout)
			doc, err := client.Fetch(cmd.Context(), number)
			if err != nil {
				return err
			}
			return tableview.Write(cmd.OutOrStdout(), renderer.Render(doc, title), format)
		},
	}
	addOutputFlags(cmd)
	return cmd
}

func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", string(tableview.FormatText), "Output format: json, html, text or pdf")
	cmd.Flags().StringP("title", "t", "", "Report title (defaults to the profile title)")
}

func outputFlags(cmd *cobra.Command) (tableview.Format, string, error) {
	raw, _ := cmd.Flags().GetString("format")
	title, _ := cmd.Flags().GetString("title")
	format, err := tableview.ParseFormat(raw)
	return format, title, err
}

func newRenderer(cfg *config.Config) (*labreport.Renderer, error) {
	profile, err := labreport.LoadProfile(cfg.ReportProfilePath)
	if err != nil {
		return nil, err
	}
	if cfg.ReportTitle != "" {
		profile.Title = cfg.ReportTitle
	}
	return labreport.NewRenderer(profile), nil
}

func newResolver(cfg *config.Config) (*labsource.Resolver, error) {
	fileMap, err := labsource.ParseFileMap(cfg.ReportFileMap)
	if err != nil {
		return nil, fmt.Errorf("REPORT_FILE_MAP: %w", err)
	}
	return labsource.NewResolver(fileMap), nil
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
