package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/fuelsync/internal/history"
	"github.com/JonMunkholm/fuelsync/internal/pipeline"
	"github.com/JonMunkholm/fuelsync/internal/reshape"
	"github.com/JonMunkholm/fuelsync/internal/tableau"
	"github.com/JonMunkholm/fuelsync/internal/upload"
)

func (a *app) runCommand() *cobra.Command {
	var skipExport, noUpload bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Export, reshape and upload in one run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg
			if noUpload {
				cfg.API.Enabled = false
			}

			deps := pipeline.Deps{Logger: slog.Default()}
			if !skipExport {
				exp, err := tableau.NewExporter(cfg.Tableau, slog.Default())
				if err != nil {
					return err
				}
				deps.Exporter = exp
			}

			store, err := history.Open(ctx, cfg.History, slog.Default())
			if err != nil {
				slog.Warn("run history disabled", "error", err)
				store = history.NopStore{}
			}
			defer store.Close()
			deps.History = store

			rep, err := pipeline.Run(ctx, cfg, deps)
			if rep != nil {
				printReport(cmd.OutOrStdout(), rep)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&skipExport, "skip-export", false, "reshape the CSV already in the output directory")
	cmd.Flags().BoolVar(&noUpload, "no-upload", false, "skip the upload even when ENABLE_API_UPLOAD is set")
	return cmd
}

func (a *app) exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Download the configured Tableau view as CSV",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst := a.cfg.CSVPath()
			if len(args) == 1 {
				dst = args[0]
			}

			exp, err := tableau.NewExporter(a.cfg.Tableau, slog.Default())
			if err != nil {
				return err
			}
			res, err := exp.Export(cmd.Context(), dst)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported %q to %s (%s) in %s\n",
				res.ViewName, res.Path, humanSize(res.Bytes), res.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func (a *app) viewsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "views",
		Short: "List the views of the configured workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := tableau.NewExporter(a.cfg.Tableau, slog.Default())
			if err != nil {
				return err
			}
			views, err := exp.Views(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCONTENT URL")
			for _, v := range views {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Name, v.ContentURL)
			}
			return tw.Flush()
		},
	}
}

func (a *app) workbooksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "workbooks",
		Short: "List the workbooks of the configured site",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := tableau.NewExporter(a.cfg.Tableau, slog.Default())
			if err != nil {
				return err
			}
			workbooks, err := exp.Workbooks(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, wb := range workbooks {
				fmt.Fprintf(tw, "%s\t%s\n", wb.ID, wb.Name)
			}
			return tw.Flush()
		},
	}
}

func (a *app) reshapeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reshape [input.csv] [output.xlsx]",
		Short: "Reshape the long CSV export into the analysis spreadsheet",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out := a.cfg.CSVPath(), a.cfg.XLSXPath()
			if len(args) > 0 {
				in = args[0]
			}
			if len(args) > 1 {
				out = args[1]
			}

			res, err := reshape.Reshape(cmd.Context(), in, out, reshape.Options{Logger: slog.Default()})
			if err != nil {
				return err
			}
			printReshape(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func (a *app) uploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload [file.xlsx]",
		Short: "Upload a spreadsheet to the fuel API",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.XLSXPath()
			if len(args) == 1 {
				path = args[0]
			}

			client := upload.New(upload.SettingsFromConfig(a.cfg.API), upload.WithLogger(slog.Default()))
			res, err := client.Upload(cmd.Context(), path)
			if res != nil {
				printUpload(cmd.OutOrStdout(), res)
			}
			if err != nil {
				return fmt.Errorf("%w: %w", pipeline.ErrUpload, err)
			}
			return nil
		},
	}
}

func (a *app) pingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the fuel API is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := upload.New(upload.SettingsFromConfig(a.cfg.API), upload.WithLogger(slog.Default()))
			probe, err := client.Ping(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "reachable (HTTP %d, %s)\n", probe.HTTPStatus, probe.Latency.Round(time.Millisecond))
			if probe.RouteMissing {
				fmt.Fprintln(out, "note: base URL answered 404; the upload route may still exist")
			}
			return nil
		},
	}
}

func (a *app) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <upload-id>",
		Short: "Show the server-side status of an upload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := upload.New(upload.SettingsFromConfig(a.cfg.API), upload.WithLogger(slog.Default()))
			data, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		},
	}
}

func (a *app) historyCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.History.DatabaseURL == "" {
				return errors.New("run history is disabled: HISTORY_DATABASE_URL is not set")
			}

			store, err := history.Open(cmd.Context(), a.cfg.History, slog.Default())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}

func printReport(w io.Writer, rep *pipeline.Report) {
	fmt.Fprintf(w, "run %s\n", rep.RunID)
	if rep.Export != nil {
		fmt.Fprintf(w, "  export:  %s (%s)\n", rep.Export.Path, humanSize(rep.Export.Bytes))
	} else if rep.ExportSkipped {
		fmt.Fprintf(w, "  export:  skipped, using %s\n", rep.CSVPath)
	}
	if rep.Reshape != nil {
		printReshape(w, rep.Reshape)
	}
	switch {
	case rep.Upload != nil:
		printUpload(w, rep.Upload)
	case rep.UploadSkipped:
		fmt.Fprintln(w, "  upload:  disabled")
	}
	fmt.Fprintf(w, "  files:   %s (%s), %s (%s)\n",
		rep.CSVPath, humanSize(rep.CSVBytes), rep.XLSXPath, humanSize(rep.XLSXBytes))
	fmt.Fprintf(w, "  took:    %s\n", rep.Duration.Round(time.Millisecond))
}

func printReshape(w io.Writer, res *reshape.Result) {
	fmt.Fprintf(w, "  reshape: %d input rows -> %d rows in %s (dropped %d, unknown %d, duplicates %d)\n",
		res.InputRows, res.Rows, res.OutputPath, res.Dropped, res.Unknown, res.Duplicates)
}

func printUpload(w io.Writer, res *upload.Result) {
	state := "failed"
	if res.Success {
		state = "ok"
	}
	fmt.Fprintf(w, "  upload:  %s, HTTP %d after %d attempt(s)", state, res.HTTPStatus, res.Attempts)
	if res.UploadID != "" {
		fmt.Fprintf(w, ", id %s", res.UploadID)
	}
	fmt.Fprintln(w)
}

func printHistory(w io.Writer, runs []history.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tROWS\tDROPPED\tHTTP\tATTEMPTS\tUPLOAD ID\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status,
			r.OutputRows, r.DroppedRows, r.HTTPStatus, r.Attempts, r.UploadID, r.Error)
	}
	tw.Flush()
}

// humanSize formats a byte count as B, KB or MB.
func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.2f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
