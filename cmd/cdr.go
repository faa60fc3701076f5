package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/roaming/core/kpi"
	"github.com/kilianp07/roaming/core/model"
	infrakpi "github.com/kilianp07/roaming/infra/kpi"
	"github.com/kilianp07/roaming/jobs/cdrkpi"
	"github.com/kilianp07/roaming/pkg/export"
)

var cdrCmd = &cobra.Command{
	Use:   "cdr",
	Short: "Charge detail record commands",
}

var exportFlags struct {
	format string
	output string
}

var cdrExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the charge detail records of a running service",
	RunE:  runCDRExport,
}

var cdrSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print distribution statistics of the charge detail records",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cdrs []model.ChargeDetailRecord
		if err := callAPI(commandContext(cmd), http.MethodGet, "/api/cdrs", nil, &cdrs); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), kpi.Summarize(cdrs))
	},
}

var backfillFlags struct {
	input  string
	db     string
	output string
}

var cdrBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rebuild daily KPIs from a file of charge detail records",
	RunE:  runCDRBackfill,
}

func init() {
	cdrExportCmd.Flags().StringVar(&exportFlags.format, "format", "csv", "output format: csv or json")
	cdrExportCmd.Flags().StringVarP(&exportFlags.output, "output", "o", "", "output file, stdout when empty")

	cdrBackfillCmd.Flags().StringVarP(&backfillFlags.input, "input", "i", "", "JSON file holding an array of charge detail records")
	cdrBackfillCmd.Flags().StringVar(&backfillFlags.db, "db", "", "SQLite database receiving the KPIs, in memory when empty")
	cdrBackfillCmd.Flags().StringVarP(&backfillFlags.output, "output", "o", "", "KPI CSV output file, stdout when empty")
	_ = cdrBackfillCmd.MarkFlagRequired("input")

	cdrCmd.AddCommand(cdrExportCmd, cdrSummaryCmd, cdrBackfillCmd)
	rootCmd.AddCommand(cdrCmd)
}

func runCDRExport(cmd *cobra.Command, args []string) error {
	var cdrs []model.ChargeDetailRecord
	if err := callAPI(commandContext(cmd), http.MethodGet, "/api/cdrs", nil, &cdrs); err != nil {
		return err
	}
	w, closeFn, err := openOutput(cmd, exportFlags.output)
	if err != nil {
		return err
	}
	defer closeFn()
	switch exportFlags.format {
	case "csv":
		return export.WriteCSV(w, cdrs)
	case "json":
		return export.WriteJSON(w, cdrs)
	default:
		return fmt.Errorf("unknown format %q", exportFlags.format)
	}
}

func runCDRBackfill(cmd *cobra.Command, args []string) error {
	history, err := readCDRs(backfillFlags.input)
	if err != nil {
		return err
	}
	var store kpi.Store = kpi.NewMemoryStore()
	if backfillFlags.db != "" {
		db, err := infrakpi.NewSQLiteStore(backfillFlags.db)
		if err != nil {
			return fmt.Errorf("open kpi store: %w", err)
		}
		defer db.Close()
		store = db
	}
	n, err := cdrkpi.Backfill(store, history)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "processed %d charge detail records\n", n)

	recs, err := queryAll(store, history)
	if err != nil {
		return err
	}
	w, closeFn, err := openOutput(cmd, backfillFlags.output)
	if err != nil {
		return err
	}
	defer closeFn()
	return export.WriteKPICSV(w, recs)
}

func readCDRs(path string) ([]model.ChargeDetailRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var cdrs []model.ChargeDetailRecord
	if err := json.NewDecoder(f).Decode(&cdrs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cdrs, nil
}

// queryAll returns the stored KPIs of every operator found in history,
// ordered by operator then day.
func queryAll(store kpi.Store, history []model.ChargeDetailRecord) ([]kpi.Record, error) {
	var (
		start, end time.Time
		operators  []string
		seen       = map[string]bool{}
	)
	for _, cdr := range history {
		if cdr.OperatorID == "" {
			continue
		}
		day := kpi.FromCDR(cdr).Date
		if start.IsZero() || day.Before(start) {
			start = day
		}
		if day.After(end) {
			end = day
		}
		if op := string(cdr.OperatorID); !seen[op] {
			seen[op] = true
			operators = append(operators, op)
		}
	}
	sort.Strings(operators)
	var out []kpi.Record
	for _, op := range operators {
		recs, err := store.Query(op, start, end)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", op, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
