package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/pfs-cli/internal/crf"
	"github.com/sells-group/pfs-cli/internal/diag"
	"github.com/sells-group/pfs-cli/internal/vocab"
)

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Inspect the lookup tables that map CRF free text to categories",
}

var vocabShowCmd = &cobra.Command{
	Use:   "show [table]",
	Short: "Print a lookup table, or list the tables with their versions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := vocab.Load(vocabPaths(cfg))
		if err != nil {
			return err
		}
		if len(args) == 0 {
			formatVocabTables(os.Stdout, v)
			return nil
		}
		t, ok := v.Table(args[0])
		if !ok {
			return eris.Errorf("vocab: unknown table %q (one of %s)", args[0], strings.Join(vocab.TableNames, ", "))
		}
		formatVocabTable(os.Stdout, t)
		return nil
	},
}

var vocabCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report coded values of an export that no lookup table maps",
	RunE: func(cmd *cobra.Command, _ []string) error {
		input, _ := cmd.Flags().GetString("input")
		if input == "" {
			input = cfg.Input.Path
		}
		if input == "" {
			return eris.New("vocab check: --input is required (or set input.path)")
		}

		v, err := vocab.Load(vocabPaths(cfg))
		if err != nil {
			return err
		}
		var report diag.Report
		ds, err := crf.Load(cmd.Context(), input, normalizeOptions(cfg), &report)
		if err != nil {
			return err
		}

		unmapped := v.Check(ds)
		if len(unmapped) == 0 {
			fmt.Fprintln(os.Stderr, "All coded values map.")
			return nil
		}
		formatUnmapped(os.Stdout, unmapped)
		return eris.Errorf("vocab check: %d unmapped values", len(unmapped))
	},
}

func init() {
	vocabCheckCmd.Flags().String("input", "", "CRF export to check")

	vocabCmd.AddCommand(vocabShowCmd)
	vocabCmd.AddCommand(vocabCheckCmd)
	rootCmd.AddCommand(vocabCmd)
}

func formatVocabTables(out io.Writer, v *vocab.Set) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tNAME\tVERSION\tCATEGORIES")
	for _, name := range vocab.TableNames {
		t, _ := v.Table(name)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", name, t.Name, t.Version, len(t.Canonical()))
	}
	_ = w.Flush()
}

func formatVocabTable(out io.Writer, t *vocab.Table) {
	_, _ = fmt.Fprintf(out, "%s (version %s)\n", t.Name, t.Version)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CANONICAL\tSYNONYM")
	for _, e := range t.Entries() {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", e.Canonical, e.Synonym)
	}
	_ = w.Flush()
}

func formatUnmapped(out io.Writer, unmapped []vocab.Unmapped) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tFIELD\tVALUE\tCOUNT\tPATIENTS")
	for _, u := range unmapped {
		patients := make([]string, len(u.Patients))
		for i, p := range u.Patients {
			patients[i] = string(p)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%q\t%d\t%s\n", u.Table, u.Field, u.Value, u.Count, strings.Join(patients, ","))
	}
	_ = w.Flush()
}
