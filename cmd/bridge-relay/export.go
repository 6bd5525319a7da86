package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/devblac/bridge-relay/internal/storage"
	"github.com/spf13/cobra"
)

var (
	flagExportFormat string
	flagExportOut    string
)

func init() {
	exportCmd.Flags().StringVar(&flagExportFormat, "format", "json", "Output format: json or csv")
	exportCmd.Flags().StringVarP(&flagExportOut, "out", "o", "", "Output file (default stdout)")
}

var exportCmd = &cobra.Command{
	Use:       "export <cursors|processed>",
	Short:     "Export cursors or the processed-event ledger as json or csv",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"cursors", "processed"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagExportFormat != "json" && flagExportFormat != "csv" {
			return fmt.Errorf("unsupported format %q", flagExportFormat)
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		if flagExportOut != "" {
			f, err := os.Create(flagExportOut)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}

		switch args[0] {
		case "cursors":
			cursors, err := store.ListCursors(cmd.Context())
			if err != nil {
				return err
			}
			return writeCursors(out, flagExportFormat, cursors)
		case "processed":
			recs, err := store.ListProcessed(cmd.Context(), 0)
			if err != nil {
				return err
			}
			return writeRecords(out, flagExportFormat, recs)
		default:
			return fmt.Errorf("unknown export target %q", args[0])
		}
	},
}

func writeCursors(w io.Writer, format string, cursors []storage.Cursor) error {
	if format == "json" {
		type row struct {
			Chain     string    `json:"chain"`
			Kind      string    `json:"kind"`
			Height    uint64    `json:"height"`
			UpdatedAt time.Time `json:"updated_at"`
		}
		rows := make([]row, 0, len(cursors))
		for _, c := range cursors {
			rows = append(rows, row(c))
		}
		return writeJSON(w, rows)
	}
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"chain", "kind", "height", "updated_at"})
	for _, c := range cursors {
		_ = cw.Write([]string{c.Chain, c.Kind, strconv.FormatUint(c.Height, 10), c.UpdatedAt.Format(time.RFC3339)})
	}
	cw.Flush()
	return cw.Error()
}

func writeRecords(w io.Writer, format string, recs []storage.Record) error {
	if format == "json" {
		if recs == nil {
			recs = []storage.Record{}
		}
		return writeJSON(w, recs)
	}
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"chain", "tx_hash", "log_index", "kind", "height", "direction", "status", "relay_tx", "detail", "created_at", "updated_at"})
	for _, r := range recs {
		_ = cw.Write([]string{
			r.Key.Chain,
			r.Key.TxHash,
			strconv.FormatUint(uint64(r.Key.LogIndex), 10),
			r.Kind,
			strconv.FormatUint(r.Height, 10),
			r.Direction,
			string(r.Status),
			r.RelayTx,
			r.Detail,
			r.CreatedAt.Format(time.RFC3339),
			r.UpdatedAt.Format(time.RFC3339),
		})
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
