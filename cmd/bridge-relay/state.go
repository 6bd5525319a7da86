package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/devblac/bridge-relay/internal/config"
	"github.com/devblac/bridge-relay/internal/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var flagStateLimit int

func init() {
	stateProcessedCmd.Flags().IntVar(&flagStateLimit, "limit", 20, "Maximum records to show (0 = all)")
	stateCmd.AddCommand(stateProcessedCmd, stateResetCmd, stateForgetCmd)
}

func openStore() (storage.Store, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return storage.Open(cfg.Global)
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show scan cursors per chain and event kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		cursors, err := store.ListCursors(cmd.Context())
		if err != nil {
			return err
		}
		if len(cursors) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no cursors recorded")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHAIN\tKIND\tHEIGHT\tUPDATED")
		for _, c := range cursors {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.Chain, c.Kind, c.Height, c.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var stateProcessedCmd = &cobra.Command{
	Use:   "processed",
	Short: "Show the most recent processed-event records",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := store.ListProcessed(cmd.Context(), flagStateLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EVENT\tDIRECTION\tSTATUS\tRELAY TX\tDETAIL")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Key, r.Direction, r.Status, r.RelayTx, r.Detail)
		}
		return w.Flush()
	},
}

var stateResetCmd = &cobra.Command{
	Use:   "reset <chain> <kind> <height>",
	Short: "Overwrite a scan cursor (scans resume within the lookback window; use replay for older blocks)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		height, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("height: %w", err)
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.ResetCursor(cmd.Context(), args[0], args[1], height); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cursor %s/%s set to %d\n", args[0], args[1], height)
		return nil
	},
}

var stateForgetCmd = &cobra.Command{
	Use:   "forget <chain> <tx-hash> <log-index>",
	Short: "Drop a processed-event record so the event is relayed again",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			return fmt.Errorf("log index: %w", err)
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		hash, err := parseTxHash(args[1])
		if err != nil {
			return err
		}
		key := storage.Key{Chain: args[0], TxHash: hash, LogIndex: uint(idx)}
		ok, err := store.Forget(cmd.Context(), key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no record for %s", key)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", key)
		return nil
	},
}

// parseTxHash accepts a 32-byte hash with or without 0x in any case and
// returns the lowercase 0x form stored in the ledger.
func parseTxHash(s string) (string, error) {
	raw := strings.TrimSpace(s)
	if len(raw) >= 2 && raw[0] == '0' && (raw[1] == 'x' || raw[1] == 'X') {
		raw = raw[2:]
	}
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != common.HashLength {
		return "", fmt.Errorf("invalid tx hash %q", s)
	}
	return common.BytesToHash(b).Hex(), nil
}
