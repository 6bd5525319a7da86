package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/devblac/bridge-relay/internal/blob"
	"github.com/devblac/bridge-relay/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	blobCmd.AddCommand(blobPinCmd, blobFetchCmd)
}

func blobClient() (*blob.Client, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return blob.New(cfg.IPFS), nil
}

var blobCmd = &cobra.Command{
	Use:   "blob",
	Short: "Pin JSON documents to IPFS and fetch them back",
}

var blobPinCmd = &cobra.Command{
	Use:   "pin <file.json>",
	Short: "Pin a JSON object and print its CID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("%s is not a JSON object: %w", args[0], err)
		}
		c, err := blobClient()
		if err != nil {
			return err
		}
		cid, err := c.Pin(cmd.Context(), data)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cid)
		return nil
	},
}

var blobFetchCmd = &cobra.Command{
	Use:   "fetch <cid>",
	Short: "Fetch a JSON object by CID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := blobClient()
		if err != nil {
			return err
		}
		data, err := c.Fetch(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), data)
	},
}
