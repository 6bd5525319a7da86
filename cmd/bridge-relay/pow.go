package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/devblac/bridge-relay/internal/pow"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var (
	flagPowBits  int
	flagPowPrev  string
	flagPowLines int
)

func init() {
	powCmd.Flags().IntVarP(&flagPowBits, "difficulty", "k", 20, "Required trailing zero bits")
	powCmd.Flags().StringVar(&flagPowPrev, "prev", "0x"+strings.Repeat("00", 32), "Previous block hash (hex)")
	powCmd.Flags().IntVar(&flagPowLines, "lines", 10, "Number of transaction lines to read from the file")
}

var powCmd = &cobra.Command{
	Use:   "pow <transactions-file>",
	Short: "Find a block nonce whose sha256 ends in k zero bits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prev, err := hexutil.Decode(flagPowPrev)
		if err != nil {
			return fmt.Errorf("prev: %w", err)
		}
		lines, err := readLines(args[0], flagPowLines)
		if err != nil {
			return err
		}

		start := time.Now()
		nonce, err := pow.Mine(cmd.Context(), flagPowBits, prev, lines)
		if err != nil {
			return err
		}
		if !pow.Verify(flagPowBits, prev, lines, nonce) {
			return fmt.Errorf("mined nonce %x failed verification", nonce)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "nonce %s (%d lines, k=%d, %s)\n", hexutil.Encode(nonce), len(lines), flagPowBits, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func readLines(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() && (limit <= 0 || len(lines) < limit) {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	return lines, sc.Err()
}
