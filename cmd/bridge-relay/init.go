package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	flagInitDir   string
	flagInitForce bool
)

func init() {
	initCmd.Flags().StringVar(&flagInitDir, "dir", ".", "Directory to scaffold into")
	initCmd.Flags().BoolVar(&flagInitForce, "force", false, "Overwrite existing files")
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold a sample config, .env and bridge ABIs",
	RunE: func(cmd *cobra.Command, args []string) error {
		written, err := scaffold(flagInitDir, flagInitForce)
		for _, p := range written {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", p)
		}
		return err
	},
}

func scaffold(dir string, force bool) ([]string, error) {
	files := []struct {
		name string
		body string
		mode fs.FileMode
	}{
		{"config.yaml", sampleConfig, 0o644},
		{".env", sampleEnv, 0o600},
		{filepath.Join("abi", "source.json"), sampleSourceABI, 0o644},
		{filepath.Join("abi", "destination.json"), sampleDestinationABI, 0o644},
	}
	var written []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if _, err := os.Stat(path); err == nil && !force {
			return written, fmt.Errorf("%s exists (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return written, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, err
		}
		if err := os.WriteFile(path, []byte(f.body), f.mode); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

const sampleConfig = `version: 1
global:
  store: sqlite
  db_path: bridge.db
  lookback: 5
  confirmations: 0
  poll_interval: 10s
  gas_price_ceiling: "0"
  gas_limit_buffer_pct: 20
  confirmation_timeout: 120s
  call_timeout: 15s
  required_role: ""
  max_submits_per_second: 0
  retry:
    read: {attempts: 3, delay: 500ms, max_delay: 5s}
    submit: {attempts: 2, delay: 1s, max_delay: 5s}
chains:
  source:
    chain_id: 43113
    rpc_url: ${SOURCE_RPC_URL}
    contract: "0x0000000000000000000000000000000000000001"
    abi_path: abi/source.json
    credential: env:SOURCE_WARDEN_KEY
    lock_event: Lock
    release_method: release
  destination:
    chain_id: 97
    rpc_url: ${DESTINATION_RPC_URL}
    contract: "0x0000000000000000000000000000000000000002"
    abi_path: abi/destination.json
    credential: env:DESTINATION_WARDEN_KEY
    burn_event: Burn
    mint_method: mint
filters:
  source_to_destination: ["amount > 0"]
  destination_to_source: ["amount > 0"]
notify: []
ipfs:
  pin_url: https://api.pinata.cloud/pinning/pinJSONToIPFS
  gateway_url: https://gateway.pinata.cloud/ipfs/
  api_key: ${PINATA_API_KEY}
  api_secret: ${PINATA_API_SECRET}
`

// The warden keys below are the well-known local development accounts.
const sampleEnv = `SOURCE_RPC_URL=http://127.0.0.1:8545
DESTINATION_RPC_URL=http://127.0.0.1:9545
SOURCE_WARDEN_KEY=0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80
DESTINATION_WARDEN_KEY=0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d
PINATA_API_KEY=
PINATA_API_SECRET=
`

const sampleSourceABI = `[
  {"type":"event","name":"Lock","anonymous":false,"inputs":[
    {"name":"token","type":"address","indexed":true},
    {"name":"recipient","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"function","name":"release","stateMutability":"nonpayable","inputs":[
    {"name":"underlyingToken","type":"address"},
    {"name":"to","type":"address"},
    {"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"hasRole","stateMutability":"view","inputs":[
    {"name":"role","type":"bytes32"},
    {"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]
`

const sampleDestinationABI = `[
  {"type":"event","name":"Burn","anonymous":false,"inputs":[
    {"name":"underlyingToken","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[
    {"name":"token","type":"address"},
    {"name":"recipient","type":"address"},
    {"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"hasRole","stateMutability":"view","inputs":[
    {"name":"role","type":"bytes32"},
    {"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]}
]
`
