package main

import (
	"fmt"

	"github.com/devblac/bridge-relay/internal/credential"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	flagKeysIndex      uint32
	flagKeysCredential string
)

func init() {
	keysDeriveCmd.Flags().Uint32Var(&flagKeysIndex, "index", 0, "Account index in m/44'/60'/0'/0/index")
	keysSignCmd.Flags().StringVar(&flagKeysCredential, "credential", "", "Credential reference (env:, file:, keystore:, mnemonic:)")
	_ = keysSignCmd.MarkFlagRequired("credential")

	keysCmd.AddCommand(keysNewCmd, keysDeriveCmd, keysSignCmd, keysVerifyCmd)
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate, derive and use relay signing keys",
}

var keysNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a BIP-39 mnemonic and print its first account",
	RunE: func(cmd *cobra.Command, args []string) error {
		mnemonic, err := credential.NewMnemonic()
		if err != nil {
			return err
		}
		key, err := credential.Derive(mnemonic, 0)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, mnemonic)
		fmt.Fprintf(out, "account 0: %s\n", crypto.PubkeyToAddress(key.PublicKey).Hex())
		return nil
	},
}

var keysDeriveCmd = &cobra.Command{
	Use:   "derive <mnemonic-file>",
	Short: "Derive an Ethereum account from a mnemonic file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := credential.Resolve(fmt.Sprintf("%s:%s#%d", credential.SchemeMnemonic, args[0], flagKeysIndex))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "account %d: %s\n", flagKeysIndex, signer.Address().Hex())
		return nil
	},
}

var keysSignCmd = &cobra.Command{
	Use:   "sign <message>",
	Short: "Sign a message (EIP-191) with a credential",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		signer, err := credential.Resolve(flagKeysCredential)
		if err != nil {
			return err
		}
		sig, err := signer.SignMessage([]byte(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nsignature: %s\n", signer.Address().Hex(), hexutil.Encode(sig))
		return nil
	},
}

var keysVerifyCmd = &cobra.Command{
	Use:   "verify <address> <message> <signature>",
	Short: "Check an EIP-191 signature against an address",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid address %q", args[0])
		}
		sig, err := hexutil.Decode(args[2])
		if err != nil {
			return fmt.Errorf("signature: %w", err)
		}
		ok, err := credential.VerifyMessage(common.HexToAddress(args[0]), []byte(args[1]), sig)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("signature does not match %s", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), "signature OK")
		return nil
	},
}
