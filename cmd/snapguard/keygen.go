package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vaibhaw-/snapguard/internal/snapguard/crypto"
)

var (
	keygenFlagOut     string
	keygenFlagEncrypt bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a P-256 key pair for ledger attribution",
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}
		priv := kp.PrivateKey
		privName := "private.pem"
		if keygenFlagEncrypt {
			c, err := crypto.LoadCipher(cfg)
			if err != nil {
				return err
			}
			if priv, err = c.Encrypt([]byte(kp.PrivateKey)); err != nil {
				return err
			}
			privName = "private.pem.enc"
		}

		if err := os.MkdirAll(keygenFlagOut, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", keygenFlagOut, err)
		}
		if err := os.WriteFile(filepath.Join(keygenFlagOut, "public.pem"), []byte(kp.PublicKey), 0o644); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(keygenFlagOut, privName), []byte(priv), 0o600); err != nil {
			return err
		}
		fmt.Printf("fingerprint: %s\n", kp.Fingerprint())
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenFlagOut, "out", "keys", "output directory")
	keygenCmd.Flags().BoolVar(&keygenFlagEncrypt, "encrypt", false, "encrypt the private key with the configured key material")
}
