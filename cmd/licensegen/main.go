// Beacon - Digital Signage Control Plane
// Copyright 2026 Beacon Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main is licensegen, the operator-facing CLI that mints and
// inspects the self-signed V2 license keys internal/licensecodec and
// internal/license enforce, per spec §4.1/§4.2.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalmast/beacon/internal/licensecodec"
	"github.com/signalmast/beacon/internal/models"
)

var (
	encodeTier       string
	encodeDevices    int
	encodeCompany    string
	encodeExpires    string
	encodeSecretFile string

	decodeSecretFile string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "licensegen:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "licensegen",
		Short: "Mint and inspect Beacon license keys",
		Long:  "licensegen encodes a tier/device-count/expiry tuple into a signed V2 license key, or decodes an existing key back into its payload, per the same installation secret internal/license validates against.",
	}

	encode := &cobra.Command{
		Use:   "encode",
		Short: "Mint a new license key",
		RunE:  runEncode,
	}
	encode.Flags().StringVar(&encodeTier, "tier", "PRO", "license tier (e.g. FREE, PRO, ENTERPRISE)")
	encode.Flags().IntVar(&encodeDevices, "max-devices", 5, "maximum concurrently registered devices")
	encode.Flags().StringVar(&encodeCompany, "company", "", "licensee company name")
	encode.Flags().StringVar(&encodeExpires, "expires", "", "expiry date, YYYY-MM-DD (empty means perpetual)")
	encode.Flags().StringVar(&encodeSecretFile, "secret-file", "", "path to the installation secret (required; also read from BEACON_INSTALLATION_SECRET_FILE)")

	decode := &cobra.Command{
		Use:   "decode <key>",
		Short: "Inspect an existing license key",
		Args:  cobra.ExactArgs(1),
		RunE:  runDecode,
	}
	decode.Flags().StringVar(&decodeSecretFile, "secret-file", "", "path to the installation secret (required to verify the signature; also read from BEACON_INSTALLATION_SECRET_FILE)")

	root.AddCommand(encode, decode)
	return root
}

func runEncode(cmd *cobra.Command, args []string) error {
	secret, err := loadSecret(encodeSecretFile)
	if err != nil {
		return err
	}

	if encodeDevices <= 0 {
		return fmt.Errorf("--max-devices must be positive")
	}
	if encodeExpires != "" {
		if _, err := time.Parse("2006-01-02", encodeExpires); err != nil {
			return fmt.Errorf("--expires must be YYYY-MM-DD: %w", err)
		}
	}

	payload := models.LicenseTokenV2Payload{
		Tier:    encodeTier,
		Devices: encodeDevices,
		Company: encodeCompany,
		Expires: encodeExpires,
		Issued:  time.Now().UTC().Format("2006-01-02"),
	}

	key, err := licensecodec.Encode(payload, secret)
	if err != nil {
		return fmt.Errorf("encode license key: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	secret, err := loadSecret(decodeSecretFile)
	if err != nil {
		return err
	}

	payload, err := licensecodec.Decode(args[0], secret)
	if err != nil {
		return fmt.Errorf("decode license key: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "version:     %d\n", payload.V)
	fmt.Fprintf(out, "tier:        %s\n", payload.Tier)
	fmt.Fprintf(out, "max devices: %d\n", payload.Devices)
	if payload.Company != "" {
		fmt.Fprintf(out, "company:     %s\n", payload.Company)
	}
	if payload.Issued != "" {
		fmt.Fprintf(out, "issued:      %s\n", payload.Issued)
	}
	if payload.Expires != "" {
		fmt.Fprintf(out, "expires:     %s\n", payload.Expires)
	} else {
		fmt.Fprintln(out, "expires:     (perpetual)")
	}
	return nil
}

// loadSecret resolves the installation secret from --secret-file, falling
// back to BEACON_INSTALLATION_SECRET_FILE so the same secret the server
// reads at startup can be shared without retyping a path on every
// invocation.
func loadSecret(path string) ([]byte, error) {
	if path == "" {
		path = os.Getenv("BEACON_INSTALLATION_SECRET_FILE")
	}
	if path == "" {
		return nil, fmt.Errorf("--secret-file is required (or set BEACON_INSTALLATION_SECRET_FILE)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret file: %w", err)
	}
	return trimNewline(data), nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
