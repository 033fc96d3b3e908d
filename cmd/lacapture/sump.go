package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"buspirate/internal/buildinfo"
	"buspirate/sump"
)

var sumpMetaCmd = &cobra.Command{
	Use:     "sump-meta",
	Short:   "Print the SUMP metadata descriptor",
	PreRunE: bindFlags,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := engineConfig()
		if err != nil {
			return err
		}
		m := sump.NewMetadata(cfg, buildinfo.SemVer(), uint32(viper.GetUint("max-rate")))
		fmt.Fprint(cmd.OutOrStdout(), hex.Dump(m.Encode()))
		return nil
	},
}

var sumpDecodeCmd = &cobra.Command{
	Use:   "sump-decode HEX",
	Short: "Decode a SUMP command stream and print the capture it asks for",
	Long: `Decode SUMP commands given as hex bytes (spaces allowed) and print each
command, then the capture parameters the stream leaves configured.

Example:
  lacapture sump-decode "80 63 00 00 00 81 ff 03 ff 03 c0 01 00 00 00 c1 00 00 00 00 01"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := hex.DecodeString(strings.Join(strings.Fields(strings.Join(args, "")), ""))
		if err != nil {
			return fmt.Errorf("sump-decode: %w", err)
		}
		out := cmd.OutOrStdout()
		var s sump.Settings
		for len(raw) > 0 {
			c, n, err := sump.Parse(raw)
			if err != nil {
				return err
			}
			raw = raw[n:]
			if !s.Apply(c) && sump.IsLong(c.Op) {
				fmt.Fprintf(out, "%s (ignored)\n", c)
				continue
			}
			fmt.Fprintln(out, c)
		}
		freq, samples, mask, dir := s.ArmParams()
		fmt.Fprintf(out, "arm: %.0f Hz, %d samples, trigger mask 0x%02x dir 0x%02x\n", freq, samples, mask, dir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sumpMetaCmd, sumpDecodeCmd)
	sumpMetaCmd.Flags().Uint("max-rate", 62_500_000, "maximum sample rate to advertise in Hz")
}
