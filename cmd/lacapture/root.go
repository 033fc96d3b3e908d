package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"buspirate/capture"
)

var rootCmd = &cobra.Command{
	Use:   "lacapture",
	Short: "Logic analyzer capture engine on simulated hardware",
	Long: `lacapture runs the triggered ring-buffer capture engine against the
simulated PIO sampler and DMA ring, the same engine the firmware runs on the
RP2040.

Settings come from flags, then LACAPTURE_* environment variables, then an
optional lacapture.yaml.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	gfs := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(gfs)
	rootCmd.PersistentFlags().AddGoFlagSet(gfs)

	def := capture.DefaultConfig()
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "config file (default is ./lacapture.yaml)")
	pf.Int("chunk-count", def.ChunkCount, "DMA channels in the ring (power of two)")
	pf.Int("chunk-size", def.ChunkSize, "bytes per DMA chunk (power of two)")
	pf.Duration("gate-timeout", def.GateTimeout, "how long to wait for the companion core")
	for _, name := range []string{"config", "chunk-count", "chunk-size", "gate-timeout"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("lacapture")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("LACAPTURE")
	// LACAPTURE_CHUNK_SIZE for chunk-size.
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if err := viper.ReadInConfig(); err == nil {
		klog.V(1).Infof("config: %s", viper.ConfigFileUsed())
	}
}

// bindFlags binds the local flags of the command being run to viper. It
// runs as PreRunE so commands sharing flag names do not shadow each other.
func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

func engineConfig() (capture.Config, error) {
	cfg := capture.Config{
		ChunkCount:  viper.GetInt("chunk-count"),
		ChunkSize:   viper.GetInt("chunk-size"),
		GateTimeout: viper.GetDuration("gate-timeout"),
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("engine config: %w", err)
	}
	return cfg, nil
}
