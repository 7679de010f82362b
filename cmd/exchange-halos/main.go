package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "exchange-halos: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		configPath string
		fl         = defaultConfig()
	)

	cmd := &cobra.Command{
		Use:   "exchange-halos",
		Short: "Exchange ghost layers and tag data across a partitioned mesh",
		Long: "exchange-halos partitions a surface or tetrahedral mesh across a\n" +
			"group of ranks, resolves the shared skin, builds ghost layers and\n" +
			"times repeated scalar and vector tag exchanges over the halo.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			overlayFlags(cmd, &cfg, fl)
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "TOML config file")
	cmd.Flags().StringVar(&fl.Mesh, "mesh", fl.Mesh, "mesh spec: latlon:NxM, grid:NxM or a tetrahedral mesh file")
	cmd.Flags().StringVar(&fl.Partition, "partition", fl.Partition, "partition strategy: block, roundrobin or rcb")
	cmd.Flags().StringVar(&fl.Transport, "transport", fl.Transport, "rank transport: mem or tcp")
	cmd.Flags().IntVar(&fl.Ranks, "ranks", fl.Ranks, "number of ranks in the group")
	cmd.Flags().IntVar(&fl.Rank, "rank", fl.Rank, "rank of this process (tcp transport)")
	cmd.Flags().StringSliceVar(&fl.Peers, "peers", nil, "listen addresses of every rank (tcp transport)")
	cmd.Flags().IntVar(&fl.GhostLayers, "nghosts", fl.GhostLayers, "number of ghost layers to build")
	cmd.Flags().IntVar(&fl.VectorLength, "vtaglength", fl.VectorLength, "components per entity in the vector tag")
	cmd.Flags().IntVar(&fl.NumExchanges, "nexchanges", fl.NumExchanges, "timed exchange iterations per tag")
	cmd.Flags().StringVar(&fl.ScalarExpr, "scalar-expr", "", "expression of lon and lat replacing the built-in scalar field")
	cmd.Flags().StringVar(&fl.OutputDir, "output", "", "directory for pre and post exchange snapshots")
	cmd.Flags().StringVar(&fl.OutputFormat, "format", fl.OutputFormat, "snapshot format: yaml or sqlite")
	cmd.Flags().BoolVar(&fl.Debug, "debug", false, "enable debug logging")

	return cmd
}

// overlayFlags copies explicitly set flags over cfg, so flags win over
// both the defaults and the config file.
func overlayFlags(cmd *cobra.Command, cfg *Config, fl Config) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("mesh", func() { cfg.Mesh = fl.Mesh })
	set("partition", func() { cfg.Partition = fl.Partition })
	set("transport", func() { cfg.Transport = fl.Transport })
	set("ranks", func() { cfg.Ranks = fl.Ranks })
	set("rank", func() { cfg.Rank = fl.Rank })
	set("peers", func() { cfg.Peers = fl.Peers })
	set("nghosts", func() { cfg.GhostLayers = fl.GhostLayers })
	set("vtaglength", func() { cfg.VectorLength = fl.VectorLength })
	set("nexchanges", func() { cfg.NumExchanges = fl.NumExchanges })
	set("scalar-expr", func() { cfg.ScalarExpr = fl.ScalarExpr })
	set("output", func() { cfg.OutputDir = fl.OutputDir })
	set("format", func() { cfg.OutputFormat = fl.OutputFormat })
	set("debug", func() { cfg.Debug = fl.Debug })
}
