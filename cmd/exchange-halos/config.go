package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/vijaysm/halo-exchange/loader"
	"github.com/vijaysm/halo-exchange/partition"
)

// Config collects every knob of an exchange run. Values load in three
// layers: defaults, then the TOML file, then command-line flags.
type Config struct {
	Mesh         string
	Partition    string
	Transport    string
	Ranks        int
	Rank         int
	Peers        []string
	GhostLayers  int
	BridgeDim    int
	VectorLength int
	NumExchanges int
	ScalarTag    string
	VectorTag    string
	ScalarExpr   string
	OutputDir    string
	OutputFormat string
	Debug        bool
}

func defaultConfig() Config {
	return Config{
		Mesh:         "latlon:16x32",
		Partition:    "block",
		Transport:    "mem",
		Ranks:        2,
		Rank:         -1,
		GhostLayers:  3,
		BridgeDim:    -1,
		VectorLength: 3,
		NumExchanges: 10,
		ScalarTag:    "scalar_variable",
		VectorTag:    "vector_variable",
		OutputFormat: "yaml",
	}
}

type fileConfig struct {
	Mesh         string   `toml:"mesh"`
	Partition    string   `toml:"partition"`
	Transport    string   `toml:"transport"`
	Ranks        int      `toml:"ranks"`
	Rank         int      `toml:"rank"`
	Peers        []string `toml:"peers"`
	GhostLayers  int      `toml:"ghost_layers"`
	BridgeDim    int      `toml:"bridge_dim"`
	VectorLength int      `toml:"vector_length"`
	NumExchanges int      `toml:"num_exchanges"`
	ScalarTag    string   `toml:"scalar_tagname"`
	VectorTag    string   `toml:"vector_tagname"`
	ScalarExpr   string   `toml:"scalar_expr"`
	OutputDir    string   `toml:"output_dir"`
	OutputFormat string   `toml:"output_format"`
	Debug        bool     `toml:"debug"`
}

// loadConfig overlays the TOML file at path, when given, onto the
// defaults. Only keys present in the file override.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("mesh") {
		cfg.Mesh = strings.TrimSpace(raw.Mesh)
	}
	if meta.IsDefined("partition") {
		cfg.Partition = strings.TrimSpace(raw.Partition)
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.TrimSpace(raw.Transport)
	}
	if meta.IsDefined("ranks") {
		cfg.Ranks = raw.Ranks
	}
	if meta.IsDefined("rank") {
		cfg.Rank = raw.Rank
	}
	if meta.IsDefined("peers") {
		cfg.Peers = raw.Peers
	}
	if meta.IsDefined("ghost_layers") {
		cfg.GhostLayers = raw.GhostLayers
	}
	if meta.IsDefined("bridge_dim") {
		cfg.BridgeDim = raw.BridgeDim
	}
	if meta.IsDefined("vector_length") {
		cfg.VectorLength = raw.VectorLength
	}
	if meta.IsDefined("num_exchanges") {
		cfg.NumExchanges = raw.NumExchanges
	}
	if meta.IsDefined("scalar_tagname") {
		cfg.ScalarTag = strings.TrimSpace(raw.ScalarTag)
	}
	if meta.IsDefined("vector_tagname") {
		cfg.VectorTag = strings.TrimSpace(raw.VectorTag)
	}
	if meta.IsDefined("scalar_expr") {
		cfg.ScalarExpr = raw.ScalarExpr
	}
	if meta.IsDefined("output_dir") {
		cfg.OutputDir = strings.TrimSpace(raw.OutputDir)
	}
	if meta.IsDefined("output_format") {
		cfg.OutputFormat = strings.TrimSpace(raw.OutputFormat)
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Ranks < 1 {
		return fmt.Errorf("ranks = %d, need at least 1", c.Ranks)
	}
	switch c.Transport {
	case "mem":
	case "tcp":
		if c.Rank < 0 || c.Rank >= c.Ranks {
			return fmt.Errorf("tcp transport needs rank in 0..%d, have %d", c.Ranks-1, c.Rank)
		}
		if len(c.Peers) != c.Ranks {
			return fmt.Errorf("tcp transport needs %d peer addresses, have %d", c.Ranks, len(c.Peers))
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.GhostLayers < 0 {
		return fmt.Errorf("ghost_layers = %d, cannot be negative", c.GhostLayers)
	}
	if c.VectorLength < 1 {
		return fmt.Errorf("vector_length = %d, need at least 1", c.VectorLength)
	}
	if c.NumExchanges < 1 {
		return fmt.Errorf("num_exchanges = %d, need at least 1", c.NumExchanges)
	}
	if c.ScalarTag == "" || c.VectorTag == "" {
		return fmt.Errorf("tag names must not be empty")
	}
	if c.ScalarTag == c.VectorTag {
		return fmt.Errorf("scalar and vector tags share the name %q", c.ScalarTag)
	}
	switch c.OutputFormat {
	case "yaml", "sqlite":
	default:
		return fmt.Errorf("unknown output format %q", c.OutputFormat)
	}
	if _, err := partition.ByName(c.Partition); err != nil {
		return err
	}
	if _, _, err := parseMeshSpec(c.Mesh); err != nil {
		return err
	}
	return nil
}

// parseMeshSpec maps a mesh argument onto a generator or a file path:
// "latlon:NxM" and "grid:NxM" generate, anything else is read from
// disk.
func parseMeshSpec(s string) (loader.Generator, string, error) {
	if rest, ok := strings.CutPrefix(s, "latlon:"); ok {
		nlat, nlon, err := parseExtents(rest)
		if err != nil {
			return nil, "", fmt.Errorf("mesh %q: %w", s, err)
		}
		return loader.LatLonSphere{NLat: nlat, NLon: nlon}, "", nil
	}
	if rest, ok := strings.CutPrefix(s, "grid:"); ok {
		nx, ny, err := parseExtents(rest)
		if err != nil {
			return nil, "", fmt.Errorf("mesh %q: %w", s, err)
		}
		return loader.PlanarGrid{NX: nx, NY: ny}, "", nil
	}
	if strings.TrimSpace(s) == "" {
		return nil, "", fmt.Errorf("mesh is empty")
	}
	return nil, s, nil
}

func parseExtents(s string) (int, int, error) {
	a, b, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0, fmt.Errorf("extents %q: want NxM", s)
	}
	n, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, fmt.Errorf("extents %q: %w", s, err)
	}
	m, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, fmt.Errorf("extents %q: %w", s, err)
	}
	return n, m, nil
}
