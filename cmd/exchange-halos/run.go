package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vijaysm/halo-exchange/comm"
	"github.com/vijaysm/halo-exchange/dump"
	"github.com/vijaysm/halo-exchange/field"
	"github.com/vijaysm/halo-exchange/loader"
	"github.com/vijaysm/halo-exchange/mesh"
	"github.com/vijaysm/halo-exchange/parallel"
	"github.com/vijaysm/halo-exchange/partition"
	"github.com/vijaysm/halo-exchange/timing"
)

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger().Level(level)
}

func run(cfg Config) error {
	log := newLogger(cfg.Debug)
	runID := uuid.NewString()
	log.Info().Str("run", runID).Str("mesh", cfg.Mesh).Int("ranks", cfg.Ranks).
		Int("ghost_layers", cfg.GhostLayers).Int("vector_length", cfg.VectorLength).
		Int("exchanges", cfg.NumExchanges).Msg("exchange halos")

	if cfg.Transport == "tcp" {
		ep, err := comm.DialTCP(comm.TCPOptions{
			Rank:   cfg.Rank,
			Size:   cfg.Ranks,
			Peers:  cfg.Peers,
			Logger: log,
		})
		if err != nil {
			return err
		}
		defer ep.Close()
		_, err = runRank(ep, cfg, runID, log)
		return err
	}

	g := comm.NewMemGroup(cfg.Ranks)
	errs := make([]error, cfg.Ranks)
	var wg sync.WaitGroup
	for r := 0; r < cfg.Ranks; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			ep := g.Endpoint(rank)
			defer ep.Close()
			_, errs[rank] = runRank(ep, cfg, runID, log)
		}(r)
	}
	wg.Wait()
	for r, err := range errs {
		if err != nil {
			return fmt.Errorf("rank %d: %w", r, err)
		}
	}
	return nil
}

// rankResult carries what a single rank produced, for inspection after
// the run.
type rankResult struct {
	Comm       *parallel.Comm
	Scalar     *mesh.Tag
	Vector     *mesh.Tag
	OwnedCells int
	TotalCells int64
	Reports    [4]timing.Report // load, ghost, scalar, vector; root only
}

// runRank is the per-rank driver: load and partition the mesh, resolve
// the shared skin, build ghost layers, seed the tags on owned cells and
// time repeated exchanges. Every rank of the group runs it in lockstep.
func runRank(ep comm.Endpoint, cfg Config, runID string, log zerolog.Logger) (*rankResult, error) {
	log = log.With().Int("rank", ep.Rank()).Logger()
	res := &rankResult{}
	var timers timing.Stack

	gen, path, err := parseMeshSpec(cfg.Mesh)
	if err != nil {
		return nil, err
	}

	timers.Push("load mesh")
	var def *loader.Mesh
	if gen != nil {
		def, err = gen.Generate()
	} else {
		def, err = loader.ReadTetMeshFile(path)
	}
	if err != nil {
		return nil, err
	}
	strategy, err := partition.ByName(cfg.Partition)
	if err != nil {
		return nil, err
	}
	if len(def.Parts) > 0 {
		// The file carries its own partition; it wins over the strategy.
		strategy, err = loader.FromFile(def)
		if err != nil {
			return nil, err
		}
	}
	store := mesh.NewStore(def.Dim)
	assign, err := loader.LoadPartitioned(store, def, strategy, ep.Rank(), ep.Size())
	if err != nil {
		return nil, err
	}
	pc := parallel.New(ep, store, parallel.Config{Logger: log})
	if err := pc.ResolveSharedEntities(); err != nil {
		return nil, err
	}
	if res.Reports[0], err = popPhase(ep, &timers, 1, log); err != nil {
		return nil, err
	}
	if ep.Rank() == 0 {
		st := partition.Summarize(assign, ep.Size())
		log.Debug().Int("cells", len(assign)).Int("min", st.Min).Int("max", st.Max).
			Float64("imbalance", st.Imbalance).Str("strategy", cfg.Partition).
			Msg("partition balance")
	}

	dim := store.Dim()
	bridge := cfg.BridgeDim
	if bridge < 0 {
		bridge = dim - 1
	}
	timers.Push("build ghost layers")
	if err := pc.BuildGhostLayers(dim, bridge, cfg.GhostLayers); err != nil {
		return nil, err
	}
	if res.Reports[1], err = popPhase(ep, &timers, 1, log); err != nil {
		return nil, err
	}

	cells := store.EntitiesByDimension(dim)
	owned := store.FilterStatus(cells, mesh.StatusNotOwned, mesh.FilterNot)
	res.OwnedCells = owned.Len()
	ghosts := store.FilterStatus(cells, mesh.StatusGhost, mesh.FilterAnd)
	log.Debug().Int("owned", owned.Len()).Int("ghost", ghosts.Len()).Msg("cell census")

	res.TotalCells, err = comm.AllReduce(ep, int64(owned.Len()), comm.ReduceSum)
	if err != nil {
		return nil, err
	}
	if ep.Rank() == 0 {
		log.Info().Int("dim", dim).Int64("total", res.TotalCells).Msg("mesh cell count")
	}

	res.Scalar, res.Vector, err = createFieldTags(store, cfg)
	if err != nil {
		return nil, err
	}
	if err := seedFieldTags(store, owned, res.Scalar, res.Vector, cfg); err != nil {
		return nil, err
	}

	if cfg.OutputDir != "" {
		if err := writeSnapshot(cfg, pc, runID, "pre", res.Scalar, res.Vector); err != nil {
			return nil, err
		}
	}

	timers.Push("exchange scalar tag")
	for i := 0; i < cfg.NumExchanges; i++ {
		if err := pc.Exchange(res.Scalar, cells); err != nil {
			return nil, err
		}
	}
	if res.Reports[2], err = popPhase(ep, &timers, cfg.NumExchanges, log); err != nil {
		return nil, err
	}

	timers.Push("exchange vector tag")
	for i := 0; i < cfg.NumExchanges; i++ {
		if err := pc.Exchange(res.Vector, cells); err != nil {
			return nil, err
		}
	}
	if res.Reports[3], err = popPhase(ep, &timers, cfg.NumExchanges, log); err != nil {
		return nil, err
	}

	if cfg.OutputDir != "" {
		if err := writeSnapshot(cfg, pc, runID, "post", res.Scalar, res.Vector); err != nil {
			return nil, err
		}
	}

	if ep.Rank() == 0 {
		log.Info().Msgf("run summary [%d, %d, %.6f, %.6f, %.6f, %.6f]",
			ep.Size(), cfg.GhostLayers,
			res.Reports[0].Max.Seconds(), res.Reports[1].Max.Seconds(),
			res.Reports[2].Max.Seconds(), res.Reports[3].Max.Seconds())
	}
	return res, nil
}

// popPhase closes the innermost timer and reduces it across the group.
// Collective; the returned report is filled at rank 0 only.
func popPhase(ep comm.Endpoint, timers *timing.Stack, nruns int, log zerolog.Logger) (timing.Report, error) {
	name, elapsed, err := timers.Pop(nruns)
	if err != nil {
		return timing.Report{}, err
	}
	rep, err := timing.Summarize(ep, 0, name, elapsed)
	if err != nil {
		return timing.Report{}, err
	}
	if ep.Rank() == 0 {
		log.Info().Str("phase", rep.Name).Dur("max", rep.Max).Dur("avg", rep.Avg).Msg("timing")
	}
	return rep, nil
}

func createFieldTags(store *mesh.Store, cfg Config) (*mesh.Tag, *mesh.Tag, error) {
	scalar, err := store.Tags().Create(mesh.TagSpec{
		Name:    cfg.ScalarTag,
		Type:    mesh.Float64,
		Width:   1,
		Storage: mesh.TagDense,
		Default: mesh.FillEntry(mesh.Float64, 1, -1),
	})
	if err != nil {
		return nil, nil, err
	}
	vector, err := store.Tags().Create(mesh.TagSpec{
		Name:    cfg.VectorTag,
		Type:    mesh.Float64,
		Width:   cfg.VectorLength,
		Storage: mesh.TagDense,
		Default: mesh.FillEntry(mesh.Float64, cfg.VectorLength, -1),
	})
	if err != nil {
		return nil, nil, err
	}
	return scalar, vector, nil
}

// seedFieldTags evaluates the scalar and vector fields at the spherical
// centroid of every owned cell. Ghost copies keep the default until the
// first exchange carries the owner's values over.
func seedFieldTags(store *mesh.Store, owned *mesh.EntitySet, scalar, vector *mesh.Tag, cfg Config) error {
	scalarField := field.Builtin(field.Pulse, 1)
	if cfg.ScalarExpr != "" {
		var err error
		scalarField, err = field.Compile(cfg.ScalarExpr)
		if err != nil {
			return err
		}
	}
	comps := field.VectorComponents(cfg.VectorLength)

	w := cfg.VectorLength
	sv := make([]float64, owned.Len())
	vv := make([]float64, owned.Len()*w)
	for i, h := range owned.Handles() {
		lon, lat := store.SphericalCentroid(h)
		sv[i] = scalarField(lon, lat)
		for j, f := range comps {
			vv[i*w+j] = f(lon, lat)
		}
	}
	if err := scalar.SetValues(owned, sv); err != nil {
		return err
	}
	return vector.SetValues(owned, vv)
}

func writeSnapshot(cfg Config, pc *parallel.Comm, runID, phase string, tags ...*mesh.Tag) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return err
	}
	snap := dump.Capture(pc, runID, tags...)
	name := fmt.Sprintf("halos_%s_rank%d", phase, pc.Rank())
	if cfg.OutputFormat == "sqlite" {
		return dump.WriteSQLite(filepath.Join(cfg.OutputDir, name+".db"), snap)
	}
	f, err := os.Create(filepath.Join(cfg.OutputDir, name+".yaml"))
	if err != nil {
		return err
	}
	defer f.Close()
	if err := dump.WriteYAML(f, snap); err != nil {
		return err
	}
	return f.Close()
}
