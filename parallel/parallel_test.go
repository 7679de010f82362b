package parallel

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vijaysm/halo-exchange/comm"
	"github.com/vijaysm/halo-exchange/mesh"
)

// addQuad inserts the unit quad with lower-left corner (i, j) of a planar
// grid whose vertex global ids advance by stride per row.
func addQuad(s *mesh.Store, stride, i, j int) mesh.EntityHandle {
	corners := [4][2]int{{i, j}, {i + 1, j}, {i + 1, j + 1}, {i, j + 1}}
	verts := make([]mesh.EntityHandle, 4)
	for k, c := range corners {
		gid := int64(c[1]*stride + c[0])
		v, _ := s.AddVertex(gid, float64(c[0]), float64(c[1]), 0)
		verts[k] = v
	}
	h, _ := s.AddEntity(2, verts)
	return h
}

// stripStore builds one rank's quad of a 1x2 strip: rank 0 loads the left
// quad, rank 1 the right, sharing vertices 1 and 4.
func stripStore(rank int) *mesh.Store {
	s := mesh.NewStore(2)
	addQuad(s, 3, rank, 0)
	return s
}

// rowStore builds one rank's quad of a 1x3 row, one quad per rank.
func rowStore(rank int) *mesh.Store {
	s := mesh.NewStore(2)
	addQuad(s, 4, rank, 0)
	return s
}

// wideStripStore builds one rank's half of a 1x4 strip, two quads per
// rank.
func wideStripStore(rank int) *mesh.Store {
	s := mesh.NewStore(2)
	addQuad(s, 5, 2*rank, 0)
	addQuad(s, 5, 2*rank+1, 0)
	return s
}

// gridStore builds one rank's 2x2 cell block of a 4x4 quad grid split
// across a 2x2 rank layout.
func gridStore(rank int) *mesh.Store {
	s := mesh.NewStore(2)
	i0 := (rank % 2) * 2
	j0 := (rank / 2) * 2
	for j := j0; j < j0+2; j++ {
		for i := i0; i < i0+2; i++ {
			addQuad(s, 5, i, j)
		}
	}
	return s
}

// runRanks drives size communicators through body concurrently, one rank
// per goroutine over an in-memory group, and returns them with each
// rank's error.
func runRanks(t *testing.T, size int, mkStore func(rank int) *mesh.Store, body func(c *Comm) error) ([]*Comm, []error) {
	t.Helper()
	g := comm.NewMemGroup(size)
	comms := make([]*Comm, size)
	for r := 0; r < size; r++ {
		comms[r] = New(g.Endpoint(r), mkStore(r), Config{Logger: zerolog.Nop()})
	}
	errs := make([]error, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errs[rank] = body(comms[rank])
		}(r)
	}
	wg.Wait()
	return comms, errs
}

func noErrors(t *testing.T, errs []error) {
	t.Helper()
	for r, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", r, err)
		}
	}
}

func TestResolveStripSharing(t *testing.T) {
	comms, errs := runRanks(t, 2, stripStore, func(c *Comm) error {
		return c.ResolveSharedEntities()
	})
	noErrors(t, errs)

	private := [2][]int64{{0, 3}, {2, 5}}
	for rank, c := range comms {
		s := c.Store()
		for _, gid := range []int64{1, 4} {
			v, ok := s.VertexByGID(gid)
			if !ok {
				t.Fatalf("rank %d lost vertex %d", rank, gid)
			}
			st := s.Status(v)
			if st&mesh.StatusShared == 0 || st&mesh.StatusInterface == 0 {
				t.Errorf("rank %d vertex %d status %b, want shared interface", rank, gid, st)
			}
			if notOwned := st&mesh.StatusNotOwned != 0; notOwned != (rank == 1) {
				t.Errorf("rank %d vertex %d notOwned=%v", rank, gid, notOwned)
			}
			e, ok := c.Sharing(v)
			if !ok {
				t.Fatalf("rank %d vertex %d has no sharing entry", rank, gid)
			}
			if e.Owner != 0 || !reflect.DeepEqual(e.Ranks, []int{0, 1}) {
				t.Errorf("rank %d vertex %d entry owner=%d ranks=%v", rank, gid, e.Owner, e.Ranks)
			}
			if _, ok := e.RemoteHandle(1 - rank); !ok {
				t.Errorf("rank %d vertex %d missing remote handle for rank %d", rank, gid, 1-rank)
			}
		}
		for _, gid := range private[rank] {
			v, _ := s.VertexByGID(gid)
			if s.Status(v) != 0 {
				t.Errorf("rank %d private vertex %d status %b", rank, gid, s.Status(v))
			}
			if _, ok := c.Sharing(v); ok {
				t.Errorf("rank %d private vertex %d acquired sharing entry", rank, gid)
			}
		}
		for _, h := range s.EntitiesByDimension(2).Handles() {
			if s.Status(h) != 0 {
				t.Errorf("rank %d cell status %b after resolve", rank, s.Status(h))
			}
		}
		if got := c.Neighbors(); !reflect.DeepEqual(got, []int{1 - rank}) {
			t.Errorf("rank %d neighbors %v", rank, got)
		}
	}
}

func TestResolveRejectsDuplicateCells(t *testing.T) {
	// Both ranks load the same quad, so both claim ownership of it.
	_, errs := runRanks(t, 2, func(int) *mesh.Store {
		s := mesh.NewStore(2)
		addQuad(s, 3, 0, 0)
		return s
	}, func(c *Comm) error {
		return c.ResolveSharedEntities()
	})
	for r, err := range errs {
		if !errors.Is(err, ErrTopologyConflict) {
			t.Errorf("rank %d error = %v, want ErrTopologyConflict", r, err)
		}
	}
}

func TestGhostStripDepthOne(t *testing.T) {
	comms, errs := runRanks(t, 2, stripStore, func(c *Comm) error {
		if err := c.ResolveSharedEntities(); err != nil {
			return err
		}
		return c.BuildGhostLayers(2, 0, 1)
	})
	noErrors(t, errs)

	ghosts := make([]mesh.EntityHandle, 2)
	owned := make([]mesh.EntityHandle, 2)
	for rank, c := range comms {
		s := c.Store()
		if n := s.NumEntities(2); n != 2 {
			t.Fatalf("rank %d has %d cells, want 2", rank, n)
		}
		if n := s.NumEntities(0); n != 6 {
			t.Errorf("rank %d has %d vertices, want 6", rank, n)
		}
		cells := s.EntitiesByDimension(2)
		g := s.FilterStatus(cells, mesh.StatusGhost, mesh.FilterAnd)
		if g.Len() != 1 {
			t.Fatalf("rank %d has %d ghost cells, want 1", rank, g.Len())
		}
		gh := g.Handles()[0]
		ghosts[rank] = gh
		owned[rank] = s.FilterStatus(cells, mesh.StatusGhost|mesh.StatusNotOwned, mesh.FilterNot).Handles()[0]

		if s.GhostLayer(gh) != 1 || s.GhostSource(gh) != 1-rank {
			t.Errorf("rank %d ghost layer=%d source=%d", rank, s.GhostLayer(gh), s.GhostSource(gh))
		}
		e, ok := c.Sharing(gh)
		if !ok || e.Owner != 1-rank || !reflect.DeepEqual(e.Ranks, []int{0, 1}) {
			t.Fatalf("rank %d ghost entry %+v ok=%v", rank, e, ok)
		}
	}

	// Both sides of the remote-handle table agree.
	for rank, c := range comms {
		ge, _ := c.Sharing(ghosts[rank])
		if rh, ok := ge.RemoteHandle(1 - rank); !ok || rh != owned[1-rank] {
			t.Errorf("rank %d ghost remote handle %v, want %v", rank, rh, owned[1-rank])
		}
		oe, ok := comms[1-rank].Sharing(owned[1-rank])
		if !ok {
			t.Fatalf("rank %d never learned its cell was ghosted", 1-rank)
		}
		if rh, ok := oe.RemoteHandle(rank); !ok || rh != ghosts[rank] {
			t.Errorf("rank %d owner-side remote handle %v, want %v", 1-rank, rh, ghosts[rank])
		}
	}

	// The pulled-in far vertices arrive as ghosts.
	farGids := [2][]int64{{2, 5}, {0, 3}}
	for rank, c := range comms {
		for _, gid := range farGids[rank] {
			v, ok := c.Store().VertexByGID(gid)
			if !ok || c.Store().Status(v)&mesh.StatusGhost == 0 {
				t.Errorf("rank %d vertex %d not a ghost (ok=%v)", rank, gid, ok)
			}
		}
	}
}

func TestGhostBuildIdempotent(t *testing.T) {
	before := make([][2]int, 2)
	after := make([][2]int, 2)
	_, errs := runRanks(t, 2, stripStore, func(c *Comm) error {
		if err := c.ResolveSharedEntities(); err != nil {
			return err
		}
		// Deeper than the mesh extends; the extra rounds run empty.
		if err := c.BuildGhostLayers(2, 0, 3); err != nil {
			return err
		}
		before[c.Rank()] = [2]int{c.Store().NumEntities(0), c.Store().NumEntities(2)}
		if err := c.BuildGhostLayers(2, 0, 1); err != nil {
			return err
		}
		after[c.Rank()] = [2]int{c.Store().NumEntities(0), c.Store().NumEntities(2)}
		return nil
	})
	noErrors(t, errs)
	for r := range before {
		if before[r] != after[r] {
			t.Errorf("rank %d entity counts moved %v -> %v", r, before[r], after[r])
		}
		if before[r] != [2]int{6, 2} {
			t.Errorf("rank %d counts %v, want [6 2]", r, before[r])
		}
	}
}

func TestGhostIncrementalDeepening(t *testing.T) {
	// Growing the halo one ring at a time, the way the driver loops
	// build(1), build(2), ..., must land on the same halo as a single
	// build at the final depth.
	direct := make([][2]int, 2)
	_, errs := runRanks(t, 2, wideStripStore, func(c *Comm) error {
		if err := c.ResolveSharedEntities(); err != nil {
			return err
		}
		if err := c.BuildGhostLayers(2, 0, 2); err != nil {
			return err
		}
		direct[c.Rank()] = [2]int{c.Store().NumEntities(0), c.Store().NumEntities(2)}
		return nil
	})
	noErrors(t, errs)

	comms, errs := runRanks(t, 2, wideStripStore, func(c *Comm) error {
		if err := c.ResolveSharedEntities(); err != nil {
			return err
		}
		if err := c.BuildGhostLayers(2, 0, 1); err != nil {
			return err
		}
		return c.BuildGhostLayers(2, 0, 2)
	})
	noErrors(t, errs)
	for rank, c := range comms {
		got := [2]int{c.Store().NumEntities(0), c.Store().NumEntities(2)}
		if got != direct[rank] {
			t.Errorf("rank %d incremental counts %v, direct build(2) gives %v", rank, got, direct[rank])
		}
		if got[1] != 4 {
			t.Errorf("rank %d holds %d cells after deepening to 2, want the full strip", rank, got[1])
		}
		layers := map[int]int{}
		for _, h := range c.Store().EntitiesByDimension(2).Handles() {
			if c.Store().Status(h)&mesh.StatusGhost != 0 {
				layers[c.Store().GhostLayer(h)]++
			}
		}
		if layers[1] != 1 || layers[2] != 1 {
			t.Errorf("rank %d ghost layer histogram %v, want one cell each at layers 1 and 2", rank, layers)
		}
	}
}

func TestGhostDepthZero(t *testing.T) {
	comms, errs := runRanks(t, 2, stripStore, func(c *Comm) error {
		if err := c.ResolveSharedEntities(); err != nil {
			return err
		}
		if err := c.BuildGhostLayers(2, 0, 0); err != nil {
			return err
		}
		s := c.Store()
		density, err := s.Tags().Create(mesh.TagSpec{
			Name: "density", Type: mesh.Float64, Width: 1,
			Storage: mesh.TagDense, Default: mesh.FillEntry(mesh.Float64, 1, -1),
		})
		if err != nil {
			return err
		}
		// No ghost cells anywhere, so the exchange must complete without
		// a single data message.
		return c.Exchange(density, s.EntitiesByDimension(2))
	})
	noErrors(t, errs)
	for rank, c := range comms {
		if n := c.Store().NumEntities(2); n != 1 {
			t.Errorf("rank %d has %d cells after depth-0 build", rank, n)
		}
	}
}

func TestFourRankGridOwnership(t *testing.T) {
	comms, errs := runRanks(t, 4, gridStore, func(c *Comm) error {
		if err := c.ResolveSharedEntities(); err != nil {
			return err
		}
		return c.BuildGhostLayers(2, 0, 1)
	})
	noErrors(t, errs)

	// Each rank sees its own 2x2 block plus the 5-cell halo around the
	// block corner at the grid center.
	for rank, c := range comms {
		if n := c.Store().NumEntities(2); n != 9 {
			t.Errorf("rank %d has %d cells, want 9", rank, n)
		}
	}

	// Exactly one rank owns each of the 16 global cells.
	owners := make(map[mesh.GlobalKey]int)
	for rank, c := range comms {
		s := c.Store()
		for _, h := range s.EntitiesByDimension(2).Handles() {
			if s.Status(h)&mesh.StatusNotOwned != 0 {
				continue
			}
			k := s.Key(h)
			if prev, dup := owners[k]; dup {
				t.Errorf("cell %x owned by ranks %d and %d", []byte(k), prev, rank)
			}
			owners[k] = rank
		}
	}
	if len(owners) != 16 {
		t.Errorf("%d cells have owners, want 16", len(owners))
	}

	// The center vertex is held by all four ranks and owned by the lowest.
	for rank, c := range comms {
		v, ok := c.Store().VertexByGID(12)
		if !ok {
			t.Fatalf("rank %d does not hold the center vertex", rank)
		}
		if st := c.Store().Status(v); st&mesh.StatusMultishared == 0 {
			t.Errorf("rank %d center vertex status %b, want multishared", rank, st)
		}
		e, ok := c.Sharing(v)
		if !ok || e.Owner != 0 || !reflect.DeepEqual(e.Ranks, []int{0, 1, 2, 3}) {
			t.Errorf("rank %d center vertex entry %+v ok=%v", rank, e, ok)
		}
	}
}

// cellValue gives every grid cell a distinct exact float from its centroid.
func cellValue(s *mesh.Store, h mesh.EntityHandle) float64 {
	x, y, _ := s.Centroid(h)
	return 100*x + 10*y
}

func TestExchangeCellTags(t *testing.T) {
	comms, errs := runRanks(t, 4, gridStore, func(c *Comm) error {
		if err := c.ResolveSharedEntities(); err != nil {
			return err
		}
		if err := c.BuildGhostLayers(2, 0, 1); err != nil {
			return err
		}
		s := c.Store()
		density, err := s.Tags().Create(mesh.TagSpec{
			Name: "density", Type: mesh.Float64, Width: 1,
			Storage: mesh.TagDense, Default: mesh.FillEntry(mesh.Float64, 1, -1),
		})
		if err != nil {
			return err
		}
		velocity, err := s.Tags().Create(mesh.TagSpec{
			Name: "velocity", Type: mesh.Float64, Width: 3,
			Storage: mesh.TagDense, Default: mesh.FillEntry(mesh.Float64, 3, -1),
		})
		if err != nil {
			return err
		}

		cells := s.EntitiesByDimension(2)
		owned := s.FilterStatus(cells, mesh.StatusNotOwned, mesh.FilterNot)
		dVals := make([]float64, owned.Len())
		vVals := make([]float64, owned.Len()*3)
		for i, h := range owned.Handles() {
			base := cellValue(s, h)
			dVals[i] = base
			for k := 0; k < 3; k++ {
				vVals[i*3+k] = base + float64(k)
			}
		}
		if err := density.SetValues(owned, dVals); err != nil {
			return err
		}
		if err := velocity.SetValues(owned, vVals); err != nil {
			return err
		}

		// Ghost copies still carry the default until the exchange runs.
		for _, h := range s.FilterStatus(cells, mesh.StatusGhost, mesh.FilterAnd).Handles() {
			got, err := density.Values(mesh.NewEntitySet(h))
			if err != nil {
				return err
			}
			if got[0] != -1 {
				t.Errorf("rank %d ghost cell preloaded with %v", c.Rank(), got[0])
			}
		}

		if err := c.Exchange(density, cells); err != nil {
			return err
		}
		return c.Exchange(velocity, cells)
	})
	noErrors(t, errs)

	for rank, c := range comms {
		s := c.Store()
		density, _ := s.Tags().Get("density")
		velocity, _ := s.Tags().Get("velocity")
		for _, h := range s.EntitiesByDimension(2).Handles() {
			want := cellValue(s, h)
			got, err := density.Values(mesh.NewEntitySet(h))
			if err != nil {
				t.Fatalf("rank %d density read: %v", rank, err)
			}
			if got[0] != want {
				t.Errorf("rank %d cell at %v density %v, want %v", rank, h, got[0], want)
			}
			vec, err := velocity.Values(mesh.NewEntitySet(h))
			if err != nil {
				t.Fatalf("rank %d velocity read: %v", rank, err)
			}
			for k := 0; k < 3; k++ {
				if vec[k] != want+float64(k) {
					t.Errorf("rank %d velocity[%d] = %v, want %v", rank, k, vec[k], want+float64(k))
				}
			}
		}
	}
}

func TestExchangeVertexTagOnInterface(t *testing.T) {
	comms, errs := runRanks(t, 2, stripStore, func(c *Comm) error {
		if err := c.ResolveSharedEntities(); err != nil {
			return err
		}
		s := c.Store()
		tag, err := s.Tags().Create(mesh.TagSpec{
			Name: "vgid", Type: mesh.Float64, Width: 1,
			Storage: mesh.TagDense, Default: mesh.FillEntry(mesh.Float64, 1, -1),
		})
		if err != nil {
			return err
		}
		verts := s.EntitiesByDimension(0)
		owned := s.FilterStatus(verts, mesh.StatusNotOwned, mesh.FilterNot)
		vals := make([]float64, owned.Len())
		for i, h := range owned.Handles() {
			vals[i] = float64(s.VertexGID(h))
		}
		if err := tag.SetValues(owned, vals); err != nil {
			return err
		}
		return c.Exchange(tag, verts)
	})
	noErrors(t, errs)

	// Rank 1's copies of the interface vertices now carry rank 0's values;
	// everything else was set locally.
	for rank, c := range comms {
		s := c.Store()
		tag, _ := s.Tags().Get("vgid")
		for _, h := range s.EntitiesByDimension(0).Handles() {
			got, err := tag.Values(mesh.NewEntitySet(h))
			if err != nil {
				t.Fatalf("rank %d: %v", rank, err)
			}
			if got[0] != float64(s.VertexGID(h)) {
				t.Errorf("rank %d vertex %d tag %v", rank, s.VertexGID(h), got[0])
			}
		}
	}
}

func TestExchangeTagMismatch(t *testing.T) {
	_, errs := runRanks(t, 2, stripStore, func(c *Comm) error {
		if err := c.ResolveSharedEntities(); err != nil {
			return err
		}
		s := c.Store()
		// The ranks disagree on the tag shape.
		width := 1 + c.Rank()
		tag, err := s.Tags().Create(mesh.TagSpec{
			Name: "density", Type: mesh.Float64, Width: width,
			Storage: mesh.TagDense, Default: mesh.FillEntry(mesh.Float64, width, -1),
		})
		if err != nil {
			return err
		}
		return c.Exchange(tag, s.EntitiesByDimension(0))
	})
	// Rank 0 owns every shared vertex, so only rank 1 receives data and
	// trips over the shape.
	if errs[0] != nil {
		t.Errorf("rank 0: %v", errs[0])
	}
	if !errors.Is(errs[1], mesh.ErrTagMismatch) {
		t.Errorf("rank 1 error = %v, want ErrTagMismatch", errs[1])
	}
}

func TestThinRowCorrection(t *testing.T) {
	comms, errs := runRanks(t, 3, rowStore, func(c *Comm) error {
		if err := c.ResolveSharedEntities(); err != nil {
			return err
		}
		if err := c.BuildGhostLayers(2, 0, 2); err != nil {
			return err
		}
		s := c.Store()
		density, err := s.Tags().Create(mesh.TagSpec{
			Name: "density", Type: mesh.Float64, Width: 1,
			Storage: mesh.TagDense, Default: mesh.FillEntry(mesh.Float64, 1, -1),
		})
		if err != nil {
			return err
		}
		cells := s.EntitiesByDimension(2)
		owned := s.FilterStatus(cells, mesh.StatusNotOwned, mesh.FilterNot)
		vals := make([]float64, owned.Len())
		for i, h := range owned.Handles() {
			vals[i] = cellValue(s, h)
		}
		if err := density.SetValues(owned, vals); err != nil {
			return err
		}
		return c.Exchange(density, cells)
	})
	noErrors(t, errs)

	// Depth 2 on single-quad partitions only works if the correction pass
	// teaches rank 0 that rank 2 exists, and vice versa.
	quad := func(i int) mesh.GlobalKey {
		return mesh.KeyOf(2, []int64{int64(i), int64(i + 1), int64(i + 5), int64(i + 4)})
	}
	for rank, c := range comms {
		s := c.Store()
		if n := s.NumEntities(2); n != 3 {
			t.Fatalf("rank %d has %d cells, want 3", rank, n)
		}
		for i := 0; i < 3; i++ {
			h, ok := s.FindByKey(quad(i))
			if !ok {
				t.Fatalf("rank %d missing quad %d", rank, i)
			}
			wantLayer := rank - i
			if wantLayer < 0 {
				wantLayer = i - rank
			}
			if got := s.GhostLayer(h); got != wantLayer {
				t.Errorf("rank %d quad %d at layer %d, want %d", rank, i, got, wantLayer)
			}
			e, ok := c.Sharing(h)
			if i != rank {
				if !ok || e.Owner != i {
					t.Errorf("rank %d quad %d entry %+v ok=%v, want owner %d", rank, i, e, ok, i)
				}
			}
		}
	}

	// The far owners learned about the depth-2 copies, so the exchange
	// reached every cell.
	for rank, c := range comms {
		s := c.Store()
		density, _ := s.Tags().Get("density")
		for _, h := range s.EntitiesByDimension(2).Handles() {
			got, err := density.Values(mesh.NewEntitySet(h))
			if err != nil {
				t.Fatalf("rank %d: %v", rank, err)
			}
			if want := cellValue(s, h); got[0] != want {
				t.Errorf("rank %d cell density %v, want %v", rank, got[0], want)
			}
		}
	}

	// Owner-side holder lists include the two-hop ghost holders.
	endEntry, ok := comms[2].Sharing(mustFind(t, comms[2].Store(), quad(2)))
	if !ok || !reflect.DeepEqual(endEntry.Ranks, []int{0, 1, 2}) {
		t.Errorf("rank 2 entry for its own quad %+v ok=%v", endEntry, ok)
	}
}

func mustFind(t *testing.T, s *mesh.Store, k mesh.GlobalKey) mesh.EntityHandle {
	t.Helper()
	h, ok := s.FindByKey(k)
	if !ok {
		t.Fatalf("entity %x not found", []byte(k))
	}
	return h
}

func TestExchangePlanReuse(t *testing.T) {
	plans := make([]*exchangePlan, 2)
	reused := make([]bool, 2)
	cleared := make([]bool, 2)
	_, errs := runRanks(t, 2, stripStore, func(c *Comm) error {
		if err := c.ResolveSharedEntities(); err != nil {
			return err
		}
		if err := c.BuildGhostLayers(2, 0, 1); err != nil {
			return err
		}
		s := c.Store()
		tag, err := s.Tags().Create(mesh.TagSpec{
			Name: "density", Type: mesh.Float64, Width: 1,
			Storage: mesh.TagDense, Default: mesh.FillEntry(mesh.Float64, 1, -1),
		})
		if err != nil {
			return err
		}
		cells := s.EntitiesByDimension(2)
		if err := c.Exchange(tag, cells); err != nil {
			return err
		}
		plans[c.Rank()] = c.plan
		if err := c.Exchange(tag, cells); err != nil {
			return err
		}
		reused[c.Rank()] = c.plan == plans[c.Rank()]
		if err := c.BuildGhostLayers(2, 0, 1); err != nil {
			return err
		}
		cleared[c.Rank()] = c.plan == nil
		return nil
	})
	noErrors(t, errs)
	for r := 0; r < 2; r++ {
		if plans[r] == nil {
			t.Fatalf("rank %d never built a plan", r)
		}
		if !reused[r] {
			t.Errorf("rank %d rebuilt the plan for an unchanged topology", r)
		}
		if !cleared[r] {
			t.Errorf("rank %d kept a stale plan across a ghost build", r)
		}
	}
}
