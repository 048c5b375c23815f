package model

import (
	"testing"

	"github.com/Faultbox/stmesh/internal/decoder"
	"github.com/Faultbox/stmesh/internal/playback"
	"github.com/Faultbox/stmesh/internal/segment"
	"github.com/Faultbox/stmesh/internal/stmtest"
	"github.com/Faultbox/stmesh/internal/vertex"
	"github.com/Faultbox/stmesh/pkg/formats"
	"github.com/Faultbox/stmesh/pkg/math"
	"github.com/Faultbox/stmesh/pkg/quant"
)

func TestSetSync(t *testing.T) {
	s := NewSet(BuildOptions{})
	s.Build([]*formats.MeshInfo{quadInfo(), quadInfo()})

	if s.Sync() {
		t.Error("Sync before any pose should report no change")
	}

	// Normals and bounds come from the signaled keyframe shape.
	moved := make([]math.Vec3, len(quadPositions))
	for i, p := range quadPositions {
		moved[i] = p.Add(math.Vec3{X: 2})
	}
	s.NormalsDirty([][]math.Vec3{quadPositions, moved}, math.Vec3{Y: 10})
	if !s.Sync() {
		t.Fatal("Sync after a rebuild should report change")
	}
	if !approxVec(s.Meshes[0].Vertices[0].Normal, math.Vec3{Z: 1}) {
		t.Errorf("normal not rebuilt: %v", s.Meshes[0].Vertices[0].Normal)
	}
	want := Bounds{Min: math.Vec3{X: 0, Y: 10, Z: 0}, Max: math.Vec3{X: 3, Y: 11, Z: 0}}
	if b := s.Bounds(); b != want {
		t.Errorf("bounds = %+v, want %+v", b, want)
	}

	// The pose that follows is still the previous shape; it uploads but
	// leaves normals and bounds alone.
	zero := make([]math.Vec3, len(quadPositions))
	s.UpdatePose([][]math.Vec3{zero, zero})
	s.UpdateRoot(math.Vec3{})
	if !s.Sync() {
		t.Error("pose should report change")
	}
	if s.Sync() {
		t.Error("Sync should clear the pose flag")
	}
	if b := s.Bounds(); b != want {
		t.Errorf("bounds after pose = %+v, want %+v", b, want)
	}
	if !approxVec(s.Meshes[0].Vertices[0].Normal, math.Vec3{Z: 1}) {
		t.Errorf("pose changed normals: %v", s.Meshes[0].Vertices[0].Normal)
	}

	poses, rebuilds := s.Counters()
	if poses != 1 || rebuilds != 1 {
		t.Errorf("counters = %d poses, %d rebuilds; want 1, 1", poses, rebuilds)
	}
}

func TestSetShapeIsCopied(t *testing.T) {
	s := NewSet(BuildOptions{})
	s.Build([]*formats.MeshInfo{quadInfo()})

	shape := append([]math.Vec3(nil), quadPositions...)
	s.NormalsDirty([][]math.Vec3{shape}, math.Vec3{})
	shape[0] = math.Vec3{X: -5}
	s.Sync()

	if b := s.Bounds(); b.Min != (math.Vec3{}) {
		t.Errorf("bounds = %+v; the signaled slice was retained", b)
	}
}

// threeVertexInfo is a single triangle.
func threeVertexInfo() *formats.MeshInfo {
	return &formats.MeshInfo{
		Name:          "tri",
		VertexCount:   3,
		SubMeshCount:  1,
		Indices:       []int{0, 1, 2},
		IndicesCounts: []int{3},
	}
}

func TestSetBoundsAfterFirstKeyframe(t *testing.T) {
	params := quant.Params{AreaRange: 4, PackageSize: 128}
	// Origins 80 and 48 are +1 and -1 on their axis; 64 is 0.
	key := stmtest.NewKeyframe(math.Vec3{X: 2}).
		Package(80, 64, 64, stmtest.Vertex{Index: 0}).
		Package(64, 80, 64, stmtest.Vertex{Index: 1}).
		Package(64, 64, 48, stmtest.Vertex{Index: 2}).
		Bytes()

	buf := segment.NewBuffer(segment.OrderArrival)
	buf.Append(segment.Frame{Data: key})

	set := NewSet(BuildOptions{})
	set.Build([]*formats.MeshInfo{threeVertexInfo()})

	p, err := playback.New(playback.DefaultConfig(), buf, set, nopRequester{})
	if err != nil {
		t.Fatalf("playback.New failed: %v", err)
	}
	dec, err := decoder.New(params, vertex.New([]int{3}))
	if err != nil {
		t.Fatalf("decoder.New failed: %v", err)
	}
	p.Begin()
	p.Start(dec)

	p.Tick(0.125)
	set.Sync()

	if _, rebuilds := set.Counters(); rebuilds != 1 {
		t.Fatalf("rebuilds = %d, want 1", rebuilds)
	}
	want := Bounds{
		Min: math.Vec3{X: 2, Y: 0, Z: -1},
		Max: math.Vec3{X: 3, Y: 1, Z: 0},
	}
	if b := set.Bounds(); b != want {
		t.Errorf("bounds = %+v, want %+v", b, want)
	}
	// The drawn pose is still at weight 0.
	if set.Meshes[0].Position(0) != (math.Vec3{}) {
		t.Errorf("pose = %+v, want the previous (zero) shape", set.Meshes[0].Position(0))
	}
}

type nopRequester struct{}

func (nopRequester) RequestManifest() {}

func TestSetBuildResets(t *testing.T) {
	s := NewSet(BuildOptions{})
	s.Build([]*formats.MeshInfo{quadInfo()})
	s.UpdateRoot(math.Vec3{X: 1})
	s.UpdatePose([][]math.Vec3{quadPositions})

	s.Build(nil)
	if len(s.Meshes) != 0 || s.Root != (math.Vec3{}) {
		t.Errorf("Build did not reset: %d meshes, root %+v", len(s.Meshes), s.Root)
	}
	if s.Sync() {
		t.Error("Build should clear pending pose")
	}
	if poses, _ := s.Counters(); poses != 0 {
		t.Errorf("Build kept %d poses", poses)
	}
	if s.Bounds() != (Bounds{}) {
		t.Errorf("empty set bounds = %+v", s.Bounds())
	}
}
