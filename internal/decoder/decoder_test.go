package decoder

import (
	"errors"
	"testing"

	"github.com/Faultbox/stmesh/internal/stmtest"
	"github.com/Faultbox/stmesh/internal/vertex"
	"github.com/Faultbox/stmesh/pkg/formats"
	"github.com/Faultbox/stmesh/pkg/math"
	"github.com/Faultbox/stmesh/pkg/quant"
)

var testParams = quant.Params{AreaRange: 4, PackageSize: 128}

func newTestDecoder(t *testing.T, counts ...int) *Decoder {
	t.Helper()
	d, err := New(testParams, vertex.New(counts))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d
}

func TestNew_InvalidParams(t *testing.T) {
	if _, err := New(quant.Params{AreaRange: 4, PackageSize: 0}, vertex.New(nil)); !errors.Is(err, quant.ErrInvalidParams) {
		t.Errorf("got %v, want ErrInvalidParams", err)
	}
	if _, err := New(testParams, nil); err == nil {
		t.Error("expected error for nil store")
	}
}

func TestDecodeKeyframe_SingleVertex(t *testing.T) {
	d := newTestDecoder(t, 1)
	frame := stmtest.NewKeyframe(math.Vec3{X: 1, Y: 2, Z: 3}).
		Package(10, 10, 10, stmtest.Vertex{Index: 0, Mesh: 0, Packed: 0}).
		Bytes()

	res := d.Decode(frame)
	if res.Err != nil {
		t.Fatalf("Decode failed: %v", res.Err)
	}
	if !res.IsKeyframe() || !res.NormalsDirty || res.Applied != 1 {
		t.Errorf("result = %+v", res)
	}

	// (10 - 64) * (4/64)
	want := float32(10-64) * (4.0 / 64.0)
	got := d.Store().Current[0][0]
	if got != (math.Vec3{X: want, Y: want, Z: want}) {
		t.Errorf("position = %v, want (%v, %v, %v)", got, want, want, want)
	}
	if d.Store().Root.Current != (math.Vec3{X: 1, Y: 2, Z: 3}) {
		t.Errorf("root = %v", d.Store().Root.Current)
	}

	trace := d.Trace()
	if len(trace) != 1 || trace[0] != (Ref{Mesh: 0, Vertex: 0}) {
		t.Errorf("trace = %v, want [{0 0}]", trace)
	}
	if d.Corrupt() {
		t.Error("corruption flag set after clean keyframe")
	}
}

func TestDecodeKeyframe_Offsets(t *testing.T) {
	d := newTestDecoder(t, 4, 2)
	packed := uint16(1) | uint16(2)<<5 | uint16(31)<<10
	frame := stmtest.NewKeyframe(math.Vec3{}).
		Package(64, 64, 64,
			stmtest.Vertex{Index: 3, Mesh: 0, Packed: packed},
			stmtest.Vertex{Index: 1, Mesh: 1, Packed: 0}).
		Package(65, 63, 64,
			stmtest.Vertex{Index: 0, Mesh: 0, Packed: 0}).
		Bytes()

	res := d.Decode(frame)
	if res.Err != nil {
		t.Fatalf("Decode failed: %v", res.Err)
	}

	sqk := testParams.SubCellQuantum()
	if got := d.Store().Current[0][3]; got != (math.Vec3{X: sqk, Y: 2 * sqk, Z: 31 * sqk}) {
		t.Errorf("mesh 0 vertex 3 = %v", got)
	}
	qk := testParams.CellQuantum()
	if got := d.Store().Current[0][0]; got != (math.Vec3{X: qk, Y: -qk, Z: 0}) {
		t.Errorf("mesh 0 vertex 0 = %v", got)
	}

	want := Trace{{0, 3}, {1, 1}, {0, 0}}
	if len(d.Trace()) != len(want) {
		t.Fatalf("trace = %v, want %v", d.Trace(), want)
	}
	for i, r := range want {
		if d.Trace()[i] != r {
			t.Errorf("trace[%d] = %v, want %v", i, d.Trace()[i], r)
		}
	}
}

func TestDecodeKeyframe_OutOfRange(t *testing.T) {
	d := newTestDecoder(t, 2)
	frame := stmtest.NewKeyframe(math.Vec3{}).
		Package(70, 70, 70,
			stmtest.Vertex{Index: 0, Mesh: 0},
			stmtest.Vertex{Index: 5, Mesh: 0}, // vertex out of range
			stmtest.Vertex{Index: 0, Mesh: 3}, // mesh out of range
			stmtest.Vertex{Index: 1, Mesh: 0}).
		Bytes()

	res := d.Decode(frame)
	if !errors.Is(res.Err, ErrIndexOutOfRange) {
		t.Fatalf("got %v, want ErrIndexOutOfRange", res.Err)
	}
	if res.OutOfRange != 2 || res.Applied != 2 {
		t.Errorf("out of range = %d, applied = %d; want 2, 2", res.OutOfRange, res.Applied)
	}
	if len(d.Trace()) != 2 {
		t.Errorf("trace length = %d, want 2 (valid vertices only)", len(d.Trace()))
	}
	if d.Trace()[1] != (Ref{Mesh: 0, Vertex: 1}) {
		t.Errorf("scan did not continue past bad vertices: trace = %v", d.Trace())
	}
	if !d.Corrupt() {
		t.Error("corruption flag not set")
	}

	// Deltas are refused until the next keyframe.
	before := d.Store().Current[0][0]
	res = d.Decode(stmtest.Delta(math.Vec3{X: 9}, [3]byte{200, 200, 200}, [3]byte{200, 200, 200}))
	if !errors.Is(res.Err, ErrDesync) {
		t.Errorf("got %v, want ErrDesync", res.Err)
	}
	if d.Store().Current[0][0] != before || d.Store().Root.Current != (math.Vec3{}) {
		t.Error("rejected delta mutated the store")
	}

	// A clean keyframe resynchronizes.
	res = d.Decode(stmtest.NewKeyframe(math.Vec3{}).
		Package(64, 64, 64, stmtest.Vertex{Index: 1, Mesh: 0}).
		Bytes())
	if res.Err != nil || d.Corrupt() {
		t.Errorf("keyframe did not clear corruption: %v", res.Err)
	}
}

func TestDecodeKeyframe_Truncated(t *testing.T) {
	d := newTestDecoder(t, 3)
	full := stmtest.NewKeyframe(math.Vec3{Y: 7}).
		Package(64, 64, 64,
			stmtest.Vertex{Index: 0, Mesh: 0, Packed: 1},
			stmtest.Vertex{Index: 1, Mesh: 0, Packed: 2},
			stmtest.Vertex{Index: 2, Mesh: 0, Packed: 3}).
		Bytes()

	// Cut the last vertex record in half.
	res := d.Decode(full[:len(full)-3])
	if !errors.Is(res.Err, ErrTruncatedFrame) {
		t.Fatalf("got %v, want ErrTruncatedFrame", res.Err)
	}
	if res.Applied != 2 {
		t.Errorf("applied = %d, want 2 partial writes kept", res.Applied)
	}
	if d.Store().Current[0][1] == (math.Vec3{}) {
		t.Error("partial write was discarded")
	}
	if d.Store().Current[0][2] != (math.Vec3{}) {
		t.Error("vertex past truncation was written")
	}
	if !d.Corrupt() {
		t.Error("corruption flag not set")
	}
	if !res.NormalsDirty {
		t.Error("partial keyframe should still mark normals dirty")
	}
}

func TestDecodeKeyframe_MissingPackage(t *testing.T) {
	d := newTestDecoder(t, 1)
	frame := stmtest.NewKeyframe(math.Vec3{}).
		Package(64, 64, 64, stmtest.Vertex{}).
		Bytes()
	// Claim two packages but carry one.
	formats.PutUint24(frame[5:], 2)

	res := d.Decode(frame)
	if !errors.Is(res.Err, ErrTruncatedFrame) {
		t.Fatalf("got %v, want ErrTruncatedFrame", res.Err)
	}
	if res.Applied != 1 || len(d.Trace()) != 1 {
		t.Errorf("applied = %d, trace = %v", res.Applied, d.Trace())
	}
}

func TestDecodeDelta_Additive(t *testing.T) {
	d := newTestDecoder(t, 2)
	d.Decode(stmtest.NewKeyframe(math.Vec3{}).
		Package(64, 64, 64,
			stmtest.Vertex{Index: 1, Mesh: 0},
			stmtest.Vertex{Index: 0, Mesh: 0}).
		Bytes())

	base0 := d.Store().Current[0][0]
	base1 := d.Store().Current[0][1]

	// Trace order is vertex 1, then vertex 0.
	delta := stmtest.Delta(math.Vec3{Z: 0.5},
		[3]byte{128 + 16, 128, 128 - 8},
		[3]byte{128, 128 + 64, 128})

	res := d.Decode(delta)
	if res.Err != nil {
		t.Fatalf("Decode failed: %v", res.Err)
	}
	if res.IsKeyframe() || res.NormalsDirty || res.Applied != 2 {
		t.Errorf("result = %+v", res)
	}
	once1 := d.Store().Current[0][1].Sub(base1)
	once0 := d.Store().Current[0][0].Sub(base0)

	wantV1 := math.Vec3{X: 256 * quant.DeltaScale, Y: 0, Z: -64 * quant.DeltaScale}
	if once1 != wantV1 {
		t.Errorf("vertex 1 offset = %v, want %v", once1, wantV1)
	}
	if once0 != (math.Vec3{Y: 4096 * quant.DeltaScale}) {
		t.Errorf("vertex 0 offset = %v", once0)
	}
	if d.Store().Root.Current != (math.Vec3{Z: 0.5}) {
		t.Errorf("root = %v", d.Store().Root.Current)
	}

	d.Decode(delta)
	twice1 := d.Store().Current[0][1].Sub(base1)
	if twice1 != once1.Scale(2) {
		t.Errorf("double application = %v, want %v", twice1, once1.Scale(2))
	}
	twice0 := d.Store().Current[0][0].Sub(base0)
	if twice0 != once0.Scale(2) {
		t.Errorf("double application = %v, want %v", twice0, once0.Scale(2))
	}
}

func TestDecodeDelta_LengthMismatch(t *testing.T) {
	tests := []struct {
		name    string
		triples [][3]byte
		extra   []byte
	}{
		{"too few", [][3]byte{{200, 200, 200}}, nil},
		{"too many", [][3]byte{{200, 200, 200}, {200, 200, 200}, {200, 200, 200}}, nil},
		{"ragged", [][3]byte{{200, 200, 200}, {200, 200, 200}}, []byte{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDecoder(t, 2)
			d.Decode(stmtest.NewKeyframe(math.Vec3{}).
				Package(64, 64, 64, stmtest.Vertex{Index: 0}, stmtest.Vertex{Index: 1}).
				Bytes())
			before := append([]math.Vec3(nil), d.Store().Current[0]...)

			frame := append(stmtest.Delta(math.Vec3{X: 1}, tt.triples...), tt.extra...)
			res := d.Decode(frame)
			if !errors.Is(res.Err, ErrDesync) {
				t.Fatalf("got %v, want ErrDesync", res.Err)
			}
			for i, v := range d.Store().Current[0] {
				if v != before[i] {
					t.Errorf("vertex %d mutated by rejected delta", i)
				}
			}
			if d.Store().Root.Current != (math.Vec3{}) {
				t.Error("root mutated by rejected delta")
			}
			if !d.Corrupt() {
				t.Error("corruption flag not set")
			}
		})
	}
}

func TestDecodeDelta_BeforeKeyframe(t *testing.T) {
	d := newTestDecoder(t, 1)

	// An empty trace accepts only an empty delta payload.
	if res := d.Decode(stmtest.Delta(math.Vec3{X: 2})); res.Err != nil {
		t.Errorf("empty delta failed: %v", res.Err)
	}
	if d.Store().Root.Current != (math.Vec3{X: 2}) {
		t.Error("empty delta did not update root")
	}

	if res := d.Decode(stmtest.Delta(math.Vec3{}, [3]byte{129, 129, 129})); !errors.Is(res.Err, ErrDesync) {
		t.Errorf("got %v, want ErrDesync", res.Err)
	}
}

func TestDecode_HeaderErrors(t *testing.T) {
	d := newTestDecoder(t, 1)

	res := d.Decode(make([]byte, 10))
	if !errors.Is(res.Err, ErrTruncatedFrame) {
		t.Errorf("short frame: got %v, want ErrTruncatedFrame", res.Err)
	}
	if !d.Corrupt() {
		t.Error("short frame should set corruption flag")
	}

	d.Reset()
	res = d.Decode(stmtest.Frame(0x42, math.Vec3{X: 5}, []byte{1, 2, 3}))
	if !errors.Is(res.Err, ErrUnknownFrameType) {
		t.Errorf("unknown type: got %v, want ErrUnknownFrameType", res.Err)
	}
	if d.Store().Root.Current != (math.Vec3{}) {
		t.Error("unknown frame mutated root")
	}
	if !d.Corrupt() {
		t.Error("unknown frame should set corruption flag")
	}
}

func TestReset(t *testing.T) {
	d := newTestDecoder(t, 1)
	d.Decode(stmtest.NewKeyframe(math.Vec3{}).Package(64, 64, 64, stmtest.Vertex{}).Bytes())
	d.Decode(make([]byte, 3))

	d.Reset()
	if len(d.Trace()) != 0 || d.Corrupt() {
		t.Errorf("reset left trace %v, corrupt %v", d.Trace(), d.Corrupt())
	}
}

func TestDecode_QuantizedRoundTrip(t *testing.T) {
	d := newTestDecoder(t, 3)
	positions := []math.Vec3{
		{X: 0.1, Y: 0.2, Z: 0.3},
		{X: -1.5, Y: 2.25, Z: -3.75},
		{X: 3.5, Y: -0.01, Z: 0},
	}

	kf := stmtest.NewKeyframe(math.Vec3{})
	for i, p := range positions {
		o, packed := stmtest.EncodePosition(testParams, p)
		kf.Package(o[0], o[1], o[2], stmtest.Vertex{Index: uint16(i), Packed: packed})
	}
	if res := d.Decode(kf.Bytes()); res.Err != nil {
		t.Fatalf("Decode failed: %v", res.Err)
	}

	tol := testParams.SubCellQuantum()/2 + 1e-5
	for i, p := range positions {
		diff := d.Store().Current[0][i].Sub(p)
		if abs(diff.X) > tol || abs(diff.Y) > tol || abs(diff.Z) > tol {
			t.Errorf("vertex %d = %v, want %v within %v", i, d.Store().Current[0][i], p, tol)
		}
	}
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
