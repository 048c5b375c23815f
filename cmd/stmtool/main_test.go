package main

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/stmesh/internal/stmtest"
	"github.com/Faultbox/stmesh/pkg/math"
)

const testChannel = `{"area_range":4,"package_size":128,"frame_interval":0.1,"combined_frames":3,"stream_info":"list.txt"}`

type fixture struct {
	dir     string
	channel string
	list    string
	segment string
	frame   string
}

// newFixture writes a channel, a stream list and a gzip segment 7 holding
// a keyframe, a valid delta and a delta with the wrong length.
func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:     dir,
		channel: filepath.Join(dir, "stream.json"),
		list:    filepath.Join(dir, "list.txt"),
		segment: filepath.Join(dir, "7.bin"),
		frame:   filepath.Join(dir, "frame.bin"),
	}

	root := math.Vec3{X: 0.5, Y: 1, Z: -2}
	key := stmtest.NewKeyframe(root).Package(64, 64, 64,
		stmtest.Vertex{Index: 0},
		stmtest.Vertex{Index: 1, Packed: 3},
	).Bytes()
	d := stmtest.EncodeDelta(0.01)
	blob, sizes := stmtest.Segment(
		key,
		stmtest.Delta(root, [3]byte{d, 128, 128}, [3]byte{128, d, 128}),
		stmtest.Delta(root, [3]byte{d, d, d}),
	)

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Write(blob)
	zw.Close()

	list := fmt.Sprintf("{\"name\":\"http://srv/ch/7.bin\",\"size\":[%d,%d,%d]}\nnot json\n", sizes[0], sizes[1], sizes[2])

	files := map[string][]byte{
		f.channel: []byte(testChannel),
		f.list:    []byte(list),
		f.segment: gz.Bytes(),
		f.frame:   key,
	}
	for name, data := range files {
		if err := os.WriteFile(name, data, 0644); err != nil {
			t.Fatalf("writing %s: %v", name, err)
		}
	}
	return f
}

func runCmd(t *testing.T, command string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(command, args, &out)
	return out.String(), err
}

func TestHeader(t *testing.T) {
	f := newFixture(t)

	out, err := runCmd(t, "header", f.frame)
	if err != nil {
		t.Fatalf("header failed: %v", err)
	}
	for _, want := range []string{"Type:       Keyframe", "Packages:   1", "Root:       (0.5, 1, -2)", "Payload:    16 bytes"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)

	out, err := runCmd(t, "list", "-v", f.list)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "     7     3 frames") {
		t.Errorf("missing segment line:\n%s", out)
	}
	if !strings.Contains(out, "sizes: [") {
		t.Errorf("verbose sizes missing:\n%s", out)
	}
	if !strings.Contains(out, "(1 segments, 1 lines skipped)") {
		t.Errorf("missing summary:\n%s", out)
	}
}

func TestSplit(t *testing.T) {
	f := newFixture(t)
	outDir := filepath.Join(f.dir, "frames")

	out, err := runCmd(t, "split", "-o", outDir, "-channel", f.channel, f.segment, f.list, "7.bin")
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if !strings.Contains(out, "(3 frames)") {
		t.Errorf("missing summary:\n%s", out)
	}
	if !strings.Contains(out, "t=2.20") {
		t.Errorf("second frame time missing:\n%s", out)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "7-000.bin"))
	if err != nil {
		t.Fatalf("frame file not written: %v", err)
	}
	key, _ := os.ReadFile(f.frame)
	if !bytes.Equal(data, key) {
		t.Error("first frame does not match the keyframe")
	}

	if _, err := runCmd(t, "split", f.segment, f.list, "8.bin"); err == nil {
		t.Error("expected error for segment missing from list")
	}
}

func TestDecode(t *testing.T) {
	f := newFixture(t)

	out, err := runCmd(t, "decode", "-vertices", "2", f.channel, f.segment, f.list, "http://srv/ch/7.bin")
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !strings.Contains(out, "(3 frames: 1 keyframes, 2 deltas, 1 failed, trace 2)") {
		t.Errorf("unexpected summary:\n%s", out)
	}
	if !strings.Contains(out, "root=(0.500, 1.000, -2.000)") {
		t.Errorf("root missing:\n%s", out)
	}
	if !strings.Contains(out, "error=") {
		t.Errorf("desync not reported:\n%s", out)
	}
}

func TestDecodeVertexCounts(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"5234", []int{5234}, false},
		{"10, 20,0", []int{10, 20, 0}, false},
		{"", nil, true},
		{"3,x", nil, true},
		{"-1", nil, true},
	}
	for _, tt := range tests {
		got, err := parseCounts(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseCounts(%q) error = %v", tt.in, err)
			continue
		}
		if fmt.Sprint(got) != fmt.Sprint(tt.want) && !tt.wantErr {
			t.Errorf("parseCounts(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestUsageErrors(t *testing.T) {
	for _, command := range []string{"header", "list", "split", "decode"} {
		_, err := runCmd(t, command)
		var ue usageError
		if !errors.As(err, &ue) {
			t.Errorf("%s without args: got %v, want usage error", command, err)
		}
	}

	if _, err := runCmd(t, "bogus"); err == nil {
		t.Error("expected error for unknown command")
	}
	out, err := runCmd(t, "help")
	if err != nil || !strings.Contains(out, "Commands:") {
		t.Errorf("help = %q, %v", out, err)
	}
}
