// stmtool is a CLI utility for inspecting STM stream files offline.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Faultbox/stmesh/internal/decoder"
	"github.com/Faultbox/stmesh/internal/segment"
	"github.com/Faultbox/stmesh/internal/transport"
	"github.com/Faultbox/stmesh/internal/vertex"
	"github.com/Faultbox/stmesh/pkg/formats"
)

// usageError is returned when a command is called with missing arguments.
type usageError string

func (e usageError) Error() string {
	return "Usage: " + string(e)
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err := run(os.Args[1], os.Args[2:], os.Stdout); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintln(os.Stderr, ue)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(command string, args []string, w io.Writer) error {
	switch command {
	case "header":
		return cmdHeader(args, w)
	case "list", "ls":
		return cmdList(args, w)
	case "split":
		return cmdSplit(args, w)
	case "decode":
		return cmdDecode(args, w)
	case "help", "-h", "--help":
		printUsage(w)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `stmtool - STM animated mesh stream utility

Usage:
  stmtool <command> [options]

Commands:
  header <frame.bin>                                  Show a frame header
  list <list.txt>                                     List segments of a stream list
  split [-o dir] [-channel file] <segment> <list> <name>
                                                      Slice a segment into frames
  decode -vertices N[,N...] <channel.json> <segment> <list> <name>
                                                      Decode every frame of a segment

Examples:
  stmtool header frame_0003.bin
  stmtool list list.txt
  stmtool split -o frames 12.bin list.txt 12.bin
  stmtool decode -vertices 5234,812 stream.json 12.bin list.txt 12.bin`)
}

func cmdHeader(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("header", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return usageError("stmtool header <frame.bin>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	h, err := formats.ParseFrameHeader(data)
	if err != nil && !errors.Is(err, formats.ErrUnknownFrameType) {
		return err
	}

	fmt.Fprintf(w, "File:       %s (%d bytes)\n", fs.Arg(0), len(data))
	fmt.Fprintf(w, "Type:       %s\n", h.Type)
	fmt.Fprintf(w, "Packages:   %d\n", h.PackageCount)
	fmt.Fprintf(w, "Compressed: %v\n", h.Compressed)
	fmt.Fprintf(w, "Root:       (%g, %g, %g)\n", h.Root.X, h.Root.Y, h.Root.Z)
	fmt.Fprintf(w, "Payload:    %d bytes\n", len(data)-formats.FrameHeaderSize)
	if err != nil {
		fmt.Fprintf(w, "Warning:    %v\n", err)
	}
	return nil
}

func cmdList(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "Print every frame size")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return usageError("stmtool list [-v] <list.txt>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	infos, skipped := formats.ParseStreamList(data)
	for _, info := range infos {
		idx, err := info.Index()
		label := strconv.Itoa(idx)
		if err != nil {
			label = "?"
		}
		fmt.Fprintf(w, "%6s  %4d frames  %8d bytes  %s\n", label, len(info.Size), info.TotalSize(), info.Name)
		if *verbose {
			fmt.Fprintf(w, "        sizes: %v\n", info.Size)
		}
	}
	fmt.Fprintf(w, "\n(%d segments, %d lines skipped)\n", len(infos), skipped)
	return nil
}

// loadSegment reads and slices one segment file using its stream list entry.
func loadSegment(segPath, listPath, name string, t segment.Timing) ([]segment.Frame, error) {
	listData, err := os.ReadFile(listPath)
	if err != nil {
		return nil, err
	}
	infos, _ := formats.ParseStreamList(listData)

	var info *formats.StreamInfo
	for i := range infos {
		if infos[i].Name == name || path.Base(infos[i].Name) == name {
			info = &infos[i]
			break
		}
	}
	if info == nil {
		return nil, fmt.Errorf("segment %s not in %s", name, listPath)
	}
	idx, err := info.Index()
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(segPath)
	if err != nil {
		return nil, err
	}
	blob, err := transport.Decompress(raw, transport.SizeLimit(info.TotalSize()))
	if err != nil {
		return nil, err
	}

	return segment.Slice(idx, info.Size, blob, t)
}

// defaultTiming matches a channel with 100 frames per segment at 10 fps.
var defaultTiming = segment.Timing{SegmentDuration: 10, SubframeDuration: 0.1}

func cmdSplit(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("split", flag.ContinueOnError)
	outDir := fs.String("o", "", "Write each frame to this directory")
	channelPath := fs.String("channel", "", "Channel info file for frame timing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 3 {
		return usageError("stmtool split [-o dir] [-channel file] <segment> <list> <name>")
	}

	timing := defaultTiming
	if *channelPath != "" {
		ch, err := formats.ParseChannelInfoFile(*channelPath)
		if err != nil {
			return err
		}
		timing = segment.TimingFor(ch)
	}

	frames, sliceErr := loadSegment(fs.Arg(0), fs.Arg(1), fs.Arg(2), timing)
	if frames == nil && sliceErr != nil {
		return sliceErr
	}

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0755); err != nil {
			return err
		}
	}

	for _, f := range frames {
		typ := "short"
		if h, err := formats.ParseFrameHeader(f.Data); err == nil || errors.Is(err, formats.ErrUnknownFrameType) {
			typ = h.Type.String()
		}
		fmt.Fprintf(w, "%4d  %-12s %8d bytes  t=%.2f\n", f.Subframe, typ, len(f.Data), f.Time)

		if *outDir != "" {
			name := filepath.Join(*outDir, fmt.Sprintf("%d-%03d.bin", f.Segment, f.Subframe))
			if err := os.WriteFile(name, f.Data, 0644); err != nil {
				return err
			}
		}
	}

	if sliceErr != nil {
		fmt.Fprintf(w, "\nWarning: %v\n", sliceErr)
	}
	fmt.Fprintf(w, "\n(%d frames)\n", len(frames))
	return nil
}

func parseCounts(s string) ([]int, error) {
	if s == "" {
		return nil, errors.New("-vertices is required")
	}
	var counts []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid vertex count %q", part)
		}
		counts = append(counts, n)
	}
	return counts, nil
}

func cmdDecode(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	vertices := fs.String("vertices", "", "Vertex count per mesh, comma separated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 4 {
		return usageError("stmtool decode -vertices N[,N...] <channel.json> <segment> <list> <name>")
	}

	counts, err := parseCounts(*vertices)
	if err != nil {
		return err
	}

	ch, err := formats.ParseChannelInfoFile(fs.Arg(0))
	if err != nil {
		return err
	}

	frames, sliceErr := loadSegment(fs.Arg(1), fs.Arg(2), fs.Arg(3), segment.TimingFor(ch))
	if frames == nil && sliceErr != nil {
		return sliceErr
	}

	store := vertex.New(counts)
	dec, err := decoder.New(ch.Params(), store)
	if err != nil {
		return err
	}

	var keyframes, deltas, failed int
	for _, f := range frames {
		store.Snapshot()
		res := dec.Decode(f.Data)
		switch res.Type {
		case formats.FrameKeyframe:
			keyframes++
		case formats.FrameDelta:
			deltas++
		}

		line := fmt.Sprintf("%4d  t=%-7.2f %-12s applied=%-6d", f.Subframe, f.Time, res.Type, res.Applied)
		if res.OutOfRange > 0 {
			line += fmt.Sprintf(" out_of_range=%d", res.OutOfRange)
		}
		root := store.Root.Current
		line += fmt.Sprintf(" root=(%.3f, %.3f, %.3f)", root.X, root.Y, root.Z)
		if res.Err != nil {
			failed++
			line += fmt.Sprintf(" error=%v", res.Err)
		}
		fmt.Fprintln(w, line)
	}

	if sliceErr != nil {
		fmt.Fprintf(w, "\nWarning: %v\n", sliceErr)
	}
	fmt.Fprintf(w, "\n(%d frames: %d keyframes, %d deltas, %d failed, trace %d)\n",
		len(frames), keyframes, deltas, failed, len(dec.Trace()))
	return nil
}
