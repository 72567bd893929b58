package export

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	DefaultCodec   = "mpeg4"
	DefaultQuality = "4"

	watermarkOpacity = "0.8"
	watermarkMargin  = 24
)

type BuildOptions struct {
	Codec   string
	Quality string
}

// Plan is everything needed to run one encode: the concat manifest text and
// the tool argument vector. ManifestPath is where the caller must write
// Manifest before running Args.
type Plan struct {
	Manifest     string   `json:"manifest"`
	ManifestPath string   `json:"manifest_path"`
	Args         []string `json:"args"`
}

// BuildPlan is pure: clip references are mapped to local paths, but nothing
// is read or written.
func BuildPlan(clipRefs []string, watermarkPath string, factor float64, manifestPath, outputPath string, opts BuildOptions) (Plan, error) {
	if len(clipRefs) == 0 {
		return Plan{}, ErrNoClips
	}
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return Plan{}, fmt.Errorf("invalid speed factor %v", factor)
	}
	if watermarkPath == "" {
		return Plan{}, errors.New("watermark path is required")
	}
	if manifestPath == "" || outputPath == "" {
		return Plan{}, errors.New("manifest and output paths are required")
	}
	if opts.Codec == "" {
		opts.Codec = DefaultCodec
	}
	if opts.Quality == "" {
		opts.Quality = DefaultQuality
	}

	return Plan{
		Manifest:     BuildManifest(clipRefs),
		ManifestPath: manifestPath,
		Args:         buildArgs(manifestPath, watermarkPath, FilterGraph(factor), outputPath, opts),
	}, nil
}

// BuildManifest renders the concat demuxer input, one clip per line.
func BuildManifest(clipRefs []string) string {
	lines := make([]string, 0, len(clipRefs))
	for _, ref := range clipRefs {
		lines = append(lines, "file '"+EscapeManifestPath(LocalPath(ref))+"'")
	}
	return strings.Join(lines, "\n")
}

// EscapeManifestPath closes the quoted string around each embedded single
// quote, emits an escaped quote, and reopens it.
func EscapeManifestPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// FilterGraph overlays the semi-transparent watermark at one third of the
// video width in the bottom-right corner, then retimes every frame by factor.
func FilterGraph(factor float64) string {
	return fmt.Sprintf(
		"[1:v]format=rgba,colorchannelmixer=aa=%s[wm];"+
			"[wm][0:v]scale2ref=w=main_w/3:h=ow/a[wms][base];"+
			"[base][wms]overlay=W-w-%d:H-h-%d,setpts=PTS/%s[v]",
		watermarkOpacity, watermarkMargin, watermarkMargin, FormatFactor(factor),
	)
}

func buildArgs(manifestPath, watermarkPath, graph, outputPath string, opts BuildOptions) []string {
	args := []string{"-hide_banner", "-y"}

	// Inputs: concatenated clips, then the watermark image
	args = append(args, "-f", "concat", "-safe", "0", "-i", manifestPath)
	args = append(args, "-i", watermarkPath)

	// Output is silent
	args = append(args, "-an")

	args = append(args, "-filter_complex", graph, "-map", "[v]")

	args = append(args, "-c:v", opts.Codec, "-q:v", opts.Quality)
	args = append(args, "-vsync", "vfr", "-fps_mode", "vfr")
	args = append(args, "-movflags", "+faststart")

	return append(args, outputPath)
}
