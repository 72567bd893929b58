package mediatool

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// MediaInfo is the subset of ffprobe output used to verify a finished export.
type MediaInfo struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Codec    string  `json:"codec"`
	Size     int64   `json:"size"`
}

// Inspect reads container and video stream metadata with ffprobe.
func Inspect(path string) (*MediaInfo, error) {
	probe, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, errors.Wrap(err, "ffprobe")
	}
	return parseProbe(probe)
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

func parseProbe(data string) (*MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, errors.WithStack(err)
	}

	info := &MediaInfo{}
	found := false
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		found = true
		info.Width = s.Width
		info.Height = s.Height
		info.Codec = s.CodecName
		info.Duration = parseSeconds(s.Duration)
		break
	}
	if !found {
		return nil, errors.New("no video stream found")
	}

	// Stream duration is missing for some muxers; fall back to the container.
	if info.Duration == 0 {
		info.Duration = parseSeconds(out.Format.Duration)
	}
	if n, err := strconv.ParseInt(strings.TrimSpace(out.Format.Size), 10, 64); err == nil {
		info.Size = n
	}
	return info, nil
}

func parseSeconds(s string) float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return d
}
