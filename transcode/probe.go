package transcode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ffprobeOutput represents the JSON structure from ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

// parseProbe reads ffprobe JSON into a ProbeResult. The first video stream wins.
func parseProbe(data []byte) (*ProbeResult, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	res := &ProbeResult{}
	res.Duration, _ = strconv.ParseFloat(probe.Format.Duration, 64)

	var video *ffprobeStream
	for i := range probe.Streams {
		s := &probe.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			res.HasAudio = true
		}
	}
	if video == nil {
		return nil, fmt.Errorf("no video stream found")
	}

	res.Width = video.Width
	res.Height = video.Height
	res.FPS = parseFrameRate(video.AvgFrameRate)
	if res.FPS == 0 {
		res.FPS = parseFrameRate(video.RFrameRate)
	}
	res.FrameCount, _ = strconv.Atoi(video.NbFrames)
	if res.FrameCount == 0 && res.FPS > 0 {
		dur, _ := strconv.ParseFloat(video.Duration, 64)
		if dur == 0 {
			dur = res.Duration
		}
		res.FrameCount = int(dur*res.FPS + 0.5)
	}
	return res, nil
}

// parseFrameRate parses ffprobe rates like "30000/1001" or "25".
func parseFrameRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
