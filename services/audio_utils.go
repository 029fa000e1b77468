package services

import (
	"bytes"
	"errors"
	"io"

	tcmp3 "github.com/tcolgate/mp3"
)

// Thời lượng mặc định khi không giải mã được MP3
const DefaultAudioDurationMs = 60000

// MP3DurationMs cộng thời lượng từng frame MP3
func MP3DurationMs(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, errors.New("empty audio")
	}
	var (
		dur     float64
		dec     = tcmp3.NewDecoder(bytes.NewReader(data))
		frame   tcmp3.Frame
		skipped int
		frames  int
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if err == io.EOF {
				break
			}
			return 0, err
		}
		frames++
		dur += frame.Duration().Seconds()
	}
	if frames == 0 {
		return 0, errors.New("no mp3 frames")
	}
	return int(dur * 1000), nil
}

// AudioDurationOrDefault trả về DefaultAudioDurationMs khi không đo được
func AudioDurationOrDefault(data []byte) int {
	ms, err := MP3DurationMs(data)
	if err != nil || ms <= 0 {
		return DefaultAudioDurationMs
	}
	return ms
}
