package monitor

import "fmt"

// LumaData is the luminance plane of one camera frame, one byte per pixel.
type LumaData struct {
	Width  int
	Height int
	Data   []byte
}

// ExtractLuma copies the Y plane out of a frame whose first width*height bytes
// are luminance (NV21 previews and raw grey frames both qualify).
func ExtractLuma(frame []byte, width, height int) (*LumaData, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	size := width * height
	if len(frame) < size {
		return nil, fmt.Errorf("frame has %d bytes, need %d for %dx%d", len(frame), size, width, height)
	}
	data := make([]byte, size)
	copy(data, frame[:size])
	return &LumaData{Width: width, Height: height, Data: data}, nil
}

// BoxAverages splits the frame into a granularity x granularity grid and returns
// the average luma per box, row by row. Pixels beyond the last full box are
// ignored. Empty frames and frames with fewer bytes than Width*Height yield nil.
func (l *LumaData) BoxAverages(granularity int) []int {
	if l == nil || l.Width <= 0 || l.Height <= 0 || len(l.Data) < l.Width*l.Height {
		return nil
	}
	boxesX := min(max(granularity, 1), l.Width)
	boxesY := min(max(granularity, 1), l.Height)
	boxW := l.Width / boxesX
	boxH := l.Height / boxesY

	averages := make([]int, 0, boxesX*boxesY)
	for by := 0; by < boxesY; by++ {
		for bx := 0; bx < boxesX; bx++ {
			sum := 0
			for y := by * boxH; y < (by+1)*boxH; y++ {
				row := y * l.Width
				for x := bx * boxW; x < (bx+1)*boxW; x++ {
					sum += int(l.Data[row+x])
				}
			}
			averages = append(averages, sum/(boxW*boxH))
		}
	}
	return averages
}
