package classifier

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// decodeToTensor decodes an encoded image and writes it into dst as NHWC
// float32 RGB in 0..1, resized to width x height with nearest neighbour
// sampling.
func decodeToTensor(data []byte, dst []float32, width, height int) error {
	if len(dst) < width*height*3 {
		return fmt.Errorf("tensor holds %d values, need %d", len(dst), width*height*3)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return fmt.Errorf("image has no pixels")
	}

	for y := range height {
		sy := bounds.Min.Y + y*srcH/height
		for x := range width {
			sx := bounds.Min.X + x*srcW/width
			r, g, b, _ := img.At(sx, sy).RGBA()

			base := (y*width + x) * 3
			dst[base+0] = float32(r>>8) / 255.0
			dst[base+1] = float32(g>>8) / 255.0
			dst[base+2] = float32(b>>8) / 255.0
		}
	}
	return nil
}
