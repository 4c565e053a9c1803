// Package terrarium en/decodes the Terrarium RGB elevation scheme used by
// the AWS Terrain Tiles dataset: meters are packed into 24 bits with a
// 32768 m offset and 1/256 m vertical resolution.
package terrarium

import "image"

// Offset shifts packed values so that sea level sits at RGB (128, 0, 0).
const Offset = 32768.0

// Decode converts one Terrarium pixel to meters.
func Decode(r, g, b uint8) float64 {
	return float64(r)*256 + float64(g) + float64(b)/256 - Offset
}

// Encode converts meters to a Terrarium pixel, clamping to the
// representable range [-32768, 32767.996]. Values are quantized to
// 1/256 m steps, so Decode(Encode(v)) == v for quarter-meter inputs.
func Encode(meters float64) (r, g, b uint8) {
	v := int64((meters + Offset) * 256)
	if v < 0 {
		v = 0
	}
	if v > 0xffffff {
		v = 0xffffff
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v)
}

// GridFromRGBA decodes a sub-rectangle of a composited mosaic into a
// row-major elevation slice. The rectangle is interpreted in the image's
// own coordinate space and must lie within its bounds.
func GridFromRGBA(img *image.RGBA, rect image.Rectangle) []float64 {
	w := rect.Dx()
	h := rect.Dy()
	out := make([]float64, 0, w*h)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		i := img.PixOffset(rect.Min.X, y)
		for x := 0; x < w; x++ {
			out = append(out, Decode(img.Pix[i], img.Pix[i+1], img.Pix[i+2]))
			i += 4
		}
	}
	return out
}
