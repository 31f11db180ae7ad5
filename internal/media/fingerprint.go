package media

import (
	"image"
	"math/bits"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// hashEdge is the side of the grayscale grid the visual hash is taken
	// from. Each row yields hashEdge-1 bits.
	hashEdge = 16

	// VisualHashBits is the length of a visual hash in bits.
	VisualHashBits = hashEdge * (hashEdge - 1)

	// uniformityEdge bounds the copy used for the uniformity checks.
	uniformityEdge = 128
)

// VisualHash returns the difference hash of img as hex: img is squashed to a
// 16x16 grayscale grid and every pixel brighter than its right neighbour sets
// a bit. Resized, recompressed or lightly edited copies of a picture hash to
// the same or a nearby value.
func VisualHash(img image.Image) string {
	gray := imaging.Grayscale(imaging.Resize(img, hashEdge, hashEdge, imaging.Lanczos))
	lum := func(x, y int) uint8 { return gray.Pix[y*gray.Stride+x*4] }

	var sb strings.Builder
	sb.Grow(VisualHashBits / 4)
	var nibble byte
	n := 0
	for y := 0; y < hashEdge; y++ {
		for x := 0; x < hashEdge-1; x++ {
			nibble <<= 1
			if lum(x, y) > lum(x+1, y) {
				nibble |= 1
			}
			if n++; n%4 == 0 {
				sb.WriteByte("0123456789abcdef"[nibble])
				nibble = 0
			}
		}
	}
	return sb.String()
}

// HammingDistance returns the number of differing bits between two hex
// hashes, or -1 when they differ in length or are not hex.
func HammingDistance(a, b string) int {
	if len(a) != len(b) {
		return -1
	}
	d := 0
	for i := 0; i < len(a); i++ {
		x, okx := hexDigit(a[i])
		y, oky := hexDigit(b[i])
		if !okx || !oky {
			return -1
		}
		d += bits.OnesCount8(x ^ y)
	}
	return d
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Uniformity classifies how much visible content an image has.
type Uniformity string

const (
	UniformityNormal Uniformity = "normal"
	// UniformitySolid means every pixel has the same colour: lens-cap shots,
	// blank screenshots.
	UniformitySolid Uniformity = "solid_color"
	// UniformityLow means the image is nearly uniform or carries almost no
	// edges, typically a badly blurred or underexposed shot.
	UniformityLow Uniformity = "low_content"
)

const (
	lowVariance      = 100.0
	lowEdgeRatio     = 0.05
	edgeThreshold    = 30
	dominantShare    = 0.95
	maxUniqueColours = 10
)

// ClassifyUniformity reports whether img is a solid colour, low in content,
// or normal. Large images are checked on a downscaled copy.
func ClassifyUniformity(img image.Image) Uniformity {
	b := img.Bounds()
	var px *image.NRGBA
	if b.Dx() > uniformityEdge || b.Dy() > uniformityEdge {
		px = imaging.Fit(img, uniformityEdge, uniformityEdge, imaging.Box)
	} else {
		px = imaging.Clone(img)
	}
	w, h := px.Bounds().Dx(), px.Bounds().Dy()
	total := w * h
	if total == 0 {
		return UniformityNormal
	}
	at := func(x, y int) []uint8 {
		i := y*px.Stride + x*4
		return px.Pix[i : i+3]
	}

	solid := true
	first := at(0, 0)
	var sumR, sumG, sumB float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := at(x, y)
			if p[0] != first[0] || p[1] != first[1] || p[2] != first[2] {
				solid = false
			}
			sumR += float64(p[0])
			sumG += float64(p[1])
			sumB += float64(p[2])
		}
	}
	if solid {
		return UniformitySolid
	}

	n := float64(total)
	meanR, meanG, meanB := sumR/n, sumG/n, sumB/n
	var variance float64
	unique := make(map[[3]uint8]struct{})
	buckets := make(map[[3]uint8]int)
	largest := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := at(x, y)
			dr, dg, db := float64(p[0])-meanR, float64(p[1])-meanG, float64(p[2])-meanB
			variance += dr*dr + dg*dg + db*db
			unique[quantize(p, 5)] = struct{}{}
			k := quantize(p, 10)
			buckets[k]++
			largest = max(largest, buckets[k])
		}
	}
	variance /= n

	switch {
	case variance < lowVariance,
		edgeRatio(px, w, h) < lowEdgeRatio,
		float64(len(unique)) < min(maxUniqueColours, n*0.01),
		float64(largest)/n > dominantShare:
		return UniformityLow
	}
	return UniformityNormal
}

// edgeRatio is the share of pixels whose right or lower neighbour differs by
// more than edgeThreshold summed over the channels.
func edgeRatio(px *image.NRGBA, w, h int) float64 {
	if w < 2 || h < 2 {
		return 0
	}
	diff := func(i, j int) int {
		d := 0
		for c := 0; c < 3; c++ {
			v := int(px.Pix[i+c]) - int(px.Pix[j+c])
			if v < 0 {
				v = -v
			}
			d += v
		}
		return d
	}
	edges := 0
	for y := 0; y < h-1; y++ {
		for x := 0; x < w-1; x++ {
			i := y*px.Stride + x*4
			if diff(i, i+4) > edgeThreshold || diff(i, i+px.Stride) > edgeThreshold {
				edges++
			}
		}
	}
	return float64(edges) / float64((w-1)*(h-1))
}

// quantize rounds each channel to the nearest multiple of step.
func quantize(p []uint8, step int) [3]uint8 {
	var q [3]uint8
	for c := 0; c < 3; c++ {
		v := (int(p[c]) + step/2) / step * step
		q[c] = uint8(min(v, 255))
	}
	return q
}
