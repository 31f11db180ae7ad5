package media

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/EdlinOrg/prominentcolor"
	"github.com/disintegration/imaging"
)

// sharpnessEdge is the longest side of the grayscale copy used for the
// Laplacian. Keeping it fixed makes scores comparable across resolutions.
const sharpnessEdge = 256

// DominantColor returns the most prominent colour of img as "#rrggbb".
func DominantColor(img image.Image) (string, error) {
	colors, err := prominentcolor.KmeansWithArgs(prominentcolor.ArgumentNoCropping, img)
	if err != nil {
		return "", fmt.Errorf("dominant colour: %w", err)
	}
	if len(colors) == 0 {
		return "", errors.New("dominant colour: no colour found")
	}
	c := colors[0].Color
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B), nil
}

// Sharpness returns the variance of the Laplacian of a grayscale downscale
// of img. Higher is sharper; a flat image scores 0.
func Sharpness(img image.Image) float64 {
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return 0
	}

	var small image.Image = img
	if b.Dx() > sharpnessEdge || b.Dy() > sharpnessEdge {
		small = imaging.Fit(img, sharpnessEdge, sharpnessEdge, imaging.Box)
	}
	gray := imaging.Grayscale(small)

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w < 3 || h < 3 {
		return 0
	}
	lum := func(x, y int) float64 {
		// Grayscale leaves R, G and B equal.
		return float64(gray.Pix[y*gray.Stride+x*4])
	}

	var sum, sumSq float64
	n := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := lum(x-1, y) + lum(x+1, y) + lum(x, y-1) + lum(x, y+1) - 4*lum(x, y)
			sum += v
			sumSq += v * v
			n++
		}
	}

	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	return math.Round(math.Max(variance, 0)*100) / 100
}
