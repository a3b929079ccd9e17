package decode

import (
	"image"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/bavix/scanbridge/internal/symbology"
)

// Heuristic detector tuning.
const (
	DefaultQualityThreshold     = 0.2
	DefaultDetectionProbability = 0.7

	midtoneLow  = 100
	midtoneHigh = 200

	maxSamples = 16384
)

// HeuristicDetector stands in for a real decoder: frames with enough midtone
// content "contain" a code with a fixed probability, and the code is generated.
type HeuristicDetector struct {
	Threshold   float64
	Probability float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewHeuristicDetector creates a heuristic detector. A nil rnd is seeded from the clock.
func NewHeuristicDetector(rnd *rand.Rand) *HeuristicDetector {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 1)) //nolint:gosec // simulation only
	}

	return &HeuristicDetector{
		Threshold:   DefaultQualityThreshold,
		Probability: DefaultDetectionProbability,
		rnd:         rnd,
	}
}

func (d *HeuristicDetector) Detect(img image.Image) (string, bool) {
	if MidtoneFraction(img) <= d.Threshold {
		return "", false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.rnd.Float64() >= d.Probability {
		return "", false
	}

	return GenerateDetection(d.rnd), true
}

// MidtoneFraction is the share of pixels whose mean channel brightness is in [100,200].
// Large frames are sampled on a grid.
func MidtoneFraction(img image.Image) float64 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}

	step := 1
	for (b.Dx()/step)*(b.Dy()/step) > maxSamples {
		step++
	}

	var total, mid int

	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			r, g, bl, _ := img.At(x, y).RGBA()
			mean := (r>>8 + g>>8 + bl>>8) / 3

			if mean >= midtoneLow && mean <= midtoneHigh {
				mid++
			}

			total++
		}
	}

	return float64(mid) / float64(total)
}

// GenerateDetection synthesizes a code of a random symbology: a retail EAN-13,
// a UPC-A, a Code128 or a QR payload.
func GenerateDetection(r *rand.Rand) string {
	switch r.IntN(4) {
	case 0:
		return symbology.GenerateRetailEAN13(r, symbology.RetailPrefix)
	case 1:
		return symbology.GenerateUPCA(r)
	case 2:
		return symbology.GenerateCode128(r)
	default:
		if r.IntN(2) == 0 {
			return "https://faredeal.ug/product/" + strconv.Itoa(r.IntN(10000))
		}

		return "INVENTORY:" + strconv.Itoa(r.IntN(999999))
	}
}
