package decode

import (
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ZXingDetector decodes real symbols from frames.
type ZXingDetector struct {
	mu      sync.Mutex
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]any
}

// NewZXingDetector creates a detector trying QR, then the retail linear
// symbologies, then Code128 and Code39.
func NewZXingDetector() *ZXingDetector {
	return &ZXingDetector{
		readers: []gozxing.Reader{
			qrcode.NewQRCodeReader(),
			oned.NewEAN13Reader(),
			oned.NewUPCAReader(),
			oned.NewEAN8Reader(),
			oned.NewCode128Reader(),
			oned.NewCode39Reader(),
		},
		hints: map[gozxing.DecodeHintType]any{gozxing.DecodeHintType_TRY_HARDER: true},
	}
}

func (d *ZXingDetector) Detect(img image.Image) (string, bool) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.readers {
		res, err := r.Decode(bmp, d.hints)
		r.Reset()

		if err == nil && res.GetText() != "" {
			return res.GetText(), true
		}
	}

	return "", false
}
