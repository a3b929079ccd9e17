package decode_test

import (
	"image"
	"image/color"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bavix/scanbridge/internal/decode"
	"github.com/bavix/scanbridge/internal/devices"
	customerrors "github.com/bavix/scanbridge/internal/errors"
	"github.com/bavix/scanbridge/internal/host"
	"github.com/bavix/scanbridge/internal/symbology"
	"github.com/bavix/scanbridge/internal/transport"
)

func key(k string, at time.Time) transport.RawSignal {
	return transport.RawSignal{Kind: devices.KindKeyboardWedge, At: at, Key: host.Keystroke{Key: k, At: at}}
}

func typeKeys(t *testing.T, p decode.Pipeline, s string, start time.Time, gap time.Duration) ([]decode.CandidateCode, time.Time) {
	t.Helper()

	var out []decode.CandidateCode

	at := start
	for _, r := range s {
		c, err := p.Decode(key(string(r), at))
		require.NoError(t, err)

		out = append(out, c...)
		at = at.Add(gap)
	}

	return out, at
}

func TestWedgePipeline_BurstWithEnter(t *testing.T) {
	t.Parallel()

	p := decode.NewWedgePipeline(time.Second, 4, 100)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	got, at := typeKeys(t, p, "12345678", start, 20*time.Millisecond)
	require.Empty(t, got)

	got, err := p.Decode(key(host.Enter, at))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "12345678", got[0].Text)
	assert.Equal(t, devices.KindKeyboardWedge, got[0].Source)
	assert.Equal(t, at, got[0].CapturedAt)
	assert.Empty(t, p.Buffered())
}

func TestWedgePipeline_GapSplitsBuffers(t *testing.T) {
	t.Parallel()

	p := decode.NewWedgePipeline(time.Second, 4, 100)
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	got, at := typeKeys(t, p, "1234", start, 10*time.Millisecond)
	require.Empty(t, got)
	assert.Equal(t, "1234", p.Buffered())

	got, _ = typeKeys(t, p, "5678", at.Add(1500*time.Millisecond), 10*time.Millisecond)
	require.Empty(t, got, "neither buffer completes without Enter")
	assert.Equal(t, "5678", p.Buffered())
}

func TestWedgePipeline_ShortBufferAndNonCharKeys(t *testing.T) {
	t.Parallel()

	p := decode.NewWedgePipeline(time.Second, 4, 100)
	now := time.Now()

	got, at := typeKeys(t, p, "12", now, time.Millisecond)
	require.Empty(t, got)

	_, err := p.Decode(key("Shift", at))
	require.NoError(t, err)

	got, err = p.Decode(key(host.Enter, at))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, "12", p.Buffered(), "a short buffer survives Enter")
}

func TestWedgePipeline_CapEvictsOldest(t *testing.T) {
	t.Parallel()

	p := decode.NewWedgePipeline(time.Second, 4, 10)

	_, _ = typeKeys(t, p, "abcdefghijk", time.Now(), time.Millisecond)
	assert.Equal(t, "ghijk", p.Buffered())
}

type report []byte

func press(mod byte, usages ...byte) report {
	r := make(report, 8)
	r[0] = mod
	copy(r[2:], usages)

	return r
}

func hidSignal(at time.Time, reports ...report) transport.RawSignal {
	var data []byte
	for _, r := range reports {
		data = append(data, r...)
	}

	return transport.RawSignal{Kind: devices.KindUSB, At: at, Data: data}
}

func TestHIDPipeline(t *testing.T) {
	t.Parallel()

	const lshift, rshift = 0x02, 0x20

	release := press(0)
	now := time.Now()

	tests := []struct {
		name    string
		reports []report
		want    []string
	}{
		{
			name: "shifted letters and digits with enter",
			reports: []report{
				press(lshift, 4), release, press(0, 5), release, press(rshift, 6), release,
				press(0, 30), release, press(0, 31), release, press(0, 32), release, press(0, 40), release,
			},
			want: []string{"AbC123"},
		},
		{
			name: "held key is not repeated",
			reports: []report{
				press(0, 30), press(0, 30), press(0, 30, 31), release, press(0, 30), release,
				press(0, 32), release, press(0, 33), release, press(0, 34), release, press(0, 40),
			},
			want: []string{"121345"},
		},
		{
			name:    "too short",
			reports: []report{press(0, 30), release, press(0, 31), release, press(0, 40)},
		},
		{
			name: "disallowed symbol",
			reports: []report{
				press(0, 30), release, press(0, 31), release, press(0, 32), release,
				press(0, 33), release, press(0, 34), release, press(lshift, 30), release, press(0, 40),
			},
		},
		{
			name: "dash and dot allowed",
			reports: []report{
				press(0, 4), release, press(0, 45), release, press(0, 5), release,
				press(0, 55), release, press(0, 6), release, press(0, 7), release, press(0, 40),
			},
			want: []string{"a-b.cd"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := decode.NewHIDPipeline(150 * time.Millisecond)

			got, err := p.Decode(hidSignal(now, tt.reports...))
			require.NoError(t, err)

			var texts []string
			for _, c := range got {
				assert.Equal(t, devices.KindUSB, c.Source)
				texts = append(texts, c.Text)
			}

			assert.Equal(t, tt.want, texts)
		})
	}
}

func TestHIDPipeline_IdleFlush(t *testing.T) {
	t.Parallel()

	p := decode.NewHIDPipeline(150 * time.Millisecond)
	now := time.Now()
	release := press(0)

	for i, usage := range []byte{30, 31, 32, 33, 34, 35} {
		_, err := p.Decode(hidSignal(now.Add(time.Duration(i)*time.Millisecond), press(0, usage), release))
		require.NoError(t, err)
	}

	last := now.Add(5 * time.Millisecond)

	assert.Empty(t, p.Flush(last.Add(100*time.Millisecond)))

	got := p.Flush(last.Add(200 * time.Millisecond))
	require.Len(t, got, 1)
	assert.Equal(t, "123456", got[0].Text)

	assert.Empty(t, p.Flush(last.Add(time.Second)))
}

func TestSerialPipeline(t *testing.T) {
	t.Parallel()

	p := decode.NewSerialPipeline()
	now := time.Now()

	got, err := p.Decode(transport.RawSignal{At: now, Data: []byte("\x02400638")})
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = p.Decode(transport.RawSignal{At: now, Data: []byte("1333931\x03\r\nABC-1\n\n")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "4006381333931", got[0].Text)
	assert.Equal(t, "ABC-1", got[1].Text)
	assert.Equal(t, devices.KindSerial, got[0].Source)

	_, err = p.Decode(transport.RawSignal{At: now, Data: []byte(strings.Repeat("9", 9000))})
	require.NoError(t, err)

	got, err = p.Decode(transport.RawSignal{At: now, Data: []byte("X1\r")})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Less(t, len(got[0].Text), 8<<10, "overflowing line is discarded")
}

func TestMessagePipelines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind devices.TransportKind
		data string
		want []string
	}{
		{name: "ble trims", kind: devices.KindBluetooth, data: "  4006381333931\r\n\x00", want: []string{"4006381333931"}},
		{name: "ble empty", kind: devices.KindBluetooth, data: " \n"},
		{name: "network envelope", kind: devices.KindNetwork, data: `{"type":"barcode","value":"96385074"}`, want: []string{"96385074"}},
		{name: "network barcode field", kind: devices.KindNetwork, data: `{"type":"scan","barcode":"ABC123"}`, want: []string{"ABC123"}},
		{name: "network status message", kind: devices.KindNetwork, data: `{"type":"status","battery":80}`},
		{name: "network raw", kind: devices.KindNetwork, data: "4006381333931", want: []string{"4006381333931"}},
		{name: "network raw too short", kind: devices.KindNetwork, data: "12345"},
		{name: "demo", kind: devices.KindDemo, data: "1234567890128", want: []string{"1234567890128"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := decode.New(tt.kind, decode.Options{})
			require.NoError(t, err)

			got, err := p.Decode(transport.RawSignal{Kind: tt.kind, At: time.Now(), Data: []byte(tt.data)})
			require.NoError(t, err)

			var texts []string
			for _, c := range got {
				assert.Equal(t, tt.kind, c.Source)
				texts = append(texts, c.Text)
			}

			assert.Equal(t, tt.want, texts)
		})
	}
}

func TestSimulatedMisreadPropagates(t *testing.T) {
	t.Parallel()

	p, err := decode.New(devices.KindDemo, decode.Options{})
	require.NoError(t, err)

	_, err = p.Decode(transport.RawSignal{Err: customerrors.ErrNoRead})
	require.ErrorIs(t, err, customerrors.ErrNoRead)
}

func TestNew_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := decode.New(devices.KindAI, decode.Options{})
	require.ErrorIs(t, err, customerrors.ErrUnsupported)
}

type countingDetector struct {
	calls int
}

func (d *countingDetector) Detect(image.Image) (string, bool) {
	d.calls++

	return "CODE" + string(rune('0'+d.calls)), true
}

func frameSignal(img image.Image) transport.RawSignal {
	f := host.Frame{Image: img, At: time.Now()}

	return transport.RawSignal{Kind: devices.KindCamera, At: f.At, Frame: &f}
}

func TestCameraPipeline_SamplesEveryNthFrame(t *testing.T) {
	t.Parallel()

	det := &countingDetector{}
	p := decode.NewCameraPipeline(det, 3)
	img := image.NewGray(image.Rect(0, 0, 4, 4))

	var texts []string

	for range 7 {
		got, err := p.Decode(frameSignal(img))
		require.NoError(t, err)
		require.LessOrEqual(t, len(got), 1)

		for _, c := range got {
			texts = append(texts, c.Text)
		}
	}

	assert.Equal(t, 2, det.calls)
	assert.Equal(t, []string{"CODE1", "CODE2"}, texts)
}

func uniform(v uint8) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := range 48 {
		for x := range 64 {
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}

	return img
}

func TestMidtoneFraction(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, decode.MidtoneFraction(uniform(150)), 1e-9)
	assert.InDelta(t, 0.0, decode.MidtoneFraction(uniform(10)), 1e-9)
	assert.InDelta(t, 0.0, decode.MidtoneFraction(uniform(250)), 1e-9)
	assert.InDelta(t, 0.0, decode.MidtoneFraction(image.NewGray(image.Rectangle{})), 1e-9)
}

func TestHeuristicDetector(t *testing.T) {
	t.Parallel()

	d := decode.NewHeuristicDetector(rand.New(rand.NewPCG(7, 7)))
	d.Probability = 1

	_, ok := d.Detect(uniform(0))
	assert.False(t, ok, "dark frame never passes the quality gate")

	text, ok := d.Detect(uniform(150))
	require.True(t, ok)
	assert.NotEmpty(t, text)

	d.Probability = 0
	_, ok = d.Detect(uniform(150))
	assert.False(t, ok)
}

func TestGenerateDetection_AlwaysValid(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewPCG(42, 24))
	formats := map[symbology.Format]bool{}

	for range 500 {
		code := decode.GenerateDetection(r)
		res := symbology.Validate(code)
		require.True(t, res.IsValid, "%q: %s", code, res.Error)

		formats[res.Format] = true
	}

	for _, f := range []symbology.Format{symbology.EAN13, symbology.UPCA, symbology.Code128, symbology.QR} {
		assert.True(t, formats[f], "format %s never generated", f)
	}
}
