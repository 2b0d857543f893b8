package preprocess

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
)

type Layout int

const (
	NHWC Layout = iota
	NCHW
)

func (l Layout) String() string {
	if l == NCHW {
		return "NCHW"
	}
	return "NHWC"
}

// Geometry is the spatial input size and channel layout a model expects.
type Geometry struct {
	Height int
	Width  int
	Layout Layout
}

const channels = 3

// DefaultMaxPixels caps decoded image area when no limit is given.
const DefaultMaxPixels = 50_000_000

var (
	ErrEmptyPayload  = errors.New("empty image payload")
	ErrImageTooLarge = errors.New("image dimensions exceed limit")
)

// GeometryFromShape reads the geometry from a [1,H,W,3] or [1,3,H,W] shape.
func GeometryFromShape(shape []int64) (Geometry, error) {
	if len(shape) != 4 {
		return Geometry{}, errors.Errorf("expected rank 4 image input, got shape %v", shape)
	}
	if shape[0] != 1 {
		return Geometry{}, errors.Errorf("expected batch size 1, got shape %v", shape)
	}

	var g Geometry
	switch {
	case shape[3] == channels:
		g = Geometry{Height: int(shape[1]), Width: int(shape[2]), Layout: NHWC}
	case shape[1] == channels:
		g = Geometry{Height: int(shape[2]), Width: int(shape[3]), Layout: NCHW}
	default:
		return Geometry{}, errors.Errorf("no RGB channel axis in shape %v", shape)
	}
	if g.Height <= 0 || g.Width <= 0 {
		return Geometry{}, errors.Errorf("invalid spatial size in shape %v", shape)
	}
	return g, nil
}

// Shape is the batched tensor shape for g.
func (g Geometry) Shape() []int64 {
	if g.Layout == NCHW {
		return []int64{1, channels, int64(g.Height), int64(g.Width)}
	}
	return []int64{1, int64(g.Height), int64(g.Width), channels}
}

// DecodeBase64 strips a data-URI prefix ("data:image/jpeg;base64,") and
// decodes the remainder. A payload without a comma is treated as bare base64.
func DecodeBase64(payload string) ([]byte, error) {
	if i := strings.IndexByte(payload, ','); i >= 0 {
		payload = payload[i+1:]
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrEmptyPayload
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, rawErr := base64.RawStdEncoding.DecodeString(payload)
		if rawErr != nil {
			return nil, errors.Wrap(err, "decode base64")
		}
		data = raw
	}
	return data, nil
}

// DecodeImage decodes JPEG, PNG, GIF, BMP, TIFF or WebP data, applying any
// EXIF orientation. The header is checked first so images larger than
// maxPixels are rejected before any pixel buffer is allocated. A
// non-positive maxPixels means DefaultMaxPixels.
func DecodeImage(data []byte, maxPixels int) (image.Image, error) {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Errorf("decode image: invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, errors.Wrapf(ErrImageTooLarge, "%dx%d > %d pixels", cfg.Width, cfg.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	return img, nil
}

func DecodeDataURI(payload string, maxPixels int) (image.Image, error) {
	data, err := DecodeBase64(payload)
	if err != nil {
		return nil, err
	}
	return DecodeImage(data, maxPixels)
}

// Tensor resizes img to g and returns its RGB values scaled to [0,1] with a
// leading batch dimension of 1, laid out as g.Layout.
func Tensor(img image.Image, g Geometry) []float32 {
	resized := resize.Resize(uint(g.Width), uint(g.Height), img, resize.Bicubic)
	b := resized.Bounds()

	plane := g.Width * g.Height
	data := make([]float32, channels*plane)

	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			c := color.NRGBAModel.Convert(resized.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			r := float32(c.R) / 255.0
			gr := float32(c.G) / 255.0
			bl := float32(c.B) / 255.0

			pixel := y*g.Width + x
			if g.Layout == NCHW {
				data[pixel] = r
				data[plane+pixel] = gr
				data[2*plane+pixel] = bl
			} else {
				data[pixel*channels] = r
				data[pixel*channels+1] = gr
				data[pixel*channels+2] = bl
			}
		}
	}
	return data
}
