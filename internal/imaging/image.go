package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"optiattack/internal/model"
)

// Image is a packed RGB raster, row-major, three bytes per pixel.
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

var ErrDimensions = errors.New("image dimensions mismatch")

func New(width, height int) *Image {
	return &Image{Width: width, Height: height, Pix: make([]uint8, width*height*3)}
}

// Blank returns a width x height image filled with c.
func Blank(width, height int, c model.Color) *Image {
	img := New(width, height)
	c = c.Clamp()
	for i := 0; i < len(img.Pix); i += 3 {
		img.Pix[i] = uint8(c.R)
		img.Pix[i+1] = uint8(c.G)
		img.Pix[i+2] = uint8(c.B)
	}
	return img
}

func (img *Image) InBounds(loc model.Location) bool {
	return loc.X >= 0 && loc.X < img.Width && loc.Y >= 0 && loc.Y < img.Height
}

func (img *Image) At(loc model.Location) model.Color {
	if !img.InBounds(loc) {
		return model.Color{}
	}
	i := img.offset(loc)
	return model.Color{R: int(img.Pix[i]), G: int(img.Pix[i+1]), B: int(img.Pix[i+2])}
}

func (img *Image) Set(loc model.Location, c model.Color) {
	if !img.InBounds(loc) {
		return
	}
	c = c.Clamp()
	i := img.offset(loc)
	img.Pix[i] = uint8(c.R)
	img.Pix[i+1] = uint8(c.G)
	img.Pix[i+2] = uint8(c.B)
}

func (img *Image) Clone() *Image {
	return &Image{Width: img.Width, Height: img.Height, Pix: append([]uint8(nil), img.Pix...)}
}

// Paint returns a copy of img with each action's color written at its
// location, in order. img is left untouched and out-of-bounds actions are
// ignored.
func (img *Image) Paint(actions []model.Action) *Image {
	out := img.Clone()
	for _, a := range actions {
		out.Set(a.Location, a.Color)
	}
	return out
}

// Diff lists the locations where img and other differ.
func (img *Image) Diff(other *Image) []model.Location {
	if other == nil || img.Width != other.Width || img.Height != other.Height {
		return nil
	}
	var out []model.Location
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			loc := model.Location{X: x, Y: y}
			if img.At(loc) != other.At(loc) {
				out = append(out, loc)
			}
		}
	}
	return out
}

// Rows converts the image into the oracle wire layout: Height rows of Width
// [r,g,b] triples.
func (img *Image) Rows() [][][3]int {
	rows := make([][][3]int, img.Height)
	for y := 0; y < img.Height; y++ {
		row := make([][3]int, img.Width)
		for x := 0; x < img.Width; x++ {
			c := img.At(model.Location{X: x, Y: y})
			row[x] = [3]int{c.R, c.G, c.B}
		}
		rows[y] = row
	}
	return rows
}

func FromRows(rows [][][3]int) (*Image, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrDimensions)
	}
	width := len(rows[0])
	img := New(width, len(rows))
	for y, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d pixels, want %d", ErrDimensions, y, len(row), width)
		}
		for x, px := range row {
			img.Set(model.Location{X: x, Y: y}, model.Color{R: px[0], G: px[1], B: px[2]})
		}
	}
	return img, nil
}

// MatrixOverlay draws only the given actions on a white canvas.
func MatrixOverlay(width, height int, actions []model.Action) *Image {
	return Blank(width, height, model.Color{R: 255, G: 255, B: 255}).Paint(actions)
}

func (img *Image) offset(loc model.Location) int {
	return (loc.Y*img.Width + loc.X) * 3
}

// ToRGBA converts to the standard library representation for encoding.
func (img *Image) ToRGBA() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			c := img.At(model.Location{X: x, Y: y})
			out.SetRGBA(x, y, color.RGBA{R: uint8(c.R), G: uint8(c.G), B: uint8(c.B), A: 255})
		}
	}
	return out
}

func FromImage(src image.Image) *Image {
	b := src.Bounds()
	img := New(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			img.Set(model.Location{X: x, Y: y}, model.Color{R: int(r >> 8), G: int(g >> 8), B: int(bl >> 8)})
		}
	}
	return img
}

// Load decodes a PNG or JPEG file and bilinearly resizes it to width x height.
func Load(path string, width, height int) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return Resize(src, width, height), nil
}

func Resize(src image.Image, width, height int) *Image {
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		return FromImage(src)
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return FromImage(dst)
}

// Save encodes by file extension: .jpg/.jpeg as JPEG, anything else as PNG.
func (img *Image) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img.ToRGBA(), &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(f, img.ToRGBA())
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Sync()
}
