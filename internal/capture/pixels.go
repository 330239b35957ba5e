package capture

import (
	"fmt"
	"image"
	"math/bits"
)

// channel extracts one colour component from a packed pixel using the mask
// reported by the windowing system.
type channel struct {
	mask  uint32
	shift uint
	width uint
}

func newChannel(mask uint32) channel {
	if mask == 0 {
		return channel{}
	}
	shift := uint(bits.TrailingZeros32(mask))
	return channel{
		mask:  mask,
		shift: shift,
		width: uint(bits.Len32(mask >> shift)),
	}
}

// value returns the component scaled to 8 bits.
func (c channel) value(pixel uint32) uint8 {
	if c.width == 0 {
		return 0
	}
	v := (pixel & c.mask) >> c.shift
	switch {
	case c.width == 8:
		return uint8(v)
	case c.width > 8:
		return uint8(v >> (c.width - 8))
	default:
		full := uint32(1)<<c.width - 1
		return uint8(v * 255 / full)
	}
}

// pixelLayout describes a ZPixmap image as the server lays it out.
type pixelLayout struct {
	bitsPerPixel int
	// scanlinePad is the row alignment in bits.
	scanlinePad int
	msbFirst    bool

	red, green, blue channel
}

func (l pixelLayout) stride(width int) int {
	pad := l.scanlinePad
	if pad <= 0 {
		pad = 8
	}
	rowBits := width * l.bitsPerPixel
	return (rowBits + pad - 1) / pad * pad / 8
}

func (l pixelLayout) validate() error {
	switch l.bitsPerPixel {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: unsupported pixel size of %d bits", ErrSurfaceReadFailed, l.bitsPerPixel)
	}
	if l.red.mask == 0 && l.green.mask == 0 && l.blue.mask == 0 {
		return fmt.Errorf("%w: visual reports no colour masks", ErrSurfaceReadFailed)
	}
	return nil
}

func (l pixelLayout) pixelAt(b []byte) uint32 {
	var p uint32
	if l.msbFirst {
		for _, v := range b {
			p = p<<8 | uint32(v)
		}
		return p
	}
	for i := len(b) - 1; i >= 0; i-- {
		p = p<<8 | uint32(b[i])
	}
	return p
}

// unpack expands width*height packed pixels from src into dst as RGBA with
// opaque alpha.
func (l pixelLayout) unpack(src []byte, width, height int, dst *image.RGBA) error {
	if err := l.validate(); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: empty region %dx%d", ErrSurfaceReadFailed, width, height)
	}
	if dst.Rect.Dx() < width || dst.Rect.Dy() < height {
		return fmt.Errorf("%w: destination %v smaller than %dx%d", ErrSurfaceReadFailed, dst.Rect, width, height)
	}

	bpp := l.bitsPerPixel / 8
	stride := l.stride(width)
	if need := stride*(height-1) + width*bpp; len(src) < need {
		return fmt.Errorf("%w: short image data: got %d bytes, need %d", ErrSurfaceReadFailed, len(src), need)
	}

	for y := 0; y < height; y++ {
		row := src[y*stride:]
		out := dst.Pix[dst.PixOffset(dst.Rect.Min.X, dst.Rect.Min.Y+y):]
		for x := 0; x < width; x++ {
			p := l.pixelAt(row[x*bpp : x*bpp+bpp])
			o := out[x*4 : x*4+4 : x*4+4]
			o[0] = l.red.value(p)
			o[1] = l.green.value(p)
			o[2] = l.blue.value(p)
			o[3] = 0xff
		}
	}
	return nil
}
