package capture

import (
	"fmt"
	"image"
	"image/png"
	"sync"
)

type encoderBufferPool struct {
	pool sync.Pool
}

func (p *encoderBufferPool) Get() *png.EncoderBuffer {
	b, _ := p.pool.Get().(*png.EncoderBuffer)
	return b
}

func (p *encoderBufferPool) Put(b *png.EncoderBuffer) {
	p.pool.Put(b)
}

var pngEncoder = png.Encoder{
	CompressionLevel: png.BestSpeed,
	BufferPool:       &encoderBufferPool{},
}

// encodePNG compresses img into an owned PNG byte slice.
func encodePNG(img *image.RGBA) ([]byte, error) {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := pngEncoder.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingFailed, err)
	}
	if buf.Len() == 0 {
		return nil, ErrEncodingFailed
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}
