package capture

import (
	"bytes"
	"image"
	"sync"
)

// pixelAllocator hands out scratch RGBA frames for the grab/encode step.
// Every Get must be paired with exactly one Put.
type pixelAllocator interface {
	Get(width, height int) *image.RGBA
	Put(img *image.RGBA)
}

// bufferPool pools bytes.Buffer instances for PNG encoding.
var bufferPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 256*1024))
	},
}

func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 64*1024*1024 {
		return
	}
	bufferPool.Put(buf)
}

// framePool pools RGBA frames keyed by size. Monitors of equal resolution
// share scratch memory across the sequential grab loop.
type framePool struct {
	mu    sync.Mutex
	pools map[image.Point]*sync.Pool
}

func newFramePool() *framePool {
	return &framePool{pools: make(map[image.Point]*sync.Pool)}
}

func (p *framePool) pool(size image.Point) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sp, ok := p.pools[size]
	if !ok {
		sp = &sync.Pool{}
		p.pools[size] = sp
	}
	return sp
}

func (p *framePool) Get(width, height int) *image.RGBA {
	if v := p.pool(image.Pt(width, height)).Get(); v != nil {
		return v.(*image.RGBA)
	}
	return image.NewRGBA(image.Rect(0, 0, width, height))
}

func (p *framePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.pool(img.Rect.Size()).Put(img)
}
