//go:build linux && !nox11

package capture

import (
	"fmt"
	"image"

	"github.com/jezek/xgb/shm"
	"github.com/jezek/xgb/xproto"
	"golang.org/x/sys/unix"

	"github.com/zoomify/zoomify/internal/logging"
)

func (s *x11Session) initShm() bool {
	if err := shm.Init(s.conn); err != nil {
		s.log.Debug("MIT-SHM extension unavailable", logging.KeyError, err)
		return false
	}
	if _, err := shm.QueryVersion(s.conn).Reply(); err != nil {
		s.log.Debug("MIT-SHM version query failed", logging.KeyError, err)
		return false
	}
	return true
}

// grabShm reads the region through a SysV shared memory segment attached to
// the server. Segment, mapping and server attachment are each released by
// their own deferred call, in reverse order of acquisition.
func (s *x11Session) grabShm(m monitor, dst *image.RGBA) error {
	layout, err := s.layout(s.screen.RootDepth, s.screen.RootVisual)
	if err != nil {
		return err
	}
	size := layout.stride(m.width) * m.height

	id, err := unix.SysvShmGet(unix.IPC_PRIVATE, size, unix.IPC_CREAT|0o600)
	if err != nil {
		return fmt.Errorf("shmget %d bytes: %w", size, err)
	}
	defer func() {
		if _, err := unix.SysvShmCtl(id, unix.IPC_RMID, nil); err != nil {
			s.log.Warn("remove shared memory segment", "id", id, logging.KeyError, err)
		}
	}()

	data, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return fmt.Errorf("shmat: %w", err)
	}
	defer func() {
		if err := unix.SysvShmDetach(data); err != nil {
			s.log.Warn("detach shared memory segment", "id", id, logging.KeyError, err)
		}
	}()

	seg, err := shm.NewSegId(s.conn)
	if err != nil {
		return fmt.Errorf("allocate segment id: %w", err)
	}
	if err := shm.AttachChecked(s.conn, seg, uint32(id), false).Check(); err != nil {
		return fmt.Errorf("server attach: %w", err)
	}
	defer func() {
		if err := shm.DetachChecked(s.conn, seg).Check(); err != nil {
			s.log.Warn("server detach", logging.KeyError, err)
		}
	}()

	reply, err := shm.GetImage(s.conn, xproto.Drawable(s.screen.Root),
		int16(m.x), int16(m.y), uint16(m.width), uint16(m.height),
		allPlanes, xproto.ImageFormatZPixmap, seg, 0).Reply()
	if err != nil {
		return fmt.Errorf("%w: shm GetImage: %w", ErrSurfaceReadFailed, err)
	}
	if reply.Depth != s.screen.RootDepth {
		if layout, err = s.layout(reply.Depth, reply.Visual); err != nil {
			return err
		}
		if need := layout.stride(m.width) * m.height; need > size {
			return fmt.Errorf("%w: depth %d needs %d bytes, segment has %d", ErrSurfaceReadFailed, reply.Depth, need, size)
		}
	}
	return layout.unpack(data, m.width, m.height, dst)
}
