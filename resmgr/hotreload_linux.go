//go:build linux

package resmgr

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// inotifyWatcher backs the hot-reload event source with inotify
// instead of mtime polling. Watches are added lazily as paths are
// tracked; poll drains whatever events are queued without blocking
// (the fd is opened IN_NONBLOCK).
type inotifyWatcher struct {
	fd       int
	wdToPath map[int32]string
	pathToWd map[string]int32
}

func newEventSource() eventSource {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK)
	if err != nil {
		return newPollWatcher()
	}
	return &inotifyWatcher{
		fd:       fd,
		wdToPath: make(map[int32]string),
		pathToWd: make(map[string]int32),
	}
}

func (w *inotifyWatcher) track(path string) error {
	if _, ok := w.pathToWd[path]; ok {
		return nil
	}
	wd, err := unix.InotifyAddWatch(w.fd, path, unix.IN_MODIFY|unix.IN_CLOSE_WRITE)
	if err != nil {
		return err
	}
	w.wdToPath[int32(wd)] = path
	w.pathToWd[path] = int32(wd)
	return nil
}

func (w *inotifyWatcher) poll() []string {
	buf := make([]byte, 4096)
	n, err := unix.Read(w.fd, buf)
	if err != nil || n <= 0 {
		return nil
	}
	var changed []string
	offset := 0
	for offset+unix.SizeofInotifyEvent <= n {
		ev := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		if path, ok := w.wdToPath[ev.Wd]; ok {
			changed = append(changed, path)
		}
		offset += unix.SizeofInotifyEvent + int(ev.Len)
	}
	return changed
}

func (w *inotifyWatcher) close() {
	unix.Close(w.fd)
}
