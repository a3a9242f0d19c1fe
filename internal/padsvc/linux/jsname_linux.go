//go:build linux

package linux

import (
	"bytes"
	"unsafe"

	"golang.org/x/sys/unix"
)

const jsNameLen = 128

// JSIOCGNAME(len) from linux/joystick.h.
func jsiocgname(n int) uintptr {
	return uintptr(0x80006a13 | (n << 16))
}

func jsName(fd int) string {
	buf := make([]byte, jsNameLen)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), jsiocgname(len(buf)), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return ""
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}
