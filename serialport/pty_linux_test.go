package serialport

import (
	"fmt"
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// openTestPTYPair opens a kernel pseudoterminal pair for exercising
// LineReader and WriteLine against real framing instead of a mock,
// grounded on the teacher's pty_linux.go OpenPTY (master via /dev/ptmx,
// unlock, then open the numbered slave).
func openTestPTYPair() (master, slave *Port, err error) {
	master, err = Open("/dev/ptmx", nil)
	if err != nil {
		return nil, nil, err
	}
	var locked int32
	if err := ioctl.Ioctl(uintptr(master.f), tiocsptlck, uintptr(unsafe.Pointer(&locked))); err != nil {
		master.Close()
		return nil, nil, err
	}
	var n uint32
	if err := ioctl.Ioctl(uintptr(master.f), tiocgptn, uintptr(unsafe.Pointer(&n))); err != nil {
		master.Close()
		return nil, nil, err
	}
	slavePath := fmt.Sprintf("/dev/pts/%d", n)
	slave, err = Open(slavePath, &Options{OpenMode: syscall.O_RDWR | syscall.O_NOCTTY})
	if err != nil {
		master.Close()
		return nil, nil, err
	}
	return master, slave, nil
}
