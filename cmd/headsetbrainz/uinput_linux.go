//go:build linux

package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// uinput ioctls (from <linux/uinput.h>)
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565

	uinputMaxNameSize = 80
	absCnt            = 64
	busVirtual        = 0x06
)

// uinputUserDev mirrors struct uinput_user_dev.
type uinputUserDev struct {
	Name         [uinputMaxNameSize]byte
	BusType      uint16
	Vendor       uint16
	Product      uint16
	Version      uint16
	FFEffectsMax uint32
	AbsMax       [absCnt]int32
	AbsMin       [absCnt]int32
	AbsFuzz      [absCnt]int32
	AbsFlat      [absCnt]int32
}

// uinputKeyboard is a virtual keyboard that can emit the given keys.
type uinputKeyboard struct {
	mu sync.Mutex
	fd int
}

func newKeyboard(name string, keys []uint16) (*uinputKeyboard, error) {
	fd, err := unix.Open("/dev/uinput", unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/uinput: %w", err)
	}

	fail := func(step string, err error) (*uinputKeyboard, error) {
		unix.Close(fd)
		return nil, fmt.Errorf("uinput %s: %w", step, err)
	}

	if err := unix.IoctlSetInt(fd, uiSetEvBit, EV_KEY); err != nil {
		return fail("set evbit", err)
	}
	for _, k := range keys {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, int(k)); err != nil {
			return fail(fmt.Sprintf("set keybit %d", k), err)
		}
	}

	dev := uinputUserDev{
		BusType: busVirtual,
		Vendor:  0x1,
		Product: 0x1,
		Version: 1,
	}
	copy(dev.Name[:uinputMaxNameSize-1], name)

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, dev); err != nil {
		return fail("encode device", err)
	}
	if _, err := unix.Write(fd, buf.Bytes()); err != nil {
		return fail("write device", err)
	}
	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		return fail("create device", err)
	}

	return &uinputKeyboard{fd: fd}, nil
}

// Tap emits press, sync, release, sync.
func (k *uinputKeyboard) Tap(code uint16) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()
	seq := []inputEvent{
		newInputEvent(EV_KEY, code, evValuePress, now),
		newInputEvent(EV_SYN, SYN_REPORT, 0, now),
		newInputEvent(EV_KEY, code, evValueRelease, now),
		newInputEvent(EV_SYN, SYN_REPORT, 0, now),
	}
	for _, ev := range seq {
		if _, err := unix.Write(k.fd, encodeInputEvent(ev)); err != nil {
			return fmt.Errorf("uinput write: %w", err)
		}
	}
	return nil
}

func (k *uinputKeyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.fd < 0 {
		return nil
	}
	_ = unix.IoctlSetInt(k.fd, uiDevDestroy, 0)
	err := unix.Close(k.fd)
	k.fd = -1
	return err
}
