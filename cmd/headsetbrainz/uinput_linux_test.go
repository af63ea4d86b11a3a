//go:build linux

package main

import (
	"encoding/binary"
	"testing"
)

func TestUinputUserDevSize(t *testing.T) {
	// sizeof(struct uinput_user_dev) on Linux.
	if got := binary.Size(uinputUserDev{}); got != 1116 {
		t.Errorf("expected 1116 bytes, got %d", got)
	}
}
