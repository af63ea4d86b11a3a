//go:build !linux

package main

import "errors"

type uinputKeyboard struct{}

func newKeyboard(name string, keys []uint16) (*uinputKeyboard, error) {
	return nil, errors.New("virtual keyboard is only supported on linux")
}

func (k *uinputKeyboard) Tap(code uint16) error {
	return errors.New("virtual keyboard is only supported on linux")
}

func (k *uinputKeyboard) Close() error { return nil }
