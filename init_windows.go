//go:build windows

package main

import "golang.org/x/sys/windows"

func init() {
	// Verdict boxes and step markers need a UTF-8 console
	_ = windows.SetConsoleOutputCP(65001)
}
