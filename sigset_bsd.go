//go:build darwin || freebsd || netbsd || openbsd || dragonfly

//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 Tencent.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package epollshim

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// signalsFromSigset decodes a unix.Sigset_t into the list of signal
// numbers it contains. unix.Sigset_t's concrete field layout differs
// across the BSD targets this package runs on (a [4]uint32 array on
// FreeBSD/NetBSD/OpenBSD/DragonFly, a single machine word on Darwin), but
// POSIX guarantees every one of them is a plain packed bitmask, so this
// scans the struct's raw bytes instead of special-casing each GOOS.
func signalsFromSigset(set *unix.Sigset_t) []int {
	if set == nil {
		return nil
	}
	size := int(unsafe.Sizeof(*set))
	base := unsafe.Pointer(set)

	var sigs []int
	for sig := 1; sig <= size*8; sig++ {
		byteIdx := (sig - 1) / 8
		bitIdx := uint((sig - 1) % 8)
		b := *(*byte)(unsafe.Pointer(uintptr(base) + uintptr(byteIdx)))
		if b&(1<<bitIdx) != 0 {
			sigs = append(sigs, sig)
		}
	}
	return sigs
}
