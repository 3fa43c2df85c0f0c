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

import "unsafe"

// FD returns the file descriptor previously stored via SetFD.
func (e *EpollEvent) FD() int32 {
	return *(*int32)(unsafe.Pointer(&e.data[0]))
}

// SetFD stores fd in the event's data union, the most common way callers
// tag an EpollEvent with the fd it was registered for.
func (e *EpollEvent) SetFD(fd int32) {
	*(*int32)(unsafe.Pointer(&e.data[0])) = fd
}

// U64 returns the value previously stored via SetU64.
func (e *EpollEvent) U64() uint64 {
	return *(*uint64)(unsafe.Pointer(&e.data[0]))
}

// SetU64 stores v in the event's data union.
func (e *EpollEvent) SetU64(v uint64) {
	*(*uint64)(unsafe.Pointer(&e.data[0])) = v
}

// Ptr returns the pointer previously stored via SetPtr.
func (e *EpollEvent) Ptr() unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&e.data[0]))
}

// SetPtr stores p in the event's data union.
func (e *EpollEvent) SetPtr(p unsafe.Pointer) {
	*(*unsafe.Pointer)(unsafe.Pointer(&e.data[0])) = p
}
