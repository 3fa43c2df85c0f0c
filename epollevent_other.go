//go:build !amd64

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

// EpollEvent mirrors Linux's struct epoll_event on every arch other than
// amd64, where the kernel's ABI inserts 4 bytes of padding before the
// data union to keep it 8-byte aligned.
type EpollEvent struct {
	Events uint32
	_      [4]byte
	data   [8]byte
}
