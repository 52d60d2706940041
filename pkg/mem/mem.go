/*
 * Copyright 2021-2022 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mem provides the uniform memory access layer over a local or
// remote process address space. All operations dispatch on the address
// space variant: the local variant performs direct in-process copies,
// while the remote variant is mediated by the kernel through the process
// handle. Two concurrent accessors targeting the same live process may
// observe torn snapshots since nothing synchronizes the target's memory.
package mem

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/rabbitstack/winspect/pkg/errs"
	"github.com/rabbitstack/winspect/pkg/sys"
	"github.com/rabbitstack/winspect/pkg/util/va"
	"golang.org/x/sys/windows"
)

// AddressSpace designates the target of memory operations. It is a capability
// reference, not an owner: closing the underlying process handle is up to the
// collaborator that opened it.
type AddressSpace struct {
	proc  windows.Handle
	local bool
}

// Local returns the address space of the calling process. Read and write
// against the local space bypass the kernel since the addresses are already
// mapped into the caller.
func Local() AddressSpace {
	return AddressSpace{proc: windows.CurrentProcess(), local: true}
}

// Remote returns the address space of a foreign process referenced by the
// handle. The handle must carry the access rights matching the operations
// performed against it.
func Remote(proc windows.Handle) AddressSpace {
	return AddressSpace{proc: proc}
}

// IsLocal determines if this address space belongs to the calling process.
func (as AddressSpace) IsLocal() bool { return as.local }

// Handle returns the underlying process handle.
func (as AddressSpace) Handle() windows.Handle { return as.proc }

// Read copies size bytes starting at the given address into a freshly
// allocated buffer. Partial reads surface as errors.
func (as AddressSpace) Read(addr va.Address, size uint) ([]byte, error) {
	if size == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, size)
	if as.local {
		copy(buf, unsafe.Slice((*byte)(unsafe.Pointer(addr.Uintptr())), size))
		return buf, nil
	}
	var n uintptr
	err := sys.NtReadVirtualMemory(as.proc, addr.Uintptr(), unsafe.Pointer(&buf[0]), uintptr(size), &n)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %d bytes at %s", size, addr)
	}
	if n != uintptr(size) {
		return nil, errs.ErrPartialCopy
	}
	return buf, nil
}

// Write copies the buffer into the address space at the given address.
// Partial writes surface as errors.
func (as AddressSpace) Write(addr va.Address, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	if as.local {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(addr.Uintptr())), len(buf)), buf)
		return nil
	}
	var n uintptr
	err := sys.NtWriteVirtualMemory(as.proc, addr.Uintptr(), unsafe.Pointer(&buf[0]), uintptr(len(buf)), &n)
	if err != nil {
		return errors.Wrapf(err, "unable to write %d bytes at %s", len(buf), addr)
	}
	if n != uintptr(len(buf)) {
		return errs.ErrPartialCopy
	}
	return nil
}

// Alloc reserves and/or commits a region of pages inside the address space
// and returns its base address.
func (as AddressSpace) Alloc(size uint, allocType, protect uint32) (va.Address, error) {
	var (
		base  uintptr
		bytes = uintptr(size)
	)
	err := sys.NtAllocateVirtualMemory(as.proc, &base, 0, &bytes, allocType, protect)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to allocate %d bytes", size)
	}
	return va.Address(base), nil
}

// Protect changes the protection of the pages spanning the given range and
// returns the previous protection flags.
func (as AddressSpace) Protect(addr va.Address, size uint, protect uint32) (uint32, error) {
	var (
		base  = addr.Uintptr()
		bytes = uintptr(size)
		old   uint32
	)
	err := sys.NtProtectVirtualMemory(as.proc, &base, &bytes, protect, &old)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to protect %d bytes at %s", size, addr)
	}
	return old, nil
}

// Free releases or decommits a region of pages within the address space.
func (as AddressSpace) Free(addr va.Address, size uint, freeType uint32) error {
	var (
		base  = addr.Uintptr()
		bytes = uintptr(size)
	)
	if freeType&windows.MEM_RELEASE != 0 {
		// the kernel demands a zero region size when releasing
		bytes = 0
	}
	err := sys.NtFreeVirtualMemory(as.proc, &base, &bytes, freeType)
	if err != nil {
		return errors.Wrapf(err, "unable to free the region at %s", addr)
	}
	return nil
}

// ReadAs reads the structure of the parameterized type out of the address
// space. The structure is deep-copied into the caller's memory, so it stays
// valid after subsequent reads.
func ReadAs[T any](as AddressSpace, addr va.Address) (*T, error) {
	var t T
	b, err := as.Read(addr, uint(unsafe.Sizeof(t)))
	if err != nil {
		return nil, err
	}
	return (*T)(unsafe.Pointer(&b[0])), nil
}

// ReadUTF16 reads a counted UTF-16 string of the given byte length and
// decodes it into a Go string.
func ReadUTF16(as AddressSpace, addr va.Address, size uint) (string, error) {
	if size == 0 {
		return "", nil
	}
	b, err := as.Read(addr, size)
	if err != nil {
		return "", err
	}
	u := unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
	return windows.UTF16ToString(u), nil
}
