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

// Package query implements the adaptive buffer negotiation protocol for
// kernel information classes whose payload size is unknown until queried.
// Fixed-size classes are served from a static size table, while free-form
// classes start from a page-sized estimate and grow on the kernel-reported
// required size until the fetch succeeds.
package query

import (
	"expvar"
	"fmt"
	"os"
	"unsafe"

	"github.com/rabbitstack/winspect/pkg/errs"
	"github.com/rabbitstack/winspect/pkg/sys"
	"golang.org/x/sys/windows"
)

// resizes accounts the total number of buffer reallocations per information class
var resizes = expvar.NewMap("query.buffer.resizes")

// fetchFunc issues the underlying information fetch into the supplied buffer.
// It returns the size the kernel claims is required to satisfy the query.
type fetchFunc func(buf []byte) (uint32, error)

// SystemSize returns the initial buffer size for the system information class.
// All supported system classes produce free-form lists, so the estimate starts
// at one page and is expected to be negotiated upwards.
func SystemSize(class int32) int {
	switch class {
	case sys.SystemModuleInformationClass, sys.SystemExtendedProcessInformationClass,
		windows.SystemProcessInformation, windows.SystemExtendedHandleInformation:
		return os.Getpagesize()
	default:
		panic(fmt.Sprintf("query: unknown system information class: %d", class))
	}
}

// ProcessSize returns the buffer size required by the process information class.
// Unknown classes are a programming error and cause a panic.
func ProcessSize(class int32) int {
	switch class {
	case windows.ProcessBasicInformation:
		return int(unsafe.Sizeof(windows.PROCESS_BASIC_INFORMATION{}))
	case windows.ProcessWow64Information:
		return int(unsafe.Sizeof(uintptr(0)))
	case sys.ProcessTimesClass:
		return 4 * 8
	case sys.ProcessHandleCountClass, sys.ProcessSessionInformationClass, sys.ProcessExecuteFlagsClass:
		return 4
	case sys.ProcessImageFileNameClass, sys.ProcessImageFileNameWin32Class:
		return int(unsafe.Sizeof(windows.NTUnicodeString{})) + windows.MAX_PATH*2
	default:
		panic(fmt.Sprintf("query: unknown process information class: %d", class))
	}
}

// ObjectSize returns the initial buffer size for the object information class.
func ObjectSize(class int32) int {
	switch class {
	case sys.ObjectBasicInformationClass:
		return 56
	case sys.ObjectNameInformationClass, sys.ObjectTypeInformationClass:
		// name and type payloads carry counted strings, one page is
		// usually far more than needed
		return os.Getpagesize()
	default:
		panic(fmt.Sprintf("query: unknown object information class: %d", class))
	}
}

// System fetches the payload of the system information class. The returned
// buffer is exclusively owned by the caller.
func System(class int32) ([]byte, error) {
	return retry(class, SystemSize(class), func(buf []byte) (uint32, error) {
		var n uint32
		err := windows.NtQuerySystemInformation(class, unsafe.Pointer(&buf[0]), uint32(len(buf)), &n)
		return n, err
	})
}

// Process fetches the payload of the process information class for the process
// referenced by the handle.
func Process(proc windows.Handle, class int32) ([]byte, error) {
	return retry(class, ProcessSize(class), func(buf []byte) (uint32, error) {
		var n uint32
		err := windows.NtQueryInformationProcess(proc, class, unsafe.Pointer(&buf[0]), uint32(len(buf)), &n)
		return n, err
	})
}

// Object fetches the payload of the object information class for the object
// referenced by the handle.
func Object(obj windows.Handle, class int32) ([]byte, error) {
	return retry(class, ObjectSize(class), func(buf []byte) (uint32, error) {
		var n uint32
		err := sys.NtQueryObject(obj, class, unsafe.Pointer(&buf[0]), uint32(len(buf)), &n)
		return n, err
	})
}

// ProcessInfo fetches the process information class and reinterprets the
// buffer as the given structure.
func ProcessInfo[C any](proc windows.Handle, class int32) (*C, error) {
	b, err := Process(proc, class)
	if err != nil {
		return nil, err
	}
	return (*C)(unsafe.Pointer(&b[0])), nil
}

// retry drives the size negotiation loop. The kernel-reported required size is
// authoritative for the instant snapshot, but the data may keep growing between
// the report and the next fetch, so the loop repeats on every size mismatch
// instead of giving up after the first corrected attempt. Any other kernel
// failure aborts the loop.
func retry(class int32, size int, fetch fetchFunc) ([]byte, error) {
	buf := make([]byte, size)
	for {
		needed, err := fetch(buf)
		if err == nil {
			return buf, nil
		}
		if !isSizeMismatch(err) {
			return nil, errs.ErrSizeNegotiation{Class: class, Err: err}
		}
		resizes.Add(fmt.Sprintf("%d", class), 1)
		if int(needed) > len(buf) {
			buf = make([]byte, needed)
		} else {
			buf = make([]byte, len(buf)*2)
		}
	}
}

func isSizeMismatch(err error) bool {
	return err == windows.STATUS_INFO_LENGTH_MISMATCH ||
		err == windows.STATUS_BUFFER_TOO_SMALL ||
		err == windows.STATUS_BUFFER_OVERFLOW
}
