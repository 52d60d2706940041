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

package driver

import (
	"fmt"
	"syscall"
	"unsafe"

	"github.com/rabbitstack/winspect/pkg/fs"
	"github.com/rabbitstack/winspect/pkg/sys"
)

// DevSize specifies the initial size used to allocate the driver base addresses
const DevSize = 1024

// Device contains metadata for each loaded device driver image.
type Device struct {
	Filename string
	Addr     uintptr
}

// String returns the device driver string representation.
func (d Device) String() string {
	return fmt.Sprintf("File: %s", d.Filename)
}

// EnumDevices returns metadata about device drivers encountered in the
// system. If device driver enumeration fails, an empty slice with device
// information is returned.
func EnumDevices() []Device {
	needed := uint32(0)
	addrs := make([]uintptr, DevSize)
	err := sys.EnumDeviceDrivers(uintptr(unsafe.Pointer(&addrs[0])), DevSize, &needed)
	if err != nil {
		return nil
	}
	// base image size greater than initial allocation
	if needed > uint32(len(addrs)) {
		addrs = make([]uintptr, needed)
		err := sys.EnumDeviceDrivers(uintptr(unsafe.Pointer(&addrs[0])), needed, &needed)
		if err != nil {
			return nil
		}
	}
	// resize to get the number of drivers
	if needed/8 < uint32(len(addrs)) {
		addrs = addrs[:needed/8]
	}
	conv := fs.NewPathConverter()
	devs := make([]Device, len(addrs))
	for i, addr := range addrs {
		dev := Device{
			Addr: addr,
		}
		filename := make([]uint16, syscall.MAX_PATH)
		n := sys.GetDeviceDriverFileName(addr, &filename[0], syscall.MAX_PATH)
		if n == 0 {
			continue
		}
		dev.Filename = conv.Convert(syscall.UTF16ToString(filename))
		devs[i] = dev
	}
	return devs
}
