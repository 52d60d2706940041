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

package fs

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/rabbitstack/winspect/pkg/sys"
	"golang.org/x/sys/windows"
)

// ResolveSymbolicLink opens the symbolic link object with the given name
// in the object manager namespace and returns its target. Names are NT
// namespace paths, such as `\??\C:`.
func ResolveSymbolicLink(name string) (string, error) {
	u, err := windows.NewNTUnicodeString(name)
	if err != nil {
		return "", err
	}
	objAttrs := &windows.OBJECT_ATTRIBUTES{
		ObjectName: u,
		Attributes: windows.OBJ_CASE_INSENSITIVE,
	}
	objAttrs.Length = uint32(unsafe.Sizeof(*objAttrs))

	var link windows.Handle
	if err := sys.NtOpenSymbolicLinkObject(&link, sys.SymbolicLinkQueryAccess, objAttrs); err != nil {
		return "", errors.Wrapf(err, "unable to open the %s link", name)
	}
	defer func() {
		_ = windows.CloseHandle(link)
	}()

	buf := make([]uint16, windows.MAX_PATH)
	target := windows.NTUnicodeString{
		Length:        0,
		MaximumLength: uint16(len(buf) * 2),
		Buffer:        &buf[0],
	}
	var n uint32
	if err := sys.NtQuerySymbolicLinkObject(link, &target, &n); err != nil {
		return "", errors.Wrapf(err, "unable to resolve the %s link", name)
	}
	return windows.UTF16ToString(buf[:target.Length/2]), nil
}

// DriveSymbolicLink resolves the device object backing the given drive
// letter, e.g. `C:` yields `\Device\HarddiskVolume2`.
func DriveSymbolicLink(drive string) (string, error) {
	if len(drive) < 2 {
		return "", errors.Errorf("invalid drive letter %q", drive)
	}
	return ResolveSymbolicLink(`\??\` + drive[:2])
}
