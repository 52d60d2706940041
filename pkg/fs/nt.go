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
	"os"
	"strings"
)

// PathConverter translates NT namespace paths, as reported by the kernel,
// to their DOS variants. For example, `\SystemRoot\system32\ntoskrnl.exe`
// becomes `C:\Windows\system32\ntoskrnl.exe`.
type PathConverter struct {
	drives  func() []string
	symlink func(drive string) (string, error)
	root    string
}

// NewPathConverter builds a converter backed by the live system drive
// table and the object manager symbolic links.
func NewPathConverter() *PathConverter {
	return &PathConverter{
		drives:  GetLogicalDrives,
		symlink: DriveSymbolicLink,
		root:    os.Getenv("SYSTEMROOT"),
	}
}

// Convert translates the NT path to its DOS form. Paths that carry no
// recognized NT prefix are returned verbatim.
func (c *PathConverter) Convert(path string) string {
	switch {
	case strings.HasPrefix(path, `\??\`):
		return path[4:]
	case hasPrefixFold(path, `\SystemRoot`):
		return c.root + path[len(`\SystemRoot`):]
	case hasPrefixFold(path, `system32\`):
		return c.root + `\system32` + path[len(`system32`):]
	case hasPrefixFold(path, `\Device`):
		for _, drive := range c.drives() {
			sym, err := c.symlink(drive)
			if err != nil {
				continue
			}
			if strings.HasPrefix(path, sym) {
				return drive + path[len(sym):]
			}
		}
	}
	return path
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
