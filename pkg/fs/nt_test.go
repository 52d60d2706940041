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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func newTestConverter() *PathConverter {
	return &PathConverter{
		root:   "C:\\Windows",
		drives: func() []string { return []string{"C:", "D:"} },
		symlink: func(drive string) (string, error) {
			switch drive {
			case "C:":
				return "\\Device\\HarddiskVolume2", nil
			case "D:":
				return "\\Device\\CdRom0", nil
			}
			return "", errors.New("no such device")
		},
	}
}

func TestConvertNtPath(t *testing.T) {
	c := newTestConverter()

	var tests = []struct {
		ntPath  string
		dosPath string
	}{
		{"\\??\\C:\\Users\\nedo\\notes.txt", "C:\\Users\\nedo\\notes.txt"},
		{"\\SystemRoot\\system32\\ntoskrnl.exe", "C:\\Windows\\system32\\ntoskrnl.exe"},
		{"\\SYSTEMROOT\\system32\\ntoskrnl.exe", "C:\\Windows\\system32\\ntoskrnl.exe"},
		{"system32\\win32k.sys", "C:\\Windows\\system32\\win32k.sys"},
		{"System32\\win32k.sys", "C:\\Windows\\system32\\win32k.sys"},
		{"\\Device\\HarddiskVolume2\\Windows\\explorer.exe", "C:\\Windows\\explorer.exe"},
		{"\\Device\\CdRom0\\setup.exe", "D:\\setup.exe"},
		{"\\Device\\Unknown0\\blob", "\\Device\\Unknown0\\blob"},
		{"C:\\already\\dos.txt", "C:\\already\\dos.txt"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ntPath, func(t *testing.T) {
			assert.Equal(t, tt.dosPath, c.Convert(tt.ntPath))
		})
	}
}

func TestConvertNtPathSkipsFailedLinks(t *testing.T) {
	c := newTestConverter()
	c.symlink = func(drive string) (string, error) {
		if drive == "C:" {
			return "", errors.New("access denied")
		}
		return "\\Device\\CdRom0", nil
	}
	assert.Equal(t, "D:\\setup.exe", c.Convert("\\Device\\CdRom0\\setup.exe"))
}
