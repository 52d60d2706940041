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

package proc

import (
	"strings"
	"unicode/utf16"
	"unsafe"

	"github.com/rabbitstack/winspect/pkg/mem"
	"github.com/rabbitstack/winspect/pkg/query"
	"github.com/rabbitstack/winspect/pkg/util/va"
	"golang.org/x/sys/windows"
)

// PEB contains various process's metadata from the Process Environment Block (PEB). PEB is an opaque data structure
// that contains information that apply across a whole process, including global context, startup parameters, data structures
// for the program image loader, the program image base address, and synchronization objects used to provide mutual exclusion
// for process-wide data structures. Although it is not encouraged to access this structure due to its unstable nature, some
// process's information like command line or environments strings are only available through Process Environment Block fields.
type PEB struct {
	peb        *windows.PEB
	procParams *windows.RTL_USER_PROCESS_PARAMETERS
	as         mem.AddressSpace
}

// ReadPEB queries the process's basic information class structures and copies the PEB into
// the current process's address space.
func (p *Process) ReadPEB() (*PEB, error) {
	peb := &PEB{as: p.AddressSpace()}
	pbi, err := query.ProcessInfo[windows.PROCESS_BASIC_INFORMATION](p.Handle, windows.ProcessBasicInformation)
	if err != nil {
		return nil, err
	}
	// the PEB structure resides in the address space of another process,
	// so the memory block must be copied over to access its fields
	peb.peb, err = mem.ReadAs[windows.PEB](peb.as, va.Address(uintptr(unsafe.Pointer(pbi.PebBaseAddress))))
	if err != nil {
		return nil, err
	}
	// read the `RTL_USER_PROCESS_PARAMETERS` struct which contains the command line
	// and the image name of the process among many other attributes
	peb.procParams, err = mem.ReadAs[windows.RTL_USER_PROCESS_PARAMETERS](peb.as, va.Address(uintptr(unsafe.Pointer(peb.peb.ProcessParameters))))
	if err != nil {
		return nil, err
	}
	return peb, nil
}

// GetImage inspects the process image name by reading the memory buffer in the PEB.
func (p PEB) GetImage() string {
	if p.procParams == nil {
		return ""
	}
	image, err := mem.ReadUTF16(p.as, uniptr(p.procParams.ImagePathName.Buffer), uint(p.procParams.ImagePathName.Length))
	if err != nil {
		return ""
	}
	return image
}

// GetCommandLine inspects the process command line arguments by reading the memory buffer in the PEB.
func (p PEB) GetCommandLine() string {
	if p.procParams == nil {
		return ""
	}
	cmdline, err := mem.ReadUTF16(p.as, uniptr(p.procParams.CommandLine.Buffer), uint(p.procParams.CommandLine.Length))
	if err != nil {
		return ""
	}
	return cmdline
}

// GetCurrentWorkingDirectory reads the current working directory from the PEB.
func (p PEB) GetCurrentWorkingDirectory() string {
	if p.procParams == nil {
		return ""
	}
	cwd, err := mem.ReadUTF16(p.as, uniptr(p.procParams.CurrentDirectory.DosPath.Buffer), uint(p.procParams.CurrentDirectory.DosPath.Length))
	if err != nil {
		return ""
	}
	return cwd
}

// GetSessionID returns the process session identifier.
func (p PEB) GetSessionID() uint32 {
	if p.peb == nil {
		return 0
	}
	return p.peb.SessionId
}

// GetEnvs returns the map of environment variables that were mapped into the process PEB.
func (p PEB) GetEnvs() map[string]string {
	if p.procParams == nil {
		return nil
	}
	start, end := 0, 0
	envs := make(map[string]string)
	b, err := p.as.Read(va.Address(uintptr(p.procParams.Environment)), uint(p.procParams.EnvironmentSize))
	if err != nil {
		return nil
	}
	s := unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
	for i, r := range s {
		// each env variable key/value pair terminates with the NUL character
		if r == 0 {
			end = i
		}
		if end > start {
			// the next token starts with a NUL character
			// which means we have consumed all env variables
			if s[start] == 0 {
				break
			}
			env := string(utf16.Decode(s[start:end]))
			if kv := strings.SplitN(env, "=", 2); len(kv) == 2 {
				envs[kv[0]] = kv[1]
			}
			start = end + 1
		}
	}
	return envs
}

func uniptr(b *uint16) va.Address { return va.Address(uintptr(unsafe.Pointer(b))) }
