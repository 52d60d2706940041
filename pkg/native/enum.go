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

// Package native implements the enumeration engine over kernel-maintained
// record sequences: loaded kernel modules, running processes and their
// threads, and named objects of the object manager directory. Each walker
// delivers deep-copied records to a caller-supplied callback. Returning
// Break from the callback halts the enumeration and flags the found outcome,
// so existence checks break on match while collectors always continue and
// rely on side effects.
package native

import (
	"strings"
	"unsafe"

	"github.com/rabbitstack/winspect/pkg/errs"
	"github.com/rabbitstack/winspect/pkg/query"
	"github.com/rabbitstack/winspect/pkg/sys"
	"github.com/rabbitstack/winspect/pkg/util/va"
	"golang.org/x/sys/windows"
)

// Flow steers the enumeration from inside the callback.
type Flow int8

const (
	// Continue instructs the walker to deliver the next record.
	Continue Flow = iota
	// Break halts the enumeration. The walker reports the found outcome.
	Break
)

// SystemModule describes a kernel module (driver) loaded in the system.
type SystemModule struct {
	ImageBase      va.Address
	ImageSize      uint32
	Path           string
	Name           string
	LoadOrderIndex uint16
	LoadCount      uint16
}

// ProcessInfo describes a running process as captured in the snapshot.
// Thread records are decoded in place from the embedded thread array.
type ProcessInfo struct {
	PID             uint32
	PPID            uint32
	Name            string
	SessionID       uint32
	HandleCount     uint32
	NumberOfThreads uint32
	BasePriority    int32
	CreateTime      int64
	KernelTime      int64
	UserTime        int64
	WorkingSetSize  uint64
	VirtualSize     uint64
	Threads         []ThreadInfo
}

// ThreadInfo describes a single thread of the process record.
type ThreadInfo struct {
	TID               uint32
	PID               uint32
	StartAddress      va.Address
	Win32StartAddress va.Address
	TebBase           va.Address
	StackBase         va.Address
	State             uint32
	WaitReason        uint32
	Priority          int32
	BasePriority      int32
	ContextSwitches   uint32
}

// DirectoryObject is a single named entry of an object manager directory.
type DirectoryObject struct {
	Name     string
	TypeName string
}

// EnumSystemModules walks the list of loaded kernel modules and invokes the
// callback for each of them. It reports whether the callback broke the
// enumeration.
func EnumSystemModules(cb func(SystemModule) Flow) (bool, error) {
	if cb == nil {
		return false, errs.ErrInvalidArg
	}
	buf, err := query.System(sys.SystemModuleInformationClass)
	if err != nil {
		return false, err
	}
	return walkSystemModules(buf, cb), nil
}

func walkSystemModules(buf []byte, cb func(SystemModule) Flow) bool {
	mods := (*sys.RtlProcessModules)(unsafe.Pointer(&buf[0]))
	items := unsafe.Slice(&mods.Modules[0], mods.NumberOfModules)
	for i := range items {
		if cb(decodeSystemModule(&items[i])) == Break {
			return true
		}
	}
	return false
}

func decodeSystemModule(m *sys.RtlProcessModuleInformation) SystemModule {
	path := cstring(m.FullPathName[:])
	var name string
	if int(m.OffsetToFileName) < len(m.FullPathName) {
		name = cstring(m.FullPathName[m.OffsetToFileName:])
	}
	return SystemModule{
		ImageBase:      va.Address(m.ImageBase),
		ImageSize:      m.ImageSize,
		Path:           path,
		Name:           name,
		LoadOrderIndex: m.LoadOrderIndex,
		LoadCount:      m.LoadCount,
	}
}

// SystemModuleByName looks up the kernel module with the given file name.
// ErrNotFound designates the regular no-such-module outcome.
func SystemModuleByName(name string) (SystemModule, error) {
	var mod SystemModule
	found, err := EnumSystemModules(func(m SystemModule) Flow {
		if strings.EqualFold(m.Name, name) {
			mod = m
			return Break
		}
		return Continue
	})
	if err != nil {
		return SystemModule{}, err
	}
	if !found {
		return SystemModule{}, errs.ErrNotFound
	}
	return mod, nil
}

// EnumProcesses takes a snapshot of running processes and invokes the callback
// for each process record. Records are chained inside the snapshot buffer via
// the next entry offset, with a zero offset terminating the chain. The record
// passed to the callback is a deep copy and may outlive the enumeration.
func EnumProcesses(cb func(*ProcessInfo) Flow) (bool, error) {
	if cb == nil {
		return false, errs.ErrInvalidArg
	}
	buf, err := query.System(sys.SystemExtendedProcessInformationClass)
	if err != nil {
		return false, err
	}
	return walkProcesses(buf, cb), nil
}

func walkProcesses(buf []byte, cb func(*ProcessInfo) Flow) bool {
	var offset uint32
	for {
		if int(offset)+int(unsafe.Sizeof(sys.SystemProcessInformation{})) > len(buf) {
			return false
		}
		p := (*sys.SystemProcessInformation)(unsafe.Pointer(&buf[offset]))
		if cb(decodeProcess(p)) == Break {
			return true
		}
		if p.NextEntryOffset == 0 {
			return false
		}
		offset += p.NextEntryOffset
	}
}

func decodeProcess(p *sys.SystemProcessInformation) *ProcessInfo {
	proc := &ProcessInfo{
		PID:             uint32(p.UniqueProcessID),
		PPID:            uint32(p.InheritedFromUniqueProcessID),
		Name:            utf16String(p.ImageName),
		SessionID:       p.SessionID,
		HandleCount:     p.HandleCount,
		NumberOfThreads: p.NumberOfThreads,
		BasePriority:    p.BasePriority,
		CreateTime:      p.CreateTime,
		KernelTime:      p.KernelTime,
		UserTime:        p.UserTime,
		WorkingSetSize:  uint64(p.WorkingSetSize),
		VirtualSize:     uint64(p.VirtualSize),
		Threads:         make([]ThreadInfo, 0, p.NumberOfThreads),
	}
	// the thread array sits right behind the fixed part of the process record
	threads := unsafe.Slice(
		(*sys.SystemExtendedThreadInformation)(unsafe.Pointer(uintptr(unsafe.Pointer(p))+unsafe.Sizeof(*p))),
		p.NumberOfThreads,
	)
	for i := range threads {
		t := &threads[i]
		proc.Threads = append(proc.Threads, ThreadInfo{
			TID:               uint32(t.ThreadInfo.ClientID.UniqueThread),
			PID:               uint32(t.ThreadInfo.ClientID.UniqueProcess),
			StartAddress:      va.Address(t.ThreadInfo.StartAddress),
			Win32StartAddress: va.Address(t.Win32StartAddress),
			TebBase:           va.Address(t.TebBase),
			StackBase:         va.Address(t.StackBase),
			State:             t.ThreadInfo.ThreadState,
			WaitReason:        t.ThreadInfo.WaitReason,
			Priority:          t.ThreadInfo.Priority,
			BasePriority:      t.ThreadInfo.BasePriority,
			ContextSwitches:   t.ThreadInfo.ContextSwitches,
		})
	}
	return proc
}

// EnumThreads invokes the callback for each thread of the process identified
// by pid. The thread records are carved out of the process snapshot in place,
// no extra system call is issued. ErrNotFound is returned when no process
// with such pid exists.
func EnumThreads(pid uint32, cb func(ThreadInfo) Flow) (bool, error) {
	if cb == nil {
		return false, errs.ErrInvalidArg
	}
	var (
		pidFound bool
		matched  bool
	)
	_, err := EnumProcesses(func(p *ProcessInfo) Flow {
		if p.PID != pid {
			return Continue
		}
		pidFound = true
		for _, t := range p.Threads {
			if cb(t) == Break {
				matched = true
				break
			}
		}
		return Break
	})
	if err != nil {
		return false, err
	}
	if !pidFound {
		return false, errs.ErrNotFound
	}
	return matched, nil
}

// OpenDirectory opens a named object manager directory, such as `\BaseNamedObjects`,
// with the query access right.
func OpenDirectory(root string) (windows.Handle, error) {
	if root == "" {
		return 0, errs.ErrInvalidArg
	}
	name, err := windows.NewNTUnicodeString(root)
	if err != nil {
		return 0, err
	}
	objAttrs := &windows.OBJECT_ATTRIBUTES{
		ObjectName: name,
		Attributes: windows.OBJ_CASE_INSENSITIVE,
	}
	objAttrs.Length = uint32(unsafe.Sizeof(*objAttrs))
	var dir windows.Handle
	if err := sys.NtOpenDirectoryObject(&dir, sys.DirectoryQueryAccess, objAttrs); err != nil {
		return 0, err
	}
	return dir, nil
}

// EnumObjects walks the entries of the opened object manager directory. One
// entry is fetched per query step with an opaque continuation cursor. When
// the kernel signals the buffer is too small, the buffer is doubled and the
// same step is retried with the cursor carried forward, not reset.
func EnumObjects(dir windows.Handle, cb func(DirectoryObject) Flow) (bool, error) {
	if dir == 0 {
		return false, errs.ErrInvalidArg
	}
	if cb == nil {
		return false, errs.ErrInvalidArg
	}
	var (
		ctx    uint32
		retLen uint32
	)
	size := 0x100
	buf := make([]byte, size)
	for {
		err := sys.NtQueryDirectoryObject(dir, unsafe.Pointer(&buf[0]), uint32(size), true, false, &ctx, &retLen)
		if err == windows.STATUS_BUFFER_TOO_SMALL || err == windows.STATUS_INFO_LENGTH_MISMATCH {
			size *= 2
			buf = make([]byte, size)
			continue
		}
		if err == windows.STATUS_NO_MORE_ENTRIES {
			return false, nil
		}
		// single-entry queries report remaining entries with an
		// informational status. The fetched entry is still valid
		if err != nil && err != windows.STATUS_MORE_ENTRIES {
			return false, err
		}
		entry := (*sys.ObjectDirectoryInformation)(unsafe.Pointer(&buf[0]))
		obj := DirectoryObject{
			Name:     utf16String(entry.Name),
			TypeName: utf16String(entry.TypeName),
		}
		if cb(obj) == Break {
			return true, nil
		}
	}
}

// ObjectExists determines if the named object lives under the given object
// manager directory.
func ObjectExists(root, name string) (bool, error) {
	dir, err := OpenDirectory(root)
	if err != nil {
		return false, err
	}
	defer windows.CloseHandle(dir)
	return EnumObjects(dir, func(obj DirectoryObject) Flow {
		if strings.EqualFold(obj.Name, name) {
			return Break
		}
		return Continue
	})
}

// utf16String decodes the counted native string whose buffer points inside
// a locally owned snapshot. The result is a deep copy detached from the
// snapshot buffer.
func utf16String(u windows.NTUnicodeString) string {
	if u.Buffer == nil || u.Length == 0 {
		return ""
	}
	return windows.UTF16ToString(unsafe.Slice(u.Buffer, u.Length/2))
}

func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
