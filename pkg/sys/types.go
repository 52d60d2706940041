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

package sys

import (
	"golang.org/x/sys/windows"
)

// System information classes consumed by NtQuerySystemInformation.
const (
	// SystemModuleInformationClass returns the list of loaded kernel modules.
	SystemModuleInformationClass int32 = 11
	// SystemExtendedProcessInformationClass returns the snapshot of running
	// processes along with the extended per-thread information.
	SystemExtendedProcessInformationClass int32 = 57
)

// Process information classes consumed by NtQueryInformationProcess. The basic
// and WOW64 classes are defined in the windows package, the remaining ones are
// declared here.
const (
	// ProcessTimesClass returns process kernel/user times.
	ProcessTimesClass int32 = 4
	// ProcessHandleCountClass returns the number of opened handles.
	ProcessHandleCountClass int32 = 20
	// ProcessSessionInformationClass returns the process session identifier.
	ProcessSessionInformationClass int32 = 24
	// ProcessImageFileNameClass returns the native path of the process image.
	ProcessImageFileNameClass int32 = 27
	// ProcessExecuteFlagsClass returns process execution flags.
	ProcessExecuteFlagsClass int32 = 34
	// ProcessImageFileNameWin32Class returns the Win32 path of the process image.
	ProcessImageFileNameWin32Class int32 = 43
)

// Object information classes consumed by NtQueryObject.
const (
	// ObjectBasicInformationClass returns object handle/reference counters.
	ObjectBasicInformationClass int32 = 0
	// ObjectNameInformationClass returns the object name.
	ObjectNameInformationClass int32 = 1
	// ObjectTypeInformationClass returns the object type information.
	ObjectTypeInformationClass int32 = 2
)

// DirectoryQueryAccess is the access right required to enumerate an object directory.
const DirectoryQueryAccess uint32 = 0x0001

// SymbolicLinkQueryAccess is the access right required to resolve a symbolic link object.
const SymbolicLinkQueryAccess uint32 = 0x0001

// ListEntry is the doubly linked list node as laid out in the native address space.
// Flink/Blink are raw pointers into the target process and must never be dereferenced
// locally.
type ListEntry struct {
	Flink uintptr
	Blink uintptr
}

// ListEntry32 is the doubly linked list node in the 32-bit loader view.
type ListEntry32 struct {
	Flink uint32
	Blink uint32
}

// UnicodeString32 mirrors UNICODE_STRING in the 32-bit address space layout.
type UnicodeString32 struct {
	Length        uint16
	MaximumLength uint16
	Buffer        uint32
}

// ClientID identifies a thread by its owning process id and thread id.
type ClientID struct {
	UniqueProcess uintptr
	UniqueThread  uintptr
}

// SystemThreadInformation describes a thread as reported in the process snapshot.
type SystemThreadInformation struct {
	KernelTime      int64
	UserTime        int64
	CreateTime      int64
	WaitTime        uint32
	StartAddress    uintptr
	ClientID        ClientID
	Priority        int32
	BasePriority    int32
	ContextSwitches uint32
	ThreadState     uint32
	WaitReason      uint32
}

// SystemExtendedThreadInformation extends the thread record with stack
// and TEB base addresses. This is the per-thread layout produced by the
// extended process information class.
type SystemExtendedThreadInformation struct {
	ThreadInfo        SystemThreadInformation
	StackBase         uintptr
	StackLimit        uintptr
	Win32StartAddress uintptr
	TebBase           uintptr
	Reserved          [3]uintptr
}

// SystemProcessInformation is a variable-length process record. Records are
// chained inside a single snapshot buffer via NextEntryOffset, with a zero
// offset terminating the chain. The thread array sits right behind the fixed
// part of the record.
type SystemProcessInformation struct {
	NextEntryOffset              uint32
	NumberOfThreads              uint32
	WorkingSetPrivateSize        int64
	HardFaultCount               uint32
	NumberOfThreadsHighWatermark uint32
	CycleTime                    uint64
	CreateTime                   int64
	UserTime                     int64
	KernelTime                   int64
	ImageName                    windows.NTUnicodeString
	BasePriority                 int32
	UniqueProcessID              uintptr
	InheritedFromUniqueProcessID uintptr
	HandleCount                  uint32
	SessionID                    uint32
	UniqueProcessKey             uintptr
	PeakVirtualSize              uintptr
	VirtualSize                  uintptr
	PageFaultCount               uint32
	PeakWorkingSetSize           uintptr
	WorkingSetSize               uintptr
	QuotaPeakPagedPoolUsage      uintptr
	QuotaPagedPoolUsage          uintptr
	QuotaPeakNonPagedPoolUsage   uintptr
	QuotaNonPagedPoolUsage       uintptr
	PagefileUsage                uintptr
	PeakPagefileUsage            uintptr
	PrivatePageCount             uintptr
	ReadOperationCount           int64
	WriteOperationCount          int64
	OtherOperationCount          int64
	ReadTransferCount            int64
	WriteTransferCount           int64
	OtherTransferCount           int64
}

// RtlProcessModuleInformation describes a single kernel module.
type RtlProcessModuleInformation struct {
	Section          windows.Handle
	MappedBase       uintptr
	ImageBase        uintptr
	ImageSize        uint32
	Flags            uint32
	LoadOrderIndex   uint16
	InitOrderIndex   uint16
	LoadCount        uint16
	OffsetToFileName uint16
	FullPathName     [256]byte
}

// RtlProcessModules is the header of the kernel module list buffer. The module
// array immediately follows the counter.
type RtlProcessModules struct {
	NumberOfModules uint32
	Modules         [1]RtlProcessModuleInformation
}

// ObjectDirectoryInformation is a single entry of the object manager directory.
type ObjectDirectoryInformation struct {
	Name     windows.NTUnicodeString
	TypeName windows.NTUnicodeString
}

// PebLdrData is the loader bookkeeping structure referenced from the PEB.
// The Initialized flag is unset while the process is still bootstrapping,
// in which case the module list must not be traversed.
type PebLdrData struct {
	Length                          uint32
	Initialized                     uint8
	SsHandle                        uintptr
	InLoadOrderModuleList           ListEntry
	InMemoryOrderModuleList         ListEntry
	InInitializationOrderModuleList ListEntry
}

// LdrDataTableEntry is a node of the in-load-order module list. The structure
// lives in the target address space and its list links point to sibling nodes
// there.
type LdrDataTableEntry struct {
	InLoadOrderLinks           ListEntry
	InMemoryOrderLinks         ListEntry
	InInitializationOrderLinks ListEntry
	DllBase                    uintptr
	EntryPoint                 uintptr
	SizeOfImage                uint32
	FullDllName                windows.NTUnicodeString
	BaseDllName                windows.NTUnicodeString
	Flags                      uint32
	LoadCount                  uint16
	TlsIndex                   uint16
}

// Peb32 is the head of the 32-bit process environment block as seen by a
// WOW64 process. Only the fields up to the loader data pointer are declared
// since the walker doesn't consume anything beyond it.
type Peb32 struct {
	InheritedAddressSpace    uint8
	ReadImageFileExecOptions uint8
	BeingDebugged            uint8
	BitField                 uint8
	Mutant                   uint32
	ImageBaseAddress         uint32
	Ldr                      uint32
}

// PebLdrData32 is the 32-bit layout counterpart of PebLdrData.
type PebLdrData32 struct {
	Length                          uint32
	Initialized                     uint8
	SsHandle                        uint32
	InLoadOrderModuleList           ListEntry32
	InMemoryOrderModuleList         ListEntry32
	InInitializationOrderModuleList ListEntry32
}

// LdrDataTableEntry32 is the 32-bit layout counterpart of LdrDataTableEntry.
type LdrDataTableEntry32 struct {
	InLoadOrderLinks           ListEntry32
	InMemoryOrderLinks         ListEntry32
	InInitializationOrderLinks ListEntry32
	DllBase                    uint32
	EntryPoint                 uint32
	SizeOfImage                uint32
	FullDllName                UnicodeString32
	BaseDllName                UnicodeString32
	Flags                      uint32
	LoadCount                  uint16
	TlsIndex                   uint16
}
