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

//go:generate go run golang.org/x/sys/windows/mkwinsyscall -output zsyscall_windows.go syscall.go

//sys NtReadVirtualMemory(proc windows.Handle, addr uintptr, buf unsafe.Pointer, size uintptr, read *uintptr) (ntstatus error) = ntdll.NtReadVirtualMemory
//sys NtWriteVirtualMemory(proc windows.Handle, addr uintptr, buf unsafe.Pointer, size uintptr, written *uintptr) (ntstatus error) = ntdll.NtWriteVirtualMemory
//sys NtAllocateVirtualMemory(proc windows.Handle, addr *uintptr, zeroBits uintptr, size *uintptr, allocType uint32, protect uint32) (ntstatus error) = ntdll.NtAllocateVirtualMemory
//sys NtProtectVirtualMemory(proc windows.Handle, addr *uintptr, size *uintptr, protect uint32, oldProtect *uint32) (ntstatus error) = ntdll.NtProtectVirtualMemory
//sys NtFreeVirtualMemory(proc windows.Handle, addr *uintptr, size *uintptr, freeType uint32) (ntstatus error) = ntdll.NtFreeVirtualMemory
//sys NtQueryObject(obj windows.Handle, objectInfoClass int32, objInfo unsafe.Pointer, objInfoLen uint32, retLen *uint32) (ntstatus error) = ntdll.NtQueryObject
//sys NtOpenDirectoryObject(dir *windows.Handle, access uint32, objAttrs *windows.OBJECT_ATTRIBUTES) (ntstatus error) = ntdll.NtOpenDirectoryObject
//sys NtQueryDirectoryObject(dir windows.Handle, buf unsafe.Pointer, size uint32, singleEntry bool, restart bool, ctx *uint32, retLen *uint32) (ntstatus error) = ntdll.NtQueryDirectoryObject
//sys NtOpenSymbolicLinkObject(link *windows.Handle, access uint32, objAttrs *windows.OBJECT_ATTRIBUTES) (ntstatus error) = ntdll.NtOpenSymbolicLinkObject
//sys NtQuerySymbolicLinkObject(link windows.Handle, target *windows.NTUnicodeString, retLen *uint32) (ntstatus error) = ntdll.NtQuerySymbolicLinkObject
//sys RtlNtStatusToDosError(status uint32) (code uint32) = ntdll.RtlNtStatusToDosError
//sys CreateRemoteThread(proc windows.Handle, attrs *windows.SecurityAttributes, stackSize uintptr, startAddr uintptr, param uintptr, creationFlags uint32, threadID *uint32) (handle windows.Handle, err error) = kernel32.CreateRemoteThread
//sys EnumDeviceDrivers(imageBase uintptr, size uint32, needed *uint32) (err error) = psapi.EnumDeviceDrivers
//sys GetDeviceDriverFileName(imageBase uintptr, filename *uint16, size uint32) (n uint32) = psapi.GetDeviceDriverFileNameW
//sys GetMappedFileName(proc windows.Handle, addr uintptr, filename *uint16, size uint32) (n uint32) = psapi.GetMappedFileNameW
