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

package native

import (
	"testing"
	"unsafe"

	"github.com/rabbitstack/winspect/pkg/errs"
	"github.com/rabbitstack/winspect/pkg/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

// moduleList mirrors the snapshot buffer layout with the module array
// immediately following the counter.
type moduleList struct {
	NumberOfModules uint32
	Modules         [3]sys.RtlProcessModuleInformation
}

func newModuleList() *moduleList {
	ml := &moduleList{NumberOfModules: 3}
	paths := []string{
		`\SystemRoot\system32\ntoskrnl.exe`,
		`\SystemRoot\system32\hal.dll`,
		`\SystemRoot\system32\drivers\afd.sys`,
	}
	for i := range ml.Modules {
		m := &ml.Modules[i]
		m.ImageBase = uintptr(0xfffff80000000000 + uint64(i)*0x100000)
		m.ImageSize = uint32(0x1000 * (i + 1))
		m.LoadOrderIndex = uint16(i)
		m.LoadCount = 1
		copy(m.FullPathName[:], paths[i])
		for j := len(paths[i]) - 1; j >= 0; j-- {
			if paths[i][j] == '\\' {
				m.OffsetToFileName = uint16(j + 1)
				break
			}
		}
	}
	return ml
}

func (ml *moduleList) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(ml)), unsafe.Sizeof(*ml))
}

func TestWalkSystemModules(t *testing.T) {
	ml := newModuleList()
	var mods []SystemModule
	stopped := walkSystemModules(ml.bytes(), func(m SystemModule) Flow {
		mods = append(mods, m)
		return Continue
	})
	require.False(t, stopped)
	require.Len(t, mods, 3)
	assert.Equal(t, `\SystemRoot\system32\ntoskrnl.exe`, mods[0].Path)
	assert.Equal(t, "ntoskrnl.exe", mods[0].Name)
	assert.Equal(t, "hal.dll", mods[1].Name)
	assert.Equal(t, "afd.sys", mods[2].Name)
	assert.Equal(t, uint32(0x2000), mods[1].ImageSize)
	assert.Equal(t, uint16(2), mods[2].LoadOrderIndex)
}

func TestWalkSystemModulesBreak(t *testing.T) {
	ml := newModuleList()
	var n int
	stopped := walkSystemModules(ml.bytes(), func(m SystemModule) Flow {
		n++
		if m.Name == "hal.dll" {
			return Break
		}
		return Continue
	})
	require.True(t, stopped)
	// the callback must not fire after requesting the break
	assert.Equal(t, 2, n)
}

// procRecord is a process snapshot entry with the thread array sitting
// right behind the fixed part of the record.
type procRecord struct {
	Process sys.SystemProcessInformation
	Threads [2]sys.SystemExtendedThreadInformation
}

type procSnapshot struct {
	First  procRecord
	Second procRecord
}

func newProcSnapshot(names [2][]uint16) *procSnapshot {
	snap := &procSnapshot{}
	pids := []uintptr{4, 6504}
	for i, rec := range []*procRecord{&snap.First, &snap.Second} {
		rec.Process.NumberOfThreads = 2
		rec.Process.UniqueProcessID = pids[i]
		rec.Process.InheritedFromUniqueProcessID = 1
		rec.Process.SessionID = uint32(i)
		rec.Process.HandleCount = 42
		rec.Process.WorkingSetSize = 0x5000
		rec.Process.ImageName = windows.NTUnicodeString{
			Length:        uint16((len(names[i]) - 1) * 2),
			MaximumLength: uint16(len(names[i]) * 2),
			Buffer:        &names[i][0],
		}
		for j := range rec.Threads {
			rec.Threads[j].ThreadInfo.ClientID = sys.ClientID{
				UniqueProcess: pids[i],
				UniqueThread:  uintptr(100*i + j + 1),
			}
			rec.Threads[j].ThreadInfo.StartAddress = 0x7ff600001000
			rec.Threads[j].TebBase = 0x2a1000
			rec.Threads[j].ThreadInfo.ContextSwitches = uint32(j)
		}
	}
	snap.First.Process.NextEntryOffset = uint32(unsafe.Sizeof(procRecord{}))
	snap.Second.Process.NextEntryOffset = 0
	return snap
}

func (s *procSnapshot) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(s)), unsafe.Sizeof(*s))
}

func TestWalkProcesses(t *testing.T) {
	names := [2][]uint16{
		windows.StringToUTF16("System"),
		windows.StringToUTF16("winspect.exe"),
	}
	snap := newProcSnapshot(names)

	var procs []*ProcessInfo
	stopped := walkProcesses(snap.bytes(), func(p *ProcessInfo) Flow {
		procs = append(procs, p)
		return Continue
	})
	require.False(t, stopped)
	require.Len(t, procs, 2)

	assert.Equal(t, uint32(4), procs[0].PID)
	assert.Equal(t, "System", procs[0].Name)
	assert.Equal(t, uint32(6504), procs[1].PID)
	assert.Equal(t, "winspect.exe", procs[1].Name)
	assert.Equal(t, uint32(1), procs[1].SessionID)
	assert.Equal(t, uint32(42), procs[1].HandleCount)
	assert.Equal(t, uint64(0x5000), procs[1].WorkingSetSize)

	require.Len(t, procs[1].Threads, 2)
	assert.Equal(t, uint32(101), procs[1].Threads[0].TID)
	assert.Equal(t, uint32(102), procs[1].Threads[1].TID)
	assert.Equal(t, uint32(6504), procs[1].Threads[0].PID)
	assert.Equal(t, uint32(1), procs[1].Threads[1].ContextSwitches)
}

func TestWalkProcessesBreak(t *testing.T) {
	names := [2][]uint16{
		windows.StringToUTF16("System"),
		windows.StringToUTF16("winspect.exe"),
	}
	snap := newProcSnapshot(names)

	var n int
	stopped := walkProcesses(snap.bytes(), func(p *ProcessInfo) Flow {
		n++
		return Break
	})
	require.True(t, stopped)
	assert.Equal(t, 1, n)
}

func TestEnumCallbacksRequired(t *testing.T) {
	_, err := EnumSystemModules(nil)
	require.ErrorIs(t, err, errs.ErrInvalidArg)
	_, err = EnumProcesses(nil)
	require.ErrorIs(t, err, errs.ErrInvalidArg)
	_, err = EnumThreads(4, nil)
	require.ErrorIs(t, err, errs.ErrInvalidArg)
}

func TestSystemModuleByName(t *testing.T) {
	mod, err := SystemModuleByName("ntoskrnl.exe")
	require.NoError(t, err)
	assert.Equal(t, "ntoskrnl.exe", mod.Name)
	assert.NotEmpty(t, mod.Path)
}

func TestSystemModuleByNameNotFound(t *testing.T) {
	_, err := SystemModuleByName("definitely-not-a-module.sys")
	require.True(t, errs.IsNotFound(err))
}

func TestEnumThreadsUnknownPID(t *testing.T) {
	_, err := EnumThreads(0xfffffff0, func(thread ThreadInfo) Flow {
		return Continue
	})
	require.True(t, errs.IsNotFound(err))
}

func TestEnumObjectsConsumesAllEntries(t *testing.T) {
	dir, err := OpenDirectory(`\KnownDlls`)
	require.NoError(t, err)
	defer windows.CloseHandle(dir)

	// single-entry stepping reports pending entries with an informational
	// status, so the count must go past the first object
	var n int
	_, err = EnumObjects(dir, func(obj DirectoryObject) Flow {
		n++
		return Continue
	})
	require.NoError(t, err)
	assert.Greater(t, n, 1)
}

func TestObjectExists(t *testing.T) {
	exists, err := ObjectExists(`\KnownDlls`, "kernel32.dll")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = ObjectExists(`\KnownDlls`, "no-such-section")
	require.NoError(t, err)
	assert.False(t, exists)
}
