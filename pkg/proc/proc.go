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
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitstack/winspect/pkg/errs"
	"github.com/rabbitstack/winspect/pkg/mem"
	"github.com/rabbitstack/winspect/pkg/query"
	"github.com/rabbitstack/winspect/pkg/sys"
	"github.com/rabbitstack/winspect/pkg/util/va"
	"golang.org/x/sys/windows"
)

// stillActive is the exit code reported for processes that haven't terminated.
const stillActive = 259

// Process holds an open handle to a running process along with its pid.
// The zero value is not usable, acquire instances through Open.
type Process struct {
	PID    uint32
	Handle windows.Handle
}

// Open acquires a process handle with the given access mask.
func Open(pid uint32, access uint32) (*Process, error) {
	h, err := windows.OpenProcess(access, false, pid)
	if err != nil {
		if err == windows.ERROR_ACCESS_DENIED {
			return nil, errors.Wrapf(errs.ErrAccessDenied, "pid %d", pid)
		}
		return nil, errors.Wrapf(err, "unable to open pid %d", pid)
	}
	return &Process{PID: pid, Handle: h}, nil
}

// OpenAllAccess acquires a process handle with full access rights.
func OpenAllAccess(pid uint32) (*Process, error) {
	return Open(pid, windows.PROCESS_ALL_ACCESS)
}

// Close releases the process handle.
func (p *Process) Close() error {
	if p.Handle == 0 {
		return nil
	}
	err := windows.CloseHandle(p.Handle)
	p.Handle = 0
	return err
}

// AddressSpace returns the accessor for reading and writing
// this process's virtual memory.
func (p *Process) AddressSpace() mem.AddressSpace {
	return mem.Remote(p.Handle)
}

// IsAlive reports whether the process is still running.
func (p *Process) IsAlive() bool {
	var code uint32
	if err := windows.GetExitCodeProcess(p.Handle, &code); err != nil {
		return false
	}
	return code == stillActive
}

// ExitCode returns the process exit code. Processes that are still
// running report the still-active sentinel.
func (p *Process) ExitCode() (uint32, error) {
	var code uint32
	if err := windows.GetExitCodeProcess(p.Handle, &code); err != nil {
		return 0, errors.Wrapf(err, "unable to get the exit code for pid %d", p.PID)
	}
	return code, nil
}

// Terminate forcibly ends the process with the given exit code.
func (p *Process) Terminate(code uint32) error {
	if err := windows.TerminateProcess(p.Handle, code); err != nil {
		return errors.Wrapf(err, "unable to terminate pid %d", p.PID)
	}
	return nil
}

// CreateThread spawns a thread in the process address space starting at
// the given address. If wait is non-zero, the call blocks until the thread
// finishes or the timeout elapses, and yields the thread exit code.
func (p *Process) CreateThread(start va.Address, param uintptr, wait time.Duration) (uint32, error) {
	if start.IsZero() {
		return 0, errors.Wrap(errs.ErrInvalidArg, "thread start address is zero")
	}
	thread, err := sys.CreateRemoteThread(p.Handle, nil, 0, start.Uintptr(), param, 0, nil)
	if err != nil {
		return 0, errors.Wrapf(err, "unable to create a thread in pid %d", p.PID)
	}
	defer func() {
		_ = windows.CloseHandle(thread)
	}()
	if wait == 0 {
		return 0, nil
	}
	evt, err := windows.WaitForSingleObject(thread, uint32(wait.Milliseconds()))
	if err != nil {
		return 0, errors.Wrap(err, "unable to wait on the remote thread")
	}
	if evt == uint32(windows.WAIT_TIMEOUT) {
		return 0, errors.Errorf("remote thread in pid %d didn't finish in %v", p.PID, wait)
	}
	var code uint32
	if err := windows.GetExitCodeThread(thread, &code); err != nil {
		return 0, errors.Wrap(err, "unable to get the remote thread exit code")
	}
	return code, nil
}

// IsWow64 determines whether the process runs under the WOW64 emulation
// layer, that is, a 32-bit image hosted on a 64-bit system.
func (p *Process) IsWow64() (bool, error) {
	info, err := query.ProcessInfo[uintptr](p.Handle, windows.ProcessWow64Information)
	if err != nil {
		return false, err
	}
	return *info != 0, nil
}

// Times returns process creation, exit, kernel and user times.
func (p *Process) Times() (windows.Rusage, error) {
	var usage windows.Rusage
	err := windows.GetProcessTimes(p.Handle, &usage.CreationTime, &usage.ExitTime, &usage.KernelTime, &usage.UserTime)
	if err != nil {
		return usage, errors.Wrapf(err, "unable to get times for pid %d", p.PID)
	}
	return usage, nil
}
