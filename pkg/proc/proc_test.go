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
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/windows"
)

func TestOpenCurrentProcess(t *testing.T) {
	p, err := Open(uint32(os.Getpid()), windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ)
	require.NoError(t, err)
	defer func() {
		_ = p.Close()
	}()

	assert.True(t, p.IsAlive())

	code, err := p.ExitCode()
	require.NoError(t, err)
	assert.Equal(t, uint32(stillActive), code)

	wow64, err := p.IsWow64()
	require.NoError(t, err)
	assert.False(t, wow64)
}

func TestReadPEB(t *testing.T) {
	p, err := Open(uint32(os.Getpid()), windows.PROCESS_QUERY_INFORMATION|windows.PROCESS_VM_READ)
	require.NoError(t, err)
	defer func() {
		_ = p.Close()
	}()

	peb, err := p.ReadPEB()
	require.NoError(t, err)

	exe, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(exe), strings.ToLower(peb.GetImage()))
	assert.NotEmpty(t, peb.GetCommandLine())
	assert.NotEmpty(t, peb.GetCurrentWorkingDirectory())

	envs := peb.GetEnvs()
	require.NotEmpty(t, envs)
	var sysroot bool
	for k := range envs {
		if strings.EqualFold(k, "SystemRoot") {
			sysroot = true
		}
	}
	assert.True(t, sysroot)
}

func TestCloseIsIdempotent(t *testing.T) {
	p, err := Open(uint32(os.Getpid()), windows.PROCESS_QUERY_LIMITED_INFORMATION)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
}
