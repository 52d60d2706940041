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

package driver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumDevices(t *testing.T) {
	devs := EnumDevices()
	require.NotEmpty(t, devs)

	var kernel bool
	for _, dev := range devs {
		if strings.Contains(strings.ToLower(dev.Filename), "ntoskrnl.exe") {
			kernel = true
		}
		// native prefixes are folded to their DOS form
		assert.False(t, strings.HasPrefix(dev.Filename, `\SystemRoot`))
		assert.False(t, strings.HasPrefix(dev.Filename, `\??\`))
	}
	assert.True(t, kernel)
}

func TestDriverRequiresNameAndPath(t *testing.T) {
	require.Error(t, New("", "").Load())
	require.Error(t, New("winspectdrv", "").Load())
}
