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

package va

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddress(t *testing.T) {
	a := Address(0x7ffe0000)
	assert.Equal(t, "7ffe0000", a.String())
	assert.Equal(t, uint64(0x7ffe0000), a.Uint64())
	assert.False(t, a.IsZero())
	assert.True(t, Address(0).IsZero())

	assert.Equal(t, Address(0x7ffe1000), a.Inc(0x1000))
	assert.Equal(t, Address(0x7ffd0000), a.Dec(0x10000))

	assert.True(t, Address(0xfffff80312345678).InSystemRange())
	assert.False(t, a.InSystemRange())
}
