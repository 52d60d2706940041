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

package image

import (
	"expvar"

	peparser "github.com/saferwall/pe"
)

var (
	// directoryParseErrors counts failures in data directory parsing
	directoryParseErrors = expvar.NewInt("image.directory.parse.errors")
	// imphashErrors counts failures when calculating the import hash
	imphashErrors = expvar.NewInt("image.imphash.errors")
)

// Metadata summarizes the static attributes of an executable image that
// are expensive to derive from the raw headers alone.
type Metadata struct {
	Path             string
	Is64             bool
	IsDLL            bool
	IsDriver         bool
	IsExecutable     bool
	Imphash          string
	Imports          []string
	Sections         []string
	VersionResources map[string]string
	EntryPoint       uint32
	ImageBase        uint64
}

// Inspect runs the deep parser over the image at path and distills its
// most relevant static attributes. Unlike Map, it doesn't keep any view
// of the file alive after it returns.
func Inspect(path string) (*Metadata, error) {
	pe, err := peparser.New(path, &peparser.Options{
		DisableCertValidation:     true,
		OmitIATDirectory:          true,
		OmitSecurityDirectory:     true,
		OmitExceptionDirectory:    true,
		OmitTLSDirectory:          true,
		OmitCLRHeaderDirectory:    true,
		OmitCLRMetadata:           true,
		OmitDelayImportDirectory:  true,
		OmitBoundImportDirectory:  true,
		OmitArchitectureDirectory: true,
		OmitDebugDirectory:        true,
		OmitRelocDirectory:        true,
	})
	if err != nil {
		return nil, err
	}
	defer pe.Close()

	// parse the DOS header
	if err := pe.ParseDOSHeader(); err != nil {
		return nil, err
	}
	// parse the NT header
	if err := pe.ParseNTHeader(); err != nil {
		return nil, err
	}
	// parse section header
	if err := pe.ParseSectionHeader(); err != nil {
		return nil, err
	}
	// parse data directories
	if err := pe.ParseDataDirectories(); err != nil {
		directoryParseErrors.Add(1)
	}

	meta := &Metadata{
		Path:             path,
		Is64:             pe.Is64,
		IsDLL:            pe.IsDLL(),
		IsDriver:         pe.IsDriver(),
		IsExecutable:     pe.IsEXE(),
		Imports:          make([]string, 0, len(pe.Imports)),
		Sections:         make([]string, 0, len(pe.Sections)),
		VersionResources: make(map[string]string),
	}

	switch pe.Is64 {
	case true:
		oh64 := pe.NtHeader.OptionalHeader.(peparser.ImageOptionalHeader64)
		meta.EntryPoint = oh64.AddressOfEntryPoint
		meta.ImageBase = oh64.ImageBase
	case false:
		oh32 := pe.NtHeader.OptionalHeader.(peparser.ImageOptionalHeader32)
		meta.EntryPoint = oh32.AddressOfEntryPoint
		meta.ImageBase = uint64(oh32.ImageBase)
	}

	for _, sec := range pe.Sections {
		meta.Sections = append(meta.Sections, sec.String())
	}
	for _, imp := range pe.Imports {
		meta.Imports = append(meta.Imports, imp.Name)
	}

	meta.Imphash, err = pe.ImpHash()
	if err != nil {
		imphashErrors.Add(1)
	}
	meta.VersionResources, err = pe.ParseVersionResources()
	if err != nil {
		meta.VersionResources = map[string]string{}
	}
	return meta, nil
}
