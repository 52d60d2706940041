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

package app

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rabbitstack/winspect/pkg/native"
	"github.com/spf13/cobra"
	"golang.org/x/sys/windows"
)

var objectsCmd = &cobra.Command{
	Use:   "objects",
	Short: "List entries of an object manager directory",
	RunE:  listObjects,
}

var objectsDir string

func init() {
	objectsCmd.Flags().StringVar(&objectsDir, "dir", `\BaseNamedObjects`, "Specifies the object manager directory to enumerate")
}

// listObjects renders a table with all objects living in the directory.
func listObjects(cmd *cobra.Command, args []string) error {
	dir, err := native.OpenDirectory(objectsDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = windows.CloseHandle(dir)
	}()

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Name", "Type"})
	t.SetStyle(table.StyleLight)

	_, err = native.EnumObjects(dir, func(obj native.DirectoryObject) native.Flow {
		t.AppendRow(table.Row{obj.Name, obj.TypeName})
		return native.Continue
	})
	if err != nil {
		return err
	}
	t.Render()

	return nil
}
