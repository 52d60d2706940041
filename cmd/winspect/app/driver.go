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
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rabbitstack/winspect/pkg/driver"
	"github.com/spf13/cobra"
)

var driverCmd = &cobra.Command{
	Use:   "driver",
	Short: "Manage kernel drivers and enumerate device driver images",
}

var driverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List device driver images loaded in the system",
	RunE:  listDrivers,
}

var driverLoadCmd = &cobra.Command{
	Use:   "load [name] [path]",
	Short: "Register and start a kernel driver",
	Args:  cobra.ExactArgs(2),
	RunE:  loadDriver,
}

var driverUnloadCmd = &cobra.Command{
	Use:   "unload [name]",
	Short: "Stop a kernel driver and remove its registration",
	Args:  cobra.ExactArgs(1),
	RunE:  unloadDriver,
}

func init() {
	driverCmd.AddCommand(driverListCmd)
	driverCmd.AddCommand(driverLoadCmd)
	driverCmd.AddCommand(driverUnloadCmd)
}

// listDrivers renders a table with loaded device driver images.
func listDrivers(cmd *cobra.Command, args []string) error {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Image Base", "File"})
	t.SetStyle(table.StyleLight)

	for _, dev := range driver.EnumDevices() {
		if dev.Filename == "" {
			continue
		}
		t.AppendRow(table.Row{fmt.Sprintf("%#x", dev.Addr), dev.Filename})
	}
	t.Render()

	return nil
}

func loadDriver(cmd *cobra.Command, args []string) error {
	return driver.New(args[0], args[1]).Load()
}

func unloadDriver(cmd *cobra.Command, args []string) error {
	return driver.New(args[0], "").Unload()
}
