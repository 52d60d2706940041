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
	"errors"
	"runtime"

	"github.com/rabbitstack/winspect/pkg/util/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// logConfig gathers the logging options bound to persistent flags.
var logConfig = log.Config{}

// RootCmd is the entrance to winspect CLI
var RootCmd = &cobra.Command{
	Use:   "winspect",
	Short: "Process and kernel state introspection tool",
	Long: `
	Winspect peeks into the guts of running Windows systems. It enumerates
	processes, threads, loaded kernel modules and object manager namespaces,
	walks the loader data structures of foreign processes regardless of their
	bitness, and dissects portable executable images.
	`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if runtime.GOOS != "windows" {
			return errors.New("winspect can only be run on Windows operating systems")
		}
		if runtime.GOARCH == "386" {
			return errors.New("winspect can't be run on 32-bits Windows operating systems")
		}
		v := viper.GetViper()
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		logConfig.InitFromViper(v)
		return log.InitFromConfig(logConfig)
	},
}

func init() {
	logConfig.AddFlags(RootCmd.PersistentFlags())

	RootCmd.AddCommand(psCmd)
	RootCmd.AddCommand(modulesCmd)
	RootCmd.AddCommand(objectsCmd)
	RootCmd.AddCommand(vmCmd)
	RootCmd.AddCommand(imageCmd)
	RootCmd.AddCommand(driverCmd)
	RootCmd.AddCommand(versionCmd)
}
