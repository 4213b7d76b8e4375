// Copyright 2025 The Hyperdrive Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driveup/hyperdrive/internal/drive"
	"github.com/driveup/hyperdrive/internal/statcodec"
)

var statCmd = &cobra.Command{
	Use:   "stat <key> <path>",
	Short: "Print a path's stat record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, err := parseKey(args[0])
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		d, err := openDrive(cmd.Context(), store, pub)
		if err != nil {
			return err
		}
		defer d.Close()

		st, _, err := d.Lstat(cmd.Context(), args[1], drive.LstatOptions{})
		if err != nil {
			return err
		}
		printStat(args[1], st)
		return nil
	},
}

func printStat(path string, st *statcodec.Stat) {
	fmt.Printf("%s\n", path)
	fmt.Printf("  kind:   %s\n", kindString(st.Kind))
	fmt.Printf("  mode:   %o\n", st.Mode)
	fmt.Printf("  uid:    %d\n", st.UID)
	fmt.Printf("  gid:    %d\n", st.GID)
	switch st.Kind {
	case statcodec.KindFile:
		fmt.Printf("  size:   %d\n", st.Size)
		fmt.Printf("  blocks: %d\n", st.Blocks)
	case statcodec.KindSymlink:
		fmt.Printf("  link:   %s\n", st.LinkName)
	}
	if st.IsMount() {
		fmt.Printf("  mount:  hypercore=%v version=%d\n", st.Mount.Hypercore, st.Mount.Version)
	}
	fmt.Printf("  mtime:  %s\n", st.Mtime)
	fmt.Printf("  ctime:  %s\n", st.Ctime)
}

func kindString(k statcodec.Kind) string {
	switch k {
	case statcodec.KindDirectory:
		return "directory"
	case statcodec.KindSymlink:
		return "symlink"
	default:
		return "file"
	}
}
