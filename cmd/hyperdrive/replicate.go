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
	"net"

	"github.com/spf13/cobra"

	"github.com/driveup/hyperdrive/internal/feed"
)

var (
	replicateListen  string
	replicateConnect string
)

// replicateCmd wires the feed store's Replicate (the call Drive.Replicate
// delegates to) to a TCP listener/dialer pair, the
// minimal stand-in SPEC_FULL.md names for the storage backend's peer
// replication transport: one side listens, the other dials, and whichever
// side dials is the replication initiator.
var replicateCmd = &cobra.Command{
	Use:   "replicate <key>",
	Short: "Replicate a drive to a peer over TCP",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, err := parseKey(args[0])
		if err != nil {
			return err
		}
		if (replicateListen == "") == (replicateConnect == "") {
			return fmt.Errorf("replicate: specify exactly one of --listen or --connect")
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var conn net.Conn
		var initiator bool
		if replicateListen != "" {
			ln, err := net.Listen("tcp", replicateListen)
			if err != nil {
				return fmt.Errorf("replicate: listen: %w", err)
			}
			defer ln.Close()
			fmt.Printf("replicate: listening on %s\n", ln.Addr())
			conn, err = ln.Accept()
			if err != nil {
				return fmt.Errorf("replicate: accept: %w", err)
			}
			initiator = false
		} else {
			conn, err = net.Dial("tcp", replicateConnect)
			if err != nil {
				return fmt.Errorf("replicate: dial: %w", err)
			}
			initiator = true
		}
		defer conn.Close()

		sess, err := store.Replicate(cmd.Context(), pub, feed.ReplicateOptions{
			Stream:    conn,
			Initiator: initiator,
		})
		if err != nil {
			return fmt.Errorf("replicate: %w", err)
		}
		defer sess.Close()

		if err := sess.Wait(cmd.Context()); err != nil {
			return fmt.Errorf("replicate: %w", err)
		}
		fmt.Println("replicate: done")
		return nil
	},
}

func init() {
	replicateCmd.Flags().StringVar(&replicateListen, "listen", "", "listen address (this side accepts the replication connection)")
	replicateCmd.Flags().StringVar(&replicateConnect, "connect", "", "peer address (this side dials and initiates replication)")
}
