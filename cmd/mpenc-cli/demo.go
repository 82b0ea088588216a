// Copyright (C) 2025 mpenc-go
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mpenc-go/mpenc/aske"
	mpconfig "github.com/mpenc-go/mpenc/config"
	"github.com/mpenc-go/mpenc/crypto/keys"
	"github.com/mpenc-go/mpenc/greet"
	"github.com/mpenc-go/mpenc/internal/logger"
	"github.com/mpenc-go/mpenc/session"
	"github.com/mpenc-go/mpenc/transcript"
)

var (
	demoMembers   string
	demoInitiator string
	demoMessage   string
	demoExclude   string
	demoRefresh   bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a scripted multi-member mpENC session end to end",
	Long: `demo spins up one mpenc-cli process's worth of in-memory members,
wires them through a shared in-process broadcast channel (there is no
real transport in this module, spec.md §1), drives the group key
agreement and ASKE handshake to completion, exchanges one message, and
optionally exercises exclude/refresh/quit before tearing everything
down.`,
	Example: `  mpenc-cli demo --members alice,bob,carol --message "hello group"
  mpenc-cli demo --members alice,bob,carol --exclude carol --refresh`,
	RunE: runDemo,
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().StringVar(&demoMembers, "members", "alice,bob,carol", "comma-separated member ids")
	demoCmd.Flags().StringVar(&demoInitiator, "initiator", "", "member who starts the session (default: first of --members)")
	demoCmd.Flags().StringVar(&demoMessage, "message", "hello, group", "message the initiator sends once the session is ready")
	demoCmd.Flags().StringVar(&demoExclude, "exclude", "", "member to exclude after the first message round-trips")
	demoCmd.Flags().BoolVar(&demoRefresh, "refresh", false, "rotate ephemeral keys after the exchange (and after any --exclude)")
}

// member bundles one simulated participant's identity and running
// Session with synchronization points a script can wait on.
type member struct {
	id   greet.UserId
	key  *keys.Ed25519KeyPair
	sess *session.Session

	readyOnce sync.Once
	ready     chan struct{}

	mu       sync.Mutex
	received [][]byte
	gotMsg   chan struct{}
}

func newMember(id greet.UserId, key *keys.Ed25519KeyPair) *member {
	return &member{id: id, key: key, ready: make(chan struct{}), gotMsg: make(chan struct{}, 64)}
}

func (m *member) onSessionReady() { m.readyOnce.Do(func() { close(m.ready) }) }

func (m *member) onMsgReady(id transcript.MessageId, body []byte) {
	m.mu.Lock()
	m.received = append(m.received, body)
	m.mu.Unlock()
	m.gotMsg <- struct{}{}
}

func (m *member) waitReady(t time.Duration) error {
	select {
	case <-m.ready:
		return nil
	case <-time.After(t):
		return fmt.Errorf("%s: timed out waiting for session ready", m.id)
	}
}

func (m *member) waitMessage(t time.Duration) ([]byte, error) {
	select {
	case <-m.gotMsg:
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.received[len(m.received)-1], nil
	case <-time.After(t):
		return nil, fmt.Errorf("%s: timed out waiting for a message", m.id)
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg := mpconfig.Default()
	if configPath != "" {
		loaded, err := mpconfig.LoadFromFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	log, err := cfg.ToLogger()
	if err != nil {
		return err
	}

	names := strings.Split(demoMembers, ",")
	if len(names) < 2 {
		return fmt.Errorf("demo needs at least two --members")
	}
	for i, n := range names {
		names[i] = strings.TrimSpace(n)
	}
	initiator := strings.TrimSpace(demoInitiator)
	if initiator == "" {
		initiator = names[0]
	}

	dir := aske.NewMemoryKeyDirectory()
	h := newHub()
	members := make(map[string]*member, len(names))
	var otherMembers []greet.UserId

	for _, name := range names {
		kp, err := keys.GenerateEd25519KeyPair()
		if err != nil {
			return fmt.Errorf("failed to generate key for %s: %w", name, err)
		}
		dir.Put(aske.UserId(name), kp.PublicKey())

		m := newMember(greet.UserId(name), kp)
		members[name] = m
		if name != initiator {
			otherMembers = append(otherMembers, m.id)
		}
	}

	sessCfg := cfg.ToSessionConfig()
	for name, m := range members {
		name, m := name, m
		ch := h.join(name)
		m.sess = session.New(m.id, m.key, dir, ch, sessCfg, session.Handlers{
			OnSessionReady: m.onSessionReady,
			OnMsgReady:     m.onMsgReady,
			OnWarn: func(key transcript.MessageId, final bool) {
				log.Warn("monitor warning", logger.String("member", name), logger.String("key", string(key)), logger.Bool("final", final))
			},
		})
		defer m.sess.Close()
		defer h.leave(name)
	}

	log.Info("starting session", logger.String("initiator", initiator), logger.Any("members", names))
	if err := members[initiator].sess.Start(otherMembers); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	for name, m := range members {
		if err := m.waitReady(5 * time.Second); err != nil {
			return err
		}
		log.Info("member ready", logger.String("member", name), logger.Any("status", m.sess.Status()))
	}

	mid, err := members[initiator].sess.Send([]byte(demoMessage))
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	log.Info("message sent", logger.String("from", initiator), logger.String("msg_id", string(mid)))

	for name, m := range members {
		if name == initiator {
			continue
		}
		if _, err := m.waitMessage(5 * time.Second); err != nil {
			return err
		}
	}
	fmt.Printf("all %d members received: %q\n", len(members)-1, demoMessage)

	if demoExclude != "" {
		if err := members[initiator].sess.Exclude([]greet.UserId{greet.UserId(demoExclude)}); err != nil {
			return fmt.Errorf("exclude: %w", err)
		}
		fmt.Printf("%s excluded %s\n", initiator, demoExclude)
		time.Sleep(200 * time.Millisecond)
	}

	if demoRefresh {
		if err := members[initiator].sess.Refresh(); err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		fmt.Printf("%s refreshed session keys\n", initiator)
		time.Sleep(200 * time.Millisecond)
	}

	for name, m := range members {
		if err := m.sess.Quit(); err != nil {
			log.Warn("quit failed", logger.String("member", name), logger.Error(err))
			continue
		}
	}
	fmt.Println("demo complete")
	return nil
}
