// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package telnet

import (
	"bufio"
	"context"
	"crypto/md5" //nolint:gosec // offline player ids are MD5 name hashes, not a security boundary
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/pkg/errutil"
)

const connectUsage = "Usage: connect <uuid|-> <name> [verified] [op]"

// OfflineUUID derives the id an offline-mode proxy assigns to a name: a
// version 3 UUID over "OfflinePlayer:<name>".
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name)) //nolint:gosec // see import
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.UUID(sum)
}

// parseConnect reads the arguments of a connect line.
func parseConnect(arg string) (auth.Identity, bool, error) {
	fields := strings.Fields(arg)
	if len(fields) < 2 {
		return auth.Identity{}, false, errors.New(connectUsage)
	}

	identity := auth.Identity{Username: fields[1]}
	if fields[0] == "-" {
		identity.ID = OfflineUUID(identity.Username)
	} else {
		id, err := uuid.Parse(fields[0])
		if err != nil {
			return auth.Identity{}, false, fmt.Errorf("invalid uuid %q", fields[0])
		}
		identity.ID = id
	}

	var operator bool
	for _, flag := range fields[2:] {
		switch strings.ToLower(flag) {
		case "verified":
			identity.Verified = true
		case "op":
			operator = true
		default:
			return auth.Identity{}, false, errors.New(connectUsage)
		}
	}
	return identity, operator, nil
}

// connection is one console client.
type connection struct {
	conn   net.Conn
	reader *bufio.Reader
	srv    *Server
	gk     Gatekeeper
	connID ulid.ULID

	identity  auth.Identity
	sessionID ulid.ULID
	operator  bool
	joined    bool
	quitting  bool

	writeMu sync.Mutex
	stateMu sync.Mutex
	server  string
}

func newConnection(conn net.Conn, srv *Server, gk Gatekeeper) *connection {
	return &connection{
		conn:   conn,
		reader: bufio.NewReader(conn),
		srv:    srv,
		gk:     gk,
		connID: ulid.Make(),
	}
}

func (c *connection) handle(ctx context.Context) {
	defer func() {
		c.leave()
		if err := c.conn.Close(); err != nil {
			c.srv.logger.Debug("error closing connection", "error", err)
		}
	}()

	c.send("authgate console")
	c.send(connectUsage)

	lineCh := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		for {
			line, err := c.reader.ReadString('\n')
			if err != nil {
				errCh <- err
				return
			}
			select {
			case lineCh <- strings.TrimSpace(line):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if !errors.Is(err, io.EOF) {
				c.srv.logger.Debug("connection read error", "conn_id", c.connID.String(), "error", err)
			}
			return
		case line := <-lineCh:
			c.processLine(ctx, line)
			if c.quitting {
				return
			}
		}
	}
}

func (c *connection) processLine(ctx context.Context, line string) {
	if line == "" {
		return
	}
	if !c.joined {
		c.processLobbyLine(ctx, line)
		return
	}

	switch {
	case strings.HasPrefix(line, "/"):
		c.handleCommand(ctx, strings.TrimPrefix(line, "/"))
	case line == "quit":
		c.send("Goodbye!")
		c.quitting = true
	case strings.HasPrefix(line, "server "):
		c.handleServer(strings.TrimSpace(strings.TrimPrefix(line, "server ")))
	default:
		if c.gk.AllowChat(c.identity, line) {
			c.srv.broadcast(fmt.Sprintf("<%s> %s", c.identity.Username, line))
		}
	}
}

func (c *connection) processLobbyLine(ctx context.Context, line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "connect":
		c.handleConnect(ctx, arg)
	case "quit":
		c.send("Goodbye!")
		c.quitting = true
	default:
		c.send(connectUsage)
	}
}

func (c *connection) handleConnect(ctx context.Context, arg string) {
	identity, operator, err := parseConnect(arg)
	if err != nil {
		c.send(err.Error())
		return
	}

	result := c.gk.Admit(identity)
	if !result.Allowed {
		c.send("Disconnected: " + result.Message)
		c.quitting = true
		return
	}

	c.identity = identity
	c.operator = operator
	if !c.srv.attach(c) {
		c.send("Disconnected: you are already connected.")
		c.quitting = true
		return
	}
	c.joined = true

	c.srv.logger.Info("console player joined",
		"conn_id", c.connID.String(), "player_id", identity.ID.String(), "kind", identity.Kind())
	c.sessionID = c.gk.SessionStart(ctx, identity)
}

func (c *connection) handleCommand(ctx context.Context, line string) {
	name, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)

	switch strings.ToLower(name) {
	case "login":
		c.logOutcome("login", c.gk.Login(ctx, c.identity, args))
	case "register":
		c.logOutcome("register", c.gk.Register(ctx, c.identity, args))
	case "authreload":
		if !c.gk.AllowCommand(c.identity, line) {
			return
		}
		c.logOutcome("authreload", c.gk.Reload(ctx, c.gk.PlayerSource(c.identity)))
	default:
		if !c.gk.AllowCommand(c.identity, line) {
			return
		}
		c.send(fmt.Sprintf("* %s ran /%s on %s", c.identity.Username, line, c.currentServer()))
	}
}

// logOutcome records a command's error. The player has already been told.
func (c *connection) logOutcome(command string, err error) {
	if err == nil {
		return
	}
	logger := c.srv.logger.With("conn_id", c.connID.String(), "command", command)
	if auth.IsPolicyDenial(err) {
		errutil.LogDenial(logger, "command denied", err)
		return
	}
	errutil.LogError(logger, "command failed", err)
}

func (c *connection) handleServer(target string) {
	if target == "" {
		c.send("Usage: server <name>")
		return
	}
	route, _ := c.gk.PreConnect(c.identity, target)
	if route == c.currentServer() {
		c.send(fmt.Sprintf("* already on %s", route))
		return
	}
	if err := c.srv.Connect(c.identity.ID, route); err != nil {
		c.send(fmt.Sprintf("Server %s is not available.", route))
	}
}

func (c *connection) leave() {
	if !c.joined {
		return
	}
	c.srv.detach(c)
	c.gk.Disconnect(c.identity, c.sessionID)
	c.joined = false
}

func (c *connection) setServer(name string) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.server = name
}

func (c *connection) currentServer() string {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.server
}

func (c *connection) send(msg string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		c.srv.logger.Debug("failed to set write deadline", "conn_id", c.connID.String(), "error", err)
	}
	if _, err := fmt.Fprintln(c.conn, msg); err != nil {
		c.srv.logger.Debug("failed to send message to client", "conn_id", c.connID.String(), "error", err)
	}
}
