// Package service provides the typed request builders and response handlers
// for each gateway action namespace. Two interaction styles coexist: push
// handlers that feed owning stores out-of-band, and correlated calls that
// block until the matching response frame arrives.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bibledive/bibledive-go/internal/ws"
	"github.com/bibledive/bibledive-go/pkg/wire"
)

// ErrEmptyPayload reports a response frame whose payload was absent where one
// was required.
var ErrEmptyPayload = errors.New("empty response payload")

// base carries what every action service needs: the connection manager and
// the token source for stamping commands.
type base struct {
	log   *slog.Logger
	mgr   *ws.Manager
	token ws.TokenFunc
}

// command waits for the channel to be open, resolves the current token, and
// builds the outbound command. Sends issued before the handshake completes
// block here instead of being dropped.
func (b base) command(ctx context.Context, typ, action string, data any) (wire.Command, error) {
	if err := b.mgr.WaitConnected(ctx); err != nil {
		return wire.Command{}, err
	}
	token, err := b.token(ctx)
	if err != nil {
		return wire.Command{}, fmt.Errorf("failed to resolve access token: %w", err)
	}
	return wire.NewCommand(typ, action, token, data)
}

// push sends a fire-and-forget command; the response, if any, arrives through
// a subscribed handler.
func (b base) push(ctx context.Context, typ, action string, data any) error {
	cmd, err := b.command(ctx, typ, action, data)
	if err != nil {
		return err
	}
	return b.mgr.Send(cmd)
}

// request sends a correlated command and blocks until its response frame.
func (b base) request(ctx context.Context, typ, action string, data any) (wire.Frame, error) {
	cmd, err := b.command(ctx, typ, action, data)
	if err != nil {
		return wire.Frame{}, err
	}
	return b.mgr.Request(ctx, cmd, wire.RespAction(action))
}

// unwrap decodes a frame payload into dst, rejecting absent payloads.
func unwrap(frame wire.Frame, dst any) error {
	if len(frame.Data) == 0 || string(frame.Data) == "null" {
		return ErrEmptyPayload
	}
	if err := json.Unmarshal(frame.Data, dst); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", frame.Action, err)
	}
	return nil
}
