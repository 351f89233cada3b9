package service

import (
	"context"
	"log/slog"

	"github.com/bibledive/bibledive-go/internal/ws"
	"github.com/bibledive/bibledive-go/pkg/wire"
)

// UserService covers profile fetches and account management.
type UserService struct {
	base
	onUser func(wire.User)
}

// NewUserService registers the profile push handler. Password and deletion
// operations are correlated calls with no persistent handler.
func NewUserService(log *slog.Logger, mgr *ws.Manager, token ws.TokenFunc, onUser func(wire.User)) *UserService {
	s := &UserService{
		base:   base{log: log, mgr: mgr, token: token},
		onUser: onUser,
	}
	mgr.Subscribe(wire.RespAction(wire.ActionGetUserInfo), s.handleUserInfo)
	return s
}

// UserInfo requests the profile for an id; the result lands in the user store
// via the push handler.
func (s *UserService) UserInfo(ctx context.Context, id string) error {
	return s.push(ctx, wire.TypeUser, wire.ActionGetUserInfo, map[string]any{
		"id": id,
	})
}

// UpdatePassword changes the account password.
func (s *UserService) UpdatePassword(ctx context.Context, id uint64, password string) (bool, error) {
	frame, err := s.request(ctx, wire.TypeUser, wire.ActionUpdateUserPass, map[string]any{
		"id":       id,
		"password": password,
	})
	if err != nil {
		return false, err
	}
	var payload struct {
		Success bool `json:"success"`
	}
	if err := unwrap(frame, &payload); err != nil {
		return false, err
	}
	return payload.Success, nil
}

// VerifyPassword checks the current password. A false result is the server's
// ordinary "no", carried in a successful frame.
func (s *UserService) VerifyPassword(ctx context.Context, id uint64, password string) (bool, error) {
	frame, err := s.request(ctx, wire.TypeUser, wire.ActionVerifyUserPass, map[string]any{
		"id":       id,
		"password": password,
	})
	if err != nil {
		return false, err
	}
	var payload struct {
		IsAuthorized bool `json:"isAuthorized"`
	}
	if err := unwrap(frame, &payload); err != nil {
		return false, err
	}
	return payload.IsAuthorized, nil
}

// DeleteAccount deletes the account after re-verifying the password.
func (s *UserService) DeleteAccount(ctx context.Context, id uint64, password string) (bool, error) {
	frame, err := s.request(ctx, wire.TypeUser, wire.ActionDeleteUser, map[string]any{
		"id":       id,
		"password": password,
	})
	if err != nil {
		return false, err
	}
	var payload struct {
		Success bool `json:"success"`
	}
	if err := unwrap(frame, &payload); err != nil {
		return false, err
	}
	return payload.Success, nil
}

func (s *UserService) handleUserInfo(frame wire.Frame) {
	var user wire.User
	if err := unwrap(frame, &user); err != nil {
		s.log.Warn("bad user info payload", slog.Any("error", err))
		return
	}
	s.onUser(user)
}
