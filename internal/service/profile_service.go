package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/opensplit/internal/middleware"
	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/storage"
	"github.com/mmynk/opensplit/pkg/api"
	"github.com/mmynk/opensplit/pkg/api/apiconnect"
)

// ProfileService implements the Connect ProfileService.
type ProfileService struct {
	apiconnect.UnimplementedProfileServiceHandler
	store storage.Store
}

// NewProfileService creates a new ProfileService.
func NewProfileService(store storage.Store) *ProfileService {
	return &ProfileService{store: store}
}

// GetProfile returns the caller's profile, or another member's when the two
// share a group. A caller without a saved profile gets an empty one.
func (s *ProfileService) GetProfile(ctx context.Context, req *connect.Request[api.GetProfileRequest]) (*connect.Response[api.GetProfileResponse], error) {
	slog.Info("GetProfile request received", "user_id", req.Msg.UserID)

	userID, err := caller(ctx)
	if err != nil {
		return nil, connectError(err)
	}
	target := req.Msg.UserID
	if target == "" {
		target = userID
	}

	if target != userID {
		shared, err := s.sharesGroup(ctx, userID, target)
		if err != nil {
			return nil, fail("GetProfile", err)
		}
		if !shared {
			return nil, connect.NewError(connect.CodePermissionDenied, errors.New("you do not share a group with this user"))
		}
	}

	user, err := s.store.GetUser(ctx, target)
	switch {
	case errors.Is(err, storage.ErrNotFound) && target == userID:
		user = &models.User{ID: userID, Email: middleware.GetEmail(ctx)}
	case err != nil:
		return nil, fail("GetProfile", err, "user_id", target)
	}

	return connect.NewResponse(&api.GetProfileResponse{Profile: toAPIProfile(user)}), nil
}

// UpdateProfile replaces the caller's text fields. The avatar and InstaPay
// QR URLs keep their stored values unless the request sets them.
func (s *ProfileService) UpdateProfile(ctx context.Context, req *connect.Request[api.UpdateProfileRequest]) (*connect.Response[api.UpdateProfileResponse], error) {
	slog.Info("UpdateProfile request received")

	userID, err := caller(ctx)
	if err != nil {
		return nil, connectError(err)
	}

	existing, err := s.store.GetUser(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		existing = &models.User{ID: userID}
	case err != nil:
		return nil, fail("UpdateProfile", err, "user_id", userID)
	}

	user := &models.User{
		ID:                userID,
		Email:             strings.TrimSpace(req.Msg.Email),
		FullName:          strings.TrimSpace(req.Msg.FullName),
		ContactNumber:     strings.TrimSpace(req.Msg.ContactNumber),
		BankAccountName:   strings.TrimSpace(req.Msg.BankAccountName),
		BankAccountNumber: strings.TrimSpace(req.Msg.BankAccountNumber),
		GCashNumber:       strings.TrimSpace(req.Msg.GCashNumber),
		InstapayQRURL:     existing.InstapayQRURL,
		ProfileImageURL:   existing.ProfileImageURL,
		CreatedAt:         existing.CreatedAt,
	}
	if req.Msg.InstapayQRURL != nil {
		user.InstapayQRURL = strings.TrimSpace(*req.Msg.InstapayQRURL)
	}
	if req.Msg.ProfileImageURL != nil {
		user.ProfileImageURL = strings.TrimSpace(*req.Msg.ProfileImageURL)
	}
	if user.Email == "" {
		user.Email = middleware.GetEmail(ctx)
	}
	if err := user.Validate(); err != nil {
		return nil, fail("UpdateProfile", err)
	}

	if err := s.store.UpsertUser(ctx, user); err != nil {
		return nil, fail("UpdateProfile", err)
	}

	slog.Info("Profile updated", "user_id", userID)

	return connect.NewResponse(&api.UpdateProfileResponse{Profile: toAPIProfile(user)}), nil
}

func (s *ProfileService) sharesGroup(ctx context.Context, userID, other string) (bool, error) {
	groups, err := s.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, g := range groups {
		if g.IsMember(other) {
			return true, nil
		}
	}
	return false, nil
}
