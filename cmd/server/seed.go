package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/jwttoken"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/location"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
)

const (
	demoRegistrationGroup = "camping-2025"
	devTokenTTL           = 24 * time.Hour
)

// seedDemo registers three anonymous devices in one registration group,
// owned by a fresh demo user, and logs a token for that user.
func seedDemo(ctx context.Context, be *backend, locations *location.Service, tokens *jwttoken.JWTService, log *slog.Logger) error {
	owner := id.UserID(uuid.New())
	rg := id.RegistrationGroupID(demoRegistrationGroup)
	now := time.Now().UTC()

	for i, name := range []string{"Anna's phone", "Ben's tablet", "Car tracker"} {
		seen := now.Add(-time.Duration(i) * time.Minute)
		device := &domain.Device{
			ID:                  id.DeviceID(uuid.New()),
			DisplayName:         name,
			OwnerUserID:         &owner,
			RegistrationGroupID: &rg,
			LastSeenAt:          &seen,
			CreatedAt:           now.Add(-24 * time.Hour),
		}
		if err := be.devices.Save(ctx, device); err != nil {
			return fmt.Errorf("seed device: %w", err)
		}
		err := locations.Record(ctx, domain.Location{
			DeviceID:   device.ID,
			Latitude:   48.1486 + float64(i)*0.001,
			Longitude:  17.1077,
			Accuracy:   10,
			CapturedAt: seen,
		})
		if err != nil {
			return fmt.Errorf("seed location: %w", err)
		}
	}

	token, err := tokens.GenerateAccessToken(owner, devTokenTTL)
	if err != nil {
		return fmt.Errorf("issue dev token: %w", err)
	}
	log.Info("seeded demo registration group",
		"registration_group_id", demoRegistrationGroup,
		"user_id", owner.String(),
		"access_token", token,
	)
	return nil
}
