package services

import (
	"context"
	"strconv"

	"order_fulfillment/internal/models"
	"order_fulfillment/internal/repository"

	"go.uber.org/zap"
)

// Settings are the runtime switches read on every rate request and webhook.
type Settings struct {
	RateProviderEnabled bool `json:"rateProviderEnabled"`
	NotifyCustomerEmail bool `json:"notifyCustomerEmail"`
	NotifyTeamChat      bool `json:"notifyTeamChat"`
}

type SettingsService interface {
	Resolve(ctx context.Context) Settings
}

type settingsService struct {
	repo     repository.SettingsRepository
	defaults Settings
	log      *zap.Logger
}

// NewSettingsService layers active app_settings rows over the environment defaults.
func NewSettingsService(repo repository.SettingsRepository, defaults Settings, log *zap.Logger) SettingsService {
	return &settingsService{repo: repo, defaults: defaults, log: log}
}

// Resolve falls back to the defaults when the settings table cannot be read.
func (s *settingsService) Resolve(ctx context.Context) Settings {
	out := s.defaults
	rows, err := s.repo.ListActive(ctx)
	if err != nil {
		s.log.Warn("Failed to load app settings, using defaults", zap.Error(err))
		return out
	}

	for _, row := range rows {
		v, err := strconv.ParseBool(row.Value)
		if err != nil {
			s.log.Warn("Ignoring non-boolean setting", zap.String("setting", row.SettingName), zap.String("value", row.Value))
			continue
		}
		switch row.SettingName {
		case models.SettingRateProviderEnabled:
			out.RateProviderEnabled = out.RateProviderEnabled && v
		case models.SettingNotifyCustomerEmail:
			out.NotifyCustomerEmail = v
		case models.SettingNotifyTeamChat:
			out.NotifyTeamChat = v
		}
	}
	return out
}

// StaticSettings always resolves to itself.
type StaticSettings Settings

func (s StaticSettings) Resolve(context.Context) Settings { return Settings(s) }
