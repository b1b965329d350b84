package models

import (
	"time"
)

// AppSetting is a runtime switch that overrides the environment default of the same name.
type AppSetting struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	SettingName string    `json:"setting_name" gorm:"uniqueIndex;not null"` // shipping.rate_provider_enabled, notifications.customer_email, notifications.team_chat
	Value       string    `json:"value"`
	IsActive    bool      `json:"is_active" gorm:"default:true"`
	UpdatedBy   string    `json:"updated_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	SettingRateProviderEnabled = "shipping.rate_provider_enabled"
	SettingNotifyCustomerEmail = "notifications.customer_email"
	SettingNotifyTeamChat      = "notifications.team_chat"
)
