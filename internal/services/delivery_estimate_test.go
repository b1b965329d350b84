package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestTransitDays(t *testing.T) {
	assert.Equal(t, 3, TransitDays("usps_priority_mail"))
	assert.Equal(t, 1, TransitDays("FEDEX_PRIORITY_OVERNIGHT"))
	assert.Equal(t, 8, TransitDays("usps_media_mail"))
	assert.Equal(t, 5, TransitDays("carrier_pigeon"))
	assert.Equal(t, 5, TransitDays(""))
}

func TestEstimateDelivery(t *testing.T) {
	tests := []struct {
		name    string
		ship    string
		service string
		want    string
	}{
		// 2025-01-03 is a Friday.
		{"friday three day lands monday", "2025-01-03", "usps_priority_mail", "2025-01-06"},
		{"wednesday three day saturday rolls to monday", "2025-01-01", "fedex_express_saver", "2025-01-06"},
		{"thursday three day sunday rolls to monday", "2025-01-02", "usps_priority_mail", "2025-01-06"},
		{"monday five day saturday rolls to monday", "2024-12-30", "fedex_ground", "2025-01-06"},
		{"tuesday five day sunday rolls to monday", "2024-12-31", "usps_ground_advantage", "2025-01-06"},
		{"friday overnight saturday is kept", "2025-01-03", "fedex_priority_overnight", "2025-01-04"},
		{"thursday two day saturday is kept", "2025-01-02", "ups_2nd_day_air", "2025-01-04"},
		{"unknown service uses five days", "2025-01-06", "mystery", "2025-01-13"},
		{"weekday landing unchanged", "2025-01-06", "usps_priority_mail", "2025-01-09"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EstimateDelivery(day(tt.ship), tt.service)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}
}

func TestCarrierDisplayName(t *testing.T) {
	assert.Equal(t, "USPS", CarrierDisplayName("stamps_com"))
	assert.Equal(t, "FedEx", CarrierDisplayName("fedex"))
	assert.Equal(t, "UPS", CarrierDisplayName("ups_walleted"))
	assert.Equal(t, "DHL_EXPRESS", CarrierDisplayName("dhl_express"))
}

func TestTrackingURL(t *testing.T) {
	assert.Contains(t, TrackingURL("stamps_com", "9400"), "usps.com")
	assert.Contains(t, TrackingURL("fedex", "7700"), "fedex.com")
	assert.Empty(t, TrackingURL("dhl_express", "1"))
}
