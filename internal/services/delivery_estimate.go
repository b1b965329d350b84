package services

import (
	"strings"
	"time"
)

const defaultTransitDays = 5

var transitDays = map[string]int{
	"usps_first_class_mail":      3,
	"usps_ground_advantage":      5,
	"usps_priority_mail":         3,
	"usps_priority_mail_express": 1,
	"usps_media_mail":            8,
	"usps_parcel_select":         7,
	"ups_ground":                 5,
	"ups_3_day_select":           3,
	"ups_2nd_day_air":            2,
	"ups_next_day_air":           1,
	"fedex_ground":               5,
	"fedex_home_delivery":        5,
	"fedex_express_saver":        3,
	"fedex_2day":                 2,
	"fedex_standard_overnight":   1,
	"fedex_priority_overnight":   1,
}

// TransitDays returns the nominal transit time for a carrier service code.
func TransitDays(serviceCode string) int {
	if days, ok := transitDays[strings.ToLower(strings.TrimSpace(serviceCode))]; ok {
		return days
	}
	return defaultTransitDays
}

// EstimateDelivery adds the service's transit days to shipDate. For services of
// three days or more, a weekend landing moves to the following Monday.
func EstimateDelivery(shipDate time.Time, serviceCode string) time.Time {
	days := TransitDays(serviceCode)
	eta := shipDate.AddDate(0, 0, days)
	if days < 3 {
		return eta
	}
	switch eta.Weekday() {
	case time.Saturday:
		eta = eta.AddDate(0, 0, 2)
	case time.Sunday:
		eta = eta.AddDate(0, 0, 1)
	}
	return eta
}

var carrierNames = map[string]string{
	"stamps_com":   "USPS",
	"usps":         "USPS",
	"fedex":        "FedEx",
	"ups":          "UPS",
	"ups_walleted": "UPS",
}

// CarrierDisplayName maps a carrier code to the name shown to customers.
func CarrierDisplayName(carrierCode string) string {
	code := strings.ToLower(strings.TrimSpace(carrierCode))
	if name, ok := carrierNames[code]; ok {
		return name
	}
	return strings.ToUpper(code)
}

// TrackingURL links to the carrier's public tracking page, or "" for unknown carriers.
func TrackingURL(carrierCode, trackingNumber string) string {
	switch CarrierDisplayName(carrierCode) {
	case "USPS":
		return "https://tools.usps.com/go/TrackConfirmAction?tLabels=" + trackingNumber
	case "FedEx":
		return "https://www.fedex.com/fedextrack/?trknbr=" + trackingNumber
	case "UPS":
		return "https://www.ups.com/track?tracknum=" + trackingNumber
	}
	return ""
}
