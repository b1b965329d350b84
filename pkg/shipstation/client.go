package shipstation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Client struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
}

type Weight struct {
	Value float64 `json:"value"`
	Units string  `json:"units"` // ounces, pounds, grams
}

type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Units  string  `json:"units"` // inches, centimeters
}

// Shipment is a shipment resource as returned by a SHIP_NOTIFY resource URL.
type Shipment struct {
	ShipmentID     int64           `json:"shipmentId"`
	OrderNumber    string          `json:"orderNumber"`
	TrackingNumber string          `json:"trackingNumber"`
	CarrierCode    string          `json:"carrierCode"`
	ServiceCode    string          `json:"serviceCode"`
	ShipDate       string          `json:"shipDate"`
	ShipmentCost   decimal.Decimal `json:"shipmentCost"`
	Voided         bool            `json:"voided"`
	Weight         *Weight         `json:"weight"`
	Dimensions     *Dimensions     `json:"dimensions"`

	// Raw holds the shipment exactly as received.
	Raw json.RawMessage `json:"-"`
}

type RateRequest struct {
	CarrierCode    string      `json:"carrierCode"`
	FromPostalCode string      `json:"fromPostalCode"`
	ToState        string      `json:"toState"`
	ToCountry      string      `json:"toCountry"`
	ToPostalCode   string      `json:"toPostalCode"`
	ToCity         string      `json:"toCity,omitempty"`
	Weight         Weight      `json:"weight"`
	Dimensions     *Dimensions `json:"dimensions,omitempty"`
	Confirmation   string      `json:"confirmation,omitempty"`
	Residential    bool        `json:"residential"`
}

type Rate struct {
	ServiceName  string          `json:"serviceName"`
	ServiceCode  string          `json:"serviceCode"`
	ShipmentCost decimal.Decimal `json:"shipmentCost"`
	OtherCost    decimal.Decimal `json:"otherCost"`
}

// Total is the all-in price of the rate.
func (r Rate) Total() decimal.Decimal {
	return r.ShipmentCost.Add(r.OtherCost)
}

func NewClient(baseURL, apiKey, apiSecret string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		APIKey:    apiKey,
		APISecret: apiSecret,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Configured reports whether API credentials are present.
func (c *Client) Configured() bool {
	return c != nil && c.APIKey != "" && c.APISecret != ""
}

func (c *Client) authorize(req *http.Request) {
	auth := base64.StdEncoding.EncodeToString([]byte(c.APIKey + ":" + c.APISecret))
	req.Header.Set("Authorization", "Basic "+auth)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	c.authorize(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("shipstation API error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// FetchShipments dereferences a webhook resource URL. The URL must point at the
// configured API host so stored credentials are never sent elsewhere.
func (c *Client) FetchShipments(ctx context.Context, resourceURL string) ([]Shipment, error) {
	if err := c.checkHost(resourceURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return DecodeShipments(body)
}

func (c *Client) checkHost(resourceURL string) error {
	target, err := url.Parse(resourceURL)
	if err != nil || target.Host == "" {
		return fmt.Errorf("invalid resource url %q", resourceURL)
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if !strings.EqualFold(target.Host, base.Host) {
		return fmt.Errorf("resource url host %q does not match %q", target.Host, base.Host)
	}
	return nil
}

// DecodeShipments accepts a JSON array, a {"shipments": [...]} page or a single object.
func DecodeShipments(body []byte) ([]Shipment, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var raws []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("failed to parse shipments: %w", err)
		}
	case '{':
		var page struct {
			Shipments []json.RawMessage `json:"shipments"`
		}
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return nil, fmt.Errorf("failed to parse shipments: %w", err)
		}
		if page.Shipments != nil {
			raws = page.Shipments
		} else {
			raws = []json.RawMessage{trimmed}
		}
	default:
		return nil, fmt.Errorf("unexpected shipments payload")
	}

	shipments := make([]Shipment, 0, len(raws))
	for _, raw := range raws {
		var s Shipment
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("failed to parse shipment: %w", err)
		}
		s.Raw = append(json.RawMessage(nil), raw...)
		shipments = append(shipments, s)
	}
	return shipments, nil
}

// GetRates asks for live rates of a single carrier.
func (c *Client) GetRates(ctx context.Context, rateReq RateRequest) ([]Rate, error) {
	jsonData, err := json.Marshal(rateReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/shipments/getrates", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var rates []Rate
	if err := json.Unmarshal(body, &rates); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return rates, nil
}

// Cents converts a dollar amount to integer cents, rounding half away from zero.
func Cents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
