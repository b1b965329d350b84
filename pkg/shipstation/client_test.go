package shipstation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shipmentJSON = `{"shipmentId":11,"orderNumber":"ORD-1","trackingNumber":"9400","carrierCode":"stamps_com","serviceCode":"usps_priority_mail","shipDate":"2025-01-03","shipmentCost":8.35,"voided":false,"weight":{"value":2,"units":"pounds"}}`

func TestDecodeShipments(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"paged", `{"shipments":[` + shipmentJSON + `],"total":1,"page":1,"pages":1}`, 1},
		{"array", `[` + shipmentJSON + `,` + shipmentJSON + `]`, 2},
		{"single object", shipmentJSON, 1},
		{"empty page", `{"shipments":[]}`, 0},
		{"empty body", ``, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeShipments([]byte(tt.body))
			require.NoError(t, err)
			require.Len(t, got, tt.want)
			for _, s := range got {
				assert.Equal(t, "ORD-1", s.OrderNumber)
				assert.Equal(t, "9400", s.TrackingNumber)
				assert.True(t, decimal.RequireFromString("8.35").Equal(s.ShipmentCost))
				require.NotNil(t, s.Weight)
				assert.Equal(t, "pounds", s.Weight.Units)
				assert.JSONEq(t, shipmentJSON, string(s.Raw))
			}
		})
	}

	_, err := DecodeShipments([]byte(`"nope"`))
	assert.Error(t, err)
}

func TestCents(t *testing.T) {
	assert.Equal(t, int64(835), Cents(decimal.RequireFromString("8.35")))
	assert.Equal(t, int64(1000), Cents(decimal.RequireFromString("9.995")))
	assert.Equal(t, int64(0), Cents(decimal.Zero))
	assert.Equal(t, int64(1125), Cents(Rate{ShipmentCost: decimal.RequireFromString("10.00"), OtherCost: decimal.RequireFromString("1.25")}.Total()))
}

func TestClient_GetRates(t *testing.T) {
	var got RateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/shipments/getrates", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"serviceName":"USPS Priority Mail","serviceCode":"usps_priority_mail","shipmentCost":9.1,"otherCost":0}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "key", "secret", time.Second)
	require.True(t, c.Configured())

	rates, err := c.GetRates(context.Background(), RateRequest{
		CarrierCode:    "stamps_com",
		FromPostalCode: "78701",
		ToState:        "IL",
		ToCountry:      "US",
		ToPostalCode:   "62704",
		Weight:         Weight{Value: 2, Units: "pounds"},
	})
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, int64(910), Cents(rates[0].Total()))
	assert.Equal(t, "stamps_com", got.CarrierCode)
	assert.Equal(t, 2.0, got.Weight.Value)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret", time.Second)
	_, err := c.GetRates(context.Background(), RateRequest{CarrierCode: "fedex"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestClient_FetchShipments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shipments", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("batchId"))
		_, _ = w.Write([]byte(`{"shipments":[` + shipmentJSON + `]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret", time.Second)
	shipments, err := c.FetchShipments(context.Background(), srv.URL+"/shipments?batchId=42")
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	assert.Equal(t, int64(11), shipments[0].ShipmentID)
}

func TestClient_FetchShipmentsRejectsForeignHost(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient("https://ssapi.shipstation.com", "key", "secret", time.Second)
	_, err := c.FetchShipments(context.Background(), srv.URL+"/shipments")
	assert.Error(t, err)
	assert.False(t, called)

	_, err = c.FetchShipments(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestClient_Configured(t *testing.T) {
	var nilClient *Client
	assert.False(t, nilClient.Configured())
	assert.False(t, NewClient("https://ssapi.shipstation.com", "", "", time.Second).Configured())
}
