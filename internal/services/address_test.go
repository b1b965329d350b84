package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Address
	}{
		{
			name: "multi line with unit",
			raw:  "Jane Doe\n123 Main St\nApt 4\nSpringfield, IL 62704",
			want: Address{Name: "Jane Doe", Street1: "123 Main St", Street2: "Apt 4", City: "Springfield", State: "IL", PostalCode: "62704", Country: "US"},
		},
		{
			name: "single line commas",
			raw:  "Jane Doe, 123 Main St, Springfield, IL 62704",
			want: Address{Name: "Jane Doe", Street1: "123 Main St", City: "Springfield", State: "IL", PostalCode: "62704", Country: "US"},
		},
		{
			name: "zip plus four and country",
			raw:  "500 Oak Ave\nPortland OR 97201-1234\nUSA",
			want: Address{Street1: "500 Oak Ave", City: "Portland", State: "OR", PostalCode: "97201-1234", Country: "US"},
		},
		{
			name: "lowercase state",
			raw:  "PO Box 12\nAustin, tx 78701",
			want: Address{Street1: "PO Box 12", City: "Austin", State: "TX", PostalCode: "78701", Country: "US"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAddress(tt.raw))
		})
	}
}

func TestParseAddress_DegradesWithoutFailing(t *testing.T) {
	got := ParseAddress("somewhere near the big tree")
	assert.Equal(t, "somewhere near the big tree", got.Street1)
	assert.Empty(t, got.PostalCode)
	assert.Equal(t, "US", got.Country)

	got = ParseAddress("")
	assert.Equal(t, Address{Country: "US"}, got)

	got = ParseAddress("ship to the warehouse in NV 89501 please")
	assert.Equal(t, "NV", got.State)
	assert.Equal(t, "89501", got.PostalCode)
}
