// Package geo resolves the configured ZIP code to coordinates.
package geo

import (
	"fmt"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/hightemps/internal/weather"
)

// Geocoder looks up coordinates for a postal code.
type Geocoder interface {
	Lookup(zip string) (lat, lon float64, err error)
}

// GoogleGeocoder uses the Google Geocoding API through kelvins/geocoder.
type GoogleGeocoder struct {
	apiKey  string
	country string
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{apiKey: apiKey, country: "United States"}
}

func (g *GoogleGeocoder) Lookup(zip string) (float64, float64, error) {
	// The library keeps its key in package state.
	geocoder.ApiKey = g.apiKey

	loc, err := geocoder.Geocoding(geocoder.Address{
		PostalCode: zip,
		Country:    g.country,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("geocode %s: %w", zip, err)
	}
	return loc.Latitude, loc.Longitude, nil
}

// Resolve fills in loc's coordinates from its ZIP code. With a nil geocoder
// the configured coordinates are kept.
func Resolve(g Geocoder, loc weather.Location) (weather.Location, error) {
	if g == nil || loc.ZipCode == "" {
		return loc, nil
	}
	lat, lon, err := g.Lookup(loc.ZipCode)
	if err != nil {
		return loc, err
	}
	loc.Lat, loc.Lon = lat, lon
	return loc, nil
}
