package domain

import "time"

// Source names used in logs, metrics labels and output file names.
const (
	SourcePrice   = "price"
	SourceWeather = "weather"
)

// PriceRecord is one market price interval.
type PriceRecord struct {
	Timestamp   time.Time `json:"date_time"`
	MarketPrice float64   `json:"marketprice"`
	Unit        string    `json:"unit"`
}

// WeatherRecord is one hourly weather slot reduced to its sun index.
type WeatherRecord struct {
	Timestamp time.Time `json:"date_time"`
	SunIndex  float64   `json:"sun_index"`
}

// MergedRecord pairs a price interval with the weather slot at the same instant.
type MergedRecord struct {
	Timestamp   time.Time `json:"date_time"`
	MarketPrice float64   `json:"market_price"`
	Unit        string    `json:"unit"`
	SunIndex    float64   `json:"sun_index"`
}
