package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// IconClearNight is the icon value that marks an hour with no sunlight.
const IconClearNight = "clear-night"

type weatherResponse struct {
	Hourly *struct {
		Data *[]rawWeather `json:"data"`
	} `json:"hourly"`
}

type rawWeather struct {
	Time       *float64 `json:"time"`
	CloudCover *float64 `json:"cloudCover"`
	Icon       string   `json:"icon"`
}

// NormalizeWeather parses a weather endpoint body into one WeatherRecord per
// element of its "hourly.data" array, preserving input order.
//
// It returns ErrNoData when the array is empty and ErrMalformedResponse when
// the body is not JSON, "hourly.data" is missing, or an element lacks "time"
// or "cloudCover".
func NormalizeWeather(body []byte) ([]WeatherRecord, error) {
	var resp weatherResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed("weather body: %v", err)
	}
	if resp.Hourly == nil || resp.Hourly.Data == nil {
		return nil, malformed(`weather body: missing "hourly.data" array`)
	}

	data := *resp.Hourly.Data
	if len(data) == 0 {
		return nil, ErrNoData
	}

	records := make([]WeatherRecord, 0, len(data))
	for i, raw := range data {
		rec, err := raw.toRecord()
		if err != nil {
			return nil, malformed("weather element %d: %v", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r rawWeather) toRecord() (WeatherRecord, error) {
	switch {
	case r.Time == nil:
		return WeatherRecord{}, missingField("time")
	case r.CloudCover == nil:
		return WeatherRecord{}, missingField("cloudCover")
	}

	ts, err := FromSecondsEpoch(*r.Time)
	if err != nil {
		return WeatherRecord{}, err
	}
	return WeatherRecord{
		Timestamp: ts,
		SunIndex:  SunIndex(*r.CloudCover, r.Icon),
	}, nil
}

// SunIndex derives the sun index for one hour. The cloud cover complement is
// computed first and then zeroed for clear nights.
func SunIndex(cloudCover float64, icon string) float64 {
	idx := 1 - cloudCover
	if icon == IconClearNight {
		idx = 0
	}
	return idx
}

var errMissingField = errors.New("missing field")

func missingField(name string) error {
	return fmt.Errorf("%w %q", errMissingField, name)
}
