// Package domain models the two upstream datasets the ETL combines: hourly
// electricity market prices and hourly weather observations.
//
// # Data Sources
//
// Price quotes come from a market-data endpoint returning
//
//	{"data": [{"start_timestamp": 1700000000000, "marketprice": 12.5, "unit": "EUR/MWh", ...}]}
//
// where start_timestamp is milliseconds since the Unix epoch.
//
// Weather observations come from a forecast endpoint returning
//
//	{"hourly": {"data": [{"time": 1700000000, "cloudCover": 0.3, "icon": "partly-cloudy-day", ...}]}}
//
// where time is seconds since the Unix epoch and cloudCover is a fraction
// between 0 and 1.
//
// # Timestamps
//
// The two sources use different epoch units. [FromMillisEpoch] and
// [FromSecondsEpoch] are kept as separate entry points so a caller always
// states which unit it holds. Both return instants in the local system
// timezone; records are aligned on instant equality, so the zone only
// affects presentation.
//
// # Sun Index
//
// The sun index approximates available sunlight for an hour:
//
//	sun_index = 1 - cloudCover
//
// Hours whose icon is "clear-night" are forced to 0 after the cloud cover
// value has been computed. A clear night sky has cloudCover near 0, so the
// override has to win over the computed value.
//
// # Outcomes
//
// Normalizers never return a partially valid record set. A body that cannot
// be decoded, or lacks a required path or field, yields [ErrMalformedResponse].
// A well-formed body with an empty array yields [ErrNoData], which callers
// treat as "nothing to publish this cycle" rather than as a failure.
package domain
