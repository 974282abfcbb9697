package domain

import "encoding/json"

// priceResponse mirrors the market-data endpoint. Pointers distinguish an
// absent key from a zero value.
type priceResponse struct {
	Data *[]rawPrice `json:"data"`
}

type rawPrice struct {
	StartTimestamp *float64 `json:"start_timestamp"`
	MarketPrice    *float64 `json:"marketprice"`
	Unit           *string  `json:"unit"`
}

// NormalizePrices parses a price endpoint body into one PriceRecord per
// element of its "data" array, preserving input order.
//
// It returns ErrNoData when the array is empty and ErrMalformedResponse when
// the body is not JSON, "data" is missing, or an element lacks a field.
func NormalizePrices(body []byte) ([]PriceRecord, error) {
	var resp priceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, malformed("price body: %v", err)
	}
	if resp.Data == nil {
		return nil, malformed(`price body: missing "data" array`)
	}

	data := *resp.Data
	if len(data) == 0 {
		return nil, ErrNoData
	}

	records := make([]PriceRecord, 0, len(data))
	for i, raw := range data {
		rec, err := raw.toRecord()
		if err != nil {
			return nil, malformed("price element %d: %v", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r rawPrice) toRecord() (PriceRecord, error) {
	switch {
	case r.StartTimestamp == nil:
		return PriceRecord{}, missingField("start_timestamp")
	case r.MarketPrice == nil:
		return PriceRecord{}, missingField("marketprice")
	case r.Unit == nil:
		return PriceRecord{}, missingField("unit")
	}

	ts, err := FromMillisEpoch(*r.StartTimestamp)
	if err != nil {
		return PriceRecord{}, err
	}
	return PriceRecord{
		Timestamp:   ts,
		MarketPrice: *r.MarketPrice,
		Unit:        *r.Unit,
	}, nil
}
