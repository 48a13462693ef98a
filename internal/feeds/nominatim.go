package feeds

import (
	"context"
	"net/url"
	"strconv"

	"birddex/internal/model"
)

type nominatimResponse struct {
	Address map[string]string `json:"address"`
}

// ReverseGeocode resolves the prefecture/state and city for a point. Unknown
// parts are left nil.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) (model.Region, error) {
	params := url.Values{
		"lat":            {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":            {strconv.FormatFloat(lng, 'f', -1, 64)},
		"format":         {"json"},
		"addressdetails": {"1"},
	}
	var res nominatimResponse
	if err := c.getJSON(ctx, "nominatim.reverse", c.nominatimURL+"/reverse?"+params.Encode(), nil, &res); err != nil {
		return model.Region{}, err
	}
	return model.Region{
		State: firstPresent(res.Address, "state", "region", "province"),
		City:  firstPresent(res.Address, "city", "town", "village"),
	}, nil
}

func firstPresent(m map[string]string, keys ...string) *string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return &v
		}
	}
	return nil
}
