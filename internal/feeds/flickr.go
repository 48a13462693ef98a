package feeds

import (
	"context"
	"fmt"
	"net/url"
)

type flickrSearchResponse struct {
	Photos struct {
		Photo []struct {
			ID     string `json:"id"`
			Secret string `json:"secret"`
			Server string `json:"server"`
			Farm   int    `json:"farm"`
		} `json:"photo"`
	} `json:"photos"`
}

// FlickrImage returns the most relevant Flickr photo for q. It is a no-op
// without an API key.
func (c *Client) FlickrImage(ctx context.Context, q string) (ImageResult, bool) {
	if c.flickrAPIKey == "" {
		return ImageResult{}, false
	}
	params := url.Values{
		"method":         {"flickr.photos.search"},
		"api_key":        {c.flickrAPIKey},
		"text":           {q + " bird"},
		"per_page":       {"1"},
		"format":         {"json"},
		"nojsoncallback": {"1"},
		"sort":           {"relevance"},
		"content_type":   {"1"},
		"media":          {"photos"},
	}
	var res flickrSearchResponse
	if err := c.getJSON(ctx, "flickr.search", c.flickrBaseURL+"/?"+params.Encode(), nil, &res); err != nil {
		return ImageResult{}, false
	}
	if len(res.Photos.Photo) == 0 {
		return ImageResult{}, false
	}
	p := res.Photos.Photo[0]
	return ImageResult{
		ImageURL: fmt.Sprintf("https://farm%d.staticflickr.com/%s/%s_%s_z.jpg", p.Farm, p.Server, p.ID, p.Secret),
	}, true
}
