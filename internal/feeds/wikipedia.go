package feeds

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

const descriptionLimit = 500

type wikiSearchResponse struct {
	Query struct {
		Search []struct {
			PageID int64  `json:"pageid"`
			Title  string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

type wikiPage struct {
	PageID    int64  `json:"pageid"`
	Title     string `json:"title"`
	Missing   bool   `json:"missing,omitempty"`
	Extract   string `json:"extract,omitempty"`
	Thumbnail *struct {
		Source string `json:"source"`
	} `json:"thumbnail,omitempty"`
	Langlinks []struct {
		Lang  string `json:"lang"`
		Title string `json:"title"`
	} `json:"langlinks,omitempty"`
}

type wikiPagesResponse struct {
	Query struct {
		Pages []wikiPage `json:"pages"`
	} `json:"query"`
}

func (p wikiPage) langTitle(lang string) string {
	for _, l := range p.Langlinks {
		if l.Lang == lang {
			return l.Title
		}
	}
	return ""
}

type Description struct {
	Description   string `json:"description,omitempty"`
	DescriptionJa string `json:"descriptionJa,omitempty"`
	WikipediaURL  string `json:"wikipediaUrl,omitempty"`
}

var errNoWikiPage = errors.New("no wikipedia page found")

func (c *Client) wikiQuery(ctx context.Context, op string, lang string, params url.Values, out any) error {
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("formatversion", "2")
	return c.getJSON(ctx, op, c.wikiBase(lang)+"/w/api.php?"+params.Encode(), nil, out)
}

func (c *Client) wikiSearch(ctx context.Context, q string) (int64, error) {
	var res wikiSearchResponse
	err := c.wikiQuery(ctx, "wikipedia.search", "en", url.Values{
		"list":     {"search"},
		"srsearch": {q},
		"srlimit":  {"1"},
	}, &res)
	if err != nil {
		return 0, err
	}
	if len(res.Query.Search) == 0 || res.Query.Search[0].PageID == 0 {
		return 0, errNoWikiPage
	}
	return res.Query.Search[0].PageID, nil
}

func (c *Client) wikiPage(ctx context.Context, op string, lang string, params url.Values) (wikiPage, error) {
	var res wikiPagesResponse
	if err := c.wikiQuery(ctx, op, lang, params, &res); err != nil {
		return wikiPage{}, err
	}
	if len(res.Query.Pages) == 0 || res.Query.Pages[0].Missing {
		return wikiPage{}, errNoWikiPage
	}
	return res.Query.Pages[0], nil
}

// WikipediaImage looks up the English article for q and returns its lead
// thumbnail plus the article titles in English and Japanese. ok is false
// when no thumbnail was found; the names may still be set.
func (c *Client) WikipediaImage(ctx context.Context, q string) (ImageResult, bool) {
	pageID, err := c.wikiSearch(ctx, q)
	if err != nil {
		return ImageResult{}, false
	}
	page, err := c.wikiPage(ctx, "wikipedia.pageimages", "en", url.Values{
		"pageids":     {strconv.FormatInt(pageID, 10)},
		"prop":        {"pageimages|langlinks"},
		"lllang":      {"ja"},
		"pithumbsize": {"400"},
	})
	if err != nil {
		return ImageResult{}, false
	}
	result := ImageResult{Name: page.Title, NameJa: page.langTitle("ja")}
	if page.Thumbnail == nil || strings.TrimSpace(page.Thumbnail.Source) == "" {
		return result, false
	}
	result.ImageURL = httpsURL(page.Thumbnail.Source)
	return result, true
}

// Describe fetches the intro paragraph of the English article for q and of
// its Japanese counterpart when one exists.
func (c *Client) Describe(ctx context.Context, q string) (Description, error) {
	pageID, err := c.wikiSearch(ctx, q)
	if err != nil {
		return Description{}, err
	}
	page, err := c.wikiPage(ctx, "wikipedia.extract", "en", url.Values{
		"pageids":     {strconv.FormatInt(pageID, 10)},
		"prop":        {"extracts|langlinks"},
		"lllang":      {"ja"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"exchars":     {strconv.Itoa(descriptionLimit)},
	})
	if err != nil {
		return Description{}, err
	}

	out := Description{
		Description:  formatDescription(page.Extract),
		WikipediaURL: "https://en.wikipedia.org/wiki/" + url.PathEscape(page.Title),
	}
	if jaTitle := page.langTitle("ja"); jaTitle != "" {
		jaPage, err := c.wikiPage(ctx, "wikipedia.extract_ja", "ja", url.Values{
			"titles":      {jaTitle},
			"prop":        {"extracts"},
			"exintro":     {"1"},
			"explaintext": {"1"},
			"exchars":     {strconv.Itoa(descriptionLimit)},
		})
		if err == nil {
			out.DescriptionJa = formatDescription(jaPage.Extract)
		}
	}
	return out, nil
}

// formatDescription keeps the first paragraph, capped at descriptionLimit runes.
func formatDescription(text string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(text), "\n\n")
	runes := []rune(first)
	if len(runes) > descriptionLimit {
		return string(runes[:descriptionLimit-3]) + "..."
	}
	return first
}

func httpsURL(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "http://"):
		return "https://" + strings.TrimPrefix(raw, "http://")
	default:
		return raw
	}
}
