package feeds

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"birddex/internal/knowledge"
)

type ImageQuery struct {
	Name        string
	SpeciesCode string
}

type ImageResult struct {
	ImageURL string `json:"imageUrl"`
	Name     string `json:"name,omitempty"`
	NameJa   string `json:"nameJa,omitempty"`
}

// ImageResolver finds a display image. ok is false when the source had no
// image; a partial result may still carry names.
type ImageResolver interface {
	ResolveImage(ctx context.Context, q ImageQuery) (ImageResult, bool)
}

type ImageResolverFunc func(ctx context.Context, q ImageQuery) (ImageResult, bool)

func (f ImageResolverFunc) ResolveImage(ctx context.Context, q ImageQuery) (ImageResult, bool) {
	return f(ctx, q)
}

type chain struct {
	fallback  ImageResult
	resolvers []ImageResolver
}

// FirstOf tries resolvers in order and returns the first image found. Names
// reported by earlier sources are kept. When nothing matches, fallback is
// returned with whatever names were collected.
func FirstOf(fallback ImageResult, resolvers ...ImageResolver) ImageResolver {
	return &chain{fallback: fallback, resolvers: resolvers}
}

func (c *chain) ResolveImage(ctx context.Context, q ImageQuery) (ImageResult, bool) {
	var names ImageResult
	for _, r := range c.resolvers {
		if ctx.Err() != nil {
			break
		}
		res, ok := r.ResolveImage(ctx, q)
		names.Name = firstNonEmpty(names.Name, res.Name)
		names.NameJa = firstNonEmpty(names.NameJa, res.NameJa)
		if ok && strings.TrimSpace(res.ImageURL) != "" {
			res.Name = names.Name
			res.NameJa = names.NameJa
			return res, true
		}
	}
	out := c.fallback
	out.Name = firstNonEmpty(names.Name, out.Name)
	out.NameJa = firstNonEmpty(names.NameJa, out.NameJa)
	return out, true
}

type deduped struct {
	inner   ImageResolver
	timeout time.Duration
	group   singleflight.Group
}

// Dedup collapses concurrent lookups of the same query into one call. The
// shared call is detached from the caller that started it and bounded by
// timeout instead.
func Dedup(r ImageResolver, timeout time.Duration) ImageResolver {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &deduped{inner: r, timeout: timeout}
}

func (d *deduped) ResolveImage(ctx context.Context, q ImageQuery) (ImageResult, bool) {
	type result struct {
		res ImageResult
		ok  bool
	}
	key := strings.ToLower(strings.TrimSpace(q.Name)) + "|" + q.SpeciesCode
	v, _, _ := d.group.Do(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		res, ok := d.inner.ResolveImage(shared, q)
		return result{res: res, ok: ok}, nil
	})
	r := v.(result)
	return r.res, r.ok
}

// ImageResolver is the Wikipedia, Flickr, placeholder chain.
func (c *Client) ImageResolver() ImageResolver {
	return Dedup(FirstOf(
		ImageResult{ImageURL: knowledge.PlaceholderImage},
		ImageResolverFunc(func(ctx context.Context, q ImageQuery) (ImageResult, bool) {
			return c.WikipediaImage(ctx, q.Name)
		}),
		ImageResolverFunc(func(ctx context.Context, q ImageQuery) (ImageResult, bool) {
			return c.FlickrImage(ctx, q.Name)
		}),
	), c.timeout)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
