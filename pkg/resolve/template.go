package resolve

import (
	"context"
	"fmt"
	"strings"
)

// TemplateResolver derives locators from a URL template without calling any
// external service. Useful for origin servers that address assets directly by
// content id, and as the default when no discovery service is configured.
//
// The template may reference {content_id}, {external_id} and {media_kind},
// e.g. "https://origin.example.com/media/{media_kind}/{external_id}.mp4".
type TemplateResolver struct {
	template string
	quality  string
	format   string
	priority int
}

// NewTemplateResolver creates a template resolver. quality and format are
// recorded verbatim on every resolution.
func NewTemplateResolver(template, quality, format string, priority int) *TemplateResolver {
	return &TemplateResolver{
		template: template,
		quality:  quality,
		format:   format,
		priority: priority,
	}
}

// Resolve implements Resolver. It fails with ErrNotAvailable only on a
// malformed content id; the origin's own 404 surfaces later as a fetch error.
func (r *TemplateResolver) Resolve(ctx context.Context, contentID string) (Resolution, error) {
	kind, externalID, err := ParseContentID(contentID)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}

	replacer := strings.NewReplacer(
		"{content_id}", contentID,
		"{external_id}", externalID,
		"{media_kind}", string(kind),
	)

	return Resolution{
		Locator:    Locator{URL: replacer.Replace(r.template)},
		ExternalID: externalID,
		MediaKind:  kind,
		Title:      contentID,
		Quality:    r.quality,
		Format:     r.format,
		Priority:   r.priority,
	}, nil
}
