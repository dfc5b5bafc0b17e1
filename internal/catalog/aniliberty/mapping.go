package aniliberty

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/anime-tracker/internal/catalog"
)

// Source adapts Client to the catalog.Upstream interface.
type Source struct {
	Client *Client
}

func (s Source) GetRelease(ctx context.Context, id int64) (catalog.Title, error) {
	r, err := s.Client.GetRelease(ctx, id)
	if err != nil {
		return catalog.Title{}, err
	}
	return ToTitle(*r), nil
}

// Search queries upstream releases by name, mapped to catalog titles.
func (s Source) Search(ctx context.Context, q string, limit int) ([]catalog.Title, error) {
	releases, err := s.Client.Search(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	return toTitles(releases), nil
}

// Popular returns upstream releases ordered by popularity, mapped to
// catalog titles.
func (s Source) Popular(ctx context.Context, limit int) ([]catalog.Title, error) {
	releases, err := s.Client.GetPopular(ctx, limit)
	if err != nil {
		return nil, err
	}
	return toTitles(releases), nil
}

func toTitles(releases []Release) []catalog.Title {
	out := make([]catalog.Title, 0, len(releases))
	for _, r := range releases {
		out = append(out, ToTitle(r))
	}
	return out
}

// ToTitle converts an upstream release into the local catalog model.
// Upstream rows enter the catalog active and approved; moderation may
// flip those flags later.
func ToTitle(r Release) catalog.Title {
	name := strings.TrimSpace(r.Title.EN)
	if name == "" {
		name = strings.TrimSpace(r.Title.Romaji)
	}
	return catalog.Title{
		Slug:            fmt.Sprintf("aniliberty-%d", r.ID),
		Name:            name,
		AltName:         strings.TrimSpace(r.Title.JP),
		Synopsis:        strings.TrimSpace(r.Description),
		Type:            r.Type,
		TotalEpisodes:   r.Episodes.Total,
		EpisodeDuration: r.Episodes.Duration,
		Genres:          r.Genres,
		Year:            r.Year,
		Season:          r.Season,
		Poster:          pickPoster(r),
		Score:           r.Rating.Average,
		IsActive:        true,
		Approved:        true,
	}
}

func pickPoster(r Release) string {
	for _, p := range []string{r.Poster.Large, r.Poster.Medium, r.Poster.Small} {
		if p != "" {
			return p
		}
	}
	return ""
}
