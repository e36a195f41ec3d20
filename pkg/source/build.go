package source

import "fmt"

// Kind selects a client variant.
type Kind string

const (
	KindYouTubeAPI  Kind = "youtube_api"
	KindYouTubeFeed Kind = "youtube_feed"
	KindSocial      Kind = "social"
	KindScrape      Kind = "scrape"
)

// Spec is everything needed to construct one client.
type Spec struct {
	Platform Platform
	// Kind may be left empty to pick the richest variant the credentials
	// allow.
	Kind            Kind
	APIKey          string
	Channels        []string
	AssumedDuration float64
	RateLimit       int
	MaxDuration     float64
	ExcludeKeywords []string
}

// Resolve fills in Kind from the platform and the available credentials.
func (s Spec) Resolve() Spec {
	if s.Kind != "" {
		return s
	}
	switch {
	case s.Platform == PlatformYouTube && s.APIKey == "" && len(s.Channels) > 0:
		s.Kind = KindYouTubeFeed
	case s.Platform == PlatformYouTube:
		s.Kind = KindYouTubeAPI
	case s.APIKey != "":
		s.Kind = KindSocial
	default:
		s.Kind = KindScrape
	}
	return s
}

// Build constructs the client described by spec. Options apply after the
// spec's own rate limit and filter.
func Build(spec Spec, opts ...Option) (Client, error) {
	spec = spec.Resolve()

	var pre []Option
	if spec.RateLimit != 0 {
		pre = append(pre, WithRateLimit(spec.RateLimit))
	}
	if spec.MaxDuration > 0 || len(spec.ExcludeKeywords) > 0 {
		ceiling := spec.MaxDuration
		if ceiling <= 0 {
			ceiling = DefaultSocialCeiling
			if spec.Platform == PlatformYouTube {
				ceiling = DefaultShortCeiling
			}
		}
		pre = append(pre, WithFilter(NewContentFilter(ceiling, spec.ExcludeKeywords)))
	}
	opts = append(pre, opts...)

	switch spec.Kind {
	case KindYouTubeAPI:
		if spec.Platform != PlatformYouTube {
			break
		}
		return NewYouTube(spec.APIKey, opts...)
	case KindYouTubeFeed:
		if spec.Platform != PlatformYouTube {
			break
		}
		return NewFeed(spec.Channels, spec.AssumedDuration, opts...)
	case KindSocial:
		return NewSocial(spec.Platform, spec.APIKey, opts...)
	case KindScrape:
		return NewScrape(spec.Platform, opts...)
	}
	return nil, fmt.Errorf("%w: %s via %q", ErrUnsupportedPlatform, spec.Platform, spec.Kind)
}
