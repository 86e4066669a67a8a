package streaming

import (
	"studiocast/internal/core/domain"
	"studiocast/pkg/config"
)

// Config is the encoder manager's slice of the application configuration.
type Config struct {
	Binary          string
	PlatformURLs    map[domain.Platform]string
	Defaults        domain.VideoConfig
	MaxRecentErrors int
}

// ConfigFromApp projects the application config into the manager's config.
func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		Binary: cfg.Streaming.EncoderBinary,
		PlatformURLs: map[domain.Platform]string{
			domain.PlatformYouTube:  cfg.Streaming.PlatformURLs.YouTube,
			domain.PlatformTwitch:   cfg.Streaming.PlatformURLs.Twitch,
			domain.PlatformFacebook: cfg.Streaming.PlatformURLs.Facebook,
		},
		Defaults: domain.VideoConfig{
			Width:        cfg.Streaming.Defaults.Width,
			Height:       cfg.Streaming.Defaults.Height,
			Framerate:    cfg.Streaming.Defaults.Framerate,
			VideoBitrate: cfg.Streaming.Defaults.VideoBitrate,
			AudioBitrate: cfg.Streaming.Defaults.AudioBitrate,
		},
		MaxRecentErrors: cfg.Streaming.MaxRecentErrors,
	}
}

// ingestBaseURL maps a platform to its configured ingest base URL. Platforms
// outside the allow-list are rejected before any secret is resolved.
func (c Config) ingestBaseURL(platform domain.Platform) (string, error) {
	url, ok := c.PlatformURLs[platform]
	if !ok || url == "" {
		return "", domain.ErrUnsupportedPlatform
	}
	return url, nil
}

// applyDefaults fills zero-valued encoder parameters from configuration.
func (c Config) applyDefaults(vc domain.VideoConfig) domain.VideoConfig {
	if vc.Width <= 0 {
		vc.Width = c.Defaults.Width
	}
	if vc.Height <= 0 {
		vc.Height = c.Defaults.Height
	}
	if vc.Framerate <= 0 {
		vc.Framerate = c.Defaults.Framerate
	}
	if vc.VideoBitrate == "" {
		vc.VideoBitrate = c.Defaults.VideoBitrate
	}
	if vc.AudioBitrate == "" {
		vc.AudioBitrate = c.Defaults.AudioBitrate
	}
	return vc
}
