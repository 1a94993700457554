// Package catalog maps release channels and platforms to download URLs.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vertextoedge/firefox-downloader/internal/domain"
)

const (
	// BaseURL is the product URL template shared by every channel
	BaseURL = "https://download.mozilla.org/?product=firefox-{release}&os={platform}&lang=en-US"

	releasePlaceholder  = "{release}"
	platformPlaceholder = "{platform}"

	// DefaultTestChannel is the channel tested by default
	DefaultTestChannel = "nightly"
	// DefaultBaseChannel is the baseline channel tests are compared against
	DefaultBaseChannel = "release"
)

// Platform is the server-side identity of a target platform
type Platform struct {
	Name      string
	Token     string
	Extension string
}

var releaseTags = map[string]string{
	"esr":     "esr-latest",
	"release": "latest",
	"beta":    "beta-latest",
	"aurora":  "aurora-latest",
	"nightly": "nightly-latest",
}

var platforms = map[string]Platform{
	"osx":     {Name: "osx", Token: "osx", Extension: "dmg"},
	"linux":   {Name: "linux", Token: "linux64", Extension: "tar.bz2"},
	"linux32": {Name: "linux32", Token: "linux", Extension: "tar.bz2"},
	"win":     {Name: "win", Token: "win64", Extension: "exe"},
	"win32":   {Name: "win32", Token: "win", Extension: "exe"},
}

// channelTemplates holds BaseURL with the release tag filled and {platform} left open
var channelTemplates = make(map[string]string, len(releaseTags))

func init() {
	for name, tag := range releaseTags {
		channelTemplates[name] = strings.ReplaceAll(BaseURL, releasePlaceholder, tag)
	}

	for _, def := range []string{DefaultTestChannel, DefaultBaseChannel} {
		if _, ok := channelTemplates[def]; !ok {
			panic(fmt.Sprintf("catalog: default channel %q is not a known channel", def))
		}
	}
}

// BuildURL fills the platform token into a channel template
func BuildURL(channelTemplate, platformToken string) string {
	return strings.ReplaceAll(channelTemplate, platformPlaceholder, platformToken)
}

// ResolveChannel returns the URL template for a release channel
func ResolveChannel(name string) (string, error) {
	tmpl, ok := channelTemplates[name]
	if !ok {
		return "", fmt.Errorf("release %q: %w", name, domain.ErrUnknownIdentifier)
	}
	return tmpl, nil
}

// ResolvePlatform returns the server token and file extension for a platform
func ResolvePlatform(name string) (Platform, error) {
	p, ok := platforms[name]
	if !ok {
		return Platform{}, fmt.Errorf("platform %q: %w", name, domain.ErrUnknownIdentifier)
	}
	return p, nil
}

// Resolve validates a release/platform pair and returns the download URL.
// The release is checked before the platform.
func Resolve(release, platform string) (string, Platform, error) {
	tmpl, err := ResolveChannel(release)
	if err != nil {
		return "", Platform{}, err
	}
	p, err := ResolvePlatform(platform)
	if err != nil {
		return "", Platform{}, err
	}
	return BuildURL(tmpl, p.Token), p, nil
}

// ListChannels returns the known release channels in sorted order
func ListChannels() []string {
	return sortedKeys(releaseTags)
}

// ListPlatforms returns the known platforms in sorted order
func ListPlatforms() []string {
	return sortedKeys(platforms)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
