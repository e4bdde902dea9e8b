package studio

import "strings"

// genreAdjectives gives each catalog genre a pool of descriptors for
// fallback titles.
var genreAdjectives = map[string][]string{
	"pop":      {"bright", "sugar", "neon", "golden", "electric"},
	"ballad":   {"tender", "fading", "quiet", "distant", "candlelit"},
	"rock":     {"thunderous", "blazing", "driven", "roaring", "raw"},
	"edm":      {"pulsing", "radiant", "surging", "prismatic", "orbital"},
	"bolero":   {"nostalgic", "moonlit", "wistful", "velvet", "faded"},
	"lofi":     {"rainy", "dusty", "warm", "mellow", "sleepy"},
	"hip-hop":  {"concrete", "late", "heavy", "restless", "midnight"},
	"acoustic": {"fireside", "wooded", "open", "rustic", "honest"},
}

// TrackName makes a deterministic title from genre and track ID, used when
// the lyric writer returns no title.
func TrackName(genre, trackID string) string {
	if genre == "" || trackID == "" {
		return ""
	}

	adjs := genreAdjectives[strings.ToLower(genre)]
	if len(adjs) == 0 {
		return genre + " song"
	}

	var h int
	for i := 0; i < len(trackID) && i < 8; i++ {
		h = h*31 + int(trackID[i])
	}
	if h < 0 {
		h = -h
	}
	return adjs[h%len(adjs)] + " " + strings.ToLower(genre)
}
