package lyrics

import (
	"fmt"
	"strings"
)

// MaxVocalRunes caps the lyrics sent to the voice model.
const MaxVocalRunes = 500

// singingStyles gives each catalog genre a short performance direction for
// the voice model.
var singingStyles = map[string]string{
	"pop":      "bright and catchy, clean phrasing, confident chorus lift",
	"ballad":   "slow and tender, long sustained notes, gentle vibrato, emotional swells",
	"rock":     "gritty and powerful, driving rhythm, belted chorus",
	"edm":      "breathy and rhythmic verses, soaring chorus built for a drop",
	"bolero":   "warm and nostalgic, slow rubato phrasing, expressive ornaments on long vowels",
	"lofi":     "soft and intimate, relaxed behind-the-beat delivery, hushed tone",
	"hip-hop":  "rhythmic and percussive, tight flow riding the beat, punchy hook",
	"acoustic": "natural and unpolished, close-mic warmth, storytelling delivery",
}

// SingingDirection returns the performance direction for a genre.
// Unknown genres get a generic direction naming the genre.
func SingingDirection(genre string) string {
	if d, ok := singingStyles[strings.ToLower(strings.TrimSpace(genre))]; ok {
		return d
	}
	return "expressive " + genre + " style, clear diction, phrasing that follows the rhythm"
}

// LyricsPrompt builds the lyric-writing instruction. With custom lyrics the
// model only titles and classifies them.
func LyricsPrompt(concept, genre, customLyrics string) string {
	if strings.TrimSpace(customLyrics) != "" {
		return fmt.Sprintf("Based on these song lyrics: %q, analyse the emotion and give them a title that suits the %q genre. Return JSON.",
			customLyrics, genre)
	}
	return fmt.Sprintf(`Write song lyrics about: %q, genre: %q.
Requirements: clearly mark the [Verse], [Chorus] and [Bridge] sections.
Every line must carry a singable rhythm. Return JSON.`, concept, genre)
}

// SongSchemaHint describes the JSON shape for models without schema support.
const SongSchemaHint = `Respond with a single JSON object with exactly these keys:
{"title": string, "genre": string, "mood": string, "lyrics": string, "tempo": number (BPM)}`

// VocalPrompt builds the instruction for the voice model. Lyrics are cut to
// MaxVocalRunes.
func VocalPrompt(text, genre string, v VoiceSettings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Act as a professional %s singer. SING the following lyrics with real feeling.\n", genre)
	fmt.Fprintf(&b, "Style: %s.\n", SingingDirection(genre))
	if voice := describeVoice(v); voice != "" {
		fmt.Fprintf(&b, "Voice: %s.\n", voice)
	}
	b.WriteString("Keep the phrasing on the beat, with melodic slides and expression:\n\n")
	b.WriteString(Truncate(text, MaxVocalRunes))
	return b.String()
}

func describeVoice(v VoiceSettings) string {
	var parts []string
	if v.Age != "" {
		parts = append(parts, v.Age+" singer")
	}
	if v.Region != "" {
		parts = append(parts, v.Region+"ern regional accent")
	}
	if v.SingerStyle != "" {
		parts = append(parts, "in the manner of "+v.SingerStyle)
	}
	return strings.Join(parts, ", ")
}
