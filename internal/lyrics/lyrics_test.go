package lyrics

import (
	"errors"
	"strings"
	"testing"

	apperrors "github.com/satindergrewal/melodai/internal/errors"
)

// --- ParseSong ---

func TestParseSong(t *testing.T) {
	text := `{"title":"Rain on Glass","genre":"Ballad","mood":"wistful","lyrics":"[Verse]\nla la","tempo":72}`
	s, err := ParseSong(text, "Ballad", "")
	if err != nil {
		t.Fatalf("ParseSong: %v", err)
	}
	if s.Title != "Rain on Glass" || s.Mood != "wistful" || s.Tempo != 72 {
		t.Errorf("song = %+v", s)
	}
	if !strings.HasPrefix(s.Lyrics, "[Verse]") {
		t.Errorf("Lyrics = %q", s.Lyrics)
	}
}

func TestParseSongCustomLyricsOverride(t *testing.T) {
	text := `{"title":"Mine","genre":"Pop","mood":"happy","lyrics":"model words","tempo":120}`
	s, err := ParseSong(text, "Pop", "my own words")
	if err != nil {
		t.Fatalf("ParseSong: %v", err)
	}
	if s.Lyrics != "my own words" {
		t.Errorf("Lyrics = %q, want custom lyrics", s.Lyrics)
	}
}

func TestParseSongDefaults(t *testing.T) {
	s, err := ParseSong("```json\n{\"lyrics\":\"hum\"}\n```", "Lofi", "")
	if err != nil {
		t.Fatalf("ParseSong: %v", err)
	}
	if s.Title != "Untitled" || s.Genre != "Lofi" {
		t.Errorf("song = %+v, want Untitled/Lofi defaults", s)
	}
}

func TestParseSongThinkLeak(t *testing.T) {
	s, err := ParseSong("<think>hmm</think>\n{\"title\":\"T\",\"lyrics\":\"x\"}", "Pop", "")
	if err != nil {
		t.Fatalf("ParseSong: %v", err)
	}
	if s.Title != "T" {
		t.Errorf("Title = %q", s.Title)
	}
}

func TestParseSongFailures(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"not json", "Here are your lyrics!"},
		{"no lyrics", `{"title":"Silent","lyrics":"  "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSong(tt.text, "Pop", "")
			if !errors.Is(err, apperrors.ErrGenerationFailed) {
				t.Errorf("err = %v, want ErrGenerationFailed", err)
			}
		})
	}
}

// --- Prompts ---

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"xin chào", 6, "xin ch"},
		{"ừ ừ", 1, "ừ"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestVocalPromptTruncatesLyrics(t *testing.T) {
	long := strings.Repeat("a", 600) + "TAIL"
	p := VocalPrompt(long, "Pop", VoiceSettings{})
	if strings.Contains(p, "TAIL") {
		t.Error("prompt contains lyrics past the rune limit")
	}
	if !strings.Contains(p, strings.Repeat("a", MaxVocalRunes)) {
		t.Error("prompt lost the first lyrics runes")
	}
}

func TestVocalPromptVoiceSettings(t *testing.T) {
	p := VocalPrompt("la", "Bolero", VoiceSettings{Region: "south", Age: "mature", SingerStyle: "crooner"})
	for _, want := range []string{"Bolero", "mature singer", "southern regional accent", "crooner", SingingDirection("Bolero")} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
	if strings.Contains(VocalPrompt("la", "Pop", VoiceSettings{}), "Voice:") {
		t.Error("empty voice settings should add no voice line")
	}
}

func TestLyricsPrompt(t *testing.T) {
	if p := LyricsPrompt("first snow", "Pop", ""); !strings.Contains(p, "[Chorus]") || !strings.Contains(p, "first snow") {
		t.Errorf("concept prompt = %q", p)
	}
	if p := LyricsPrompt("ignored", "Rock", "my words"); !strings.Contains(p, "my words") || strings.Contains(p, "ignored") {
		t.Errorf("custom prompt = %q", p)
	}
}

func TestSingingDirectionFallback(t *testing.T) {
	if d := SingingDirection("hip-hop"); d != singingStyles["hip-hop"] {
		t.Errorf("SingingDirection(hip-hop) = %q", d)
	}
	if d := SingingDirection("Polka"); !strings.Contains(d, "Polka") {
		t.Errorf("SingingDirection(Polka) = %q", d)
	}
}
