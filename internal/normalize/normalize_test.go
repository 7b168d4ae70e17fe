package normalize

import (
	"slices"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Run("swapped title and artist", func(t *testing.T) {
		artist, title, swapped := DetectSwap("Sabali", "Amadou & Mariam")
		if !swapped {
			t.Fatal("expected swap to be detected")
		}
		if artist != "Amadou & Mariam" || title != "Sabali" {
			t.Errorf("got artist=%q title=%q", artist, title)
		}

		key := Normalize("Sabali", "Amadou & Mariam")
		if key.Artist != "amadou and mariam" {
			t.Errorf("expected canonical artist %q, got %q", "amadou and mariam", key.Artist)
		}
		if key.Title != "sabali" {
			t.Errorf("expected canonical title %q, got %q", "sabali", key.Title)
		}
		if !key.Swapped {
			t.Error("expected Swapped to be set")
		}
	})

	t.Run("does not swap well formed pairs", func(t *testing.T) {
		tests := []struct{ artist, title string }{
			{"Simon & Garfunkel", "The Boxer"},
			{"Queen", "Bohemian Rhapsody"},
			{"Daft Punk", "Get Lucky (feat. Pharrell Williams & Nile Rodgers)"},
			{"Cassie", "Me & You (Remix)"},
		}
		for _, tt := range tests {
			if _, _, swapped := DetectSwap(tt.artist, tt.title); swapped {
				t.Errorf("DetectSwap(%q, %q) swapped unexpectedly", tt.artist, tt.title)
			}
		}
	})

	t.Run("extracts featuring clauses from both fields", func(t *testing.T) {
		tests := []struct {
			name      string
			artist    string
			title     string
			wantTitle string
			wantFeat  []string
		}{
			{"bracketed feat in title", "Daft Punk", "Get Lucky (feat. Pharrell Williams & Nile Rodgers)", "get lucky", []string{"pharrell williams", "nile rodgers"}},
			{"bare ft in title", "Drake", "Take Care ft. Rihanna", "take care", []string{"rihanna"}},
			{"featuring in artist", "Calvin Harris featuring Rihanna", "This Is What You Came For", "this is what you came for", []string{"rihanna"}},
			{"with in artist", "Silk Sonic with Bruno Mars", "Leave the Door Open", "leave the door open", []string{"bruno mars"}},
			{"duplicates collapse", "A feat. B", "Song [ft. B]", "song", []string{"b"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				key := Normalize(tt.artist, tt.title)
				if key.Title != tt.wantTitle {
					t.Errorf("title: expected %q, got %q", tt.wantTitle, key.Title)
				}
				if !slices.Equal(key.Featuring, tt.wantFeat) {
					t.Errorf("featuring: expected %v, got %v", tt.wantFeat, key.Featuring)
				}
			})
		}
	})

	t.Run("strips annotations unless they are the whole title", func(t *testing.T) {
		tests := []struct {
			in   string
			want string
		}{
			{"Bohemian Rhapsody (Remastered 2011)", "bohemian rhapsody"},
			{"Heroes - 2017 Remaster", "heroes"},
			{"Blue Monday [Radio Edit]", "blue monday"},
			{"Song (Club Mix) [Explicit]", "song"},
			{"(I Can't Get No) Satisfaction", "i cant get no satisfaction"},
			{"(Remix)", "remix"},
		}
		for _, tt := range tests {
			if got, _ := Title(tt.in); got != tt.want {
				t.Errorf("Title(%q) = %q, expected %q", tt.in, got, tt.want)
			}
		}
	})

	t.Run("folds case and diacritics", func(t *testing.T) {
		tests := []struct {
			in   string
			want string
		}{
			{"Beyoncé", "beyonce"},
			{"Sigur Rós", "sigur ros"},
			{"Motörhead", "motorhead"},
			{"Mø", "mo"},
			{"Straße", "strasse"},
			{"AC/DC", "ac dc"},
			{"Guns N' Roses", "guns n roses"},
		}
		for _, tt := range tests {
			if got := Canonical(tt.in); got != tt.want {
				t.Errorf("Canonical(%q) = %q, expected %q", tt.in, got, tt.want)
			}
		}
	})

	t.Run("is deterministic", func(t *testing.T) {
		first := Normalize("Beyoncé feat. JAY-Z", "Crazy In Love (Remastered)")
		for range 10 {
			again := Normalize("Beyoncé feat. JAY-Z", "Crazy In Love (Remastered)")
			if again.Fingerprint() != first.Fingerprint() || !slices.Equal(again.Featuring, first.Featuring) {
				t.Fatalf("normalization changed between calls: %+v vs %+v", first, again)
			}
		}
	})

	t.Run("equivalent spellings share a fingerprint", func(t *testing.T) {
		a := Normalize("Beyonce", "Halo")
		b := Normalize("BEYONCÉ", "Halo (Remastered)")
		if a.Fingerprint() != b.Fingerprint() {
			t.Errorf("expected equal fingerprints for %+v and %+v", a, b)
		}
	})
}

func TestTags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Song (Live at Wembley)", []string{"live"}},
		{"Song - Acoustic Remix", []string{"acoustic", "remix"}},
		{"Song (In the Style of Adele) [Karaoke Version]", []string{"karaoke"}},
		{"Plain Song", nil},
	}
	for _, tt := range tests {
		if got := Tags(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("Tags(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}

	if !IsKaraoke("Hello (Karaoke)") {
		t.Error("expected karaoke detection")
	}
}
