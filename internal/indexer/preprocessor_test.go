package indexer

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"THC: 20%", "thc 20%"},
		{"thc 20 %", "thc 20%"},
		{"Thc20%", "thc 20%"},
		{"CBD 0.5 percent", "cbd 0.5%"},
		{"thc: 18.5%, cbd: 1%", "thc 18.5% cbd 1%"},
		{"Hybrid-Dominant strain", "hybrid strain"},
		{"indica dominant, sativa-dominant", "indica sativa"},
		{"hybrid" + strings.Repeat(" dominant", 12), "hybrid"},
		{"Indica" + strings.Repeat("-Dominant", 20) + " gummies", "indica gummies"},
		{"hybrid dominantly", "hybrid dominantly"},
		{"What's a good relaxing option?", "what s a good relaxing option"},
		{"  lots\tof \n  space  ", "lots of space"},
		{"Price: $35.00!", "price 35.00"},
		{"end of sentence 5.", "end of sentence 5"},
		{"snake_case stays", "snake_case stays"},
		{"Café crème", "café crème"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_EquivalentNotations(t *testing.T) {
	forms := []string{"THC: 20%", "thc 20 %", "THC 20%", "thc:20 %", "thc 20 percent"}
	want := Normalize(forms[0])
	for _, f := range forms[1:] {
		if got := Normalize(f); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", f, got, want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Hybrid-Dominant-Dominant strain!!",
		"THC: 20 %  CBD:1.5%",
		"sativa strain thc 15% energizing",
		"what about something energizing?",
		"thc 20 % %",
		"1.2.3 version, 50 % off",
		"Ünïcödé — dashes – and “quotes”",
		"hybrid" + strings.Repeat(" dominant", 12),
		"Indica" + strings.Repeat("-Dominant", 20) + " gummies",
		"sativadominantdominant dominant, THC 15 %",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
