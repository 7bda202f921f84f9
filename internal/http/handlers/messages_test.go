package handlers

import (
	"testing"

	"golang.org/x/text/language"
)

func TestHumanSize(t *testing.T) {
	tests := map[int64]string{
		10 << 20: "10MB",
		4096:     "4KB",
		1500:     "1500 bytes",
		3 << 19:  "1536KB",
	}
	for n, want := range tests {
		if got := humanSize(n); got != want {
			t.Fatalf("humanSize(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestPrinterTranslates(t *testing.T) {
	if got := printer(language.English).Sprintf(msgAlreadyInState, "processing"); got != "Request is already processing" {
		t.Fatalf("english = %q", got)
	}
	if got := printer(language.Indonesian).Sprintf(msgRequestNotFound); got != "Permintaan tidak ditemukan" {
		t.Fatalf("indonesian = %q", got)
	}
	if got := printer(language.Indonesian).Sprintf(msgPhotoTooLarge, humanSize(10<<20)); got != "Ukuran foto harus kurang dari 10MB" {
		t.Fatalf("indonesian with args = %q", got)
	}
}
