package manifest

import "testing"

const hash64 = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestChunkFilenameAndStemRoundTrip(t *testing.T) {
	name := ChunkFilename(hash64)
	if name != hash64+".cdc" {
		t.Errorf("got %q", name)
	}
	if StemOf(name) != hash64 {
		t.Errorf("StemOf(%q) = %q, want %q", name, StemOf(name), hash64)
	}
}

func TestFormatAndParseRoundTrip(t *testing.T) {
	m := UserBlobManifest{Hashes: []string{"aaaa", "bbbb", "cccc"}}
	text := m.Format()
	want := "aaaa.cdc\nbbbb.cdc\ncccc.cdc\n"
	if text != want {
		t.Fatalf("Format() = %q, want %q", text, want)
	}

	parsed := ParseUserBlobManifest(text)
	if len(parsed.Hashes) != 3 {
		t.Fatalf("parsed %d hashes, want 3", len(parsed.Hashes))
	}
	for i, h := range []string{"aaaa", "bbbb", "cccc"} {
		if parsed.Hashes[i] != h {
			t.Errorf("hash[%d] = %q, want %q", i, parsed.Hashes[i], h)
		}
	}
}

func TestParseUserBlobManifestSkipsBlankLines(t *testing.T) {
	text := "aaaa.cdc\n\n  \nbbbb.cdc\n"
	parsed := ParseUserBlobManifest(text)
	if len(parsed.Hashes) != 2 {
		t.Fatalf("parsed %d hashes, want 2: %v", len(parsed.Hashes), parsed.Hashes)
	}
}

func TestValidateChunkLine(t *testing.T) {
	testCases := []struct {
		name    string
		line    string
		wantErr bool
	}{
		{"well formed", hash64 + ".cdc", false},
		{"missing suffix", hash64, true},
		{"wrong width", "abcd.cdc", true},
		{"non hex", "zzzz" + hash64[4:] + ".cdc", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateChunkLine(tc.line, 64)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateChunkLine(%q) error = %v, wantErr %v", tc.line, err, tc.wantErr)
			}
		})
	}
}
