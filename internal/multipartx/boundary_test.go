package multipartx

import "testing"

func TestExtractBoundary(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		want        string
		wantErr     bool
	}{
		{"basic", "multipart/form-data; boundary=X", "X", false},
		{"extra spaces", "  multipart/form-data ;  boundary=abc123 ", "abc123", false},
		{"case insensitive prefix", "Multipart/Form-Data; boundary=X", "X", false},
		{"with charset-like extra param", "multipart/form-data; charset=utf-8; boundary=X", "X", false},
		{"not multipart", "application/json", "", true},
		{"missing boundary", "multipart/form-data; charset=utf-8", "", true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := ExtractBoundary(c.contentType)
			if c.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", c.contentType)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Fatalf("got %q, want %q", got, c.want)
			}
		})
	}
}

func TestParsePartHeader_FormField(t *testing.T) {
	var dst PartHeaders
	handled, err := ParsePartHeader(`Content-Disposition: form-data; name="parent_dir"`, &dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handled {
		t.Fatalf("expected Content-Disposition to be handled")
	}
	if dst.InputName != "parent_dir" {
		t.Fatalf("InputName = %q, want %q", dst.InputName, "parent_dir")
	}
	if dst.FileName != "" {
		t.Fatalf("FileName should be empty for a non-file part, got %q", dst.FileName)
	}
}

func TestParsePartHeader_FilePart(t *testing.T) {
	var dst PartHeaders
	handled, err := ParsePartHeader(`Content-Disposition: form-data; name="file"; filename="a.txt"`, &dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !handled || dst.InputName != "file" || dst.FileName != "a.txt" {
		t.Fatalf("got handled=%v InputName=%q FileName=%q", handled, dst.InputName, dst.FileName)
	}
}

func TestParsePartHeader_FileWithoutFilename(t *testing.T) {
	var dst PartHeaders
	_, err := ParsePartHeader(`Content-Disposition: form-data; name="file"`, &dst)
	if err == nil {
		t.Fatalf("expected error when file part lacks filename=")
	}
}

func TestParsePartHeader_IgnoredHeader(t *testing.T) {
	var dst PartHeaders
	handled, err := ParsePartHeader(`Content-Type: text/plain`, &dst)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handled {
		t.Fatalf("Content-Type should not be handled")
	}
}

func TestParsePartHeader_NotFormData(t *testing.T) {
	var dst PartHeaders
	_, err := ParsePartHeader(`Content-Disposition: attachment; filename="a.txt"`, &dst)
	if err == nil {
		t.Fatalf("expected error for non form-data disposition")
	}
}

func TestUnquote_CoincidingQuotes(t *testing.T) {
	if _, ok := findQuotedParam([]string{`name="`}, "name"); ok {
		t.Fatalf("expected failure when quotes coincide")
	}
}
