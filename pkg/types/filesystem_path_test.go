// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"testing"
)

func TestFilesystemPathIsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path FilesystemPath
		want bool
	}{
		{"absolute path", FilesystemPath("/usr/bin/bash"), true},
		{"relative path", FilesystemPath("run.sh"), true},
		{"windows style", FilesystemPath("C:\\Program Files\\app.exe"), true},
		{"path with spaces", FilesystemPath("/path/to/my file.txt"), true},
		{"dot path", FilesystemPath("."), true},
		{"empty is invalid", FilesystemPath(""), false},
		{"whitespace only is invalid", FilesystemPath("   "), false},
		{"tab only is invalid", FilesystemPath("\t"), false},
		{"embedded NUL is invalid", FilesystemPath("a\x00b"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			valid, errs := tt.path.IsValid()
			if valid != tt.want {
				t.Errorf("FilesystemPath(%q).IsValid() = %v, want %v", tt.path, valid, tt.want)
			}
			if tt.want {
				if len(errs) != 0 {
					t.Errorf("valid path returned errors: %v", errs)
				}
				return
			}
			if len(errs) == 0 {
				t.Fatal("invalid path returned no errors")
			}
			for _, err := range errs {
				if !errors.Is(err, ErrInvalidFilesystemPath) {
					t.Errorf("error should wrap ErrInvalidFilesystemPath, got: %v", err)
				}
				var fpErr *InvalidFilesystemPathError
				if !errors.As(err, &fpErr) {
					t.Errorf("error should be *InvalidFilesystemPathError, got: %T", err)
				}
			}
		})
	}
}

func TestFilesystemPathIsBlank(t *testing.T) {
	t.Parallel()

	if !FilesystemPath("  ").IsBlank() {
		t.Error("whitespace-only path reported non-blank")
	}
	if FilesystemPath("/tmp").IsBlank() {
		t.Error("real path reported blank")
	}
}

func TestFilesystemPathString(t *testing.T) {
	t.Parallel()

	p := FilesystemPath("/usr/bin/bash")
	if p.String() != "/usr/bin/bash" {
		t.Errorf("FilesystemPath.String() = %q, want %q", p.String(), "/usr/bin/bash")
	}
}
