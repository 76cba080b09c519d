package build

import (
	"testing"
)

func TestParseCopy(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		workdir string
		src     string
		dest    string
		wantErr bool
	}{
		{
			name:  "absolute dest",
			input: "setup.py /app/setup.py",
			src:   "setup.py",
			dest:  "/app/setup.py",
		},
		{
			name:    "relative dest with workdir",
			input:   "tests tests",
			workdir: "/app",
			src:     "tests",
			dest:    "/app/tests",
		},
		{
			name:    "relative dest without workdir",
			input:   "tests tests",
			wantErr: true,
		},
		{
			name:    "missing destination",
			input:   "setup.py",
			wantErr: true,
		},
		{
			name:    "too many tokens",
			input:   "a b c",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, dest, err := parseCopy(tt.input, tt.workdir)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if src != tt.src {
				t.Errorf("src = %q, want %q", src, tt.src)
			}
			if dest != tt.dest {
				t.Errorf("dest = %q, want %q", dest, tt.dest)
			}
		})
	}
}
