package cmd

import (
	"log/slog"
	"os"
	"testing"
)

func TestExecute_Routing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "version", args: []string{"coursemate", "version"}, wantErr: false},
		{name: "version flag", args: []string{"coursemate", "--version"}, wantErr: false},
		{name: "help", args: []string{"coursemate", "help"}, wantErr: false},
		{name: "unknown command", args: []string{"coursemate", "bogus"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args
			err := Execute()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInitLogger_DebugLevel(t *testing.T) {
	t.Setenv("DEBUG", "1")
	logger := initLogger()
	if !logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("DEBUG set, want debug level enabled")
	}

	t.Setenv("DEBUG", "")
	logger = initLogger()
	if logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("DEBUG unset, want debug level disabled")
	}
}

func TestRunSetup_UnknownFlag(t *testing.T) {
	if err := runSetup([]string{"--bogus"}); err == nil {
		t.Fatal("runSetup() with unknown flag, want error")
	}
}
