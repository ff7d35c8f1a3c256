package app

import (
	"testing"
)

func TestParseCommand_DefaultsToServe(t *testing.T) {
	cmd, err := ParseCommand([]string{})
	if err != nil {
		t.Fatalf("ParseCommand([]) error = %v", err)
	}
	if cmd != CommandServe {
		t.Errorf("ParseCommand([]) = %q, want %q", cmd, CommandServe)
	}
}

func TestParseCommand_KnownSubcommands(t *testing.T) {
	tests := []struct {
		arg  string
		want Command
	}{
		{"serve", CommandServe},
		{"worker", CommandWorker},
		{"migrate", CommandMigrate},
		{"healthcheck", CommandHealthcheck},
	}

	for _, tt := range tests {
		cmd, err := ParseCommand([]string{tt.arg})
		if err != nil {
			t.Errorf("ParseCommand([%s]) error = %v", tt.arg, err)
			continue
		}
		if cmd != tt.want {
			t.Errorf("ParseCommand([%s]) = %q, want %q", tt.arg, cmd, tt.want)
		}
	}
}

func TestParseCommand_UnknownIsError(t *testing.T) {
	_, err := ParseCommand([]string{"sevre"})
	if err == nil {
		t.Fatal("タイプミスしたサブコマンドはエラーになるべき")
	}
}

func TestParseCommand_IgnoresExtraArgs(t *testing.T) {
	cmd, err := ParseCommand([]string{"worker", "--flag", "value"})
	if err != nil {
		t.Fatalf("ParseCommand([worker --flag value]) error = %v", err)
	}
	if cmd != CommandWorker {
		t.Errorf("ParseCommand([worker --flag value]) = %q, want %q", cmd, CommandWorker)
	}
}

func TestHealthcheckPort(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	if got := healthcheckPort(); got != "8080" {
		t.Errorf("healthcheckPort() = %q, want 8080", got)
	}

	t.Setenv("SERVER_PORT", "9090")
	if got := healthcheckPort(); got != "9090" {
		t.Errorf("healthcheckPort() = %q, want 9090", got)
	}
}
