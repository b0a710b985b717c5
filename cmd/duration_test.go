package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestDurationCommands(t *testing.T) {
	tests := []struct {
		args    []string
		want    string
		wantErr bool
	}{
		{[]string{"duration", "format", "3725"}, "01:02:05", false},
		{[]string{"duration", "format", "--", "-5"}, "00:00:00", false},
		{[]string{"duration", "parse", "1:2:3"}, "3723", false},
		{[]string{"duration", "parse", "01:60:00"}, "", true},
		{[]string{"duration", "add", "00:59:30", "45"}, "01:00:15", false},
		{[]string{"duration", "add", "--", "00:00:10", "-20"}, "00:00:10", false},
		{[]string{"duration", "add", "bad", "1"}, "", true},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args[1:], " "), func(t *testing.T) {
			var out bytes.Buffer
			rootCmd.SetOut(&out)
			rootCmd.SetErr(&bytes.Buffer{})
			rootCmd.SetArgs(tt.args)
			t.Cleanup(func() {
				rootCmd.SetOut(nil)
				rootCmd.SetErr(nil)
				rootCmd.SetArgs(nil)
			})

			err := rootCmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Execute(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if !tt.wantErr && strings.TrimSpace(out.String()) != tt.want {
				t.Errorf("output = %q, want %q", out.String(), tt.want)
			}
		})
	}
}
