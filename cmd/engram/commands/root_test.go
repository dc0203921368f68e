package commands

import "testing"

func TestRootRegistersCommands(t *testing.T) {
	t.Parallel()
	root := NewRootCmd("test")

	want := []string{
		"remember", "recall", "show", "forget", "stats",
		"index", "housekeep", "serve", "repl", "setup", "config",
	}
	for _, name := range want {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
