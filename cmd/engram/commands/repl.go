package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/engramd/engram/pkg/engram/memory"
	"github.com/spf13/cobra"
)

// newReplCmd creates the `engram repl` interactive shell.
func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive memory shell",
		Long: `Opens an interactive shell. Plain text searches memories; slash
commands store and manage them:

  /remember <text>   store a memory
  /show <id>         print one entry in full
  /forget <id>       delete a memory
  /stats             corpus statistics
  /quit              exit`,
		Args: cobra.NoArgs,
		RunE: runRepl,
	}
}

func runRepl(cmd *cobra.Command, _ []string) error {
	store, _, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".engram_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "engram> ",
		HistoryFile:     historyFile,
		InterruptPrompt: "^C",
		EOFPrompt:       "bye",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Println("engram interactive shell. Type a query to search, /help for commands.")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := runReplCommand(cmd, store, line); done {
				return nil
			}
			continue
		}

		results, err := store.Search(cmd.Context(), line, memory.SearchOptions{Limit: cfg.Search.DefaultLimit})
		if err != nil {
			fmt.Println("search failed:", err)
			continue
		}
		if len(results) == 0 {
			fmt.Println("nothing matched")
			continue
		}
		for _, r := range results {
			fmt.Printf("#%d  [%.3f]  %s\n", r.ID, r.Score, r.Content)
		}
	}
}

// runReplCommand handles one slash command. Returns true to exit the shell.
func runReplCommand(cmd *cobra.Command, store *memory.Store, line string) bool {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "quit", "exit", "q":
		return true

	case "remember":
		if arg == "" {
			fmt.Println("usage: /remember <text>")
			return false
		}
		res, err := store.Add(cmd.Context(), arg, memory.AddOptions{Source: "repl"})
		if err != nil {
			fmt.Println("store failed:", err)
			return false
		}
		if res.Duplicate {
			fmt.Printf("already remembered as #%d\n", res.ID)
		} else {
			fmt.Printf("remembered as #%d\n", res.ID)
		}

	case "show":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			fmt.Println("usage: /show <id>")
			return false
		}
		entry, err := store.Get(cmd.Context(), id)
		if err != nil {
			fmt.Println("get failed:", err)
			return false
		}
		printEntry(entry)

	case "forget":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			fmt.Println("usage: /forget <id>")
			return false
		}
		existed, err := store.Delete(cmd.Context(), id)
		if err != nil {
			fmt.Println("delete failed:", err)
		} else if !existed {
			fmt.Printf("no memory #%d\n", id)
		} else {
			fmt.Printf("forgot #%d\n", id)
		}

	case "stats":
		stats, err := store.Stats(cmd.Context())
		if err != nil {
			fmt.Println("stats failed:", err)
			return false
		}
		fmt.Printf("%d memories, avg importance %.1f, %d accesses\n",
			stats.TotalEntries, stats.AvgImportance, stats.TotalAccesses)

	case "help":
		fmt.Println("/remember <text>  /show <id>  /forget <id>  /stats  /quit")

	default:
		fmt.Printf("unknown command /%s, try /help\n", name)
	}
	return false
}
