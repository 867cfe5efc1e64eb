package commands

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexfs/lexfs/pkg/client"
)

var writeCmd = &cobra.Command{
	Use:   "write <filename> <sentence>",
	Short: "Edit a sentence interactively",
	Long: `Open a write session on one sentence of a file. The sentence stays locked
for other sessions until you finish.

Each input line is "<word_index> <content>": the content is inserted before
the given word of the sentence being edited. Content holding a sentence
terminator (. ! ?) splits the sentence and moves the edit to the next one.

Type ETIRW to commit, ABORT to discard.

Example:
  $ lexfsctl write mydoc.txt 0
  0 hello brave
  2 world.
  ETIRW`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sentence, err := strconv.Atoi(args[1])
		if err != nil || sentence < 0 {
			return fmt.Errorf("sentence must be a non-negative integer")
		}

		return withSession(func(c *client.Client) error {
			w, err := c.Write(args[0], sentence)
			if err != nil {
				return err
			}

			fmt.Println(w.Prompt)
			return runWriteLoop(w, os.Stdin)
		})
	},
}

// runWriteLoop feeds interactive input into an open write session.
func runWriteLoop(w *client.WriteSession, in *os.File) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "ETIRW":
			msg, err := w.Commit()
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		case line == "ABORT":
			if err := w.Abort(); err != nil {
				return err
			}
			fmt.Println("Write aborted; nothing was saved.")
			return nil
		}

		idxStr, content, ok := strings.Cut(line, " ")
		idx, convErr := strconv.Atoi(idxStr)
		if !ok || convErr != nil || content == "" {
			fmt.Println("Use: <word_index> <content>, ETIRW to commit, ABORT to discard")
			continue
		}

		note, err := w.Put(idx, content)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		if note != "" {
			fmt.Println(note)
		}
	}

	// Stdin closed without a verdict: discard, matching a dropped session.
	_ = w.Abort()
	return scanner.Err()
}
