package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/lexfs/lexfs/pkg/client"
)

var createCmd = &cobra.Command{
	Use:   "create <filename>",
	Short: "Create a new empty file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			msg, err := c.Create(args[0])
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <filename>",
	Short: "Delete a file (owner only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			msg, err := c.Delete(args[0])
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read <filename>",
	Short: "Print a file's sentences with their indices",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			lines, err := c.Read(args[0])
			if err != nil {
				return err
			}
			printLines(lines)
			return nil
		})
	},
}

var streamCmd = &cobra.Command{
	Use:   "stream <filename>",
	Short: "Play a file word by word",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			first := true
			err := c.Stream(context.Background(), args[0], func(word string) error {
				if !first {
					fmt.Print(" ")
				}
				first = false
				fmt.Print(word)
				return nil
			})
			if !first {
				fmt.Println()
			}
			return err
		})
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo <filename>",
	Short: "Roll a file back to its state before the last write",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			msg, err := c.Undo(args[0])
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		})
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <filename>",
	Short: "Fetch a file's raw content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			content, err := c.Exec(args[0])
			if err != nil {
				return err
			}
			fmt.Println(content)
			return nil
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <filename>",
	Short: "Show a file's metadata and access list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			lines, err := c.Info(args[0])
			if err != nil {
				return err
			}
			renderInfo(lines)
			return nil
		})
	},
}

// renderInfo prints the "Key: value" metadata block as a two-column table;
// section markers (like ACCESS) pass through as-is.
func renderInfo(lines []string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator(" ")

	for _, line := range lines {
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			table.Append([]string{line, ""})
			continue
		}
		table.Append([]string{key, value})
	}
	table.Render()
}
