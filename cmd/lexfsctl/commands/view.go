package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/lexfs/lexfs/pkg/client"
)

var (
	viewAll  bool
	viewLong bool
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "List the files you can read",
	Long: `List the filenames this user can read. With --all every tracked file is
shown regardless of access. With --long each file's owner and size are
fetched and rendered as a table.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			names, err := c.View(viewAll)
			if err != nil {
				return err
			}

			if !viewLong {
				printLines(names)
				return nil
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"File", "Owner", "Size", "Sentences"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, name := range names {
				table.Append(fileRow(c, name))
			}
			table.Render()
			return nil
		})
	},
}

// fileRow fetches one file's metadata; fetch failures degrade to dashes so a
// single dead node does not break the listing.
func fileRow(c *client.Client, name string) []string {
	lines, err := c.Info(name)
	if err != nil {
		return []string{name, "-", "-", "-"}
	}

	fields := map[string]string{}
	for _, line := range lines {
		if key, value, ok := strings.Cut(line, ": "); ok {
			fields[key] = value
		}
	}
	return []string{
		name,
		orDash(fields["Owner"]),
		orDash(fields["Size"]),
		orDash(fields["Sentences"]),
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List connected users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			users, err := c.ListUsers()
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Println("(No users connected)")
				return nil
			}
			printLines(users)
			return nil
		})
	},
}

func init() {
	viewCmd.Flags().BoolVarP(&viewAll, "all", "a", false, "Show every file, not just readable ones")
	viewCmd.Flags().BoolVarP(&viewLong, "long", "l", false, "Show owner and size per file")
}
