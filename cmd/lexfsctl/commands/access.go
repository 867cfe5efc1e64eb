package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexfs/lexfs/pkg/client"
)

var grantWrite bool

var grantCmd = &cobra.Command{
	Use:   "grant <filename> <user>",
	Short: "Grant a user read (default) or write access to your file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			msg, err := c.Grant(args[0], args[1], grantWrite)
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		})
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <filename> <user>",
	Short: "Revoke a user's access to your file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(func(c *client.Client) error {
			msg, err := c.Revoke(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Println(msg)
			return nil
		})
	},
}

func init() {
	grantCmd.Flags().BoolVarP(&grantWrite, "write", "w", false, "Grant write access instead of read")
}
