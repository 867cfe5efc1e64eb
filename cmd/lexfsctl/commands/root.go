// Package commands implements the lexfsctl command-line client.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexfs/lexfs/pkg/client"
	"github.com/lexfs/lexfs/pkg/config"
)

var (
	// Version information injected at build time.
	Version = "dev"

	// Global flags.
	cfgFile  string
	server   string
	username string
	timeout  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "lexfsctl",
	Short: "LexFS client",
	Long: `lexfsctl talks to a LexFS name node: create and share files, edit them
sentence by sentence, and stream their content word by word.

Connection settings come from the client section of the config file and can
be overridden per invocation with --server and --user.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lexfsctl %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/lexfs/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&server, "server", "s", "", "name node address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&username, "user", "u", "", "username for the session")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "network timeout (e.g. 30s)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(execCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// sessionSettings resolves address, user, and timeout from flags and config.
func sessionSettings() (addr, user string, d time.Duration, err error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return "", "", 0, err
	}

	addr = cfg.Client.NameNodeAddr
	if server != "" {
		addr = server
	}
	user = cfg.Client.Username
	if username != "" {
		user = username
	}
	d = cfg.Client.Timeout
	if timeout != 0 {
		d = timeout
	}

	if user == "" {
		return "", "", 0, fmt.Errorf("no username: set --user or client.username in the config")
	}
	return addr, user, d, nil
}

// withSession dials the name node, runs fn, and closes the session.
func withSession(fn func(c *client.Client) error) error {
	addr, user, d, err := sessionSettings()
	if err != nil {
		return err
	}

	c, err := client.Dial(addr, user, client.WithTimeout(d))
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}

// printLines writes each line to stdout.
func printLines(lines []string) {
	for _, line := range lines {
		fmt.Fprintln(os.Stdout, line)
	}
}
