package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pagegrab/pkg/config"
	"pagegrab/pkg/cookies"
	"pagegrab/pkg/ui"
)

var forceClear bool

// cookiesCmd represents the cookies command
var cookiesCmd = &cobra.Command{
	Use:   "cookies",
	Short: "Inspect or remove saved session cookies",
	Long: `Inspect or remove the cookies saved after the bot check.

The keyring store keeps one entry per site, so its commands need the target
url. The file stores ignore it.`,
}

var cookiesShowCmd = &cobra.Command{
	Use:   "show [url]",
	Short: "List saved cookies with their values masked",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCookiesShow,
}

var cookiesClearCmd = &cobra.Command{
	Use:   "clear [url]",
	Short: "Delete saved cookies so the next run starts fresh",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCookiesClear,
}

func init() {
	rootCmd.AddCommand(cookiesCmd)
	cookiesCmd.AddCommand(cookiesShowCmd)
	cookiesCmd.AddCommand(cookiesClearCmd)

	cookiesCmd.PersistentFlags().StringVar(&cookieStore, "cookie-store", "", "cookie store (file, encrypted, keyring)")
	cookiesClearCmd.Flags().BoolVarP(&forceClear, "force", "f", false, "do not ask for confirmation")
}

// openStore resolves the configured store for the optional url argument
func openStore(cmd *cobra.Command, args []string) (cookies.Store, error) {
	cfg, err := config.Load(configFile, changedFlags(cmd))
	if err != nil {
		return nil, err
	}

	host := ""
	if len(args) > 0 {
		u, err := parseTarget(args[0])
		if err != nil {
			return nil, err
		}
		host = u.Hostname()
	} else if strings.EqualFold(cfg.Session.Store, "keyring") {
		return nil, fmt.Errorf("the keyring store needs the target url")
	}

	return cookies.NewStore(cfg.Session, host)
}

func runCookiesShow(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd, args)
	if err != nil {
		return err
	}

	set, err := store.Load()
	if err != nil {
		return err
	}

	ui.PrintInfo("Store", store.Describe())
	if len(set) == 0 {
		ui.PrintWarning("No cookies saved")
		return nil
	}

	fmt.Fprintf(ui.Output, "\n%d cookies:\n", len(set))
	for _, c := range set.Masked() {
		expires := ui.Dim("session")
		if c.Expires > 0 {
			t := time.Unix(int64(c.Expires), 0)
			expires = t.Format("2006-01-02 15:04")
			if t.Before(time.Now()) {
				expires = ui.Red(expires + " (expired)")
			}
		}
		fmt.Fprintf(ui.Output, "  %s = %s  %s%s  %s\n",
			ui.Cyan(c.Name), c.Value, c.Domain, c.Path, expires)
	}
	return nil
}

func runCookiesClear(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd, args)
	if err != nil {
		return err
	}

	if !forceClear && ui.IsTerminal(os.Stdin) {
		fmt.Fprintf(ui.Output, "Delete saved cookies in %s? [y/N]: ", store.Describe())
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		if answer != "y" && answer != "yes" {
			ui.PrintWarning("Cancelled")
			return nil
		}
	}

	if err := store.Clear(); err != nil {
		return err
	}
	ui.PrintSuccess("Cookies cleared from " + store.Describe())
	return nil
}
