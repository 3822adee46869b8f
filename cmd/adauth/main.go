// Command adauth checks a credential against an Active Directory domain and
// prints the resolved identity and effective group membership. The exit code
// communicates the outcome, making it usable from scripts and PAM-style
// wrappers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/manifoldco/promptui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/isometry/adauth"
)

var (
	cfgFile  string
	debug    bool
	password string
)

var rootCmd = &cobra.Command{
	Use:   "adauth",
	Short: "Authenticate credentials against an Active Directory domain",
	Long: `adauth binds to a directory server with a user's own credential, resolves
the account record, and computes its effective group membership including the
primary group and nested groups.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var checkCmd = &cobra.Command{
	Use:   "check <username>",
	Short: "Authenticate a username/password pair and print the resolved user",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "adauth.toml", "path to TOML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	checkCmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	username := args[0]

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	if debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.WarnLevel)
	}

	config, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}
	config.Logger = &logger

	auth, err := adauth.New(config)
	if err != nil {
		return err
	}

	if password == "" {
		prompt := promptui.Prompt{Label: "Password", Mask: '*'}
		password, err = prompt.Run()
		if err != nil {
			return err
		}
	}

	user, err := auth.Authenticate(cmd.Context(), username, password)
	if err != nil {
		if adauth.IsInvalidCredentials(err) {
			return errors.New("authentication failed: invalid credentials")
		}
		return err
	}

	fmt.Printf("dn: %s\n", user.DN)
	if user.ObjectSID != "" {
		fmt.Printf("objectSid: %s\n", user.ObjectSID)
	}
	if user.ObjectGUID != "" {
		fmt.Printf("objectGUID: %s\n", user.ObjectGUID)
	}
	if upn := user.GetAttributeValue("userPrincipalName"); upn != "" {
		fmt.Printf("userPrincipalName: %s\n", upn)
	}
	for _, group := range user.Groups {
		fmt.Printf("group: %s\n", group.DN)
	}

	return nil
}

func loadConfig(path string) (*adauth.Config, error) {
	var config adauth.Config
	meta, err := toml.DecodeFile(path, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown configuration keys in %s: %v", path, undecoded)
	}
	return &config, nil
}

func main() {
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
