package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	aliasCoach string
	aliasOrg   string
	aliasName  string
	aliasJSON  bool
)

// aliasCmd manages per-coach alias memory
var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Manage coach alias memory",
	Long: `Coaches refer to players by nicknames and shorthand. Alias memory maps the
text a coach used to the player they meant, per coach and organization.
A remembered alias resolves with full confidence on every later note.`,
}

var aliasLearnCmd = &cobra.Command{
	Use:   "learn <text> <player-id>",
	Short: "Remember that a coach's text refers to a player",
	Long: `Learn records a confirmed alias, typically after a human picked the player
during disambiguation. Learning the same text again increments its use count.

Example:
  rollcall alias learn "Jakey" p-102 --coach coach-1 --org org-1`,
	Args: cobra.ExactArgs(2),
	RunE: runAliasLearn,
}

var aliasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List a coach's aliases, most used first",
	Args:  cobra.NoArgs,
	RunE:  runAliasList,
}

func init() {
	rootCmd.AddCommand(aliasCmd)
	aliasCmd.AddCommand(aliasLearnCmd)
	aliasCmd.AddCommand(aliasListCmd)

	aliasCmd.PersistentFlags().StringVar(&aliasCoach, "coach", "", "coach user ID")
	aliasCmd.PersistentFlags().StringVar(&aliasOrg, "org", "", "organization ID")
	_ = aliasCmd.MarkPersistentFlagRequired("coach")
	_ = aliasCmd.MarkPersistentFlagRequired("org")

	aliasLearnCmd.Flags().StringVar(&aliasName, "name", "", "player display name (default: looked up in the roster)")
	aliasListCmd.Flags().BoolVar(&aliasJSON, "json", false, "print JSON")
}

func runAliasLearn(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	text, playerID := args[0], args[1]
	name := aliasName
	if name == "" {
		players, err := a.roster.ActivePlayers(ctx, aliasOrg)
		if err != nil {
			return err
		}
		for _, p := range players {
			if p.ID == playerID {
				name = p.FullName()
				break
			}
		}
		if name == "" {
			return fmt.Errorf("player %s is not an active player of %s", playerID, aliasOrg)
		}
	}

	stored, err := a.store.Store(ctx, aliasCoach, aliasOrg, text, playerID, name)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %q -> %s (%s), used %d times\n", stored.RawText, stored.ResolvedEntityName, stored.ResolvedEntityID, stored.UseCount)
	return nil
}

func runAliasList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	aliases, err := a.store.List(ctx, aliasCoach, aliasOrg)
	if err != nil {
		return err
	}
	if aliasJSON {
		return printJSON(aliases)
	}
	if len(aliases) == 0 {
		fmt.Println("No aliases")
		return nil
	}

	tw := newTable()
	_, _ = fmt.Fprintln(tw, "TEXT\tPLAYER\tID\tUSES\tLAST USED")
	for _, al := range aliases {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			al.RawText, al.ResolvedEntityName, al.ResolvedEntityID, al.UseCount, formatTime(al.LastUsedAt))
	}
	return tw.Flush()
}
