package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/relaydev/clauder/internal/config"
	"github.com/relaydev/clauder/internal/permission"
)

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Inspect the persistent permission store",
}

var permissionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remembered permission decisions",
	RunE:  runPermissionsList,
}

var permissionsClearCmd = &cobra.Command{
	Use:   "clear [fingerprint]",
	Short: "Forget one remembered decision, or all of them",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPermissionsClear,
}

func init() {
	permissionsCmd.AddCommand(permissionsListCmd)
	permissionsCmd.AddCommand(permissionsClearCmd)
}

func openStore() (*permission.Store, error) {
	workDir, err := GetWorkDir("")
	if err != nil {
		return nil, err
	}
	appConfig, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	return permission.NewStore(appConfig.Permission.StorePath), nil
}

func runPermissionsList(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	records, err := store.All(cmd.Context())
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No remembered permissions.")
		return nil
	}

	fingerprints := make([]string, 0, len(records))
	for fp := range records {
		fingerprints = append(fingerprints, fp)
	}
	sort.Strings(fingerprints)

	fmt.Printf("%-18s %-8s %-24s %s\n", "FINGERPRINT", "OUTCOME", "ACTION", "TARGET")
	for _, fp := range fingerprints {
		rec := records[fp]
		fmt.Printf("%-18s %-8s %-24s %s\n", fp, rec.Outcome, rec.Action, rec.Target)
	}
	return nil
}

func runPermissionsClear(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		if err := store.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Forgot %s.\n", args[0])
		return nil
	}

	if err := store.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Forgot all remembered permissions.")
	return nil
}
