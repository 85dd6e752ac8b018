package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ipor-labs/fusion/internal/execution/planner"
	"github.com/ipor-labs/fusion/internal/model"
	"github.com/ipor-labs/fusion/internal/system"
	"github.com/ipor-labs/fusion/internal/vault"
)

func (s *runtimeState) newRolesCommand() *cobra.Command {
	root := &cobra.Command{Use: "roles", Short: "Inspect and manage access manager roles"}
	root.AddCommand(s.newRolesListCommand())
	root.AddCommand(s.newRolesCheckCommand())
	root.AddCommand(s.newRolesChangeCommand("grant", "Grant"))
	root.AddCommand(s.newRolesChangeCommand("revoke", "Revoke"))
	return root
}

func (s *runtimeState) newRolesListCommand() *cobra.Command {
	var rolesArg string
	var fromBlock uint64
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List current role members from access manager events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			roles, err := parseRoles(splitCSV(rolesArg))
			if err != nil {
				return err
			}
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			sys, err := s.openSystem(ctx, t, nil, system.WithFromBlock(fromBlock))
			if err != nil {
				return err
			}
			defer sys.Close()

			members, err := sys.AccessManager().AccountsWithRoles(ctx, roles)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), groupRoleAccounts(roles, members), nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&rolesArg, "role", "", "Roles to list (comma-separated names or ids); default all known roles")
	cmd.Flags().Uint64Var(&fromBlock, "from-block", 0, "First block of the event scan")
	return cmd
}

func parseRoles(inputs []string) ([]vault.Role, error) {
	if len(inputs) == 0 {
		return vault.KnownRoles(), nil
	}
	out := make([]vault.Role, 0, len(inputs))
	for _, in := range inputs {
		role, err := vault.ParseRole(in)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}

// groupRoleAccounts keeps the requested role order and lists roles with no
// members as empty.
func groupRoleAccounts(roles []vault.Role, members []vault.RoleAccount) []model.RoleAccounts {
	byRole := make(map[vault.Role][]string, len(roles))
	for _, m := range members {
		byRole[m.Role] = append(byRole[m.Role], m.Account.Hex())
	}
	out := make([]model.RoleAccounts, 0, len(roles))
	for _, role := range roles {
		accounts := byRole[role]
		if accounts == nil {
			accounts = []string{}
		}
		out = append(out, model.RoleAccounts{Role: role.String(), RoleID: uint64(role), Accounts: accounts})
	}
	return out
}

func (s *runtimeState) newRolesCheckCommand() *cobra.Command {
	var roleArg, accountArg string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check whether an account holds a role",
		RunE: func(cmd *cobra.Command, _ []string) error {
			role, err := vault.ParseRole(roleArg)
			if err != nil {
				return err
			}
			account, err := parseAddressFlag("--account", accountArg)
			if err != nil {
				return err
			}
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			sys, err := s.openSystem(ctx, t, nil)
			if err != nil {
				return err
			}
			defer sys.Close()

			member, delay, err := sys.AccessManager().HasRole(ctx, role, account)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.RoleCheck{
				Role:           role.String(),
				RoleID:         uint64(role),
				Account:        account.Hex(),
				IsMember:       member,
				ExecutionDelay: delay,
			}, nil, cacheMetaBypass())
		},
	}
	cmd.Flags().StringVar(&roleArg, "role", "", "Role name or id")
	cmd.Flags().StringVar(&accountArg, "account", "", "Account address")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

// newRolesChangeCommand builds `roles grant` and `roles revoke`. Both are
// sent by the alpha to the access manager and need the caller to hold the
// role's admin role.
func (s *runtimeState) newRolesChangeCommand(op, label string) *cobra.Command {
	var roleArg, accountArg string
	var delay uint32
	var flags execFlags
	cmd := &cobra.Command{
		Use:   op,
		Short: label + " a role on the vault access manager",
		RunE: func(cmd *cobra.Command, _ []string) error {
			role, err := vault.ParseRole(roleArg)
			if err != nil {
				return err
			}
			account, err := parseAddressFlag("--account", accountArg)
			if err != nil {
				return err
			}
			t, err := s.resolveVault()
			if err != nil {
				return err
			}
			txSigner, err := s.signerFor(t)
			if err != nil {
				return err
			}
			ctx, cancel := s.commandContext()
			defer cancel()
			sys, err := s.openSystem(ctx, t, txSigner)
			if err != nil {
				return err
			}
			defer sys.Close()

			manager := sys.AccessManager()
			var data []byte
			if op == "grant" {
				data, err = manager.GrantRoleData(role, account, delay)
			} else {
				data, err = manager.RevokeRoleData(role, account)
			}
			if err != nil {
				return err
			}
			intent := "roles_" + op
			action, err := planner.BuildCallAction(t.request(txSigner.Address(), flags.simulate), intent, planner.Call{
				StepID:      "access-manager-" + op,
				Description: fmt.Sprintf("%s %s for %s", label, role, account.Hex()),
				Target:      manager.Address(),
				Data:        data,
			})
			if err != nil {
				return err
			}
			action.Metadata = map[string]any{"role": role.String(), "role_id": uint64(role), "account": account.Hex()}
			return s.submitAction(ctx, cmd, t, sys, txSigner, action, flags)
		},
	}
	cmd.Flags().StringVar(&roleArg, "role", "", "Role name or id")
	cmd.Flags().StringVar(&accountArg, "account", "", "Account address")
	if op == "grant" {
		cmd.Flags().Uint32Var(&delay, "delay", 0, "Execution delay in seconds")
	}
	addExecFlags(cmd, &flags)
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

