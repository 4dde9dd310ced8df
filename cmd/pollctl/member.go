package main

import (
	"errors"
	"fmt"
	"strings"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	"pollhub/internal/app/bootstrap"

	"github.com/spf13/cobra"
)

var (
	memberID        string
	memberEmail     string
	memberName      string
	memberRole      string
	memberSuspended bool
)

var seedMemberCmd = &cobra.Command{
	Use:   "seed-member",
	Short: "Create or update a member record",
	Args:  cobra.NoArgs,
	RunE:  runSeedMember,
}

func init() {
	seedMemberCmd.Flags().StringVar(&memberID, "id", "", "member id (required)")
	seedMemberCmd.Flags().StringVar(&memberEmail, "email", "", "member email")
	seedMemberCmd.Flags().StringVar(&memberName, "name", "", "display name")
	seedMemberCmd.Flags().StringVar(&memberRole, "role", string(entities.MemberRoleMember), "member or admin")
	seedMemberCmd.Flags().BoolVar(&memberSuspended, "suspended", false, "mark the member suspended")
	rootCmd.AddCommand(seedMemberCmd)
}

func runSeedMember(cmd *cobra.Command, _ []string) error {
	member, err := memberFromFlags()
	if err != nil {
		return err
	}
	return withApp(cmd.Context(), func(app *bootstrap.CLIApp) error {
		if err := app.Store.Writer.UpsertMember(cmd.Context(), member); err != nil {
			return fmt.Errorf("seed member: %w", err)
		}
		cmd.Printf("member %s saved (%s)\n", member.MemberID, member.Role)
		return nil
	})
}

func memberFromFlags() (entities.Member, error) {
	id := strings.TrimSpace(memberID)
	if id == "" {
		return entities.Member{}, errors.New("--id is required")
	}
	role := entities.MemberRole(strings.ToLower(strings.TrimSpace(memberRole)))
	switch role {
	case entities.MemberRoleMember, entities.MemberRoleAdmin:
	default:
		return entities.Member{}, fmt.Errorf("unknown role %q", memberRole)
	}
	return entities.Member{
		MemberID:  id,
		Email:     strings.TrimSpace(memberEmail),
		Name:      strings.TrimSpace(memberName),
		Role:      role,
		Suspended: memberSuspended,
	}, nil
}
