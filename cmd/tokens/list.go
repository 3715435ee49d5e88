package tokens

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/stephnangue/vortex/api"
	"github.com/stephnangue/vortex/cmd/helpers"
	"github.com/stephnangue/vortex/helper"
)

var (
	listCmd = &cobra.Command{
		Use:   "list [subject]",
		Short: "List credentials, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runList,
	}

	flagPage  int
	flagSize  int
	flagSort  string
	flagOrder string
)

func init() {
	listCmd.Flags().IntVar(&flagPage, "page", 0, "Page number, starting at 0")
	listCmd.Flags().IntVar(&flagSize, "size", 20, "Page size (max 100)")
	listCmd.Flags().StringVar(&flagSort, "sort", "issued_at", "Sort field")
	listCmd.Flags().StringVar(&flagOrder, "order", "desc", "Sort order: asc or desc")
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := helpers.Client()
	if err != nil {
		return err
	}
	if err := helpers.RequireToken(c); err != nil {
		return err
	}

	var explicit string
	if len(args) == 1 {
		explicit = args[0]
	}
	subject, err := resolveSubject(cmd.Context(), c, explicit)
	if err != nil {
		return fmt.Errorf("Error reading identity: %w", err)
	}

	page, err := c.AccessTokens().List(cmd.Context(), subject, &api.ListOptions{
		Page:  flagPage,
		Size:  flagSize,
		Sort:  flagSort,
		Order: flagOrder,
	})
	if err != nil {
		return fmt.Errorf("Error listing tokens: %w", err)
	}

	now := time.Now()
	rows := make([][]any, 0, len(page.Records))
	for _, r := range page.Records {
		status := "active"
		switch {
		case !r.Enabled:
			status = "revoked"
		case !now.Before(r.ExpiresAt):
			status = "expired"
		}
		rows = append(rows, []any{
			r.ID,
			status,
			r.IssuedAt.Local().Format(time.DateTime),
			helper.FormatTTL(r.ExpiresAt.Sub(now)),
			r.BindingContext,
		})
	}

	out := cmd.OutOrStdout()
	helpers.PrintTable(out, []string{"ID", "Status", "Issued", "Expires In", "Client"}, rows)
	fmt.Fprintf(out, "\nPage %d, %d of %d credentials for %s\n", page.Page, len(page.Records), page.Total, subject)
	return nil
}
