package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/eslsoft/lingoledger/internal/adapter/mapping"
	"github.com/eslsoft/lingoledger/internal/app"
	"github.com/eslsoft/lingoledger/internal/entity"
	"github.com/eslsoft/lingoledger/internal/repository"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "查看或调整用户账本",
}

var ledgerGetCmd = &cobra.Command{
	Use:   "get <user-id>",
	Short: "查看账本 (生命值按当前时间恢复)",
	Args:  cobra.ExactArgs(1),
	RunE: withContainer(func(cmd *cobra.Command, c *app.Container, args []string) error {
		ledger, err := c.Usecase.GetLedger(cmd.Context(), args[0])
		if errors.Is(err, entity.ErrUnknownUser) {
			return fmt.Errorf("用户 %s 没有账本: %w", args[0], err)
		}
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), mapping.ToLedgerView(ledger, time.Now()))
	}),
}

var ledgerProvisionCmd = &cobra.Command{
	Use:   "provision <user-id>",
	Short: "为用户创建账本 (已存在时不变)",
	Args:  cobra.ExactArgs(1),
	RunE: withContainer(func(cmd *cobra.Command, c *app.Container, args []string) error {
		ledger, created, err := c.Usecase.Provision(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !created {
			cmd.PrintErrln("账本已存在")
		}
		return printJSON(cmd.OutOrStdout(), mapping.ToLedgerView(ledger, time.Now()))
	}),
}

var ledgerGrantCmd = &cobra.Command{
	Use:   "grant-unlimited <user-id>",
	Short: "为用户开通无限生命值",
	Args:  cobra.ExactArgs(1),
	RunE: withContainer(func(cmd *cobra.Command, c *app.Container, args []string) error {
		ledger, err := c.Usecase.ActivateSubscription(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), mapping.ToLedgerView(ledger, time.Now()))
	}),
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "按过滤条件列出账本",
	Example: `  lingoledger ledger list --filter 'experience >= 100' --order-by 'experience desc'
  lingoledger ledger list --filter 'user_id startsWith "team-"'`,
	RunE: withContainer(func(cmd *cobra.Command, c *app.Container, args []string) error {
		filter, _ := cmd.Flags().GetString("filter")
		orderBy, _ := cmd.Flags().GetString("order-by")
		pageNo, _ := cmd.Flags().GetInt32("page")
		pageSize, _ := cmd.Flags().GetInt32("page-size")

		query := &repository.ListLedgerQuery{
			Pagination:  repository.Pagination{PageNo: pageNo, PageSize: pageSize},
			FilterOrder: repository.FilterOrder{Filter: filter, OrderBy: orderBy},
		}
		ledgers, total, err := c.Usecase.ListLedgers(cmd.Context(), query)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"ledgers": mapping.ToLedgerViews(ledgers, time.Now()),
			"total":   total,
		})
	}),
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerGetCmd, ledgerProvisionCmd, ledgerGrantCmd, ledgerListCmd)

	ledgerListCmd.Flags().String("filter", "", "CEL 过滤表达式")
	ledgerListCmd.Flags().String("order-by", "", "排序, 例如 \"experience desc, user_id\"")
	ledgerListCmd.Flags().Int32("page", 1, "页码")
	ledgerListCmd.Flags().Int32("page-size", 20, "每页数量")
}

func withContainer(run func(cmd *cobra.Command, c *app.Container, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		container, cleanup, err := app.Initialize()
		if err != nil {
			return fmt.Errorf("初始化失败: %w", err)
		}
		defer cleanup()
		return run(cmd, container, args)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
