package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eslsoft/lingoledger/internal/app"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "立即执行一次生命值恢复扫描",
	RunE: func(cmd *cobra.Command, args []string) error {
		container, cleanup, err := app.Initialize()
		if err != nil {
			return fmt.Errorf("初始化失败: %w", err)
		}
		defer cleanup()

		start := time.Now()
		swept, err := container.Scheduler.RunOnce(cmd.Context())
		if err != nil {
			return fmt.Errorf("扫描失败: %w", err)
		}
		cmd.Printf("扫描完成: 更新 %d 个账本, 耗时 %s\n", swept, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
