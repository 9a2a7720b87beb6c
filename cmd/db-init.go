/*
Copyright © 2025 Ambor <saltbo@foxmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eslsoft/lingoledger/internal/infrastructure/config"
	"github.com/eslsoft/lingoledger/internal/infrastructure/database"
)

// dbInitCmd creates or upgrades the ledger tables.
var dbInitCmd = &cobra.Command{
	Use:   "db-init",
	Short: "初始化数据库表结构",
	Long:  "执行数据库迁移，创建 ledgers 与 completions 表。注意: go-sqlite3 需要 CGO_ENABLED=1 构建。",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		if err := runMigrations(cmd.Context(), cfg, timeout); err != nil {
			return err
		}
		cmd.Println("数据库迁移完成")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbInitCmd)
	dbInitCmd.Flags().Duration("timeout", 30*time.Second, "迁移超时时间")
}

// runMigrations applies the schema to the configured database.
func runMigrations(ctx context.Context, cfg *config.Config, timeout time.Duration) error {
	driver, err := cfg.DatabaseDriver()
	if err != nil {
		return fmt.Errorf("解析数据库驱动失败: %w", err)
	}
	dsn, err := cfg.DatabaseURL()
	if err != nil {
		return fmt.Errorf("解析数据库 DSN 失败: %w", err)
	}
	db, err := database.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("连接数据库失败: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("执行数据库迁移失败: %w", err)
	}
	return nil
}
