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
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eslsoft/lingoledger/internal/infrastructure/config"
	"github.com/eslsoft/lingoledger/internal/usecase/backup"
)

const (
	exportOutputKey = "backup.export.output"
	exportGzipKey   = "backup.export.gzip"
	exportBatchKey  = "backup.export.batch_size"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "导出全部账本为 NDJSON 备份",
	Long:  "第一行为 meta 记录 (格式版本、导出时间、账本数量)，随后每行一个账本及其已完成练习。",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		target := backupTarget{
			path: viper.GetString(exportOutputKey),
			gzip: viper.GetBool(exportGzipKey),
		}
		if target.path == "" {
			target.path = defaultExportFilename(target.gzip)
		}

		_, repo, release, err := openLedgerStore(cfg)
		if err != nil {
			return err
		}
		defer release()

		w, closeOutput, err := target.create(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer func() {
			if cerr := closeOutput(); cerr != nil && err == nil {
				err = fmt.Errorf("写入备份文件失败: %w", cerr)
			}
		}()

		service := backup.NewService(repo, backup.WithBatchSize(viper.GetInt(exportBatchKey)))
		progress := newCLIProgress(cmd.ErrOrStderr())
		if err := service.Export(cmd.Context(), w, backup.WithProgressReporter(progress)); err != nil {
			return fmt.Errorf("导出备份失败: %w", err)
		}

		cmd.PrintErrf("导出完成: %s\n", target)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringP("output", "o", "", "备份输出文件路径，使用 - 表示标准输出")
	exportCmd.Flags().Bool("gzip", false, "使用 gzip 压缩输出 (.gz 后缀自动启用)")
	exportCmd.Flags().Int("batch-size", 0, "每批读取的账本数量 (默认 512)")

	bindFlagToViper(exportOutputKey, exportCmd.Flags().Lookup("output"))
	bindFlagToViper(exportGzipKey, exportCmd.Flags().Lookup("gzip"))
	bindFlagToViper(exportBatchKey, exportCmd.Flags().Lookup("batch-size"))
}

func defaultExportFilename(gzipEnabled bool) string {
	name := "lingoledger-backup-" + time.Now().UTC().Format("20060102-150405") + ".jsonl"
	if gzipEnabled {
		name += ".gz"
	}
	return name
}

// cliProgress prints export progress in roughly 5% steps.
type cliProgress struct {
	out    io.Writer
	tables map[string]*tableProgress
}

type tableProgress struct {
	total, done, printed, step int
}

func newCLIProgress(out io.Writer) *cliProgress {
	return &cliProgress{out: out, tables: make(map[string]*tableProgress)}
}

func (p *cliProgress) StartTable(table string, total int) {
	total = max(total, 0)
	p.tables[table] = &tableProgress{total: total, step: progressStep(total)}
	fmt.Fprintf(p.out, "开始导出 %s (共 %d 行)\n", table, total)
}

func (p *cliProgress) Increment(table string, delta int) {
	t, ok := p.tables[table]
	if !ok || delta <= 0 {
		return
	}
	t.done += delta
	if t.done == t.total || t.printed == 0 || t.done-t.printed >= t.step {
		p.report(table, t)
	}
}

func (p *cliProgress) FinishTable(table string) {
	t, ok := p.tables[table]
	if !ok {
		return
	}
	if t.done != t.printed {
		p.report(table, t)
	}
	fmt.Fprintf(p.out, "完成导出 %s: %s 行\n", table, t.fraction())
	delete(p.tables, table)
}

func (p *cliProgress) report(table string, t *tableProgress) {
	fmt.Fprintf(p.out, "导出进度 %s: %s\n", table, t.fraction())
	t.printed = t.done
}

func (t *tableProgress) fraction() string {
	if t.total == 0 {
		return fmt.Sprintf("%d", t.done)
	}
	return fmt.Sprintf("%d/%d", t.done, t.total)
}

func progressStep(total int) int {
	if total <= 0 {
		return 1000
	}
	return min(max(total/20, 1), 1000)
}

var _ backup.ProgressReporter = (*cliProgress)(nil)
