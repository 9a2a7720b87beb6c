package cmd

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	repoimpl "github.com/eslsoft/lingoledger/internal/adapter/repository"
	"github.com/eslsoft/lingoledger/internal/infrastructure/config"
	"github.com/eslsoft/lingoledger/internal/infrastructure/database"
	"github.com/eslsoft/lingoledger/internal/infrastructure/server"
	"github.com/eslsoft/lingoledger/internal/repository"
)

// backupTarget is a backup file path, "-" meaning stdin/stdout.
type backupTarget struct {
	path string
	gzip bool
}

func (t backupTarget) String() string {
	if t.path == "-" {
		return "标准输入输出"
	}
	return t.path
}

func (t backupTarget) compressed() bool {
	return t.gzip || (t.path != "-" && strings.HasSuffix(strings.ToLower(t.path), ".gz"))
}

// create opens the target for writing. The returned close func flushes the
// gzip stream before closing the file.
func (t backupTarget) create(stdout io.Writer) (io.Writer, func() error, error) {
	var (
		w       = stdout
		closers []func() error
	)
	if t.path != "-" {
		if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("创建输出目录失败: %w", err)
		}
		f, err := os.Create(t.path)
		if err != nil {
			return nil, nil, fmt.Errorf("创建备份文件失败: %w", err)
		}
		w = f
		closers = append(closers, f.Close)
	}
	if t.compressed() {
		gz := gzip.NewWriter(w)
		w = gz
		closers = append([]func() error{gz.Close}, closers...)
	}
	return w, closeAll(closers), nil
}

// open opens the target for reading.
func (t backupTarget) open(stdin io.Reader) (io.Reader, func() error, error) {
	var (
		r       = stdin
		closers []func() error
	)
	if t.path != "-" {
		f, err := os.Open(filepath.Clean(t.path))
		if err != nil {
			return nil, nil, fmt.Errorf("打开备份文件失败: %w", err)
		}
		r = f
		closers = append(closers, f.Close)
	}
	if t.compressed() {
		gzr, err := gzip.NewReader(r)
		if err != nil {
			_ = closeAll(closers)()
			return nil, nil, fmt.Errorf("创建 gzip 读取器失败: %w", err)
		}
		r = gzr
		closers = append([]func() error{gzr.Close}, closers...)
	}
	return r, closeAll(closers), nil
}

func closeAll(closers []func() error) func() error {
	return func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}

// openLedgerStore connects to the configured database without starting the
// rest of the application.
func openLedgerStore(cfg *config.Config) (*database.DB, repository.LedgerRepository, func(), error) {
	logger, err := server.NewLogger(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	db, cleanup, err := database.NewConnection(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("连接数据库失败: %w", err)
	}
	return db, repoimpl.NewLedgerRepository(db, logger), cleanup, nil
}

func bindFlagToViper(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	cobra.CheckErr(viper.BindPFlag(key, flag))
}
