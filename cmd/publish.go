package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eslsoft/lingoledger/internal/adapter/events"
	"github.com/eslsoft/lingoledger/internal/infrastructure/config"
	"github.com/eslsoft/lingoledger/internal/infrastructure/server"
)

// publishCmd replays a provider event onto the broker.
var publishCmd = &cobra.Command{
	Use:   "publish <event-type> <user-id>",
	Short: "向消息队列重放身份或支付事件",
	Long: fmt.Sprintf("支持的事件类型: %s, %s。",
		events.TypeUserCreated, events.TypeSubscriptionActivated),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		if _, ok := events.QueueFor(args[0]); !ok {
			return fmt.Errorf("未知的事件类型: %s", args[0])
		}
		logger, err := server.NewLogger(cfg)
		if err != nil {
			return err
		}

		conn, err := events.Dial(cfg.Events.URL, logger)
		if err != nil {
			return fmt.Errorf("连接消息队列失败: %w", err)
		}
		defer conn.Close()

		msg, err := events.NewPublisher(conn).Publish(cmd.Context(), events.Message{Type: args[0], UserID: args[1]})
		if err != nil {
			return fmt.Errorf("发布事件失败: %w", err)
		}
		cmd.Printf("已发布 %s (%s)\n", msg.Type, msg.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().String("url", "", "AMQP 地址 (默认读取 EVENTS_URL)")
	bindFlagToViper("events.url", publishCmd.Flags().Lookup("url"))
}
