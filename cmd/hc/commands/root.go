package commands

import (
	"fmt"
	"os"

	"hostcache/pkg/app"
	"hostcache/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	HC *app.App
)

var rootCmd = &cobra.Command{
	Use:           "hc",
	Short:         "hostcache: cache directories, buffered copy and resource materialization",
	SilenceUsage:  true,
	SilenceErrors: false,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 测试里可能已经注入了 App
		if HC != nil {
			return nil
		}

		var err error
		HC, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize hostcache: %w", err)
		}
		if used := viper.ConfigFileUsed(); used != "" {
			HC.Logger.WithField("config", used).Debug("using config file")
		}
		return nil
	},
}

// Execute 是入口
func Execute() error {
	defer func() {
		if HC != nil {
			HC.Close()
		}
	}()
	return rootCmd.Execute()
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	// 1. 全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hc/config.yaml)")

	// 2. --cache-root 覆盖 storage.internal_cache
	rootCmd.PersistentFlags().String("cache-root", "", "Internal cache root directory")
	if err := viper.BindPFlag("storage.internal_cache", rootCmd.PersistentFlags().Lookup("cache-root")); err != nil {
		fmt.Println("Failed to bind flag:", err)
		os.Exit(1)
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Force debug logging")
	if err := viper.BindPFlag("frame.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		fmt.Println("Failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
}
