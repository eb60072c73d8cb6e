package cmd

import (
	"fmt"
	"net"

	"musicbox/core/session"
	"musicbox/db"
	"musicbox/storage"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "数据库、Redis和上传目录连接测试",
	Long:  `依次连接数据库、Redis并检查上传目录是否可用，任何一步失败都会返回错误。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "数据库: %s %s:%s/%s\n", cfg.DBDriver, cfg.DBHost, cfg.DBPort, cfg.DBName)
		gdb, err := db.Open(cfg)
		if err != nil {
			return err
		}
		defer db.Close(gdb)
		sqlDB, err := gdb.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.PingContext(cmd.Context()); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		fmt.Fprintln(out, "数据库连接成功！")

		addr := net.JoinHostPort(cfg.RedisHost, cfg.RedisPort)
		fmt.Fprintf(out, "Redis配置: %s, DB: %d\n", addr, cfg.RedisDB)
		client, err := session.Connect(cmd.Context(), addr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		fmt.Fprintln(out, "Redis连接成功！")

		disk, err := storage.NewOsDisk(cfg.UploadDir)
		if err != nil {
			return err
		}
		files, err := disk.List()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "上传目录: %s (%d 个文件)\n", disk.Root(), len(files))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
