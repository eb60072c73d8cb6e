package cmd

import (
	"fmt"

	"musicbox/core/library"
	"musicbox/core/naming"
	"musicbox/db"
	"musicbox/repository"
	"musicbox/storage"

	"github.com/spf13/cobra"
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "列出没有曲目记录的上传文件",
	Long: `列出上传目录中没有对应曲目记录的文件。这些文件通常来自写入成功但记录失败的上传，
或删除记录后未能移除的文件。命令只做报告，不会删除任何文件。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := db.Open(cfg)
		if err != nil {
			return err
		}
		defer db.Close(gdb)

		disk, err := storage.NewOsDisk(cfg.UploadDir)
		if err != nil {
			return err
		}
		lib := library.NewService(repository.NewTrackRepository(gdb), disk, naming.NewPolicy(cfg.AllowedExtensions))

		orphans, err := lib.Orphans(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, name := range orphans {
			fmt.Fprintln(out, name)
		}
		fmt.Fprintf(out, "%d orphan file(s) in %s\n", len(orphans), disk.Root())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(orphansCmd)
}
