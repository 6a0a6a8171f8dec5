// cmd/storytool/main.go
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yzy0324/neon-tape-vn/internal/story"
	"github.com/yzy0324/neon-tape-vn/internal/validate"
)

var (
	storyDir   string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:           "storytool",
	Short:         "NEON TAPE 剧情离线工具",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "校验剧情图：重复ID、悬空目标、变体族默认、结局可达、孤立标记与白名单",
	RunE: func(cmd *cobra.Command, _ []string) error {
		g, err := loadGraph()
		if err != nil {
			return err
		}
		report := validate.Story(g)
		out := cmd.OutOrStdout()

		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			for _, issue := range report.Issues {
				fmt.Fprintf(out, "- %s\n", issue)
			}
		}

		if !report.OK() {
			return fmt.Errorf("story validation failed: %d error(s)", len(report.Errors()))
		}
		if !jsonOutput {
			fmt.Fprintf(out, "Story validation passed. scenes=%d, flags=%d, items=%d\n", report.Scenes, report.Flags, report.Items)
		}
		return nil
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "输出选项倾向分布与失衡提示",
	RunE: func(cmd *cobra.Command, _ []string) error {
		g, err := loadGraph()
		if err != nil {
			return err
		}
		report := validate.Balance(g)
		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		report.Write(cmd.OutOrStdout(), g.AxisNames())
		return nil
	},
}

func loadGraph() (*story.Graph, error) {
	if storyDir == "" {
		return story.Default()
	}
	return story.LoadDir(storyDir)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storyDir, "dir", "", "剧情数据目录（默认使用内置章节）")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "以 JSON 输出")
	rootCmd.AddCommand(validateCmd, balanceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
