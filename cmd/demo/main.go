// cmd/demo/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yzy0324/neon-tape-vn/internal/app"
	"github.com/yzy0324/neon-tape-vn/internal/config"
	"github.com/yzy0324/neon-tape-vn/internal/di"
	"github.com/yzy0324/neon-tape-vn/internal/engine"
	"github.com/yzy0324/neon-tape-vn/internal/models"
	"github.com/yzy0324/neon-tape-vn/internal/utils"
)

const defaultConsoleProfile = "console"

var reader = bufio.NewReader(os.Stdin)

// console 控制台游玩的上下文
type console struct {
	app   *app.App
	runID string
	view  *engine.View
}

func main() {
	fmt.Println("NEON TAPE // 控制台")
	fmt.Println("=================================")

	baseConfig, err := config.Load()
	if err != nil {
		fmt.Printf("加载基础配置失败: %v\n", err)
		return
	}
	if err := baseConfig.EnsureDirs(); err != nil {
		fmt.Printf("创建目录失败: %v\n", err)
		return
	}

	logFile := fmt.Sprintf("%s/console_%s.log", baseConfig.LogDir, time.Now().Format("2006-01-02"))
	if err := utils.InitLogger(logFile); err != nil {
		fmt.Printf("无法初始化日志文件: %v\n", err)
	}
	defer utils.CloseLogger()
	// 控制台界面只把日志写入文件
	utils.GetLogger().SetOutput(nil)

	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		fmt.Printf("初始化配置失败: %v\n", err)
		return
	}
	application, err := app.New(config.GetCurrentConfig(), di.NewContainer())
	if err != nil {
		fmt.Printf("初始化服务失败: %v\n", err)
		return
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Shutdown(ctx); err != nil {
			fmt.Printf("关闭服务失败: %v\n", err)
		}
	}()

	c := &console{app: application}
	if err := c.start(); err != nil {
		fmt.Printf("开局失败: %v\n", err)
		return
	}

	for {
		c.render()
		input := getUserInput("> ")
		if quit := c.dispatch(input); quit {
			fmt.Println("再见。")
			return
		}
	}
}

func (c *console) start() error {
	sess, view, err := c.app.Sessions.Start(defaultConsoleProfile)
	if err != nil {
		return err
	}
	c.runID = sess.ID
	c.view = view
	return nil
}

// dispatch 处理一条输入，返回 true 表示退出
func (c *console) dispatch(input string) bool {
	ctx := context.Background()
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return false
	}

	var err error
	switch cmd := fields[0]; cmd {
	case "q", "quit", "exit":
		return true
	case "h", "help":
		showHelp()
	case "f", "forecast":
		var fc models.Forecast
		if fc, err = c.app.Sessions.Forecast(c.runID); err == nil {
			showForecast(fc)
		}
	case "log", "history":
		var entries []models.DialogueEntry
		if entries, err = c.app.Sessions.History(c.runID, 0); err == nil {
			for _, e := range entries {
				if e.Speaker != "" {
					fmt.Printf("  %s：%s\n", e.Speaker, e.Text)
				} else {
					fmt.Printf("  %s\n", e.Text)
				}
			}
		}
	case "review":
		var steps []engine.ReviewStep
		if steps, err = c.app.Sessions.Review(c.runID); err == nil {
			for _, s := range steps {
				fmt.Printf("  %2d. [%s] %s %s\n", s.Step, s.SceneID, s.Title, s.Choice)
			}
		}
	case "slots":
		var summaries []models.SlotSummary
		if summaries, err = c.app.Saves.Summaries(ctx, c.runID); err == nil {
			showSlots(summaries)
		}
	case "save":
		if len(fields) < 2 {
			fmt.Println("用法: save <slot1|slot2|slot3>")
			return false
		}
		if _, err = c.app.Saves.Save(ctx, c.runID, fields[1]); err == nil {
			fmt.Println("已存档:", fields[1])
		}
	case "load":
		if len(fields) < 2 {
			fmt.Println("用法: load <slot1|slot2|slot3|auto>")
			return false
		}
		var view *engine.View
		if view, err = c.app.Saves.Load(ctx, c.runID, fields[1]); err == nil {
			c.view = view
		}
	case "export":
		if len(fields) < 2 {
			fmt.Println("用法: export <slot>")
			return false
		}
		var text string
		if text, err = c.app.Saves.Export(ctx, c.runID, fields[1]); err == nil {
			fmt.Println(text)
		}
	case "import":
		if len(fields) < 3 {
			fmt.Println("用法: import <slot> <text>")
			return false
		}
		if _, err = c.app.Saves.Import(ctx, c.runID, fields[1], fields[2]); err == nil {
			fmt.Println("导入成功:", fields[1])
		}
	case "order":
		err = c.order(fields[1:])
	case "restart":
		var view *engine.View
		if view, err = c.app.Sessions.Restart(c.runID); err == nil {
			c.view = view
		}
	default:
		index, convErr := strconv.Atoi(cmd)
		if convErr != nil {
			fmt.Println("未知命令，输入 help 查看帮助")
			return false
		}
		var view *engine.View
		if view, err = c.app.Sessions.Choose(c.runID, index-1); err == nil {
			c.view = view
		}
	}

	if err != nil {
		fmt.Printf("错误: %v\n", err)
	}
	return false
}

// order 提交订单：order <drinkId> [extraId...]
func (c *console) order(args []string) error {
	if len(args) == 0 {
		fmt.Println("用法: order <drinkId> [extraId...]")
		return nil
	}
	view, err := c.app.Sessions.SubmitOrder(c.runID, models.OrderDraft{DrinkID: args[0], ExtraIDs: args[1:]})
	if err != nil {
		return err
	}
	c.view = view
	return nil
}

func (c *console) render() {
	v := c.view
	if v == nil {
		return
	}
	fmt.Println()
	fmt.Printf("── %s ──  [%s]\n", v.Title, v.Background)
	if v.SpeakerName != "" {
		fmt.Printf("%s：", v.SpeakerName)
	}
	fmt.Println(v.Text)

	if v.Order != nil {
		fmt.Printf("\n%s 想要：%s\n", v.Order.NPCName, v.Order.Request)
		for _, d := range v.Order.Drinks {
			fmt.Printf("  %-10s %s\n", d.ID, d.Name)
		}
		for _, e := range v.Order.Extras {
			fmt.Printf("  +%-9s %s\n", e.ID, e.Name)
		}
		fmt.Println("输入 order <drinkId> [extraId...] 出酒")
	}
	if v.Ending != nil {
		fmt.Printf("\n★ 结局：%s\n", v.Ending.Title)
		fmt.Println("输入 restart 重新开始")
	}
	for _, ch := range v.Choices {
		lock := ""
		if ch.LockRoute {
			lock = " [锁定路线]"
		}
		fmt.Printf("  %d) %s%s\n", ch.Index+1, ch.Label, lock)
	}
	if v.Forecast.Prediction != "" {
		fmt.Printf("预测：%s\n", v.Forecast.Prediction)
	}
}

func showForecast(fc models.Forecast) {
	fmt.Printf("  倾向：%s (%s)\n", fc.Name, fc.EndingID)
	for _, s := range fc.Scores {
		fmt.Printf("    %-12s %.2f\n", s.EndingID, s.Score)
	}
	if fc.Diagnosis.Line != "" {
		fmt.Println("  " + fc.Diagnosis.Line)
	}
	if fc.Hint != "" {
		fmt.Println("  提示：" + fc.Hint)
	}
}

func showSlots(summaries []models.SlotSummary) {
	for _, s := range summaries {
		if s.Empty {
			fmt.Printf("  %-6s (空)\n", s.Slot)
			continue
		}
		fmt.Printf("  %-6s %s  步数 %d  %s\n", s.Slot, s.Title, s.Steps, s.SavedAt.Local().Format("01-02 15:04"))
	}
}

func showHelp() {
	fmt.Println("命令：")
	fmt.Println("  <数字>                选择选项")
	fmt.Println("  order <drink> [...]   出酒")
	fmt.Println("  forecast | f          结局预测")
	fmt.Println("  log                   对白历史")
	fmt.Println("  review                完整路径")
	fmt.Println("  slots                 存档槽")
	fmt.Println("  save/load <slot>      存档/读档")
	fmt.Println("  export/import         导出/导入存档文本")
	fmt.Println("  restart               重新开始")
	fmt.Println("  quit                  退出")
}

// getUserInput 读取一行输入
func getUserInput(prompt string) string {
	fmt.Print(prompt)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "quit"
	}
	return strings.TrimSpace(input)
}
