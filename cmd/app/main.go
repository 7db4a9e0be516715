package main

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"Canvas-Auto-Quiz-Backend/internal/ai"
	"Canvas-Auto-Quiz-Backend/internal/api"
	"Canvas-Auto-Quiz-Backend/internal/client"
	"Canvas-Auto-Quiz-Backend/internal/media"
	"Canvas-Auto-Quiz-Backend/internal/repository"
	"Canvas-Auto-Quiz-Backend/internal/router"
	"Canvas-Auto-Quiz-Backend/internal/service"
	"Canvas-Auto-Quiz-Backend/internal/session"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("执行失败: %s", err)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	rootCmd := &cobra.Command{
		Use:           "canvas-quiz",
		Short:         "Canvas 在线测验自动作答工具",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cfgFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径 (默认在 ./config 下查找 config.yaml)")
	rootCmd.AddCommand(newSolveCmd(), newServeCmd())
	return rootCmd
}

func initConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("CANVAS_APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("canvas.timeout_seconds", 30)
	viper.SetDefault("media.dir", "./media")
	viper.SetDefault("media.workers", media.DefaultWorkers)
	viper.SetDefault("media.timeout_seconds", 30)
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.timeout_seconds", 180)
	viper.SetDefault("ai.upload_workers", 5)
	viper.SetDefault("results.dir", "./results")
	viper.SetDefault("server.port", ":8080")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("警告：未找到 config.yaml 文件，将完全依赖环境变量进行配置。")
			return nil
		}
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	return nil
}

func buildQuizService() (*service.QuizService, error) {
	sess, err := session.LoadFromFile(viper.GetString("canvas.cookie_path"))
	if err != nil {
		return nil, fmt.Errorf("初始化会话失败: %w", err)
	}

	canvasClient := client.NewCanvasClient(viper.GetString("canvas.base_url"), sess, viper.GetInt("canvas.timeout_seconds"))
	mediaFetcher := media.NewFetcher(sess, viper.GetInt("media.workers"), viper.GetInt("media.timeout_seconds"))

	provider, err := ai.NewProvider(viper.GetString("ai.provider"), ai.Options{
		BaseURL:       viper.GetString("ai.base_url"),
		APIKey:        viper.GetString("ai.api_key"),
		Model:         viper.GetString("ai.model"),
		TimeoutSec:    viper.GetInt("ai.timeout_seconds"),
		UploadWorkers: viper.GetInt("ai.upload_workers"),
	})
	if err != nil {
		return nil, err
	}

	attemptRepo, err := repository.NewAttemptRepository(viper.GetString("results.dir"))
	if err != nil {
		return nil, fmt.Errorf("初始化结果仓库失败: %w", err)
	}

	return service.NewQuizService(
		canvasClient,
		mediaFetcher,
		ai.NewResolver(provider),
		attemptRepo,
		viper.GetString("canvas.user_id"),
		viper.GetString("media.dir"),
	), nil
}

func newSolveCmd() *cobra.Command {
	var (
		quizURL     string
		autoStart   bool
		skipConfirm bool
		dryRun      bool
	)

	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "自动完成一份测验并提交",
		RunE: func(cmd *cobra.Command, args []string) error {
			quizService, err := buildQuizService()
			if err != nil {
				return err
			}

			opts := service.SolveOptions{
				QuizURL:     quizURL,
				AutoStart:   autoStart,
				SkipConfirm: skipConfirm,
				DryRun:      dryRun,
				Confirm:     interactiveConfirm,
			}

			outcome, err := quizService.Solve(opts)
			if errors.Is(err, client.ErrAttemptNotStarted) {
				if !confirmAttemptStart() {
					fmt.Println("已取消：未开始新的作答。")
					return nil
				}
				opts.AutoStart = true
				outcome, err = quizService.Solve(opts)
			}
			if errors.Is(err, service.ErrSubmitAborted) {
				fmt.Println("已取消提交。")
				return nil
			}
			if err != nil {
				return err
			}

			if !dryRun {
				fmt.Printf("完成：%d/%d 题已提交，未作答 %d 题。\n",
					outcome.AnsweredCount, outcome.TotalCount, len(outcome.Unanswered))
			}
			return nil
		},
	}

	solveCmd.Flags().StringVar(&quizURL, "url", "", "测验作答页面URL (必填)")
	solveCmd.Flags().BoolVar(&autoStart, "auto-start", false, "测验未开始时直接发起作答 (不再询问)")
	solveCmd.Flags().BoolVar(&skipConfirm, "skip-confirm", false, "跳过提交前的所有人工确认")
	solveCmd.Flags().BoolVar(&dryRun, "dry-run", false, "只解析题目和下载媒体，不解答不提交")
	solveCmd.Flags().String("provider", "", "AI提供商 (openai|gemini)，覆盖配置文件")
	solveCmd.Flags().String("model", "", "AI模型名，覆盖配置文件")
	_ = solveCmd.MarkFlagRequired("url")
	_ = viper.BindPFlag("ai.provider", solveCmd.Flags().Lookup("provider"))
	_ = viper.BindPFlag("ai.model", solveCmd.Flags().Lookup("model"))

	return solveCmd
}

// interactiveConfirm 确认门的交互端。决策本身在 service.RequiresConfirmation，
// 这里只负责把问题摆到用户面前。
func interactiveConfirm(level service.ConfirmationLevel, unanswered []string) bool {
	if level == service.ConfirmStrong {
		fmt.Printf("注意：有 %d 道题未作答: %v\n", len(unanswered), unanswered)
		fmt.Println("提交后无法撤销，未作答题目将不得分。")
		prompt := promptui.Prompt{
			Label: fmt.Sprintf("要继续提交，请逐字输入 %q", service.StrongConfirmPhrase),
		}
		input, err := prompt.Run()
		return err == nil && service.AcceptsConfirmation(level, input)
	}

	prompt := promptui.Prompt{Label: "全部题目已作答，确认提交 (yes/是)"}
	input, err := prompt.Run()
	return err == nil && service.AcceptsConfirmation(level, input)
}

func confirmAttemptStart() bool {
	fmt.Println("该测验尚未开始。开始一次计时作答是不可撤销的。")
	prompt := promptui.Prompt{Label: "现在开始作答", IsConfirm: true}
	_, err := prompt.Run()
	return err == nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "以HTTP服务方式运行 (非交互)",
		RunE: func(cmd *cobra.Command, args []string) error {
			quizService, err := buildQuizService()
			if err != nil {
				return err
			}

			quizHandler := api.NewQuizHandler(quizService)
			r := router.SetupRouter(quizHandler, viper.GetStringSlice("cors.allowed_origins"))

			serverPort := viper.GetString("server.port")
			fmt.Printf("服务启动于 http://localhost%s\n", serverPort)
			if err := r.Run(serverPort); err != nil {
				return fmt.Errorf("服务启动失败: %w", err)
			}
			return nil
		},
	}
}
