package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"stock_platform/internal/config"
	"stock_platform/internal/database"
	"stock_platform/internal/models"
	"stock_platform/internal/provider"
	"stock_platform/internal/service"
)

const usage = `用法: stockctl <命令> [选项]

命令:
  daily    执行每日增量更新（先刷新证券列表）
  update   按代码/类别执行更新
  info     显示各数据表的规模信息
  query    执行只读 SQL 查询
  check    检查某证券某类别的数据缺口
  import   导入账户交易/持仓 JSON 文件

全局选项:
  -config  配置文件路径（默认 ./config/config.yaml）
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "daily":
		runDaily(args)
	case "update":
		runUpdate(args)
	case "info":
		runInfo(args)
	case "query":
		runQuery(args)
	case "check":
		runCheck(args)
	case "import":
		runImport(args)
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n\n", command)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

// app 命令共享的运行环境
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	db      *database.Gateway
	updater *service.Updater
	close   func()
}

func setup(configPath string) *app {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config error: %v", err)
	}

	logger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}

	gateway := database.NewGateway(db, cfg.Update.BatchSize, logger)

	sources := provider.NewManager(logger)
	if cfg.Providers.JQData.Enabled {
		sources.Register(provider.NewJQDataSource(&cfg.Providers.JQData), cfg.Providers.Default == "jqdata")
	}
	if cfg.Providers.Tushare.Enabled {
		sources.Register(provider.NewTushareSource(&cfg.Providers.Tushare), cfg.Providers.Default == "tushare")
	}

	updater := service.NewUpdater(gateway, sources, &cfg.Update, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      gateway,
		updater: updater,
		close: func() {
			database.Close(db)
			logger.Sync()
		},
	}
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	zapCfg.OutputPaths = []string{"stderr"}
	if cfg.Level == "debug" {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return zapCfg.Build()
}

// runDaily 每日增量更新
func runDaily(args []string) {
	fs := flag.NewFlagSet("daily", flag.ExitOnError)
	configPath := fs.String("config", "./config/config.yaml", "配置文件路径")
	fs.Parse(args)

	a := setup(*configPath)
	defer a.close()

	summary, err := a.updater.DailyUpdate(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "每日更新失败: %v\n", err)
		os.Exit(1)
	}

	printSummary(summary)
	if summary.TotalFailure() {
		os.Exit(1)
	}
}

// runUpdate 按代码/类别更新
func runUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	configPath := fs.String("config", "./config/config.yaml", "配置文件路径")
	codesFlag := fs.String("codes", "", "证券代码，逗号分隔，为空表示全部已入库证券")
	categoriesFlag := fs.String("categories", "", "数据类别，逗号分隔，支持 market/financial 别名，为空表示全部")
	forceFull := fs.Bool("force-full", false, "忽略已有数据，从历史回溯起点全量更新")
	asOfFlag := fs.String("as-of", "", "更新截止日期 YYYY-MM-DD，为空表示今天")
	workers := fs.Int("workers", 0, "并发工作协程数，0 表示使用配置值")
	fs.Parse(args)

	a := setup(*configPath)
	defer a.close()

	var codes []string
	if *codesFlag != "" {
		codes = splitComma(*codesFlag)
	} else {
		var err error
		codes, err = a.db.StockCodes()
		if err != nil {
			fmt.Fprintf(os.Stderr, "获取证券列表失败: %v\n", err)
			os.Exit(1)
		}
		if len(codes) == 0 {
			fmt.Fprintln(os.Stderr, "证券列表为空，请先执行 daily 或指定 -codes")
			os.Exit(1)
		}
	}

	categories, err := models.ParseCategories(splitComma(*categoriesFlag))
	if err != nil {
		fmt.Fprintf(os.Stderr, "类别参数错误: %v\n", err)
		os.Exit(1)
	}

	var asOf time.Time
	if *asOfFlag != "" {
		asOf, err = time.Parse("2006-01-02", *asOfFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "as-of 日期格式错误，应为 YYYY-MM-DD")
			os.Exit(1)
		}
	}

	summary, err := a.updater.Run(context.Background(), service.RunRequest{
		Codes:      codes,
		Categories: categories,
		ForceFull:  *forceFull,
		AsOf:       asOf,
		MaxWorkers: *workers,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "更新失败: %v\n", err)
		os.Exit(1)
	}

	printSummary(summary)
	// 部分失败只告警，全部失败才以非零退出
	if summary.TotalFailure() {
		os.Exit(1)
	}
}

// runInfo 显示各数据表的规模信息
func runInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	configPath := fs.String("config", "./config/config.yaml", "配置文件路径")
	fs.Parse(args)

	a := setup(*configPath)
	defer a.close()

	infos, err := a.db.Info()
	if err != nil {
		fmt.Fprintf(os.Stderr, "获取表信息失败: %v\n", err)
		os.Exit(1)
	}

	codes, _ := a.db.StockCodes()
	fmt.Printf("证券数量: %d\n\n", len(codes))
	fmt.Printf("%-22s %-22s %10s  %s\n", "类别", "表名", "行数", "最新日期")
	for _, info := range infos {
		latest := "-"
		if info.LatestDate != nil {
			latest = info.LatestDate.Format("2006-01-02")
		}
		fmt.Printf("%-22s %-22s %10d  %s\n", info.Category, info.Table, info.RowCount, latest)
	}

	runs, total, err := a.db.ListRuns(5, 0)
	if err == nil && total > 0 {
		fmt.Printf("\n最近运行（共 %d 次）:\n", total)
		for _, run := range runs {
			fmt.Printf("  %s  %-9s  更新 %d / 跳过 %d / 失败 %d\n",
				run.StartTime.Format("2006-01-02 15:04:05"), run.Status,
				run.UpdatedCount, run.SkippedCount, run.FailedCount)
		}
	}
}

// runQuery 执行只读 SQL，结果输出为 CSV
func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "./config/config.yaml", "配置文件路径")
	sqlFlag := fs.String("sql", "", "要执行的 SQL 语句")
	output := fs.String("output", "", "输出文件路径，为空输出到标准输出")
	fs.Parse(args)

	if *sqlFlag == "" {
		fmt.Fprintln(os.Stderr, "必须指定 -sql")
		os.Exit(2)
	}

	a := setup(*configPath)
	defer a.close()

	columns, rows, err := a.db.Query(*sqlFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "查询失败: %v\n", err)
		os.Exit(1)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "创建输出文件失败: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	w := csv.NewWriter(out)
	w.Write(columns)
	for _, row := range rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatValue(v)
		}
		w.Write(record)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "写出结果失败: %v\n", err)
		os.Exit(1)
	}

	if *output != "" {
		fmt.Printf("已导出 %d 行到 %s\n", len(rows), *output)
	}
}

// runCheck 检查数据缺口
func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "./config/config.yaml", "配置文件路径")
	categoryFlag := fs.String("category", "price_data", "数据类别")
	codesFlag := fs.String("codes", "", "证券代码，逗号分隔，为空表示该类别表中全部代码")
	startFlag := fs.String("start", "", "起始日期 YYYY-MM-DD")
	endFlag := fs.String("end", "", "结束日期 YYYY-MM-DD，为空表示今天")
	fs.Parse(args)

	a := setup(*configPath)
	defer a.close()

	category := models.DataCategory(*categoryFlag)
	if !category.Valid() {
		fmt.Fprintf(os.Stderr, "未知数据类别: %s\n", *categoryFlag)
		os.Exit(2)
	}

	codes := splitComma(*codesFlag)
	if len(codes) == 0 {
		var err error
		codes, err = a.db.ExistingCodes(category)
		if err != nil {
			fmt.Fprintf(os.Stderr, "获取代码列表失败: %v\n", err)
			os.Exit(1)
		}
		if len(codes) == 0 {
			fmt.Println("该类别表中无数据")
			return
		}
	}

	start := a.cfg.Update.HistoryFloor()
	if *startFlag != "" {
		t, err := time.Parse("2006-01-02", *startFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "start 日期格式错误")
			os.Exit(2)
		}
		start = t
	}

	end := time.Now()
	if *endFlag != "" {
		t, err := time.Parse("2006-01-02", *endFlag)
		if err != nil {
			fmt.Fprintln(os.Stderr, "end 日期格式错误")
			os.Exit(2)
		}
		end = t
	}

	exitCode := 0
	for _, code := range codes {
		missing, err := a.db.MissingDays(category, code, start, end)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s 检查失败: %v\n", code, err)
			exitCode = 1
			continue
		}
		if len(missing) == 0 {
			fmt.Printf("%s [%s]: 无缺口\n", code, category)
			continue
		}
		fmt.Printf("%s [%s]: 缺失 %d 个工作日\n", code, category, len(missing))
		for _, d := range missing {
			fmt.Printf("  %s\n", d.Format("2006-01-02"))
		}
	}
	os.Exit(exitCode)
}

// runImport 导入账户交易/持仓数据
// -path 指向单个 YYYYMMDD.json 文件或账户根目录（<根>/<账户ID>/trades_orders/...）
func runImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "./config/config.yaml", "配置文件路径")
	pathFlag := fs.String("path", "", "交易/持仓文件或账户根目录")
	kind := fs.String("kind", "trades", "单文件导入时的类型: trades 或 positions")
	fs.Parse(args)

	if *pathFlag == "" {
		fmt.Fprintln(os.Stderr, "必须指定 -path")
		os.Exit(2)
	}

	a := setup(*configPath)
	defer a.close()

	importer := service.NewImporter(a.db, a.logger)

	stat, err := os.Stat(*pathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取路径失败: %v\n", err)
		os.Exit(1)
	}

	if stat.IsDir() {
		result, err := importer.ImportDir(*pathFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "导入失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("导入完成: 文件 %d 个，记录 %d 条，入库 %d 条，错误 %d 条\n",
			len(result.Files), result.Total, result.Imported, result.Errors)
		for _, f := range result.Files {
			for _, e := range f.Errors {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", f.Path, e)
			}
		}
		if result.Imported == 0 && result.Errors > 0 {
			os.Exit(1)
		}
		return
	}

	var result service.FileResult
	switch *kind {
	case "trades":
		result, err = importer.ImportTradeFile(*pathFlag)
	case "positions":
		result, err = importer.ImportPositionFile(*pathFlag)
	default:
		fmt.Fprintf(os.Stderr, "未知导入类型: %s\n", *kind)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "导入失败: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("账户 %s %s: 记录 %d 条，入库 %d 条，错误 %d 条\n",
		result.AccountID, result.Date, result.Total, result.Imported, len(result.Errors))
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "  %s\n", e)
	}
}

// printSummary 输出运行摘要
func printSummary(s *service.RunSummary) {
	fmt.Printf("运行 %s 完成，耗时 %s\n", s.RunID, s.Elapsed.Round(time.Millisecond))
	fmt.Printf("  任务总数: %d  更新: %d  跳过: %d  失败: %d  写入行数: %d\n",
		s.Total, s.Updated, s.Skipped, s.Failed, s.RowsWritten)
	for _, f := range s.Failures {
		fmt.Printf("  失败 %s [%s]: %s\n", f.Code, f.Category, f.Reason)
	}
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", x)
	}
}
