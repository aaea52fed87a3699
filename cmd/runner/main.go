package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"apexflow/internal/app"
	"apexflow/internal/engine"
	"apexflow/pkg/config"
)

func main() {
	configPath := flag.String("config", "configs/api.yaml", "配置文件路径")
	query := flag.String("query", "", "要执行的查询")
	files := flag.String("files", "", "上传文件路径，逗号分隔")
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "用法: runner -query \"...\" [-files a.pdf,b.txt] [-config configs/api.yaml]")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	bootstrap, err := app.NewBootstrap(cfg)
	if err != nil {
		log.Fatalf("初始化失败: %v", err)
	}
	defer bootstrap.Close()

	var uploaded []string
	if *files != "" {
		uploaded = strings.Split(*files, ",")
	}

	// Ctrl-C 取消 run，未完成任务标记 stopped
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, err := bootstrap.Engine.Run(ctx, engine.RunOptions{
		Query:         *query,
		FileManifest:  uploaded,
		UploadedFiles: uploaded,
	})
	if err != nil {
		log.Printf("run 结束（含错误）: %v", err)
	}

	summary := g.Summarize()
	data, _ := json.MarshalIndent(summary, "", "  ")
	fmt.Println(string(data))
}
