// Package main はKaomiサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"kaomi/internal/app"
	"kaomi/internal/config"
	"kaomi/internal/log"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		configFile = flag.String("config", "", "設定ファイル (YAML)")
		sensor     = flag.String("sensor", "", "センサー種別: v4l2 / ffmpeg / pattern")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Kaomi")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	path := *configFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Error("設定の読み込みに失敗しました", "error", err)
		os.Exit(1)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *sensor != "" {
		cfg.Camera.Sensor = *sensor
	}
	if err := cfg.Validate(); err != nil {
		log.Error("設定が不正です", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.Log.Level)

	ctx := context.Background()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error("初期化に失敗しました", "error", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		log.Error("サーバーの起動に失敗しました", "error", err)
		os.Exit(1)
	}
}
