package main

import (
	"context"
	"os"

	"kaomi/internal/app"
	"kaomi/internal/config"
	"kaomi/internal/log"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Error("設定の読み込みに失敗しました", "error", err)
		os.Exit(1)
	}
	log.Init(cfg.Log.Level)

	// コンテキストを作成
	ctx := context.Background()

	// カメラの初期化に失敗したらサーバーは起動しない
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
