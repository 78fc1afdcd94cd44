package camera

import (
	"sync/atomic"
	"time"
)

// Frame はSourceから払い出された1回分のキャプチャ結果
//
// Acquireで得てからReleaseするまでの間だけ保持者が所有する。
// Releaseは成功したAcquireごとにちょうど1回、すべての終了経路で呼ぶこと。
// 解放後はDataがnilになり、スロットの内容は参照できない。
type Frame struct {
	Data      []byte      // エンコード済みのバイト列
	Width     int         // 画像幅 (px)
	Height    int         // 画像高さ (px)
	Format    PixelFormat // エンコード形式
	Timestamp time.Time   // キャプチャ時刻（診断用）

	owner    *Source
	released atomic.Bool
}

// Len はペイロードのバイト数を返す
func (f *Frame) Len() int {
	return len(f.Data)
}

// Released はフレームが解放済みかどうかを返す
func (f *Frame) Released() bool {
	return f.released.Load()
}
