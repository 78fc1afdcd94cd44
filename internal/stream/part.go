package stream

import (
	"fmt"
	"io"
)

// DefaultBoundary はmultipartの境界文字列
const DefaultBoundary = "frame_boundary"

// ContentTypeFor は境界文字列に対応するContent-Typeを返す
func ContentTypeFor(boundary string) string {
	return "multipart/x-mixed-replace;boundary=" + boundary
}

// WritePart は1パート分（境界・ヘッダー・ペイロード）を書き込む
func WritePart(w io.Writer, boundary string, payload []byte) error {
	if _, err := fmt.Fprintf(w, "\r\n--%s\r\n", boundary); err != nil {
		return fmt.Errorf("境界の書き込みに失敗: %w", err)
	}
	if _, err := fmt.Fprintf(w, "Content-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(payload)); err != nil {
		return fmt.Errorf("ヘッダーの書き込みに失敗: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("ペイロードの書き込みに失敗: %w", err)
	}
	return nil
}
