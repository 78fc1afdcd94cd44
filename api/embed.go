// Package api はHTTP APIの定義ファイルを埋め込む
package api

import _ "embed"

// Spec はOpenAPI定義 (YAML)
//
//go:embed openapi.yml
var Spec []byte
