package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"

	"kaomi/api"
)

// apiSpec は埋め込まれたAPI定義と、そのルーター
type apiSpec struct {
	doc    *openapi3.T
	router routers.Router
	json   []byte
}

// loadSpec は埋め込まれたOpenAPI定義を読み込んで検証する
func loadSpec(ctx context.Context) (*apiSpec, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(api.Spec)
	if err != nil {
		return nil, fmt.Errorf("OpenAPI定義の読み込みに失敗: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("OpenAPI定義が不正です: %w", err)
	}

	router, err := legacyrouter.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("OpenAPIルーターの作成に失敗: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("OpenAPI定義のJSON変換に失敗: %w", err)
	}

	return &apiSpec{doc: doc, router: router, json: data}, nil
}
