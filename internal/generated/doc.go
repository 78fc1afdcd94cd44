// Package generated はapi/openapi.ymlから生成されたサーバーインターフェースと型を置く
package generated

//go:generate oapi-codegen -config ../../api/oapi-codegen.yaml ../../api/openapi.yml
