// Package face 画素行列から顔の領域を検出する
//
// 検出は2段階で行う。1段目はProposerが画像ピラミッドの各段で候補を出し、
// 2段目でしきい値とNMSをかけ直して絞り込む。検出器は状態を持たず、
// 同じ入力と設定には常に同じ結果を返す。顔が見つからないことはエラーではない。
package face
