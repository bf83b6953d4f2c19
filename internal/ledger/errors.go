package ledger

import "errors"

// 交易执行错误，全部限定在"单 symbol 单日"的粒度：
// 上层把它们转成记录上的 status，绝不因此中断其它 symbol/日期/agent。
var (
	ErrValidation         = errors.New("validation error")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrNoPosition         = errors.New("no position")
)
