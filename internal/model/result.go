package model

// Result 是所有接口统一的响应体。
type Result struct {
	Ok       bool   `json:"ok"`
	Data     any    `json:"data,omitempty"`
	ErrorMsg string `json:"errorMsg,omitempty"`
}

func Ok(data any) Result { return Result{Ok: true, Data: data} }

func Fail(msg string) Result { return Result{Ok: false, ErrorMsg: msg} }
