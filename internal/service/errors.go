package service

import (
	"errors"
	"fmt"
)

// Kind 错误分类，决定 HTTP 层如何响应。
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindConflict
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Error 是业务层返回的错误。Msg 面向用户展示，Err 是底层原因。
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按 Kind+Msg 比较，便于 errors.Is(err, ErrNoStock)。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Msg == e.Msg
}

var (
	ErrInvalidPhone   = &Error{Kind: KindValidation, Msg: "手机号格式错误!"}
	ErrInvalidCode    = &Error{Kind: KindValidation, Msg: "验证码错误!"}
	ErrShopIDRequired = &Error{Kind: KindValidation, Msg: "店铺id不能为空!"}
	ErrShopNotFound   = &Error{Kind: KindNotFound, Msg: "店铺信息不存在"}
	ErrNoStock        = &Error{Kind: KindConflict, Msg: "库存不足"}
	ErrDuplicateOrder = &Error{Kind: KindConflict, Msg: "不能重复下单"}
	ErrNotStarted     = &Error{Kind: KindValidation, Msg: "秒杀尚未开始!"}
	ErrEnded          = &Error{Kind: KindValidation, Msg: "秒杀已经结束!"}
	ErrVoucherMissing = &Error{Kind: KindNotFound, Msg: "优惠券不存在"}
	ErrVoucherExists  = &Error{Kind: KindConflict, Msg: "优惠券已存在"}
	ErrOrderPending   = &Error{Kind: KindNotFound, Msg: "订单处理中或不存在"}
	ErrBlogNotFound   = &Error{Kind: KindNotFound, Msg: "博客不存在!"}
	ErrUnauthorized   = &Error{Kind: KindUnauthorized, Msg: "未登录"}
)

// transient 包装 Redis / 数据库等依赖的暂时性故障。
func transient(err error) error {
	return &Error{Kind: KindTransient, Msg: "服务繁忙，请稍后重试", Err: err}
}

func invalid(msg string) error {
	return &Error{Kind: KindValidation, Msg: msg}
}

// KindOf 取错误分类，非 *Error 一律视为内部错误。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf 返回可以展示给用户的文案。
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Msg
	}
	return "服务器内部错误"
}
