package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrTimeout 表示上游解析调用超时。
	ErrTimeout = errors.New("上游解析调用超时")
	// ErrEmptyResponse 表示上游返回了空结果。
	ErrEmptyResponse = errors.New("上游返回结果为空")
)

// AmbiguousError 表示模型明确声明无法消歧，应引导用户补充说明，
// 而不是当作普通失败处理。
type AmbiguousError struct {
	Question string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("指令存在歧义, 需要用户澄清: %s", e.Question)
}

// MalformedResponseError 表示上游返回的数据未通过意图解析或校验。
type MalformedResponseError struct {
	Raw    string
	Reason error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("上游返回数据不合法: %v", e.Reason)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Reason
}

// ProviderError 表示上游服务自身的失败。
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("上游服务调用失败: %v", e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// classifyCallError 将 SDK 层错误归入超时或上游失败。
func classifyCallError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{Err: apiErr}
	}
	return &ProviderError{Err: err}
}
