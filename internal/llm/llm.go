package llm

import "context"

// Request 描述一次发送给大模型的补全请求。
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Response 是大模型返回的文本结果。
type Response struct {
	Text string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}
